package model

import (
	"fmt"
	"time"
)

// TicketCount is the size of the fixed ticket pool.  Numbers run from 1 to
// TicketCount inclusive and are allocated once when the store is seeded.
const TicketCount = 10000

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusSold      Status = "sold"
)

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusSold:
		return true
	}
	return false
}

// Ticket mirrors a row of the tickets table.  Holder fields and the
// reservation timestamp are nil exactly when the ticket is available.
//
// Fields:
//
//	Number          – tickets.number, 1..TicketCount.
//	Status          – available, reserved or sold.
//	HolderName      – name given when the ticket was reserved.
//	HolderContact   – email address or phone number of the holder.
//	ReservationDate – UTC time the reservation was made.
type Ticket struct {
	Number          int        `json:"number"`
	Status          Status     `json:"status"`
	HolderName      *string    `json:"holder_name"`
	HolderContact   *string    `json:"holder_contact"`
	ReservationDate *time.Time `json:"reservation_date"`
}

// TicketStatus is the lightweight projection served to the public grid.
type TicketStatus struct {
	Number int    `json:"number"`
	Status Status `json:"status"`
}

// Holder identifies who holds a reserved or sold ticket.
type Holder struct {
	Name    string
	Contact string
}

// Holder returns the ticket's holder, or false for an available ticket.
func (t Ticket) Holder() (Holder, bool) {
	if t.HolderName == nil || t.HolderContact == nil {
		return Holder{}, false
	}
	return Holder{Name: *t.HolderName, Contact: *t.HolderContact}, true
}

// Consistent reports whether the ticket satisfies the status/holder
// invariant: available rows carry no holder data and every other row
// carries all of it.
func (t Ticket) Consistent() bool {
	set := t.HolderName != nil && t.HolderContact != nil && t.ReservationDate != nil
	unset := t.HolderName == nil && t.HolderContact == nil && t.ReservationDate == nil
	if t.Status == StatusAvailable {
		return unset
	}
	return t.Status.Valid() && set
}

// ValidNumber reports whether n names a ticket in the pool.
func ValidNumber(n int) bool { return n >= 1 && n <= TicketCount }

// FormatNumber renders n the way tickets are shown to people: five digits,
// zero padded (7 -> "00007").
func FormatNumber(n int) string { return fmt.Sprintf("%05d", n) }

// FormatNumbers applies FormatNumber to every element of ns.
func FormatNumbers(ns []int) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = FormatNumber(n)
	}
	return out
}
