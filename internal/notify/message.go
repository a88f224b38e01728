// Package notify delivers reservation and approval notices to ticket
// holders.  Delivery is best effort: the ledger hands a Message to a
// Dispatcher after its transaction commits and never waits for, retries or
// reports the outcome.
package notify

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which ledger transition produced a message.
type Kind string

const (
	KindReserved Kind = "ticket.reserved"
	KindApproved Kind = "ticket.approved"
)

// Message is the payload handed to a Sink.  It doubles as the JSON body
// published to the message broker.
type Message struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Raffle    string    `json:"raffle"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Numbers   []int     `json:"numbers"`
	AmountDue string    `json:"amount_due,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage stamps a fresh id and creation time.
func NewMessage(kind Kind, raffle, name, contact string, numbers []int) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Raffle:    raffle,
		Name:      name,
		Contact:   contact,
		Numbers:   append([]int(nil), numbers...),
		CreatedAt: time.Now().UTC(),
	}
}

// Sink delivers a single message.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

func (f SinkFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// IsEmail reports whether contact is a bare email address.  Holders may
// leave a phone number instead; those contacts receive no email.
func IsEmail(contact string) bool {
	contact = strings.TrimSpace(contact)
	if !strings.Contains(contact, "@") {
		return false
	}
	addr, err := mail.ParseAddress(contact)
	return err == nil && addr.Address == contact
}
