package model

import "time"

// ReservationGroup aggregates the active tickets of one holder for the
// admin view.  It is computed at read time and never stored.
type ReservationGroup struct {
	Name          string    `json:"name"`
	Contact       string    `json:"contact"`
	Status        Status    `json:"status"` // sold iff every ticket in the group is sold
	Numbers       []int     `json:"numbers"`
	Labels        []string  `json:"labels"`
	LatestReserve time.Time `json:"latest_reservation"`
}

// GroupReservations groups active tickets by (holder name, holder contact).
// Groups keep the order in which their first ticket appears in tickets, so
// feeding it ListActive output yields newest-reservation-first groups.
// Available tickets and rows without holder data are skipped.
func GroupReservations(tickets []Ticket) []ReservationGroup {
	index := make(map[Holder]int)
	groups := make([]ReservationGroup, 0)
	for _, t := range tickets {
		if t.Status == StatusAvailable {
			continue
		}
		h, ok := t.Holder()
		if !ok {
			continue
		}
		i, seen := index[h]
		if !seen {
			i = len(groups)
			index[h] = i
			groups = append(groups, ReservationGroup{Name: h.Name, Contact: h.Contact, Status: StatusSold})
		}
		g := &groups[i]
		g.Numbers = append(g.Numbers, t.Number)
		g.Labels = append(g.Labels, FormatNumber(t.Number))
		if t.Status != StatusSold {
			g.Status = StatusReserved
		}
		if t.ReservationDate != nil && t.ReservationDate.After(g.LatestReserve) {
			g.LatestReserve = *t.ReservationDate
		}
	}
	return groups
}

// FilterGroups keeps the groups whose status equals s.  An empty s keeps
// everything.
func FilterGroups(groups []ReservationGroup, s Status) []ReservationGroup {
	if s == "" {
		return groups
	}
	out := make([]ReservationGroup, 0, len(groups))
	for _, g := range groups {
		if g.Status == s {
			out = append(out, g)
		}
	}
	return out
}
