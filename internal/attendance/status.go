// Package attendance derives per-member service status and per-day progress
// from bookings and the history ledger. Everything here is recomputed from
// source rows on each call.
package attendance

import "carevisit/internal/model"

// Kind is the resolved state of a booking line.
type Kind int

const (
	Pending Kind = iota
	Done
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// MarshalText renders the kind by name in JSON views.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Status is the resolved state of one member on one date. Menu and Price
// are set only for Done.
type Status struct {
	Kind  Kind   `json:"kind"`
	Menu  string `json:"menu,omitempty"`
	Price int    `json:"price,omitempty"`
}

// Resolve computes a member's status. A ledger row means Done regardless of
// the stored member status.
func Resolve(b model.Booking, m model.Member, l *Ledger) Status {
	if e, ok := l.Entry(b.Facility, b.Date, m.Name); ok {
		return Status{Kind: Done, Menu: e.Menu, Price: e.Price}
	}
	if m.Status == model.StatusCancel {
		return Status{Kind: Cancelled}
	}
	return Status{Kind: Pending}
}
