package model

import (
	"fmt"
	"time"
)

// BookingStatusConfirmed is the only status a stored booking carries.
const BookingStatusConfirmed = "confirmed"

// Booking is a confirmed, member-populated reservation for one (facility, date).
type Booking struct {
	ID        string    `json:"id"`
	Facility  string    `json:"facility"`
	Date      Date      `json:"date"`
	Status    string    `json:"status"`
	Members   []Member  `json:"members"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingID derives the deterministic booking key.
func BookingID(facility string, date Date) string {
	return fmt.Sprintf("%s_%s", facility, date)
}

func (b *Booking) Key() SlotKey { return SlotKey{Facility: b.Facility, Date: b.Date} }

// Member returns the booking line with the given member ID.
func (b *Booking) Member(id string) (*Member, bool) {
	for i := range b.Members {
		if b.Members[i].ID == id {
			return &b.Members[i], true
		}
	}
	return nil, false
}

// MemberByName returns the booking line for a resident name.
func (b *Booking) MemberByName(name string) (*Member, bool) {
	for i := range b.Members {
		if b.Members[i].Name == name {
			return &b.Members[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers never mutate snapshot rows.
func (b Booking) Clone() Booking {
	out := b
	out.Members = make([]Member, len(b.Members))
	for i, m := range b.Members {
		m.Menus = append([]string(nil), m.Menus...)
		out.Members[i] = m
	}
	return out
}

// Member is one resident line of a booking.
type Member struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Room    string       `json:"room"`
	Kana    string       `json:"kana"`
	Menus   []string     `json:"menus"`
	Status  MemberStatus `json:"status"`
	IsExtra bool         `json:"is_extra,omitempty"` // walk-in added on the day
}

// HistoryEntry is an append-only ledger row of a completed service.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Date      Date      `json:"date"`
	Facility  string    `json:"facility"`
	Room      string    `json:"room"`
	Name      string    `json:"name"`
	Kana      string    `json:"kana"`
	Menu      string    `json:"menu"`
	Price     int       `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryID derives the ledger key, so a retried completion hits the same row.
func HistoryID(facility string, date Date, name string) string {
	return fmt.Sprintf("%s_%s_%s", facility, date, name)
}
