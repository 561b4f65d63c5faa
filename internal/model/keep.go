package model

import "time"

// Origin tells who placed a hold.
type Origin string

const (
	OriginSystem Origin = "system"
	OriginManual Origin = "manual"
	// OriginReleased marks a facility's release of a date. It holds nothing
	// but keeps the rule engine from placing the same hold again.
	OriginReleased Origin = "released"
)

// Manual reports whether the origin is an operator decision.
func (o Origin) Manual() bool { return o == OriginManual || o == OriginReleased }

// KeepDate is a soft, revocable hold on a date by one facility.
type KeepDate struct {
	Date      Date      `json:"date"`
	Facility  string    `json:"facility"`
	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the (facility, date) natural key.
func (k KeepDate) Key() SlotKey { return SlotKey{Facility: k.Facility, Date: k.Date} }

// SlotKey identifies one facility on one date.
type SlotKey struct {
	Facility string
	Date     Date
}

// NgDate is an operator blackout date; no facility may hold or book it.
type NgDate struct {
	Date   Date   `json:"date"`
	Reason string `json:"reason,omitempty"`
}

// Facility is a care facility visited by the stylists.
type Facility struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Resident is an entry of a facility's roster.
type Resident struct {
	ID       string   `json:"id"`
	Facility string   `json:"facility"`
	Name     string   `json:"name"`
	Room     string   `json:"room"`
	Kana     string   `json:"kana"`
	Menus    []string `json:"menus"`
	Active   bool     `json:"active"`
	Selected bool     `json:"selected"` // enrolled for the next confirmed month
}

// AsMember converts a roster entry into a pending booking line.
func (r Resident) AsMember() Member {
	return Member{
		ID:     r.ID,
		Name:   r.Name,
		Room:   r.Room,
		Kana:   r.Kana,
		Menus:  append([]string(nil), r.Menus...),
		Status: StatusYet,
	}
}
