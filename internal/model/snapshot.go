package model

import (
	"sort"
	"time"
)

// FinalizedMonth marks a facility's month as locked.
type FinalizedMonth struct {
	Facility    string    `json:"facility"`
	Month       Month     `json:"month"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// Snapshot is a consistent read of every collection. Callers treat it as
// immutable and load a new one after each write.
type Snapshot struct {
	Facilities []Facility       `json:"facilities"`
	Residents  []Resident       `json:"residents"`
	Keeps      []KeepDate       `json:"keeps"`
	Released   []KeepDate       `json:"released"`
	Bookings   []Booking        `json:"bookings"`
	History    []HistoryEntry   `json:"history"`
	NgDates    []NgDate         `json:"ng_dates"`
	Finalized  []FinalizedMonth `json:"finalized"`
}

// Facility returns the facility with the given ID.
func (s *Snapshot) Facility(id string) (Facility, bool) {
	for _, f := range s.Facilities {
		if f.ID == id {
			return f, true
		}
	}
	return Facility{}, false
}

// Booking returns a copy of the booking with the given ID.
func (s *Snapshot) Booking(id string) (Booking, bool) {
	for _, b := range s.Bookings {
		if b.ID == id {
			return b.Clone(), true
		}
	}
	return Booking{}, false
}

// BookingAt returns a copy of the facility's booking on date.
func (s *Snapshot) BookingAt(facility string, date Date) (Booking, bool) {
	for _, b := range s.Bookings {
		if b.Facility == facility && b.Date == date {
			return b.Clone(), true
		}
	}
	return Booking{}, false
}

// KeepsFor returns the facility's holds ordered by date.
func (s *Snapshot) KeepsFor(facility string) []KeepDate {
	var out []KeepDate
	for _, k := range s.Keeps {
		if k.Facility == facility {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// SplitKeeps separates system candidates from operator decisions. Releases
// are returned with the manual holds.
func (s *Snapshot) SplitKeeps() (system, manual []KeepDate) {
	for _, k := range s.Keeps {
		if k.Origin == OriginSystem {
			system = append(system, k)
		} else {
			manual = append(manual, k)
		}
	}
	manual = append(manual, s.Released...)
	return system, manual
}

// IsReleased reports whether the facility released its hold on the date.
func (s *Snapshot) IsReleased(key SlotKey) bool {
	for _, k := range s.Released {
		if k.Key() == key {
			return true
		}
	}
	return false
}

// Roster returns the facility's active residents.
func (s *Snapshot) Roster(facility string) []Resident {
	var out []Resident
	for _, r := range s.Residents {
		if r.Facility == facility && r.Active {
			out = append(out, r)
		}
	}
	return out
}

// HasHistory reports whether any ledger row exists for (facility, date).
func (s *Snapshot) HasHistory(facility string, date Date) bool {
	for _, h := range s.History {
		if h.Facility == facility && h.Date == date {
			return true
		}
	}
	return false
}

// IsNgDate reports whether date is a blackout date.
func (s *Snapshot) IsNgDate(date Date) bool {
	for _, n := range s.NgDates {
		if n.Date == date {
			return true
		}
	}
	return false
}

// IsFinalized reports whether the facility's month is locked.
func (s *Snapshot) IsFinalized(facility string, month Month) bool {
	for _, f := range s.Finalized {
		if f.Facility == facility && f.Month == month {
			return true
		}
	}
	return false
}
