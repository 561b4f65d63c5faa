package slots

import (
	"fmt"
	"sort"
	"time"

	"carevisit/internal/model"
)

// Slot is the merged state of one calendar date.
type Slot struct {
	Date      model.Date     `json:"date"`
	Facility  string         `json:"facility"`
	Confirmed bool           `json:"confirmed"`
	Origin    model.Origin   `json:"origin,omitempty"`
	BookingID string         `json:"booking_id,omitempty"`
	Members   []model.Member `json:"members,omitempty"`
	Blackout  bool           `json:"blackout,omitempty"`

	heldAt time.Time
}

// Rejection records a hold that lost the date to another facility.
type Rejection struct {
	Keep   model.KeepDate
	Holder string
	Err    error
}

// Conflict records a stored booking that violates single-facility-per-date.
type Conflict struct {
	Booking model.Booking
	Winner  string
}

// Calendar maps each date to at most one facility.
type Calendar struct {
	slots      map[model.Date]Slot
	blackout   map[model.Date]string
	Rejected   []Rejection
	Superseded []model.KeepDate // holds replaced by the same facility's booking
	Conflicts  []Conflict
}

// Merge combines system candidates, manual holds and confirmed bookings.
// The result depends only on the inputs.
func Merge(system, manual []model.KeepDate, bookings []model.Booking, ng []model.NgDate) *Calendar {
	cal := &Calendar{
		slots:    make(map[model.Date]Slot),
		blackout: make(map[model.Date]string, len(ng)),
	}
	for _, n := range ng {
		cal.blackout[n.Date] = n.Reason
	}

	// Bookings claim their dates first.
	sorted := append([]model.Booking(nil), bookings...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Facility != b.Facility {
			return a.Facility < b.Facility
		}
		return a.ID < b.ID
	})
	for _, b := range sorted {
		if cur, ok := cal.slots[b.Date]; ok {
			if cur.Facility != b.Facility || cur.BookingID != b.ID {
				cal.Conflicts = append(cal.Conflicts, Conflict{Booking: b, Winner: cur.Facility})
			}
			continue
		}
		_, black := cal.blackout[b.Date]
		cal.slots[b.Date] = Slot{
			Date:      b.Date,
			Facility:  b.Facility,
			Confirmed: true,
			BookingID: b.ID,
			Members:   b.Clone().Members,
			Blackout:  black,
			heldAt:    b.CreatedAt,
		}
	}

	for _, k := range dedupeHolds(system, manual) {
		if k.Origin == model.OriginReleased {
			continue
		}
		cur, taken := cal.slots[k.Date]
		if taken {
			switch {
			case cur.Confirmed && cur.Facility == k.Facility:
				cal.Superseded = append(cal.Superseded, k)
			default:
				cal.Rejected = append(cal.Rejected, Rejection{
					Keep:   k,
					Holder: cur.Facility,
					Err:    fmt.Errorf("%w: %s held by %s", model.ErrDateUnavailable, k.Date, cur.Facility),
				})
			}
			continue
		}

		_, black := cal.blackout[k.Date]
		if black && k.Origin == model.OriginSystem {
			cal.Rejected = append(cal.Rejected, Rejection{
				Keep: k,
				Err:  fmt.Errorf("%w: %s is a blackout date", model.ErrDateUnavailable, k.Date),
			})
			continue
		}

		cal.slots[k.Date] = Slot{
			Date:     k.Date,
			Facility: k.Facility,
			Origin:   k.Origin,
			Blackout: black,
			heldAt:   k.CreatedAt,
		}
	}

	return cal
}

// dedupeHolds merges both lists by (date, facility) with manual taking
// precedence, then orders them manual first, then by creation time. A
// release is a manual decision: it suppresses the system candidate for its
// key. Between two manual entries for one key the later one stands.
func dedupeHolds(system, manual []model.KeepDate) []model.KeepDate {
	byKey := make(map[model.SlotKey]model.KeepDate, len(system)+len(manual))
	put := func(k model.KeepDate, origin model.Origin) {
		if k.Origin == "" {
			k.Origin = origin
		}
		cur, ok := byKey[k.Key()]
		switch {
		case !ok:
		case cur.Origin.Manual() && k.Origin.Manual():
			if !k.CreatedAt.After(cur.CreatedAt) {
				return
			}
		case !precedes(k, cur):
			return
		}
		byKey[k.Key()] = k
	}
	for _, k := range manual {
		put(k, model.OriginManual)
	}
	for _, k := range system {
		put(k, model.OriginSystem)
	}

	holds := make([]model.KeepDate, 0, len(byKey))
	for _, k := range byKey {
		holds = append(holds, k)
	}
	sort.Slice(holds, func(i, j int) bool { return precedes(holds[i], holds[j]) })
	return holds
}

func precedes(a, b model.KeepDate) bool {
	if a.Origin.Manual() != b.Origin.Manual() {
		return a.Origin.Manual()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Facility != b.Facility {
		return a.Facility < b.Facility
	}
	return a.Date < b.Date
}

// Slot returns the merged state of a date.
func (c *Calendar) Slot(date model.Date) (Slot, bool) {
	s, ok := c.slots[date]
	return s, ok
}

// Slots returns all occupied slots ordered by date.
func (c *Calendar) Slots() []Slot {
	out := make([]Slot, 0, len(c.slots))
	for _, d := range c.Dates() {
		out = append(out, c.slots[d])
	}
	return out
}

// Dates returns the occupied dates in order.
func (c *Calendar) Dates() []model.Date {
	dates := make([]model.Date, 0, len(c.slots))
	for d := range c.slots {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return dates
}

// ForFacility returns the facility's slots ordered by date.
func (c *Calendar) ForFacility(facility string) []Slot {
	var out []Slot
	for _, s := range c.Slots() {
		if s.Facility == facility {
			out = append(out, s)
		}
	}
	return out
}

// Keeps returns the surviving holds. Merging them again with the same
// bookings and blackout dates yields the same slots.
func (c *Calendar) Keeps() []model.KeepDate {
	var keeps []model.KeepDate
	for _, s := range c.Slots() {
		if s.Confirmed {
			continue
		}
		keeps = append(keeps, model.KeepDate{Date: s.Date, Facility: s.Facility, Origin: s.Origin, CreatedAt: s.heldAt})
	}
	return keeps
}

// IsBlackout reports whether the date is an operator blackout date.
func (c *Calendar) IsBlackout(date model.Date) bool {
	_, ok := c.blackout[date]
	return ok
}

// CheckHold validates a new hold for facility on date against the calendar.
func CheckHold(c *Calendar, facility string, date model.Date) error {
	if s, ok := c.Slot(date); ok {
		if s.Facility == facility {
			if s.Confirmed {
				return fmt.Errorf("%w: %s on %s", model.ErrDateLocked, facility, date)
			}
			return nil
		}
		return fmt.Errorf("%w: %s held by %s", model.ErrDateUnavailable, date, s.Facility)
	}
	if c.IsBlackout(date) {
		return fmt.Errorf("%w: %s is a blackout date", model.ErrDateUnavailable, date)
	}
	return nil
}
