package attendance

import (
	"sort"

	"carevisit/internal/model"
)

// Line is one member row of the detail view.
type Line struct {
	Member      model.Member `json:"member"`
	Status      Status       `json:"status"`
	CompletedOn model.Date   `json:"completed_on,omitempty"`
}

// Detail splits a date's members into disjoint buckets.
type Detail struct {
	Facility          string     `json:"facility"`
	Date              model.Date `json:"date"`
	BookingID         string     `json:"booking_id,omitempty"`
	CompletedToday    []Line     `json:"completed_today"`
	CompletedOtherDay []Line     `json:"completed_other_day"`
	Cancelled         []Line     `json:"cancelled"`
	Pending           []Line     `json:"pending"`
	WalkIns           []Line     `json:"walk_ins"`
}

// Total counts every line in the detail.
func (d Detail) Total() int {
	return len(d.CompletedToday) + len(d.CompletedOtherDay) + len(d.Cancelled) + len(d.Pending) + len(d.WalkIns)
}

// DetailForDate builds the detail view of one facility's date. Source slices
// are never modified.
func DetailForDate(facility string, date model.Date, bookings []model.Booking, history []model.HistoryEntry) Detail {
	ledger := NewLedger(history)
	d := Detail{Facility: facility, Date: date}

	var booking model.Booking
	var found bool
	for _, b := range bookings {
		if b.Facility == facility && b.Date == date {
			booking, found = b.Clone(), true
			break
		}
	}

	listed := make(map[string]struct{})
	if found {
		d.BookingID = booking.ID
		for _, m := range booking.Members {
			listed[m.Name] = struct{}{}
			st := Resolve(booking, m, ledger)
			line := Line{Member: m, Status: st}

			switch {
			case m.IsExtra:
				d.WalkIns = append(d.WalkIns, line)
			case st.Kind == Done:
				d.CompletedToday = append(d.CompletedToday, line)
			default:
				if other, ok := ledger.CompletedOn(facility, date.Month(), m.Name, date); ok {
					line.CompletedOn = other
					d.CompletedOtherDay = append(d.CompletedOtherDay, line)
				} else if st.Kind == Cancelled {
					d.Cancelled = append(d.Cancelled, line)
				} else {
					d.Pending = append(d.Pending, line)
				}
			}
		}
	}

	// Ledger rows without a booking line are walk-ins too.
	for _, e := range ledger.On(facility, date) {
		if _, ok := listed[e.Name]; ok {
			continue
		}
		d.WalkIns = append(d.WalkIns, Line{
			Member: model.Member{Name: e.Name, Room: e.Room, Kana: e.Kana, Menus: []string{e.Menu}, Status: model.StatusDone, IsExtra: true},
			Status: Status{Kind: Done, Menu: e.Menu, Price: e.Price},
		})
	}

	for _, bucket := range [][]Line{d.CompletedToday, d.CompletedOtherDay, d.Cancelled, d.Pending, d.WalkIns} {
		sortLines(bucket)
	}
	return d
}

func sortLines(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i].Member, lines[j].Member
		if a.Room != b.Room {
			return a.Room < b.Room
		}
		return a.Kana < b.Kana
	})
}
