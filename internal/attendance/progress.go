package attendance

import (
	"sort"

	"carevisit/internal/model"
)

// DayProgress is the running progress of a facility's month up to one date.
type DayProgress struct {
	Date      model.Date `json:"date"`
	Finished  int        `json:"finished"`  // ledger rows on the day
	Cancelled int        `json:"cancelled"` // cancelled lines without a ledger row
	Extras    int        `json:"extras"`    // first-time walk-ins on the day
	Processed int        `json:"processed"` // cumulative through the day
	Planned   int        `json:"planned"`
	Complete  bool       `json:"complete"`
	Blackout  bool       `json:"blackout,omitempty"`
}

// Progress is a facility's month.
type Progress struct {
	Facility  string        `json:"facility"`
	Month     model.Month   `json:"month"`
	Days      []DayProgress `json:"days"`
	Planned   int           `json:"planned"`
	Processed int           `json:"processed"`
	Finished  bool          `json:"finished"`
}

// Day returns the progress entry for date.
func (p Progress) Day(date model.Date) (DayProgress, bool) {
	for _, d := range p.Days {
		if d.Date == date {
			return d, true
		}
	}
	return DayProgress{}, false
}

// ComputeProgress walks the facility's visit dates of the month in order.
// The planned set is every non-walk-in member name across the month's
// bookings, or the active roster when the month has no bookings yet.
func ComputeProgress(
	month model.Month,
	facility string,
	bookings []model.Booking,
	history []model.HistoryEntry,
	roster []model.Resident,
	ng []model.NgDate,
) Progress {
	ledger := NewLedger(history)

	byDate := make(map[model.Date]model.Booking)
	plannedSet := make(map[string]struct{})
	for _, b := range bookings {
		if b.Facility != facility || !month.Contains(b.Date) {
			continue
		}
		if _, dup := byDate[b.Date]; dup {
			continue
		}
		byDate[b.Date] = b
		for _, m := range b.Members {
			if !m.IsExtra {
				plannedSet[m.Name] = struct{}{}
			}
		}
	}
	if len(byDate) == 0 {
		for _, r := range roster {
			if r.Facility == facility && r.Active {
				plannedSet[r.Name] = struct{}{}
			}
		}
	}

	blackout := make(map[model.Date]bool, len(ng))
	for _, n := range ng {
		blackout[n.Date] = true
	}

	dateSet := make(map[model.Date]struct{}, len(byDate))
	for d := range byDate {
		dateSet[d] = struct{}{}
	}
	for _, d := range ledger.Dates(facility, month) {
		dateSet[d] = struct{}{}
	}
	dates := make([]model.Date, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })

	p := Progress{Facility: facility, Month: month, Planned: len(plannedSet)}
	extrasSeen := make(map[string]struct{})
	processed := 0

	for _, d := range dates {
		day := DayProgress{Date: d, Blackout: blackout[d]}

		for _, e := range ledger.On(facility, d) {
			day.Finished++
			if _, planned := plannedSet[e.Name]; planned {
				continue
			}
			if _, seen := extrasSeen[e.Name]; !seen {
				extrasSeen[e.Name] = struct{}{}
				day.Extras++
			}
		}

		if b, ok := byDate[d]; ok {
			for _, m := range b.Members {
				if Resolve(b, m, ledger).Kind == Cancelled {
					day.Cancelled++
				}
			}
		}

		processed += day.Finished + day.Cancelled
		day.Processed = processed
		day.Planned = len(plannedSet) + len(extrasSeen)
		day.Complete = day.Processed >= day.Planned && day.Planned > 0
		p.Days = append(p.Days, day)
	}

	p.Planned = len(plannedSet) + len(extrasSeen)
	p.Processed = processed
	p.Finished = p.Processed >= p.Planned && p.Planned > 0
	return p
}
