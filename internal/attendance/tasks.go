package attendance

import (
	"sort"

	"carevisit/internal/model"
)

// Task is one facility visit on the operator's daily list.
type Task struct {
	Facility  string     `json:"facility"`
	Date      model.Date `json:"date"`
	BookingID string     `json:"booking_id"`
	Pending   int        `json:"pending"`
	Done      int        `json:"done"`
	Cancelled int        `json:"cancelled"`
	Total     int        `json:"total"`
}

// Finished reports whether nothing is left to do for the visit.
func (t Task) Finished() bool { return t.Total > 0 && t.Pending == 0 }

// DailyTasks lists every booked facility for date, sorted by facility.
func DailyTasks(date model.Date, bookings []model.Booking, history []model.HistoryEntry) []Task {
	ledger := NewLedger(history)

	var tasks []Task
	for _, b := range bookings {
		if b.Date != date {
			continue
		}
		t := Task{Facility: b.Facility, Date: date, BookingID: b.ID}
		for _, m := range b.Members {
			switch Resolve(b, m, ledger).Kind {
			case Done:
				t.Done++
			case Cancelled:
				t.Cancelled++
			default:
				t.Pending++
			}
			t.Total++
		}
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Facility < tasks[j].Facility })
	return tasks
}
