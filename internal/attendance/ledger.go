package attendance

import (
	"sort"

	"carevisit/internal/model"
)

// Ledger indexes history rows by (facility, date, name).
type Ledger struct {
	entries map[string]model.HistoryEntry
	byDay   map[model.SlotKey][]model.HistoryEntry
}

// NewLedger builds an index over history. Duplicate keys keep the first row.
func NewLedger(history []model.HistoryEntry) *Ledger {
	l := &Ledger{
		entries: make(map[string]model.HistoryEntry, len(history)),
		byDay:   make(map[model.SlotKey][]model.HistoryEntry),
	}
	for _, e := range history {
		key := model.HistoryID(e.Facility, e.Date, e.Name)
		if _, ok := l.entries[key]; ok {
			continue
		}
		l.entries[key] = e
		day := model.SlotKey{Facility: e.Facility, Date: e.Date}
		l.byDay[day] = append(l.byDay[day], e)
	}
	for _, rows := range l.byDay {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	}
	return l
}

// Entry returns the ledger row for a member on a date.
func (l *Ledger) Entry(facility string, date model.Date, name string) (model.HistoryEntry, bool) {
	if l == nil {
		return model.HistoryEntry{}, false
	}
	e, ok := l.entries[model.HistoryID(facility, date, name)]
	return e, ok
}

// On returns the rows for one facility and date, ordered by name.
func (l *Ledger) On(facility string, date model.Date) []model.HistoryEntry {
	if l == nil {
		return nil
	}
	return l.byDay[model.SlotKey{Facility: facility, Date: date}]
}

// Has reports whether any row exists for the facility and date.
func (l *Ledger) Has(facility string, date model.Date) bool {
	return len(l.On(facility, date)) > 0
}

// CompletedOn returns the earliest date in month, other than except, on which
// the member was served at the facility.
func (l *Ledger) CompletedOn(facility string, month model.Month, name string, except model.Date) (model.Date, bool) {
	if l == nil {
		return "", false
	}
	var found model.Date
	for _, e := range l.entries {
		if e.Facility != facility || e.Name != name || e.Date == except || !month.Contains(e.Date) {
			continue
		}
		if found == "" || e.Date < found {
			found = e.Date
		}
	}
	return found, found != ""
}

// Dates returns the facility's ledger dates within month.
func (l *Ledger) Dates(facility string, month model.Month) []model.Date {
	if l == nil {
		return nil
	}
	var dates []model.Date
	for k := range l.byDay {
		if k.Facility == facility && month.Contains(k.Date) {
			dates = append(dates, k.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return dates
}
