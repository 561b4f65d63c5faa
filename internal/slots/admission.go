package slots

import (
	"sync"
	"time"

	"carevisit/internal/model"
)

// Window is a facility's admission calendar.
type Window struct {
	ClosedWeekdays []time.Weekday
	AllowSameDay   bool
	MaxMonthsAhead int // 0 means unlimited
}

// IsDateSelectable reports whether the facility accepts a visit on date.
func (w Window) IsDateSelectable(date, today model.Date) bool {
	if date.Before(today) {
		return false
	}
	if date == today && !w.AllowSameDay {
		return false
	}
	wd := date.Weekday()
	for _, closed := range w.ClosedWeekdays {
		if closed == wd {
			return false
		}
	}
	if w.MaxMonthsAhead > 0 && date.Month() > today.Month().AddMonths(w.MaxMonthsAhead) {
		return false
	}
	return true
}

// Gate holds the admission windows of all facilities. Windows are replaced
// as a whole when the facilities file is reloaded.
type Gate struct {
	mu      sync.RWMutex
	windows map[string]Window
	def     Window
}

// NewGate creates a gate; facilities without a window use def.
func NewGate(windows map[string]Window, def Window) *Gate {
	g := &Gate{def: def}
	g.Replace(windows)
	return g
}

// Replace swaps all windows.
func (g *Gate) Replace(windows map[string]Window) {
	cp := make(map[string]Window, len(windows))
	for k, v := range windows {
		cp[k] = v
	}
	g.mu.Lock()
	g.windows = cp
	g.mu.Unlock()
}

// IsDateSelectable applies the facility's window.
func (g *Gate) IsDateSelectable(facility string, date, today model.Date) bool {
	g.mu.RLock()
	w, ok := g.windows[facility]
	g.mu.RUnlock()
	if !ok {
		w = g.def
	}
	return w.IsDateSelectable(date, today)
}
