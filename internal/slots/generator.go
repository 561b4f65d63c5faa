// Package slots expands recurring visit rules into calendar dates and merges
// them with manual holds and confirmed bookings into one exclusive calendar.
package slots

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"carevisit/internal/model"
)

// Expand returns one candidate date per month in [month(today), month(today)+monthsAhead].
// Months where the ordinal has no match are skipped. Dates before today are dropped.
func Expand(rule model.RecurringRule, monthsAhead int, today model.Date) ([]model.Date, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if monthsAhead < 0 {
		monthsAhead = 0
	}

	start := today.Month()
	var dates []model.Date
	for i := 0; i <= monthsAhead; i++ {
		d, ok := NthWeekday(start.AddMonths(i), rule.Weekday, rule.Ordinal)
		if !ok || d.Before(today) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// NthWeekday finds the ordinal-th weekday of the month. Negative ordinals
// count back from the last day (-1 is the last occurrence).
func NthWeekday(m model.Month, weekday time.Weekday, ordinal int) (model.Date, bool) {
	switch {
	case ordinal > 0:
		first := m.First().Time()
		offset := (int(weekday) - int(first.Weekday()) + 7) % 7
		day := first.AddDate(0, 0, offset+7*(ordinal-1))
		if day.Month() != first.Month() {
			return "", false
		}
		return model.DateOf(day), true
	case ordinal < 0:
		last := m.Last().Time()
		offset := (int(last.Weekday()) - int(weekday) + 7) % 7
		day := last.AddDate(0, 0, -offset-7*(-ordinal-1))
		if day.Month() != last.Month() {
			return "", false
		}
		return model.DateOf(day), true
	}
	return "", false
}

// ExpandAll expands every rule into system holds, sorted by date then facility.
func ExpandAll(rules []model.RecurringRule, monthsAhead int, today model.Date) ([]model.KeepDate, error) {
	seen := make(map[model.SlotKey]struct{})
	var keeps []model.KeepDate

	for _, rule := range rules {
		dates, err := Expand(rule, monthsAhead, today)
		if err != nil {
			return nil, fmt.Errorf("expand %s rule %s: %w", rule.Facility, rule, err)
		}
		for _, d := range dates {
			key := model.SlotKey{Facility: rule.Facility, Date: d}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keeps = append(keeps, model.KeepDate{Date: d, Facility: rule.Facility, Origin: model.OriginSystem})
		}
	}

	sort.Slice(keeps, func(i, j int) bool {
		if keeps[i].Date != keeps[j].Date {
			return keeps[i].Date < keeps[j].Date
		}
		return keeps[i].Facility < keeps[j].Facility
	})
	return keeps, nil
}

// RuleOn returns the facility's rule that produces date, if any.
func RuleOn(rules []model.RecurringRule, facility string, date model.Date) (model.RecurringRule, bool) {
	for _, r := range rules {
		if r.Facility != facility {
			continue
		}
		if d, ok := NthWeekday(date.Month(), r.Weekday, r.Ordinal); ok && d == date {
			return r, true
		}
	}
	return model.RecurringRule{}, false
}

// StartOn returns the visit start time of a rule on the given date.
func StartOn(rule model.RecurringRule, date model.Date, loc *time.Location) (time.Time, error) {
	clock := rule.Time
	if clock == "" {
		clock = "00:00"
	}
	return parseTimeOnDate(date.In(loc), clock)
}

func parseTimeOnDate(date time.Time, timeStr string) (time.Time, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour: %w", err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minute: %w", err)
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}
