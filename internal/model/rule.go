package model

import (
	"fmt"
	"time"
)

// RecurringRule describes a facility's recurring visit, e.g. "3rd Tuesday".
type RecurringRule struct {
	Facility string       `json:"facility" yaml:"-"`
	Weekday  time.Weekday `json:"weekday" yaml:"weekday"` // 0-6 (Sunday-Saturday)
	Ordinal  int          `json:"ordinal" yaml:"ordinal"` // 1..5 from month start, -1..-5 from month end
	Time     string       `json:"time" yaml:"time"`       // "14:00"
}

// Validate checks weekday, ordinal and time ranges.
func (r RecurringRule) Validate() error {
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d must be 0-6", ErrInvalidRule, r.Weekday)
	}
	if r.Ordinal == 0 || r.Ordinal > 5 || r.Ordinal < -5 {
		return fmt.Errorf("%w: ordinal %d must be 1..5 or -1..-5", ErrInvalidRule, r.Ordinal)
	}
	if r.Time != "" {
		if _, err := time.Parse("15:04", r.Time); err != nil {
			return fmt.Errorf("%w: time %q, expected HH:MM", ErrInvalidRule, r.Time)
		}
	}
	return nil
}

// String renders the rule like "2nd Tuesday 14:00".
func (r RecurringRule) String() string {
	var nth string
	switch {
	case r.Ordinal == -1:
		nth = "last"
	case r.Ordinal < 0:
		nth = fmt.Sprintf("%s from last", ordinalSuffix(-r.Ordinal))
	default:
		nth = ordinalSuffix(r.Ordinal)
	}
	s := fmt.Sprintf("%s %s", nth, r.Weekday)
	if r.Time != "" {
		s += " " + r.Time
	}
	return s
}

func ordinalSuffix(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", n)
	}
}
