package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Date is a calendar date in ISO form (YYYY-MM-DD). Values compare lexically.
type Date string

// Month is a calendar month in ISO form (YYYY-MM).
type Month string

// ParseDate normalizes "2024/3/5", "2024-03-05" and similar inputs.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "/", "-"))
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("invalid date %q: %w", s, err)
		}
		nums[i] = n
	}
	t := time.Date(nums[0], time.Month(nums[1]), nums[2], 0, 0, 0, 0, time.UTC)
	if t.Year() != nums[0] || int(t.Month()) != nums[1] || t.Day() != nums[2] {
		return "", fmt.Errorf("invalid date %q: out of range", s)
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	t, _ := time.Parse(dateLayout, string(d))
	return t
}

// In returns midnight of the date in loc.
func (d Date) In(loc *time.Location) time.Time {
	t := d.Time()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Valid reports whether d is a well-formed ISO date.
func (d Date) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}

func (d Date) Month() Month { return Month(string(d)[:7]) }

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

func (d Date) Before(o Date) bool { return d < o }

func (d Date) After(o Date) bool { return d > o }

func (d Date) String() string { return string(d) }

// ParseMonth accepts YYYY-MM or YYYY/MM.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "/", "-"))
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		d, derr := ParseDate(s + "-01")
		if derr != nil {
			return "", fmt.Errorf("invalid month %q, expected YYYY-MM", s)
		}
		return d.Month(), nil
	}
	return Month(t.Format(monthLayout)), nil
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month { return Month(t.Format(monthLayout)) }

func (m Month) First() Date { return Date(string(m) + "-01") }

func (m Month) Last() Date { return m.Next().First().AddDays(-1) }

func (m Month) Next() Month { return m.AddMonths(1) }

func (m Month) Prev() Month { return m.AddMonths(-1) }

// AddMonths moves by n whole months.
func (m Month) AddMonths(n int) Month {
	return MonthOf(m.First().Time().AddDate(0, n, 0))
}

// Days returns every date of the month in order.
func (m Month) Days() []Date {
	first := m.First().Time()
	var days []Date
	for t := first; t.Month() == first.Month(); t = t.AddDate(0, 0, 1) {
		days = append(days, DateOf(t))
	}
	return days
}

func (m Month) Contains(d Date) bool { return d.Month() == m }

func (m Month) String() string { return string(m) }
