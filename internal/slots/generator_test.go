package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carevisit/internal/model"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name        string
		rule        model.RecurringRule
		monthsAhead int
		today       string
		want        []model.Date
	}{
		{
			name:        "second tuesday",
			rule:        model.RecurringRule{Facility: "A", Weekday: time.Tuesday, Ordinal: 2},
			monthsAhead: 0,
			today:       "2024-03-01",
			want:        []model.Date{"2024-03-12"},
		},
		{
			name:        "past date in current month is dropped",
			rule:        model.RecurringRule{Facility: "A", Weekday: time.Tuesday, Ordinal: 2},
			monthsAhead: 1,
			today:       "2024-03-13",
			want:        []model.Date{"2024-04-09"},
		},
		{
			name:        "today is kept",
			rule:        model.RecurringRule{Facility: "A", Weekday: time.Tuesday, Ordinal: 2},
			monthsAhead: 0,
			today:       "2024-03-12",
			want:        []model.Date{"2024-03-12"},
		},
		{
			name:        "fifth monday skips short months",
			rule:        model.RecurringRule{Facility: "A", Weekday: time.Monday, Ordinal: 5},
			monthsAhead: 2,
			today:       "2024-01-01",
			want:        []model.Date{"2024-01-29"},
		},
		{
			name:        "last friday",
			rule:        model.RecurringRule{Facility: "A", Weekday: time.Friday, Ordinal: -1},
			monthsAhead: 1,
			today:       "2024-02-01",
			want:        []model.Date{"2024-02-23", "2024-03-29"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.rule, tt.monthsAhead, model.MustDate(tt.today))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand_InvalidRule(t *testing.T) {
	_, err := Expand(model.RecurringRule{Facility: "A", Weekday: time.Monday, Ordinal: 0}, 1, "2024-01-01")
	assert.ErrorIs(t, err, model.ErrInvalidRule)
}

func TestExpand_Properties(t *testing.T) {
	today := model.MustDate("2024-01-10")
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		for _, ord := range []int{1, 2, 3, 4, 5, -1, -2} {
			rule := model.RecurringRule{Facility: "A", Weekday: wd, Ordinal: ord}
			dates, err := Expand(rule, 11, today)
			require.NoError(t, err)

			seen := make(map[model.Month]bool)
			for _, d := range dates {
				assert.Equal(t, wd, d.Weekday(), "rule %s date %s", rule, d)
				assert.False(t, d.Before(today))
				assert.False(t, seen[d.Month()], "two dates in %s", d.Month())
				seen[d.Month()] = true
			}
			if ord >= 1 && ord <= 4 {
				// every month has at least four of each weekday
				assert.GreaterOrEqual(t, len(dates), 11)
			}
		}
	}
}

func TestNthWeekday(t *testing.T) {
	d, ok := NthWeekday("2024-03", time.Friday, -2)
	require.True(t, ok)
	assert.Equal(t, model.Date("2024-03-22"), d)

	d, ok = NthWeekday("2024-09", time.Sunday, 1)
	require.True(t, ok)
	assert.Equal(t, model.Date("2024-09-01"), d)

	_, ok = NthWeekday("2024-02", time.Monday, 5)
	assert.False(t, ok)
}

func TestExpandAll(t *testing.T) {
	rules := []model.RecurringRule{
		{Facility: "B", Weekday: time.Tuesday, Ordinal: 2},
		{Facility: "A", Weekday: time.Tuesday, Ordinal: 2},
		{Facility: "A", Weekday: time.Tuesday, Ordinal: 2},
		{Facility: "A", Weekday: time.Friday, Ordinal: 1},
	}

	keeps, err := ExpandAll(rules, 0, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, keeps, 3)

	assert.Equal(t, model.KeepDate{Date: "2024-03-01", Facility: "A", Origin: model.OriginSystem}, keeps[0])
	assert.Equal(t, model.SlotKey{Facility: "A", Date: "2024-03-12"}, keeps[1].Key())
	assert.Equal(t, model.SlotKey{Facility: "B", Date: "2024-03-12"}, keeps[2].Key())
}

func TestStartOn(t *testing.T) {
	loc := time.FixedZone("JST", 9*3600)
	start, err := StartOn(model.RecurringRule{Time: "14:30"}, "2024-03-12", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 12, 14, 30, 0, 0, loc), start)

	start, err = StartOn(model.RecurringRule{}, "2024-03-12", loc)
	require.NoError(t, err)
	assert.Equal(t, 0, start.Hour())
}

func TestRuleOn(t *testing.T) {
	rules := []model.RecurringRule{
		{Facility: "A", Weekday: time.Tuesday, Ordinal: 2, Time: "10:00"},
		{Facility: "B", Weekday: time.Tuesday, Ordinal: 2, Time: "13:00"},
		{Facility: "A", Weekday: time.Friday, Ordinal: -1},
	}

	r, ok := RuleOn(rules, "B", "2024-03-12")
	require.True(t, ok)
	assert.Equal(t, "13:00", r.Time)

	r, ok = RuleOn(rules, "A", "2024-03-29")
	require.True(t, ok)
	assert.Equal(t, time.Friday, r.Weekday)

	_, ok = RuleOn(rules, "A", "2024-03-19")
	assert.False(t, ok)
}
