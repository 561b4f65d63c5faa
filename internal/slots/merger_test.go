package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carevisit/internal/model"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func keep(date, facility string, origin model.Origin, offset time.Duration) model.KeepDate {
	return model.KeepDate{Date: model.MustDate(date), Facility: facility, Origin: origin, CreatedAt: t0.Add(offset)}
}

func booking(date, facility string, offset time.Duration, names ...string) model.Booking {
	b := model.Booking{
		ID:        model.BookingID(facility, model.MustDate(date)),
		Facility:  facility,
		Date:      model.MustDate(date),
		Status:    model.BookingStatusConfirmed,
		CreatedAt: t0.Add(offset),
	}
	for _, n := range names {
		b.Members = append(b.Members, model.Member{ID: n, Name: n, Status: model.StatusYet})
	}
	return b
}

func TestMerge_BookingSupersedesKeep(t *testing.T) {
	system, err := ExpandAll([]model.RecurringRule{{Facility: "A", Weekday: time.Tuesday, Ordinal: 2}}, 0, "2024-03-01")
	require.NoError(t, err)

	cal := Merge(system, nil, []model.Booking{booking("2024-03-12", "A", 0, "Sato")}, nil)

	s, ok := cal.Slot("2024-03-12")
	require.True(t, ok)
	assert.True(t, s.Confirmed)
	assert.Equal(t, "A_2024-03-12", s.BookingID)
	require.Len(t, s.Members, 1)
	assert.Equal(t, "Sato", s.Members[0].Name)

	assert.Empty(t, cal.Keeps())
	require.Len(t, cal.Superseded, 1)
	assert.Equal(t, model.SlotKey{Facility: "A", Date: "2024-03-12"}, cal.Superseded[0].Key())
}

func TestMerge_ManualWinsOverSystem(t *testing.T) {
	cal := Merge(
		[]model.KeepDate{keep("2024-04-05", "A", model.OriginSystem, 0)},
		[]model.KeepDate{keep("2024-04-05", "A", model.OriginManual, time.Hour)},
		nil, nil,
	)
	s, ok := cal.Slot("2024-04-05")
	require.True(t, ok)
	assert.Equal(t, model.OriginManual, s.Origin)
	assert.False(t, s.Confirmed)
}

func TestMerge_ReleaseSuppressesSystemHold(t *testing.T) {
	cal := Merge(
		[]model.KeepDate{
			keep("2024-03-12", "A", model.OriginSystem, time.Hour),
			keep("2024-03-26", "A", model.OriginSystem, time.Hour),
		},
		[]model.KeepDate{keep("2024-03-12", "A", model.OriginReleased, 0)},
		nil, nil,
	)

	_, ok := cal.Slot("2024-03-12")
	assert.False(t, ok, "released date stays free")
	assert.Empty(t, cal.Rejected)
	assert.Equal(t, []model.Date{"2024-03-26"}, cal.Dates())

	// A later manual hold overrides the release.
	cal = Merge(nil, []model.KeepDate{
		keep("2024-03-12", "A", model.OriginReleased, 0),
		keep("2024-03-12", "A", model.OriginManual, time.Hour),
	}, nil, nil)
	s, ok := cal.Slot("2024-03-12")
	require.True(t, ok)
	assert.Equal(t, model.OriginManual, s.Origin)

	// The release only covers its own facility.
	cal = Merge(
		[]model.KeepDate{keep("2024-03-12", "B", model.OriginSystem, time.Hour)},
		[]model.KeepDate{keep("2024-03-12", "A", model.OriginReleased, 0)},
		nil, nil,
	)
	s, ok = cal.Slot("2024-03-12")
	require.True(t, ok)
	assert.Equal(t, "B", s.Facility)
}

func TestMerge_Exclusivity(t *testing.T) {
	tests := []struct {
		name   string
		system []model.KeepDate
		manual []model.KeepDate
		winner string
	}{
		{
			name:   "first manual writer wins",
			manual: []model.KeepDate{keep("2024-04-05", "B", model.OriginManual, time.Minute), keep("2024-04-05", "A", model.OriginManual, 0)},
			winner: "A",
		},
		{
			name:   "manual beats earlier system",
			system: []model.KeepDate{keep("2024-04-05", "A", model.OriginSystem, 0)},
			manual: []model.KeepDate{keep("2024-04-05", "B", model.OriginManual, time.Hour)},
			winner: "B",
		},
		{
			name:   "tie broken by facility",
			system: []model.KeepDate{keep("2024-04-05", "B", model.OriginSystem, 0), keep("2024-04-05", "A", model.OriginSystem, 0)},
			winner: "A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := Merge(tt.system, tt.manual, nil, nil)
			s, ok := cal.Slot("2024-04-05")
			require.True(t, ok)
			assert.Equal(t, tt.winner, s.Facility)
			require.Len(t, cal.Rejected, 1)
			assert.ErrorIs(t, cal.Rejected[0].Err, model.ErrDateUnavailable)
			assert.Equal(t, tt.winner, cal.Rejected[0].Holder)
		})
	}
}

func TestMerge_DuplicateBookingsReported(t *testing.T) {
	cal := Merge(nil, nil, []model.Booking{
		booking("2024-04-05", "B", time.Hour),
		booking("2024-04-05", "A", 0),
	}, nil)

	s, _ := cal.Slot("2024-04-05")
	assert.Equal(t, "A", s.Facility)
	require.Len(t, cal.Conflicts, 1)
	assert.Equal(t, "B", cal.Conflicts[0].Booking.Facility)
	assert.Equal(t, "A", cal.Conflicts[0].Winner)
}

func TestMerge_Blackout(t *testing.T) {
	ng := []model.NgDate{{Date: "2024-04-05", Reason: "holiday"}, {Date: "2024-04-12"}, {Date: "2024-04-19"}}
	cal := Merge(
		[]model.KeepDate{keep("2024-04-05", "A", model.OriginSystem, 0)},
		[]model.KeepDate{keep("2024-04-12", "A", model.OriginManual, 0)},
		[]model.Booking{booking("2024-04-19", "B", 0)},
		ng,
	)

	_, ok := cal.Slot("2024-04-05")
	assert.False(t, ok, "system candidate on blackout date")

	s, ok := cal.Slot("2024-04-12")
	require.True(t, ok)
	assert.True(t, s.Blackout)

	s, ok = cal.Slot("2024-04-19")
	require.True(t, ok)
	assert.True(t, s.Confirmed)
	assert.True(t, s.Blackout)

	assert.True(t, cal.IsBlackout("2024-04-05"))
	assert.False(t, cal.IsBlackout("2024-04-06"))
}

func TestMerge_Idempotent(t *testing.T) {
	system, err := ExpandAll([]model.RecurringRule{
		{Facility: "A", Weekday: time.Tuesday, Ordinal: 2},
		{Facility: "B", Weekday: time.Tuesday, Ordinal: 2},
		{Facility: "B", Weekday: time.Friday, Ordinal: -1},
	}, 3, "2024-03-01")
	require.NoError(t, err)

	manual := []model.KeepDate{
		keep("2024-04-09", "C", model.OriginManual, 0),
		keep("2024-05-03", "A", model.OriginManual, time.Minute),
	}
	bookings := []model.Booking{booking("2024-03-12", "B", 0, "Tanaka")}
	ng := []model.NgDate{{Date: "2024-05-14"}}

	first := Merge(system, manual, bookings, ng)
	second := Merge(nil, first.Keeps(), bookings, ng)

	assert.Equal(t, first.Slots(), second.Slots())
	assert.Empty(t, second.Rejected)

	// one facility per date
	seen := make(map[model.Date]string)
	for _, s := range first.Slots() {
		_, dup := seen[s.Date]
		assert.False(t, dup)
		seen[s.Date] = s.Facility
	}
}

func TestCalendar_ForFacility(t *testing.T) {
	cal := Merge(nil, []model.KeepDate{
		keep("2024-04-12", "A", model.OriginManual, 0),
		keep("2024-04-05", "A", model.OriginManual, 0),
		keep("2024-04-08", "B", model.OriginManual, 0),
	}, nil, nil)

	got := cal.ForFacility("A")
	require.Len(t, got, 2)
	assert.Equal(t, model.Date("2024-04-05"), got[0].Date)
	assert.Equal(t, model.Date("2024-04-12"), got[1].Date)
	assert.Equal(t, []model.Date{"2024-04-05", "2024-04-08", "2024-04-12"}, cal.Dates())
}

func TestCheckHold(t *testing.T) {
	cal := Merge(
		nil,
		[]model.KeepDate{keep("2024-04-05", "A", model.OriginManual, 0)},
		[]model.Booking{booking("2024-04-12", "A", 0)},
		[]model.NgDate{{Date: "2024-04-19"}},
	)

	tests := []struct {
		name     string
		facility string
		date     model.Date
		wantErr  error
	}{
		{"free date", "B", "2024-04-06", nil},
		{"own hold", "A", "2024-04-05", nil},
		{"other facility hold", "B", "2024-04-05", model.ErrDateUnavailable},
		{"own booking", "A", "2024-04-12", model.ErrDateLocked},
		{"other facility booking", "B", "2024-04-12", model.ErrDateUnavailable},
		{"blackout", "A", "2024-04-19", model.ErrDateUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckHold(cal, tt.facility, tt.date)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
