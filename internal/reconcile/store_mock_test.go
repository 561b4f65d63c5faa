package reconcile

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"carevisit/internal/model"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(ctx context.Context) (*model.Snapshot, error) {
	args := m.Called(ctx)
	snap, _ := args.Get(0).(*model.Snapshot)
	return snap, args.Error(1)
}

func (m *MockStore) InsertKeep(ctx context.Context, k model.KeepDate) error {
	return m.Called(ctx, k).Error(0)
}

func (m *MockStore) DeleteKeep(ctx context.Context, facility string, date model.Date) error {
	return m.Called(ctx, facility, date).Error(0)
}

func (m *MockStore) ReleaseKeep(ctx context.Context, facility string, date model.Date) error {
	return m.Called(ctx, facility, date).Error(0)
}

func (m *MockStore) PruneReleased(ctx context.Context, before model.Date) error {
	return m.Called(ctx, before).Error(0)
}

func (m *MockStore) UpsertBooking(ctx context.Context, b *model.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockStore) DeleteBooking(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) UpsertHistory(ctx context.Context, e model.HistoryEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStore) DeleteHistory(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) ReplaceResidents(ctx context.Context, facility string, residents []model.Resident) error {
	return m.Called(ctx, facility, residents).Error(0)
}

func (m *MockStore) SetNgDate(ctx context.Context, ng model.NgDate) error {
	return m.Called(ctx, ng).Error(0)
}

func (m *MockStore) DeleteNgDate(ctx context.Context, date model.Date) error {
	return m.Called(ctx, date).Error(0)
}

func (m *MockStore) MarkFinalized(ctx context.Context, facility string, month model.Month) error {
	return m.Called(ctx, facility, month).Error(0)
}

func newMockService(st *MockStore) *Service {
	logger := zerolog.New(io.Discard)
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	return NewService(st, Options{Location: time.UTC, Now: func() time.Time { return now }}, &logger)
}

func bookedSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Facilities: []model.Facility{{ID: "a", Name: "A", Active: true}, {ID: "b", Name: "B", Active: true}},
		Bookings: []model.Booking{{
			ID:       "a_2024-04-05",
			Facility: "a",
			Date:     "2024-04-05",
			Status:   model.BookingStatusConfirmed,
			Members:  []model.Member{{ID: "m1", Name: "Sato", Status: model.StatusYet}},
			Version:  1,
		}},
	}
}

func TestCompleteMember_RetriesVersionClash(t *testing.T) {
	st := new(MockStore)
	svc := newMockService(st)
	ctx := context.Background()

	st.On("Load", mock.Anything).Return(bookedSnapshot(), nil)
	st.On("UpsertHistory", mock.Anything, mock.AnythingOfType("model.HistoryEntry")).Return(nil)
	st.On("UpsertBooking", mock.Anything, mock.Anything).Return(model.ErrConcurrentModification).Once()
	st.On("UpsertBooking", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, svc.CompleteMember(ctx, "a_2024-04-05", "m1", "cut", 2000))
	st.AssertNumberOfCalls(t, "Load", 2)
	st.AssertNumberOfCalls(t, "UpsertBooking", 2)
}

func TestCompleteMember_SecondClashIsNetworkFailure(t *testing.T) {
	st := new(MockStore)
	svc := newMockService(st)

	st.On("Load", mock.Anything).Return(bookedSnapshot(), nil)
	st.On("UpsertHistory", mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertBooking", mock.Anything, mock.Anything).Return(model.ErrConcurrentModification)

	err := svc.CompleteMember(context.Background(), "a_2024-04-05", "m1", "cut", 2000)
	assert.ErrorIs(t, err, model.ErrNetworkFailure)
	st.AssertNumberOfCalls(t, "UpsertBooking", 2)
}

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("load failure", func(t *testing.T) {
		st := new(MockStore)
		st.On("Load", mock.Anything).Return(nil, errors.New("disk I/O error"))
		_, err := newMockService(st).ToggleKeep(ctx, "a", "2024-04-10")
		assert.ErrorIs(t, err, model.ErrNetworkFailure)
	})

	t.Run("lost hold race", func(t *testing.T) {
		st := new(MockStore)
		st.On("Load", mock.Anything).Return(bookedSnapshot(), nil)
		st.On("InsertKeep", mock.Anything, mock.Anything).Return(model.ErrDateTaken)
		_, err := newMockService(st).ToggleKeep(ctx, "b", "2024-04-10")
		assert.ErrorIs(t, err, model.ErrDateUnavailable)
	})

	t.Run("history write failure leaves booking untouched", func(t *testing.T) {
		st := new(MockStore)
		st.On("Load", mock.Anything).Return(bookedSnapshot(), nil)
		st.On("UpsertHistory", mock.Anything, mock.Anything).Return(errors.New("database is locked"))
		err := newMockService(st).CompleteMember(ctx, "a_2024-04-05", "m1", "cut", 2000)
		assert.ErrorIs(t, err, model.ErrNetworkFailure)
		st.AssertNotCalled(t, "UpsertBooking", mock.Anything, mock.Anything)
	})
}

func TestConfirmMonth_ConcurrentConfirmKeepsStoredRow(t *testing.T) {
	st := new(MockStore)
	svc := newMockService(st)

	before := &model.Snapshot{
		Facilities: []model.Facility{{ID: "a", Name: "A", Active: true}},
		Residents:  []model.Resident{{ID: "r1", Facility: "a", Name: "Sato", Active: true, Selected: true}},
		Keeps:      []model.KeepDate{{Date: "2024-04-05", Facility: "a", Origin: model.OriginManual}},
	}
	after := bookedSnapshot()
	after.Bookings[0].Members[0].Status = model.StatusDone

	st.On("Load", mock.Anything).Return(before, nil).Once()
	st.On("Load", mock.Anything).Return(after, nil).Once()
	st.On("UpsertBooking", mock.Anything, mock.Anything).Return(model.ErrConcurrentModification)
	st.On("DeleteKeep", mock.Anything, "a", model.Date("2024-04-05")).Return(nil)

	bookings, err := svc.ConfirmMonth(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, model.StatusDone, bookings[0].Members[0].Status)
	st.AssertExpectations(t)
}

func TestToggleKeep_ReleaseIsRecorded(t *testing.T) {
	st := new(MockStore)
	svc := newMockService(st)

	st.On("Load", mock.Anything).Return(&model.Snapshot{
		Facilities: []model.Facility{{ID: "a", Name: "A", Active: true}},
		Keeps:      []model.KeepDate{{Date: "2024-04-09", Facility: "a", Origin: model.OriginSystem}},
	}, nil)
	st.On("ReleaseKeep", mock.Anything, "a", model.Date("2024-04-09")).Return(nil)

	held, err := svc.ToggleKeep(context.Background(), "a", "2024-04-09")
	require.NoError(t, err)
	assert.False(t, held)
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "DeleteKeep", mock.Anything, mock.Anything, mock.Anything)
}
