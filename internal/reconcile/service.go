// Package reconcile runs the booking operations. Every operation reads a
// fresh snapshot, validates against it, writes through the Store and then
// publishes an event. No state is kept between calls.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"carevisit/internal/events"
	"carevisit/internal/metrics"
	"carevisit/internal/model"
	"carevisit/internal/slots"
)

// Store is the row store behind the service.
type Store interface {
	Load(ctx context.Context) (*model.Snapshot, error)
	InsertKeep(ctx context.Context, k model.KeepDate) error
	DeleteKeep(ctx context.Context, facility string, date model.Date) error
	ReleaseKeep(ctx context.Context, facility string, date model.Date) error
	PruneReleased(ctx context.Context, before model.Date) error
	UpsertBooking(ctx context.Context, b *model.Booking) error
	DeleteBooking(ctx context.Context, id string) error
	UpsertHistory(ctx context.Context, e model.HistoryEntry) error
	DeleteHistory(ctx context.Context, id string) error
	ReplaceResidents(ctx context.Context, facility string, residents []model.Resident) error
	SetNgDate(ctx context.Context, ng model.NgDate) error
	DeleteNgDate(ctx context.Context, date model.Date) error
	MarkFinalized(ctx context.Context, facility string, month model.Month) error
}

// Locker takes advisory locks around check-then-write sequences.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

// Gate is the facility admission window.
type Gate interface {
	IsDateSelectable(facility string, date, today model.Date) bool
}

// Publisher receives domain events after successful writes.
type Publisher interface {
	Publish(event events.Event)
}

type Options struct {
	Locker   Locker
	Gate     Gate
	Bus      Publisher
	Location *time.Location
	LockTTL  time.Duration
	Now      func() time.Time
}

type Service struct {
	store   Store
	locker  Locker
	gate    Gate
	bus     Publisher
	loc     *time.Location
	lockTTL time.Duration
	now     func() time.Time
	logger  *zerolog.Logger
}

func NewService(store Store, opts Options, logger *zerolog.Logger) *Service {
	l := logger.With().Str("component", "reconcile").Logger()
	s := &Service{
		store:   store,
		locker:  opts.Locker,
		gate:    opts.Gate,
		bus:     opts.Bus,
		loc:     opts.Location,
		lockTTL: opts.LockTTL,
		now:     opts.Now,
		logger:  &l,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Today returns the current date in the service timezone.
func (s *Service) Today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

func dateKey(d model.Date) string   { return "date:" + string(d) }
func facilityKey(id string) string { return "facility:" + id }
func bookingKey(id string) string  { return "booking:" + id }

// run takes the locks, executes fn and records the outcome.
func (s *Service) run(ctx context.Context, op string, keys []string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.withLocks(ctx, keys, fn)
	metrics.ObserveOperation(op, err, time.Since(start))
	return err
}

func (s *Service) withLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	type held struct{ key, token string }
	var taken []held
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		for i := len(taken) - 1; i >= 0; i-- {
			if err := s.locker.Release(rctx, taken[i].key, taken[i].token); err != nil {
				s.logger.Warn().Err(err).Str("key", taken[i].key).Msg("Failed to release lock")
			}
		}
	}()

	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		token, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			return fmt.Errorf("%w: lock %s: %w", model.ErrNetworkFailure, key, err)
		}
		taken = append(taken, held{key: key, token: token})
	}
	return fn(ctx)
}

func (s *Service) load(ctx context.Context) (*model.Snapshot, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", model.ErrNetworkFailure, err)
	}
	return snap, nil
}

var domainErrors = []error{
	model.ErrPastDate,
	model.ErrDateLocked,
	model.ErrDateUnavailable,
	model.ErrOutsideWindow,
	model.ErrAlreadyFinalized,
	model.ErrHistoryExists,
	model.ErrNetworkFailure,
	model.ErrNotFound,
	model.ErrInvalidTransition,
	model.ErrInvalidInput,
}

// storeErr classifies a write failure. Domain errors pass through; anything
// else is a transient failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrDateTaken) {
		return fmt.Errorf("%w: %w", model.ErrDateUnavailable, err)
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", model.ErrNetworkFailure, op, err)
}

func (s *Service) publish(eventType, facility string, date model.Date, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.New(eventType, facility, string(date), payload))
}

func requireFacility(snap *model.Snapshot, id string) error {
	f, ok := snap.Facility(id)
	if !ok || !f.Active {
		return fmt.Errorf("facility %q: %w", id, model.ErrNotFound)
	}
	return nil
}

func calendarOf(snap *model.Snapshot) *slots.Calendar {
	system, manual := snap.SplitKeeps()
	return slots.Merge(system, manual, snap.Bookings, snap.NgDates)
}
