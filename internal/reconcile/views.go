package reconcile

import (
	"context"
	"fmt"

	"carevisit/internal/attendance"
	"carevisit/internal/model"
	"carevisit/internal/slots"
)

// Snapshot returns a fresh read of every collection.
func (s *Service) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	return s.load(ctx)
}

// Calendar merges holds, bookings and blackout dates into the current calendar.
func (s *Service) Calendar(ctx context.Context) (*slots.Calendar, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return calendarOf(snap), nil
}

// Progress computes the facility's month progress.
func (s *Service) Progress(ctx context.Context, facility string, month model.Month) (attendance.Progress, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return attendance.Progress{}, err
	}
	if _, ok := snap.Facility(facility); !ok {
		return attendance.Progress{}, fmt.Errorf("facility %q: %w", facility, model.ErrNotFound)
	}
	return attendance.ComputeProgress(month, facility, snap.Bookings, snap.History, snap.Residents, snap.NgDates), nil
}

// Detail builds the per-member view of one facility's date.
func (s *Service) Detail(ctx context.Context, facility string, date model.Date) (attendance.Detail, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return attendance.Detail{}, err
	}
	if _, ok := snap.Facility(facility); !ok {
		return attendance.Detail{}, fmt.Errorf("facility %q: %w", facility, model.ErrNotFound)
	}
	return attendance.DetailForDate(facility, date, snap.Bookings, snap.History), nil
}

// Tasks lists the visits of date.
func (s *Service) Tasks(ctx context.Context, date model.Date) ([]attendance.Task, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return attendance.DailyTasks(date, snap.Bookings, snap.History), nil
}
