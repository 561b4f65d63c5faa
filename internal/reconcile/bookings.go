package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"carevisit/internal/attendance"
	"carevisit/internal/events"
	"carevisit/internal/metrics"
	"carevisit/internal/model"
)

// ConfirmMonth turns the facility's holds in the earliest held month into
// bookings with the selected roster. Holds dated before today are ignored.
// Bookings that already exist for a date are left as they are, so a
// partially failed run can be repeated. Holds are removed only after every
// booking is stored.
func (s *Service) ConfirmMonth(ctx context.Context, facility string) ([]model.Booking, error) {
	var confirmed []model.Booking
	err := s.run(ctx, "confirm_month", []string{facilityKey(facility)}, func(ctx context.Context) error {
		snap, err := s.load(ctx)
		if err != nil {
			return err
		}
		if err := requireFacility(snap, facility); err != nil {
			return err
		}

		today := s.Today()
		var keeps []model.KeepDate
		for _, k := range snap.KeepsFor(facility) {
			if !k.Date.Before(today) {
				keeps = append(keeps, k)
			}
		}
		if len(keeps) == 0 {
			return fmt.Errorf("%s: %w", facility, model.ErrNothingToConfirm)
		}
		month := keeps[0].Date.Month()

		var roster []model.Member
		for _, r := range snap.Roster(facility) {
			if r.Selected {
				roster = append(roster, r.AsMember())
			}
		}
		if len(roster) == 0 {
			return fmt.Errorf("%s: %w", facility, model.ErrEmptyRoster)
		}
		sort.SliceStable(roster, func(i, j int) bool {
			if roster[i].Room != roster[j].Room {
				return roster[i].Room < roster[j].Room
			}
			return roster[i].Kana < roster[j].Kana
		})

		var consumed []model.KeepDate
		for _, k := range keeps {
			if !month.Contains(k.Date) {
				continue
			}
			consumed = append(consumed, k)

			if existing, ok := snap.BookingAt(facility, k.Date); ok {
				confirmed = append(confirmed, existing)
				continue
			}

			b := model.Booking{
				ID:        model.BookingID(facility, k.Date),
				Facility:  facility,
				Date:      k.Date,
				Status:    model.BookingStatusConfirmed,
				Members:   model.Booking{Members: roster}.Clone().Members,
				CreatedAt: s.now(),
			}
			err := s.store.UpsertBooking(ctx, &b)
			if errors.Is(err, model.ErrConcurrentModification) {
				// Created by a concurrent confirm; keep the stored row.
				fresh, lerr := s.load(ctx)
				if lerr != nil {
					return lerr
				}
				existing, ok := fresh.BookingAt(facility, k.Date)
				if !ok {
					return storeErr("insert booking", err)
				}
				confirmed = append(confirmed, existing)
				continue
			}
			if err != nil {
				return storeErr("insert booking", err)
			}
			confirmed = append(confirmed, b)
		}

		for _, k := range consumed {
			if err := s.store.DeleteKeep(ctx, facility, k.Date); err != nil {
				return storeErr("retire keep", err)
			}
		}

		s.logger.Info().
			Str("facility", facility).
			Str("month", string(month)).
			Int("bookings", len(confirmed)).
			Int("members", len(roster)).
			Msg("Month confirmed")
		s.publish(events.MonthConfirmed, facility, month.First(), map[string]any{"month": month, "bookings": len(confirmed)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// DeleteBooking removes the facility's booking on date and any hold for the
// same key. Bookings with ledger rows cannot be deleted.
func (s *Service) DeleteBooking(ctx context.Context, facility string, date model.Date) error {
	id := model.BookingID(facility, date)
	return s.run(ctx, "delete_booking", []string{dateKey(date), facilityKey(facility), bookingKey(id)}, func(ctx context.Context) error {
		snap, err := s.load(ctx)
		if err != nil {
			return err
		}

		b, ok := snap.BookingAt(facility, date)
		if !ok {
			for _, k := range snap.KeepsFor(facility) {
				if k.Date == date {
					return storeErr("delete orphaned keep", s.store.DeleteKeep(ctx, facility, date))
				}
			}
			return fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
		}
		if snap.HasHistory(facility, date) {
			return fmt.Errorf("%w: %s on %s", model.ErrHistoryExists, facility, date)
		}

		if err := s.store.DeleteBooking(ctx, b.ID); err != nil {
			return storeErr("delete booking", err)
		}
		s.logger.Info().Str("facility", facility).Str("date", string(date)).Str("booking_id", b.ID).Msg("Booking deleted")
		s.publish(events.BookingDeleted, facility, date, b)
		return nil
	})
}

// FinalizeMonth cancels every member of the facility's month that has no
// ledger row for its date, then marks the month finalized. It returns the
// number of members cancelled.
func (s *Service) FinalizeMonth(ctx context.Context, facility string, month model.Month) (int, error) {
	var cancelled int
	err := s.run(ctx, "finalize_month", []string{facilityKey(facility)}, func(ctx context.Context) error {
		snap, err := s.load(ctx)
		if err != nil {
			return err
		}
		if snap.IsFinalized(facility, month) {
			return fmt.Errorf("%s %s: %w", facility, month, model.ErrAlreadyFinalized)
		}

		for _, b := range snap.Bookings {
			if b.Facility != facility || !month.Contains(b.Date) {
				continue
			}

			var n int
			_, err := s.updateBooking(ctx, b.Clone(), func(b *model.Booking, snap *model.Snapshot) error {
				n = 0
				ledger := attendance.NewLedger(snap.History)
				for i := range b.Members {
					if attendance.Resolve(*b, b.Members[i], ledger).Kind == attendance.Pending {
						b.Members[i].Status = model.StatusCancel
						n++
					}
				}
				if n == 0 {
					return errNoChange
				}
				return nil
			}, snap)
			if err != nil && !errors.Is(err, errNoChange) {
				return err
			}
			cancelled += n
		}

		if err := s.store.MarkFinalized(ctx, facility, month); err != nil {
			return storeErr("mark finalized", err)
		}

		metrics.AddFinalizedCancelled(cancelled)
		s.logger.Info().Str("facility", facility).Str("month", string(month)).Int("cancelled", cancelled).Msg("Month finalized")
		s.publish(events.MonthFinalized, facility, month.First(), map[string]any{"month": month, "cancelled": cancelled})
		return nil
	})
	return cancelled, err
}

// SetRoster replaces the facility's residents.
func (s *Service) SetRoster(ctx context.Context, facility string, residents []model.Resident) error {
	return s.run(ctx, "set_roster", []string{facilityKey(facility)}, func(ctx context.Context) error {
		snap, err := s.load(ctx)
		if err != nil {
			return err
		}
		if err := requireFacility(snap, facility); err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(residents))
		rows := make([]model.Resident, 0, len(residents))
		for _, r := range residents {
			if r.Name == "" {
				return fmt.Errorf("resident without name: %w", model.ErrInvalidInput)
			}
			if _, dup := seen[r.Name]; dup {
				return fmt.Errorf("duplicate resident %q: %w", r.Name, model.ErrInvalidInput)
			}
			seen[r.Name] = struct{}{}
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			r.Facility = facility
			rows = append(rows, r)
		}

		if err := s.store.ReplaceResidents(ctx, facility, rows); err != nil {
			return storeErr("replace residents", err)
		}
		s.logger.Info().Str("facility", facility).Int("residents", len(rows)).Msg("Roster replaced")
		return nil
	})
}
