package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"carevisit/internal/events"
	"carevisit/internal/metrics"
	"carevisit/internal/model"
)

var errNoChange = errors.New("no change")

// updateBooking applies mutate to b and stores it. On a version clash the
// booking is re-read from a fresh snapshot and mutate runs once more.
// mutate returning errNoChange skips the write.
func (s *Service) updateBooking(
	ctx context.Context,
	b model.Booking,
	mutate func(b *model.Booking, snap *model.Snapshot) error,
	snap *model.Snapshot,
) (model.Booking, error) {
	for attempt := 0; ; attempt++ {
		if err := mutate(&b, snap); err != nil {
			return b, err
		}
		err := s.store.UpsertBooking(ctx, &b)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, model.ErrConcurrentModification) || attempt > 0 {
			return b, storeErr("update booking", err)
		}

		metrics.IncWriteRetry()
		s.logger.Warn().Str("booking_id", b.ID).Msg("Booking changed concurrently, retrying")
		if snap, err = s.load(ctx); err != nil {
			return b, err
		}
		fresh, ok := snap.Booking(b.ID)
		if !ok {
			return b, fmt.Errorf("booking %s: %w", b.ID, model.ErrNotFound)
		}
		b = fresh
	}
}

// findMember loads the snapshot and locates the booking line.
func (s *Service) findMember(ctx context.Context, bookingID, memberID string) (*model.Snapshot, model.Booking, *model.Member, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, model.Booking{}, nil, err
	}
	b, ok := snap.Booking(bookingID)
	if !ok {
		return nil, model.Booking{}, nil, fmt.Errorf("booking %s: %w", bookingID, model.ErrNotFound)
	}
	m, ok := b.Member(memberID)
	if !ok {
		return nil, model.Booking{}, nil, fmt.Errorf("member %s in %s: %w", memberID, bookingID, model.ErrNotFound)
	}
	return snap, b, m, nil
}

func transition(b *model.Booking, memberID string, to model.MemberStatus) error {
	m, ok := b.Member(memberID)
	if !ok {
		return fmt.Errorf("member %s in %s: %w", memberID, b.ID, model.ErrNotFound)
	}
	if !model.CanTransition(m.Status, to) {
		return fmt.Errorf("%w: %s %s -> %s", model.ErrInvalidTransition, m.Name, m.Status, to)
	}
	m.Status = to
	return nil
}

// CompleteMember records a served member. The ledger row is written first
// under a key derived from (facility, date, name), so retries overwrite it.
func (s *Service) CompleteMember(ctx context.Context, bookingID, memberID, menu string, price int) error {
	return s.run(ctx, "complete_member", []string{bookingKey(bookingID)}, func(ctx context.Context) error {
		snap, b, m, err := s.findMember(ctx, bookingID, memberID)
		if err != nil {
			return err
		}
		if !model.CanTransition(m.Status, model.StatusDone) {
			return fmt.Errorf("%w: %s %s -> %s", model.ErrInvalidTransition, m.Name, m.Status, model.StatusDone)
		}

		entry := model.HistoryEntry{
			ID:        model.HistoryID(b.Facility, b.Date, m.Name),
			Date:      b.Date,
			Facility:  b.Facility,
			Room:      m.Room,
			Name:      m.Name,
			Kana:      m.Kana,
			Menu:      menu,
			Price:     price,
			CreatedAt: s.now(),
		}
		if err := s.store.UpsertHistory(ctx, entry); err != nil {
			return storeErr("write history", err)
		}

		if _, err := s.updateBooking(ctx, b, func(b *model.Booking, _ *model.Snapshot) error {
			return transition(b, memberID, model.StatusDone)
		}, snap); err != nil {
			return err
		}

		metrics.IncServiceCompleted(menu)
		s.logger.Info().Str("booking_id", bookingID).Str("member", m.Name).Str("menu", menu).Msg("Member completed")
		s.publish(events.MemberCompleted, b.Facility, b.Date, entry)
		return nil
	})
}

// CancelMember marks a member as not served. No ledger row is written.
func (s *Service) CancelMember(ctx context.Context, bookingID, memberID string) error {
	return s.run(ctx, "cancel_member", []string{bookingKey(bookingID)}, func(ctx context.Context) error {
		snap, b, m, err := s.findMember(ctx, bookingID, memberID)
		if err != nil {
			return err
		}
		if _, served := historyFor(snap, b, m.Name); served {
			return fmt.Errorf("%w: %s was already served", model.ErrInvalidTransition, m.Name)
		}

		if _, err := s.updateBooking(ctx, b, func(b *model.Booking, _ *model.Snapshot) error {
			return transition(b, memberID, model.StatusCancel)
		}, snap); err != nil {
			return err
		}

		s.logger.Info().Str("booking_id", bookingID).Str("member", m.Name).Msg("Member cancelled")
		s.publish(events.MemberCancelled, b.Facility, b.Date, m)
		return nil
	})
}

// UndoMember retracts a completion or cancellation: the ledger row is deleted
// and the member goes back to yet. Undoing a walk-in removes its line. Months
// that are finalized are locked.
func (s *Service) UndoMember(ctx context.Context, bookingID, memberID string) error {
	return s.run(ctx, "undo_member", []string{bookingKey(bookingID)}, func(ctx context.Context) error {
		snap, b, m, err := s.findMember(ctx, bookingID, memberID)
		if err != nil {
			return err
		}
		if snap.IsFinalized(b.Facility, b.Date.Month()) {
			return fmt.Errorf("%w: %s %s is finalized", model.ErrDateLocked, b.Facility, b.Date.Month())
		}

		entry, served := historyFor(snap, b, m.Name)
		if served {
			if err := s.store.DeleteHistory(ctx, entry.ID); err != nil {
				return storeErr("delete history", err)
			}
		}

		extra := m.IsExtra
		if _, err := s.updateBooking(ctx, b, func(b *model.Booking, _ *model.Snapshot) error {
			if extra {
				return removeMember(b, memberID)
			}
			m, ok := b.Member(memberID)
			if !ok {
				return fmt.Errorf("member %s in %s: %w", memberID, b.ID, model.ErrNotFound)
			}
			if m.Status == model.StatusYet || m.Status == "" {
				return errNoChange
			}
			return transition(b, memberID, model.StatusYet)
		}, snap); err != nil && !errors.Is(err, errNoChange) {
			return err
		}

		s.logger.Info().Str("booking_id", bookingID).Str("member", m.Name).Bool("ledger_row", served).Msg("Member undone")
		s.publish(events.MemberUndone, b.Facility, b.Date, m)
		return nil
	})
}

// AddWalkIn appends an unplanned member to an existing booking as served and
// writes its ledger row.
func (s *Service) AddWalkIn(ctx context.Context, facility string, date model.Date, member model.Member, menu string, price int) (model.Booking, error) {
	id := model.BookingID(facility, date)
	var stored model.Booking
	err := s.run(ctx, "add_walk_in", []string{bookingKey(id)}, func(ctx context.Context) error {
		if member.Name == "" {
			return fmt.Errorf("walk-in without name: %w", model.ErrInvalidInput)
		}
		snap, err := s.load(ctx)
		if err != nil {
			return err
		}
		b, ok := snap.BookingAt(facility, date)
		if !ok {
			return fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
		}
		if snap.IsFinalized(facility, date.Month()) {
			return fmt.Errorf("%w: %s %s is finalized", model.ErrDateLocked, facility, date.Month())
		}
		if _, exists := b.MemberByName(member.Name); exists {
			return fmt.Errorf("%w: %s is already on the list", model.ErrInvalidInput, member.Name)
		}

		if member.ID == "" {
			member.ID = uuid.NewString()
		}
		member.IsExtra = true
		member.Status = model.StatusDone
		if len(member.Menus) == 0 && menu != "" {
			member.Menus = []string{menu}
		}

		entry := model.HistoryEntry{
			ID:        model.HistoryID(facility, date, member.Name),
			Date:      date,
			Facility:  facility,
			Room:      member.Room,
			Name:      member.Name,
			Kana:      member.Kana,
			Menu:      menu,
			Price:     price,
			CreatedAt: s.now(),
		}
		if err := s.store.UpsertHistory(ctx, entry); err != nil {
			return storeErr("write history", err)
		}

		stored, err = s.updateBooking(ctx, b, func(b *model.Booking, _ *model.Snapshot) error {
			if _, exists := b.MemberByName(member.Name); exists {
				return errNoChange
			}
			b.Members = append(b.Members, member)
			return nil
		}, snap)
		if err != nil && !errors.Is(err, errNoChange) {
			return err
		}

		metrics.IncServiceCompleted(menu)
		s.logger.Info().Str("booking_id", id).Str("member", member.Name).Str("menu", menu).Msg("Walk-in added")
		s.publish(events.WalkInAdded, facility, date, entry)
		return nil
	})
	return stored, err
}

func historyFor(snap *model.Snapshot, b model.Booking, name string) (model.HistoryEntry, bool) {
	for _, h := range snap.History {
		if h.Facility == b.Facility && h.Date == b.Date && h.Name == name {
			return h, true
		}
	}
	return model.HistoryEntry{}, false
}

func removeMember(b *model.Booking, memberID string) error {
	for i := range b.Members {
		if b.Members[i].ID == memberID {
			b.Members = append(b.Members[:i:i], b.Members[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("member %s in %s: %w", memberID, b.ID, model.ErrNotFound)
}
