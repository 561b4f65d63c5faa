package reconcile

import (
	"context"
	"errors"
	"fmt"

	"carevisit/internal/events"
	"carevisit/internal/model"
	"carevisit/internal/slots"
)

// ToggleKeep releases the facility's hold on date, or places a manual one.
// It reports whether the date is held afterwards. A release is remembered so
// the rule engine does not put the hold back.
func (s *Service) ToggleKeep(ctx context.Context, facility string, date model.Date) (bool, error) {
	var held bool
	err := s.run(ctx, "toggle_keep", []string{dateKey(date), facilityKey(facility)}, func(ctx context.Context) error {
		snap, err := s.load(ctx)
		if err != nil {
			return err
		}
		if err := requireFacility(snap, facility); err != nil {
			return err
		}

		today := s.Today()
		if date.Before(today) {
			return fmt.Errorf("%w: %s", model.ErrPastDate, date)
		}
		if _, ok := snap.BookingAt(facility, date); ok {
			return fmt.Errorf("%w: %s on %s", model.ErrDateLocked, facility, date)
		}

		for _, k := range snap.KeepsFor(facility) {
			if k.Date != date {
				continue
			}
			if err := s.store.ReleaseKeep(ctx, facility, date); err != nil {
				return storeErr("release keep", err)
			}
			s.logger.Info().Str("facility", facility).Str("date", string(date)).Msg("Keep released")
			s.publish(events.KeepReleased, facility, date, k)
			return nil
		}

		if snap.IsNgDate(date) {
			return fmt.Errorf("%w: %s is a blackout date", model.ErrDateUnavailable, date)
		}
		if err := slots.CheckHold(calendarOf(snap), facility, date); err != nil {
			return err
		}
		if s.gate != nil && !s.gate.IsDateSelectable(facility, date, today) {
			return fmt.Errorf("%w: %s on %s", model.ErrOutsideWindow, facility, date)
		}

		keep := model.KeepDate{Date: date, Facility: facility, Origin: model.OriginManual, CreatedAt: s.now()}
		if err := s.store.InsertKeep(ctx, keep); err != nil {
			return storeErr("insert keep", err)
		}
		s.logger.Info().Str("facility", facility).Str("date", string(date)).Msg("Keep placed")
		s.publish(events.KeepHeld, facility, date, keep)
		held = true
		return nil
	})
	return held, err
}

// SyncResult summarizes a system hold sync.
type SyncResult struct {
	Added   []model.KeepDate `json:"added"`
	Removed []model.KeepDate `json:"removed"`
	Expired []model.KeepDate `json:"expired"`
	Skipped int              `json:"skipped"`
}

// SyncSystemKeeps stores the rule engine's candidates as system holds and
// removes future system holds no rule produces anymore. Unconfirmed holds
// dated before today are retired. Candidates that conflict with the calendar,
// blackout dates, admission windows or a facility's release are skipped.
func (s *Service) SyncSystemKeeps(ctx context.Context, rules []model.RecurringRule, monthsAhead int) (SyncResult, error) {
	var res SyncResult
	err := s.run(ctx, "sync_system_keeps", []string{"sync:system-keeps"}, func(ctx context.Context) error {
		today := s.Today()
		candidates, err := slots.ExpandAll(rules, monthsAhead, today)
		if err != nil {
			return err
		}

		snap, err := s.load(ctx)
		if err != nil {
			return err
		}

		wanted := make(map[model.SlotKey]struct{}, len(candidates))
		for _, c := range candidates {
			wanted[c.Key()] = struct{}{}
		}
		for _, k := range snap.Keeps {
			if k.Date.Before(today) {
				if err := s.store.DeleteKeep(ctx, k.Facility, k.Date); err != nil {
					return storeErr("retire past keep", err)
				}
				res.Expired = append(res.Expired, k)
				continue
			}
			if k.Origin != model.OriginSystem {
				continue
			}
			if _, ok := wanted[k.Key()]; ok {
				continue
			}
			if err := s.store.DeleteKeep(ctx, k.Facility, k.Date); err != nil {
				return storeErr("delete stale keep", err)
			}
			res.Removed = append(res.Removed, k)
		}
		if err := s.store.PruneReleased(ctx, today); err != nil {
			return storeErr("prune released keeps", err)
		}
		if len(res.Removed)+len(res.Expired) > 0 {
			if snap, err = s.load(ctx); err != nil {
				return err
			}
		}

		cal := calendarOf(snap)
		for _, c := range candidates {
			if requireFacility(snap, c.Facility) != nil || snap.IsNgDate(c.Date) || snap.IsReleased(c.Key()) {
				res.Skipped++
				continue
			}
			if slot, ok := cal.Slot(c.Date); ok {
				if slot.Facility != c.Facility || slot.Confirmed {
					res.Skipped++
				}
				continue
			}
			if s.gate != nil && !s.gate.IsDateSelectable(c.Facility, c.Date, today) {
				res.Skipped++
				continue
			}

			c.CreatedAt = s.now()
			err := s.store.InsertKeep(ctx, c)
			if errors.Is(err, model.ErrDateTaken) {
				res.Skipped++
				continue
			}
			if err != nil {
				return storeErr("insert system keep", err)
			}
			res.Added = append(res.Added, c)
		}

		s.logger.Info().
			Int("added", len(res.Added)).
			Int("removed", len(res.Removed)).
			Int("expired", len(res.Expired)).
			Int("skipped", res.Skipped).
			Msg("System keeps synced")
		if len(res.Added)+len(res.Removed)+len(res.Expired) > 0 {
			s.publish(events.SystemKeepsSync, "", "", res)
		}
		return nil
	})
	return res, err
}

// SetNgDate blacks out a date. System holds on it are dropped; manual holds
// and bookings stay and are shown as blackout.
func (s *Service) SetNgDate(ctx context.Context, ng model.NgDate) error {
	return s.run(ctx, "set_ng_date", []string{dateKey(ng.Date)}, func(ctx context.Context) error {
		snap, err := s.load(ctx)
		if err != nil {
			return err
		}
		if err := s.store.SetNgDate(ctx, ng); err != nil {
			return storeErr("set ng date", err)
		}
		for _, k := range snap.Keeps {
			if k.Date == ng.Date && k.Origin == model.OriginSystem {
				if err := s.store.DeleteKeep(ctx, k.Facility, k.Date); err != nil {
					return storeErr("delete keep", err)
				}
			}
		}
		s.logger.Info().Str("date", string(ng.Date)).Str("reason", ng.Reason).Msg("Blackout date set")
		s.publish(events.NgDateSet, "", ng.Date, ng)
		return nil
	})
}

// ClearNgDate removes a blackout date.
func (s *Service) ClearNgDate(ctx context.Context, date model.Date) error {
	return s.run(ctx, "clear_ng_date", []string{dateKey(date)}, func(ctx context.Context) error {
		if err := s.store.DeleteNgDate(ctx, date); err != nil {
			return storeErr("delete ng date", err)
		}
		s.logger.Info().Str("date", string(date)).Msg("Blackout date cleared")
		s.publish(events.NgDateCleared, "", date, nil)
		return nil
	})
}
