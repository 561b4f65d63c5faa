package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carevisit/internal/model"
)

// InsertKeep stores a hold. The date must not be booked, blacked out or held
// by any facility; otherwise ErrDateTaken is returned. A system hold is also
// refused on a date the facility released, and a manual hold clears that
// release.
func (db *DB) InsertKeep(ctx context.Context, k model.KeepDate) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	if k.Origin == model.OriginReleased {
		return fmt.Errorf("insert keep: origin %q is not a hold", k.Origin)
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if k.Origin == model.OriginSystem {
			var released int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM released_keeps WHERE facility_id = ? AND date = ?`, k.Facility, k.Date,
			).Scan(&released)
			if err != nil {
				return fmt.Errorf("check released keeps: %w", err)
			}
			if released > 0 {
				return fmt.Errorf("%w: %s was released by %s", ErrDateTaken, k.Date, k.Facility)
			}
		} else if _, err := tx.ExecContext(ctx,
			`DELETE FROM released_keeps WHERE facility_id = ? AND date = ?`, k.Facility, k.Date,
		); err != nil {
			return fmt.Errorf("clear release: %w", err)
		}

		var holder string
		err := tx.QueryRowContext(ctx, `SELECT facility_id FROM bookings WHERE date = ?`, k.Date).Scan(&holder)
		if err == nil {
			return fmt.Errorf("%w: %s is booked by %s", ErrDateTaken, k.Date, holder)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check bookings: %w", err)
		}

		var blackout int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ng_dates WHERE date = ?`, k.Date).Scan(&blackout); err != nil {
			return fmt.Errorf("check ng dates: %w", err)
		}
		if blackout > 0 {
			return fmt.Errorf("%w: %s is a blackout date", ErrDateTaken, k.Date)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO keep_dates (date, facility_id, origin, created_at) VALUES (?, ?, ?, ?)`,
			k.Date, k.Facility, k.Origin, k.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s is already held", ErrDateTaken, k.Date)
			}
			return fmt.Errorf("insert keep: %w", err)
		}
		return nil
	})
}

// DeleteKeep removes the facility's hold on date. Missing rows are ignored.
func (db *DB) DeleteKeep(ctx context.Context, facility string, date model.Date) error {
	_, err := db.ExecContext(ctx, `DELETE FROM keep_dates WHERE facility_id = ? AND date = ?`, facility, date)
	if err != nil {
		return fmt.Errorf("delete keep: %w", err)
	}
	return nil
}

// ReleaseKeep removes the facility's hold on date and remembers the release.
func (db *DB) ReleaseKeep(ctx context.Context, facility string, date model.Date) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM keep_dates WHERE facility_id = ? AND date = ?`, facility, date); err != nil {
			return fmt.Errorf("delete keep: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO released_keeps (facility_id, date, released_at) VALUES (?, ?, ?)
			ON CONFLICT(facility_id, date) DO UPDATE SET released_at = excluded.released_at`,
			facility, date, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("record release: %w", err)
		}
		return nil
	})
}

// PruneReleased forgets releases dated before the given date.
func (db *DB) PruneReleased(ctx context.Context, before model.Date) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM released_keeps WHERE date < ?`, before); err != nil {
		return fmt.Errorf("prune released keeps: %w", err)
	}
	return nil
}

func (db *DB) listReleased(ctx context.Context, q querier) ([]model.KeepDate, error) {
	rows, err := q.QueryContext(ctx, `SELECT date, facility_id, released_at FROM released_keeps ORDER BY date, facility_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.KeepDate
	for rows.Next() {
		k := model.KeepDate{Origin: model.OriginReleased}
		if err := rows.Scan(&k.Date, &k.Facility, &k.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (db *DB) listKeeps(ctx context.Context, q querier) ([]model.KeepDate, error) {
	rows, err := q.QueryContext(ctx, `SELECT date, facility_id, origin, created_at FROM keep_dates ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keeps []model.KeepDate
	for rows.Next() {
		var k model.KeepDate
		if err := rows.Scan(&k.Date, &k.Facility, &k.Origin, &k.CreatedAt); err != nil {
			return nil, err
		}
		keeps = append(keeps, k)
	}
	return keeps, rows.Err()
}
