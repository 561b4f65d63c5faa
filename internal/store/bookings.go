package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carevisit/internal/model"
)

// UpsertBooking inserts a new booking (Version 0) or updates an existing one
// guarded by its version. On success b.Version holds the stored version.
func (db *DB) UpsertBooking(ctx context.Context, b *model.Booking) error {
	members := b.Members
	if members == nil {
		members = []model.Member{}
	}
	payload, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	if b.Status == "" {
		b.Status = model.BookingStatusConfirmed
	}
	now := time.Now()

	if b.Version == 0 {
		return db.insertBooking(ctx, b, payload, now)
	}

	result, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET members = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(payload), b.Status, now, b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: booking %s version %d", ErrConcurrentModification, b.ID, b.Version)
	}

	b.Version++
	b.UpdatedAt = now
	return nil
}

func (db *DB) insertBooking(ctx context.Context, b *model.Booking, payload []byte, now time.Time) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ?`, b.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check booking: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: booking %s already exists", ErrConcurrentModification, b.ID)
		}

		var holder string
		err := tx.QueryRowContext(ctx, `SELECT facility_id FROM keep_dates WHERE date = ?`, b.Date).Scan(&holder)
		switch {
		case err == nil && holder != b.Facility:
			return fmt.Errorf("%w: %s is held by %s", ErrDateTaken, b.Date, holder)
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check keeps: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookings (id, facility_id, date, status, members, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
			b.ID, b.Facility, b.Date, b.Status, string(payload), b.CreatedAt, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s is already booked", ErrDateTaken, b.Date)
			}
			return fmt.Errorf("insert booking: %w", err)
		}

		b.Version = 1
		b.UpdatedAt = now
		return nil
	})
}

// DeleteBooking removes a booking and any hold for the same key. Bookings
// with ledger rows are kept and ErrHistoryExists is returned.
func (db *DB) DeleteBooking(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var facility string
		var date model.Date
		err := tx.QueryRowContext(ctx, `SELECT facility_id, date FROM bookings WHERE id = ?`, id).Scan(&facility, &date)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get booking: %w", err)
		}

		var served int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM history WHERE facility_id = ? AND date = ?`, facility, date,
		).Scan(&served); err != nil {
			return fmt.Errorf("check history: %w", err)
		}
		if served > 0 {
			return fmt.Errorf("%w: %s on %s has %d rows", model.ErrHistoryExists, facility, date, served)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete booking: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM keep_dates WHERE facility_id = ? AND date = ?`, facility, date); err != nil {
			return fmt.Errorf("delete orphaned keep: %w", err)
		}
		return nil
	})
}

func (db *DB) listBookings(ctx context.Context, q querier) ([]model.Booking, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, facility_id, date, status, members, version, created_at, updated_at
		FROM bookings ORDER BY date, facility_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		var members string
		if err := rows.Scan(&b.ID, &b.Facility, &b.Date, &b.Status, &members, &b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(members), &b.Members); err != nil {
			return nil, fmt.Errorf("decode members of %s: %w", b.ID, err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
