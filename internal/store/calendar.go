package store

import (
	"context"
	"fmt"
	"time"

	"carevisit/internal/model"
)

// SetNgDate adds or updates a blackout date.
func (db *DB) SetNgDate(ctx context.Context, ng model.NgDate) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ng_dates (date, reason, created_at) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET reason = excluded.reason`,
		ng.Date, ng.Reason, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("set ng date: %w", err)
	}
	return nil
}

// DeleteNgDate removes a blackout date.
func (db *DB) DeleteNgDate(ctx context.Context, date model.Date) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM ng_dates WHERE date = ?`, date); err != nil {
		return fmt.Errorf("delete ng date: %w", err)
	}
	return nil
}

// MarkFinalized records that the facility's month is locked. A second call
// returns model.ErrAlreadyFinalized.
func (db *DB) MarkFinalized(ctx context.Context, facility string, month model.Month) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO finalized_months (facility_id, month, finalized_at) VALUES (?, ?, ?)`,
		facility, month, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s: %w", facility, month, model.ErrAlreadyFinalized)
		}
		return fmt.Errorf("mark finalized: %w", err)
	}
	return nil
}

func (db *DB) listNgDates(ctx context.Context, q querier) ([]model.NgDate, error) {
	rows, err := q.QueryContext(ctx, `SELECT date, reason FROM ng_dates ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NgDate
	for rows.Next() {
		var n model.NgDate
		if err := rows.Scan(&n.Date, &n.Reason); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (db *DB) listFinalized(ctx context.Context, q querier) ([]model.FinalizedMonth, error) {
	rows, err := q.QueryContext(ctx, `SELECT facility_id, month, finalized_at FROM finalized_months ORDER BY month, facility_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FinalizedMonth
	for rows.Next() {
		var f model.FinalizedMonth
		if err := rows.Scan(&f.Facility, &f.Month, &f.FinalizedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
