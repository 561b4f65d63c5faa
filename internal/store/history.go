package store

import (
	"context"
	"fmt"
	"time"

	"carevisit/internal/model"
)

// UpsertHistory writes a ledger row keyed by its ID.
func (db *DB) UpsertHistory(ctx context.Context, e model.HistoryEntry) error {
	if e.ID == "" {
		e.ID = model.HistoryID(e.Facility, e.Date, e.Name)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO history (id, date, facility_id, room, name, kana, menu, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			room = excluded.room,
			kana = excluded.kana,
			menu = excluded.menu,
			price = excluded.price`,
		e.ID, e.Date, e.Facility, e.Room, e.Name, e.Kana, e.Menu, e.Price, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert history %s: %w", e.ID, err)
	}
	return nil
}

// DeleteHistory removes a ledger row. Missing rows are ignored.
func (db *DB) DeleteHistory(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete history %s: %w", id, err)
	}
	return nil
}

func (db *DB) listHistory(ctx context.Context, q querier) ([]model.HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, date, facility_id, room, name, kana, menu, price, created_at
		FROM history ORDER BY date, facility_id, room, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.Facility, &e.Room, &e.Name, &e.Kana, &e.Menu, &e.Price, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
