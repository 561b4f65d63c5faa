package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"carevisit/internal/model"
)

// SyncFacilities upserts the configured facilities and deactivates the ones
// missing from the list.
func (db *DB) SyncFacilities(ctx context.Context, facilities []model.Facility) error {
	now := time.Now()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		seen := make(map[string]struct{}, len(facilities))
		for _, f := range facilities {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO facilities (id, name, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					is_active = excluded.is_active,
					updated_at = excluded.updated_at`,
				f.ID, f.Name, f.Active, now, now,
			)
			if err != nil {
				return fmt.Errorf("sync facility %s: %w", f.ID, err)
			}
			seen[f.ID] = struct{}{}
		}

		rows, err := tx.QueryContext(ctx, `SELECT id FROM facilities WHERE is_active = 1`)
		if err != nil {
			return err
		}
		var stale []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			if _, ok := seen[id]; !ok {
				stale = append(stale, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, `UPDATE facilities SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
				return fmt.Errorf("deactivate facility %s: %w", id, err)
			}
		}
		return nil
	})
}

// ReplaceResidents swaps the facility's whole roster.
func (db *DB) ReplaceResidents(ctx context.Context, facility string, residents []model.Resident) error {
	now := time.Now()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM residents WHERE facility_id = ?`, facility); err != nil {
			return fmt.Errorf("clear roster: %w", err)
		}
		for _, r := range residents {
			menus := r.Menus
			if menus == nil {
				menus = []string{}
			}
			payload, err := json.Marshal(menus)
			if err != nil {
				return fmt.Errorf("encode menus: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO residents (id, facility_id, name, room, kana, menus, is_active, is_selected, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, facility, r.Name, r.Room, r.Kana, string(payload), r.Active, r.Selected, now,
			)
			if err != nil {
				return fmt.Errorf("insert resident %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

func (db *DB) listFacilities(ctx context.Context, q querier) ([]model.Facility, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, is_active FROM facilities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Facility
	for rows.Next() {
		var f model.Facility
		if err := rows.Scan(&f.ID, &f.Name, &f.Active); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (db *DB) listResidents(ctx context.Context, q querier) ([]model.Resident, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, facility_id, name, room, kana, menus, is_active, is_selected
		FROM residents ORDER BY facility_id, room, kana`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Resident
	for rows.Next() {
		var r model.Resident
		var menus string
		if err := rows.Scan(&r.ID, &r.Facility, &r.Name, &r.Room, &r.Kana, &menus, &r.Active, &r.Selected); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(menus), &r.Menus); err != nil {
			return nil, fmt.Errorf("decode menus of %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
