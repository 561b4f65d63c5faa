package store

import (
	"context"
	"database/sql"
	"fmt"

	"carevisit/internal/model"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Load reads every collection in one read transaction on the reader pool.
func (db *DB) Load(ctx context.Context) (*model.Snapshot, error) {
	tx, err := db.reader.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	s := &model.Snapshot{}
	if s.Facilities, err = db.listFacilities(ctx, tx); err != nil {
		return nil, fmt.Errorf("load facilities: %w", err)
	}
	if s.Residents, err = db.listResidents(ctx, tx); err != nil {
		return nil, fmt.Errorf("load residents: %w", err)
	}
	if s.Keeps, err = db.listKeeps(ctx, tx); err != nil {
		return nil, fmt.Errorf("load keeps: %w", err)
	}
	if s.Released, err = db.listReleased(ctx, tx); err != nil {
		return nil, fmt.Errorf("load released keeps: %w", err)
	}
	if s.Bookings, err = db.listBookings(ctx, tx); err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	if s.History, err = db.listHistory(ctx, tx); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if s.NgDates, err = db.listNgDates(ctx, tx); err != nil {
		return nil, fmt.Errorf("load ng dates: %w", err)
	}
	if s.Finalized, err = db.listFinalized(ctx, tx); err != nil {
		return nil, fmt.Errorf("load finalized months: %w", err)
	}
	return s, nil
}
