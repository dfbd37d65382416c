// Package seed inserts demo congregation data so a fresh database has
// something for the cadence pipeline to chew on.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// Seed inserts all demo data into the database. It is idempotent: when any
// people already exist it does nothing. History is generated relative to the
// most recent Sunday so a freshly seeded server has current-looking weeks.
func Seed(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM people`).Scan(&count); err != nil {
		return fmt.Errorf("count people: %w", err)
	}
	if count > 0 {
		return nil
	}

	st := store.New(db)
	anchor := week.LastSunday(time.Now().UTC())

	if err := People(ctx, st, anchor); err != nil {
		return fmt.Errorf("seed people: %w", err)
	}
	if err := Groups(ctx, st, anchor); err != nil {
		return fmt.Errorf("seed groups: %w", err)
	}
	if err := Activity(ctx, st, anchor); err != nil {
		return fmt.Errorf("seed activity: %w", err)
	}
	return nil
}
