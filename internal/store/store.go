// Package store contains the SQLite data-access layer for the engagement
// pipeline: idempotent upserts for the derived tables and read accessors
// over the ingestion fact tables.
package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store holds all sub-stores used by the application.
type Store struct {
	DB        *sql.DB
	Cadence   CadenceStore
	Snapshots SnapshotStore
	Lapses    LapseStore
	Facts     FactStore
	People    PeopleStore
	Weekly    WeeklyStore
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// New creates a Store with all sub-stores initialized.
func New(db *sql.DB) *Store {
	return &Store{
		DB:        db,
		Cadence:   NewSQLiteCadenceStore(db),
		Snapshots: NewSQLiteSnapshotStore(db),
		Lapses:    NewSQLiteLapseStore(db),
		Facts:     NewSQLiteFactStore(db),
		People:    NewSQLitePeopleStore(db),
		Weekly:    NewSQLiteWeeklyStore(db),
	}
}
