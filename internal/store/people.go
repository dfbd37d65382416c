package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// PeopleStore reads the people directory.
type PeopleStore interface {
	Get(ctx context.Context, personID string) (*domain.Person, error)
	GetMany(ctx context.Context, personIDs []string) (map[string]domain.Person, error)
	// HouseholdsWithKidsUnder14 returns household IDs containing at least
	// one person under 14 as of the given date. Used to gate attendance
	// lapse detection to households the check-in proxy can observe.
	HouseholdsWithKidsUnder14(ctx context.Context, asOf time.Time) (map[string]bool, error)
}

// SQLitePeopleStore implements PeopleStore backed by SQLite.
type SQLitePeopleStore struct {
	db *sql.DB
}

// NewSQLitePeopleStore creates a new SQLitePeopleStore.
func NewSQLitePeopleStore(db *sql.DB) *SQLitePeopleStore {
	return &SQLitePeopleStore{db: db}
}

const personColumns = `person_id, first_name, last_name, email, household_id, birthdate, first_seen`

func scanPerson(sc interface{ Scan(...any) error }) (*domain.Person, error) {
	var (
		p           domain.Person
		birth, seen sql.NullString
	)
	if err := sc.Scan(&p.PersonID, &p.FirstName, &p.LastName, &p.Email,
		&p.HouseholdID, &birth, &seen); err != nil {
		return nil, err
	}

	var err error
	if p.Birthdate, err = scanDate(birth); err != nil {
		return nil, err
	}
	if p.FirstSeen, err = scanDate(seen); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns one person.
func (s *SQLitePeopleStore) Get(ctx context.Context, personID string) (*domain.Person, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE person_id = ?`, personID)

	p, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// GetMany returns the people found for the given IDs; missing IDs are
// silently absent from the result.
func (s *SQLitePeopleStore) GetMany(ctx context.Context, personIDs []string) (map[string]domain.Person, error) {
	out := make(map[string]domain.Person)
	if len(personIDs) == 0 {
		return out, nil
	}

	query := `SELECT ` + personColumns + ` FROM people WHERE person_id IN ` +
		signalPlaceholders(len(personIDs))
	args := make([]any, len(personIDs))
	for i, id := range personIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get people: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out[p.PersonID] = *p
	}
	return out, rows.Err()
}

// HouseholdsWithKidsUnder14 returns households with a child under 14.
func (s *SQLitePeopleStore) HouseholdsWithKidsUnder14(ctx context.Context, asOf time.Time) (map[string]bool, error) {
	cutoff := asOf.AddDate(-14, 0, 0)

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT household_id FROM people
		WHERE household_id != '' AND birthdate IS NOT NULL AND birthdate > ?`,
		week.Format(cutoff))
	if err != nil {
		return nil, fmt.Errorf("households with kids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]bool)
	for rows.Next() {
		var hid string
		if err := rows.Scan(&hid); err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		out[hid] = true
	}
	return out, rows.Err()
}
