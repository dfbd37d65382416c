package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// now returns the current UTC time as an RFC3339 timestamp for updated_at
// columns.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// dateArg converts an optional date to a bind parameter: ISO string or NULL.
func dateArg(d *time.Time) any {
	if d == nil {
		return nil
	}
	return week.Format(*d)
}

// intArg converts an optional int to a bind parameter.
func intArg(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

// strArg converts an optional string to a bind parameter.
func strArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// scanDate parses a scanned nullable ISO date column.
func scanDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := week.Parse(v.String)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", v.String, err)
	}
	return &d, nil
}

// scanInt converts a scanned nullable integer column.
func scanInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

// scanStr converts a scanned nullable text column.
func scanStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
