package domain

import "time"

// Person is the people-directory row synced in by the ingestion layer. The
// pipeline reads it for household joins and report enrichment; it never
// writes it.
type Person struct {
	PersonID    string
	FirstName   string
	LastName    string
	Email       string
	HouseholdID string
	Birthdate   *time.Time
	FirstSeen   *time.Time
}

// Name joins first and last name, tolerating either being empty.
func (p *Person) Name() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// GroupMembership is an ingested group/serving-team membership interval.
type GroupMembership struct {
	PersonID      string
	GroupID       string
	Status        string
	FirstJoinedAt *time.Time
	ArchivedAt    *time.Time
}
