package seed

import (
	"context"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
)

type personDef struct {
	id        string
	first     string
	last      string
	email     string
	household string
	// ageYears is approximate; adults must clear 18, check-in kids stay
	// under 14 so the household attendance proxy reaches their parents.
	ageYears int
}

var demoPeople = []personDef{
	// The Westons: both adults engaged, kid checks in weekly.
	{id: "per-weston-dan", first: "Dan", last: "Weston", email: "dan.weston@example.com", household: "hh-weston", ageYears: 41},
	{id: "per-weston-amy", first: "Amy", last: "Weston", email: "amy.weston@example.com", household: "hh-weston", ageYears: 39},
	{id: "per-weston-eli", first: "Eli", last: "Weston", household: "hh-weston", ageYears: 8},

	// The Ortegas: biweekly attenders, monthly givers.
	{id: "per-ortega-luis", first: "Luis", last: "Ortega", email: "luis.ortega@example.com", household: "hh-ortega", ageYears: 35},
	{id: "per-ortega-mia", first: "Mia", last: "Ortega", household: "hh-ortega", ageYears: 6},

	// Weekly giver, serves on a team. No kids.
	{id: "per-field-gina", first: "Gina", last: "Field", email: "gina.field@example.com", household: "hh-field", ageYears: 52},

	// Group member, gives every six weeks or so.
	{id: "per-holt-ray", first: "Ray", last: "Holt", email: "ray.holt@example.com", household: "hh-holt", ageYears: 47},

	// Used to give weekly, stopped well past the lapse threshold.
	{id: "per-nash-tom", first: "Tom", last: "Nash", email: "tom.nash@example.com", household: "hh-nash", ageYears: 33},
	{id: "per-nash-ivy", first: "Ivy", last: "Nash", household: "hh-nash", ageYears: 10},

	// Fully dormant: last activity past the no-longer-attends threshold.
	{id: "per-gone-sal", first: "Sal", last: "Gone", email: "sal.gone@example.com", household: "hh-gone", ageYears: 29},
}

// People inserts the demo roster. Birthdates are derived from anchor so ages
// hold no matter when the seed runs.
func People(ctx context.Context, st *store.Store, anchor time.Time) error {
	for _, pd := range demoPeople {
		birth := anchor.AddDate(-pd.ageYears, -3, 0)
		first := anchor.AddDate(0, 0, -364)
		if err := st.Facts.InsertPerson(ctx, domain.Person{
			PersonID:    pd.id,
			FirstName:   pd.first,
			LastName:    pd.last,
			Email:       pd.email,
			HouseholdID: pd.household,
			Birthdate:   &birth,
			FirstSeen:   &first,
		}); err != nil {
			return err
		}
	}
	return nil
}
