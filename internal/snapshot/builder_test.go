package snapshot_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/snapshot"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/testhelpers"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

func newBuilder(t *testing.T) (*snapshot.Builder, *store.Store) {
	t.Helper()
	st := store.New(testhelpers.NewMigratedDB(t))
	return snapshot.NewBuilder(st, config.DefaultCadence(), slog.Default()), st
}

func date(s string) time.Time {
	d, err := week.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *time.Time {
	d := date(s)
	return &d
}

// weekEnd is a Sunday used by all scenarios below.
var weekEnd = date("2025-06-08")

func seedHousehold(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	people := []domain.Person{
		{PersonID: "adult1", HouseholdID: "h1", Birthdate: datePtr("1985-03-10")},
		{PersonID: "kid1", HouseholdID: "h1", Birthdate: datePtr("2016-01-15")},
	}
	for _, p := range people {
		if err := st.Facts.InsertPerson(ctx, p); err != nil {
			t.Fatalf("insert person: %v", err)
		}
	}
}

func TestBuildAttendanceAndTier(t *testing.T) {
	b, st := newBuilder(t)
	ctx := context.Background()
	seedHousehold(t, st)

	// Kid checked in this week: adult1 attended via household proxy.
	if err := st.Facts.InsertCheckin(ctx, "kid1", date("2025-06-08"), "Waumba Land"); err != nil {
		t.Fatalf("insert checkin: %v", err)
	}
	// adult1 also gave this week and serves.
	if err := st.Facts.InsertGiving(ctx, "adult1", weekEnd, 1); err != nil {
		t.Fatalf("insert giving: %v", err)
	}
	if err := st.Facts.InsertGroup(ctx, "t1", "Teams", true); err != nil {
		t.Fatalf("insert team: %v", err)
	}
	err := st.Facts.InsertMembership(ctx, domain.GroupMembership{
		PersonID: "adult1", GroupID: "t1", Status: "active", FirstJoinedAt: datePtr("2025-01-05"),
	})
	if err != nil {
		t.Fatalf("insert membership: %v", err)
	}

	res, err := b.Build(ctx, weekEnd, true)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.People == 0 || res.RowsUpserted != res.People {
		t.Fatalf("result = %+v, want rows == people > 0", res)
	}

	row, err := st.Snapshots.Get(ctx, "adult1", weekEnd)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !row.Attended || row.CheckinsCount != 1 {
		t.Errorf("attended = %v/%d, want true/1", row.Attended, row.CheckinsCount)
	}
	if !row.GaveOnTrack || row.GiftsCount != 1 {
		t.Errorf("gave = %v/%d, want true/1", row.GaveOnTrack, row.GiftsCount)
	}
	if !row.ServedOnTrack {
		t.Error("served should be true")
	}
	if row.InGroupOnTrack {
		t.Error("group should be false, membership is a serving team")
	}
	// Attendance is excluded: tier counts give + serve only here.
	if row.EngagedTier != 2 {
		t.Errorf("tier = %d, want 2", row.EngagedTier)
	}
}

func TestBuildGiveOnTrackDefaults(t *testing.T) {
	b, st := newBuilder(t)
	ctx := context.Background()

	// Someone with only a group membership and no giving history at all:
	// absence of evidence defaults giving to on-track.
	if err := st.Facts.InsertGroup(ctx, "g1", "Groups", false); err != nil {
		t.Fatalf("insert group: %v", err)
	}
	err := st.Facts.InsertMembership(ctx, domain.GroupMembership{
		PersonID: "p1", GroupID: "g1", Status: "active", FirstJoinedAt: datePtr("2025-01-05"),
	})
	if err != nil {
		t.Fatalf("insert membership: %v", err)
	}

	if _, err := b.Build(ctx, weekEnd, false); err != nil {
		t.Fatalf("build: %v", err)
	}

	row, err := st.Snapshots.Get(ctx, "p1", weekEnd)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !row.GaveOnTrack {
		t.Error("no giving history should default to on-track")
	}
	if !row.InGroupOnTrack || row.EngagedTier != 2 {
		t.Errorf("group/tier = %v/%d, want true/2", row.InGroupOnTrack, row.EngagedTier)
	}
}

func TestBuildGiveOffTrackWhenOverdue(t *testing.T) {
	b, st := newBuilder(t)
	ctx := context.Background()

	// Monthly giver whose last gift was three months before the week.
	for _, w := range []string{"2025-01-05", "2025-02-02", "2025-03-02"} {
		if err := st.Facts.InsertGiving(ctx, "p1", date(w), 1); err != nil {
			t.Fatalf("insert giving: %v", err)
		}
	}

	if _, err := b.Build(ctx, weekEnd, true); err != nil {
		t.Fatalf("build: %v", err)
	}

	row, err := st.Snapshots.Get(ctx, "p1", weekEnd)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if row.GaveOnTrack {
		t.Error("overdue monthly giver should be off-track")
	}
	if row.EngagedTier != 0 {
		t.Errorf("tier = %d, want 0", row.EngagedTier)
	}
}

func TestBuildBackdatedCadence(t *testing.T) {
	b, st := newBuilder(t)
	ctx := context.Background()

	// Gifts continue after the report week; a back-dated build must only
	// see data through its own weekEnd.
	for _, w := range []string{"2025-06-01", "2025-06-08", "2025-06-15", "2025-06-22"} {
		if err := st.Facts.InsertGiving(ctx, "p1", date(w), 1); err != nil {
			t.Fatalf("insert giving: %v", err)
		}
	}

	if _, err := b.Build(ctx, weekEnd, true); err != nil {
		t.Fatalf("build: %v", err)
	}

	cad, err := st.Cadence.Get(ctx, "p1", domain.SignalGive)
	if err != nil {
		t.Fatalf("get cadence: %v", err)
	}
	if cad.LastSeenDate == nil || week.Format(*cad.LastSeenDate) != "2025-06-08" {
		t.Errorf("last_seen = %v, want 2025-06-08 (not the later gifts)", cad.LastSeenDate)
	}
	if cad.SamplesN != 2 {
		t.Errorf("samples = %d, want 2", cad.SamplesN)
	}
}

func TestBuildIdempotent(t *testing.T) {
	b, st := newBuilder(t)
	ctx := context.Background()

	if err := st.Facts.InsertGiving(ctx, "p1", weekEnd, 1); err != nil {
		t.Fatalf("insert giving: %v", err)
	}

	first, err := b.Build(ctx, weekEnd, true)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := b.Build(ctx, weekEnd, true)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if first.People != second.People || first.RowsUpserted != second.RowsUpserted {
		t.Errorf("rebuild drifted: %+v vs %+v", first, second)
	}

	var count int
	if err := st.DB.QueryRow(`SELECT COUNT(*) FROM snap_person_week`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != first.RowsUpserted {
		t.Errorf("stored rows = %d, want %d", count, first.RowsUpserted)
	}
}
