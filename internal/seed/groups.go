package seed

import (
	"context"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
)

// Groups inserts demo groups, serving teams and memberships.
func Groups(ctx context.Context, st *store.Store, anchor time.Time) error {
	if err := st.Facts.InsertGroup(ctx, "grp-oaks", "Groups", false); err != nil {
		return err
	}
	if err := st.Facts.InsertGroup(ctx, "team-kids", "Teams", true); err != nil {
		return err
	}

	joined := anchor.AddDate(0, -6, 0)
	archived := anchor.AddDate(0, 0, -120)

	memberships := []domain.GroupMembership{
		{PersonID: "per-weston-dan", GroupID: "grp-oaks", Status: "active", FirstJoinedAt: &joined},
		{PersonID: "per-holt-ray", GroupID: "grp-oaks", Status: "active", FirstJoinedAt: &joined},
		{PersonID: "per-ortega-luis", GroupID: "grp-oaks", Status: "active", FirstJoinedAt: &joined},
		{PersonID: "per-gone-sal", GroupID: "grp-oaks", Status: "archived", FirstJoinedAt: &joined, ArchivedAt: &archived},
		{PersonID: "per-field-gina", GroupID: "team-kids", Status: "active", FirstJoinedAt: &joined},
		{PersonID: "per-weston-amy", GroupID: "team-kids", Status: "active", FirstJoinedAt: &joined},
	}
	for _, m := range memberships {
		if err := st.Facts.InsertMembership(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
