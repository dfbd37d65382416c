package seed

import (
	"context"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
)

// seedWeeks is how many trailing weeks of history the demo data covers.
const seedWeeks = 26

// Activity inserts demo check-ins, giving and adult attendance totals for
// the seedWeeks Sundays ending at anchor.
func Activity(ctx context.Context, st *store.Store, anchor time.Time) error {
	for i := 0; i < seedWeeks; i++ {
		sunday := anchor.AddDate(0, 0, -7*i)

		// Kid check-ins drive the adult attendance proxy.
		if err := st.Facts.InsertCheckin(ctx, "per-weston-eli", sunday, "UpStreet"); err != nil {
			return err
		}
		if i%2 == 0 {
			if err := st.Facts.InsertCheckin(ctx, "per-ortega-mia", sunday, "Waumba Land"); err != nil {
				return err
			}
		}
		// The Nash kid stopped showing up ten weeks ago.
		if i >= 10 {
			if err := st.Facts.InsertCheckin(ctx, "per-nash-ivy", sunday, "Transit"); err != nil {
				return err
			}
		}

		// Giving patterns: weekly, every four weeks, every six weeks, and a
		// weekly giver who stopped.
		if err := st.Facts.InsertGiving(ctx, "per-field-gina", sunday, 1); err != nil {
			return err
		}
		if i%4 == 0 {
			if err := st.Facts.InsertGiving(ctx, "per-weston-dan", sunday, 1); err != nil {
				return err
			}
			if err := st.Facts.InsertGiving(ctx, "per-ortega-luis", sunday, 1); err != nil {
				return err
			}
		}
		if i%6 == 0 {
			if err := st.Facts.InsertGiving(ctx, "per-holt-ray", sunday, 1); err != nil {
				return err
			}
		}
		if i >= 10 {
			if err := st.Facts.InsertGiving(ctx, "per-nash-tom", sunday, 1); err != nil {
				return err
			}
		}

		// Sal gave monthly for a stretch, then vanished. The latest gift sits
		// just past the 90-day dormancy threshold.
		if i == 13 || i == 17 || i == 21 {
			if err := st.Facts.InsertGiving(ctx, "per-gone-sal", sunday, 1); err != nil {
				return err
			}
		}

		// Room counts swing a bit week to week.
		total := 1050 + (i%4)*25
		if err := st.Facts.InsertAdultAttendance(ctx, sunday, total); err != nil {
			return err
		}
	}
	return nil
}
