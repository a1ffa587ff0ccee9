package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"PriceSentinel/internal/model"
)

var storeNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sentinel.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sq.now = func() time.Time { return storeNow }
	t.Cleanup(func() { sq.Close() })

	mem := NewMemoryStore()
	mem.now = func() time.Time { return storeNow }

	return map[string]Store{"sqlite": sq, "memory": mem}
}

func seed(t *testing.T, s Store, p model.Position) model.Position {
	t.Helper()
	if err := s.Create(context.Background(), &p); err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

func TestStore_CreateAndFind(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := seed(t, s, model.Position{
				Symbol:       "RELIANCE",
				CompanyName:  "Reliance Industries",
				EntryZone:    "2400-2450",
				AverageEntry: model.Float(2420),
				Target:       "2700",
				StopLoss:     "2300",
			})
			if p.ID == "" {
				t.Fatal("expected generated id")
			}
			if p.Status != model.StatusEntry {
				t.Errorf("expected new position in entry, got %s", p.Status)
			}

			got, err := s.Find(ctx, p.ID)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if got.Symbol != "RELIANCE" || got.EntryZone != "2400-2450" || *got.AverageEntry != 2420 {
				t.Errorf("unexpected position %+v", got)
			}
			if got.CurrentPrice != nil || got.RealisedPct != nil || got.ExitedAt != nil {
				t.Errorf("expected unset price fields, got %+v", got)
			}

			if _, err := s.Find(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_UpdatePrice(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := seed(t, s, model.Position{Symbol: "ABC", EntryZone: "100-110", Target: "130", StopLoss: "90"})

			exit := model.PriceUpdate{
				CurrentPrice:    85,
				LastPriceUpdate: storeNow,
				Status:          model.StatusExit,
				RealisedPct:     model.Float(-19.05),
				ExitedAt:        model.Time(storeNow),
			}
			if err := s.UpdatePrice(ctx, p.ID, exit); err != nil {
				t.Fatalf("update: %v", err)
			}
			got, _ := s.Find(ctx, p.ID)
			if got.Status != model.StatusExit || *got.CurrentPrice != 85 || *got.RealisedPct != -19.05 {
				t.Errorf("unexpected exit state %+v", got)
			}
			if !got.ExitedAt.Equal(storeNow) || !got.LastPriceUpdate.Equal(storeNow) {
				t.Errorf("unexpected timestamps %v %v", got.ExitedAt, got.LastPriceUpdate)
			}

			reopen := model.PriceUpdate{CurrentPrice: 105, LastPriceUpdate: storeNow.Add(time.Hour), Status: model.StatusEntry}
			if err := s.UpdatePrice(ctx, p.ID, reopen); err != nil {
				t.Fatalf("update: %v", err)
			}
			got, _ = s.Find(ctx, p.ID)
			if got.Status != model.StatusEntry || got.RealisedPct != nil || got.ExitedAt != nil {
				t.Errorf("expected realised fields cleared, got %+v", got)
			}

			if err := s.UpdatePrice(ctx, "missing", reopen); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_PromotionQueries(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := seed(t, s, model.Position{Symbol: "OLD", EntryZone: "1", StopLoss: "1"})
			recent := seed(t, s, model.Position{Symbol: "NEW", EntryZone: "1", StopLoss: "1"})
			seed(t, s, model.Position{Symbol: "LIVE", EntryZone: "1", StopLoss: "1"})

			for id, at := range map[string]time.Time{
				old.ID:    storeNow.Add(-49 * time.Hour),
				recent.ID: storeNow.Add(-10 * time.Hour),
			} {
				u := model.PriceUpdate{CurrentPrice: 1, LastPriceUpdate: at, Status: model.StatusExit, RealisedPct: model.Float(5), ExitedAt: model.Time(at)}
				if err := s.UpdatePrice(ctx, id, u); err != nil {
					t.Fatal(err)
				}
			}

			due, err := s.FindExitedBefore(ctx, model.StatusExit, storeNow.Add(-48*time.Hour))
			if err != nil {
				t.Fatal(err)
			}
			if len(due) != 1 || due[0].ID != old.ID {
				t.Fatalf("expected only the 49h exit, got %+v", due)
			}

			moved, err := s.MarkExited(ctx, old.ID, storeNow)
			if err != nil || !moved {
				t.Fatalf("expected move, got %v (%v)", moved, err)
			}
			moved, err = s.MarkExited(ctx, old.ID, storeNow)
			if err != nil || moved {
				t.Errorf("expected second move to be a no-op, got %v (%v)", moved, err)
			}

			got, _ := s.Find(ctx, old.ID)
			if got.Status != model.StatusExited || *got.RealisedPct != 5 {
				t.Errorf("expected archived position with frozen return, got %+v", got)
			}
		})
	}
}

func TestStore_StatusChanges(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			changes := []model.StatusChange{
				{PositionID: "p1", Symbol: "ABC", From: model.StatusEntry, To: model.StatusHold, Price: 120, Reason: "outside_entry_zone", At: storeNow},
				{PositionID: "p1", Symbol: "ABC", From: model.StatusHold, To: model.StatusExit, Price: 85, RealisedPct: model.Float(-19.05), Reason: "stop_loss", At: storeNow.Add(time.Hour)},
				{PositionID: "p2", Symbol: "XYZ", From: model.StatusEntry, To: model.StatusHold, Price: 10, At: storeNow},
			}
			for _, c := range changes {
				if err := s.RecordStatusChange(ctx, c); err != nil {
					t.Fatal(err)
				}
			}
			got, err := s.StatusChanges(ctx, "p1")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 changes, got %d", len(got))
			}
			if got[1].To != model.StatusExit || got[1].RealisedPct == nil || *got[1].RealisedPct != -19.05 {
				t.Errorf("unexpected change %+v", got[1])
			}
			if got[0].RealisedPct != nil {
				t.Errorf("expected nil realised on hold change, got %v", *got[0].RealisedPct)
			}
		})
	}
}

func TestStore_Exists(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day := time.Date(2026, 2, 10, 9, 0, 0, 0, ist)
			seed(t, s, model.Position{Symbol: "TCS", CompanyName: "Tata Consultancy", RecommendedAt: day})

			tests := []struct {
				symbol, company string
				at              time.Time
				want            bool
			}{
				{"TCS", "Tata Consultancy", day.Add(8 * time.Hour), true},
				{"tcs", "Tata Consultancy", day, true},
				{"TCS", "Tata Consultancy", day.AddDate(0, 0, 1), false},
				{"TCS", "Other", day, false},
				{"INFY", "Tata Consultancy", day, false},
			}
			for _, tt := range tests {
				got, err := s.Exists(ctx, tt.symbol, tt.company, tt.at)
				if err != nil {
					t.Fatal(err)
				}
				if got != tt.want {
					t.Errorf("Exists(%s, %s, %v) = %v, want %v", tt.symbol, tt.company, tt.at, got, tt.want)
				}
			}
		})
	}
}

func TestStore_FindAllReturnsEveryStatus(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, st := range []model.Status{model.StatusEntry, model.StatusHold, model.StatusExit, model.StatusExited} {
				seed(t, s, model.Position{Symbol: string(st), Status: st})
			}
			all, err := s.FindAll(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 4 {
				t.Errorf("expected 4 positions, got %d", len(all))
			}
		})
	}
}
