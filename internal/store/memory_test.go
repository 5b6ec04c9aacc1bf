package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quantfolio/risk-engine/internal/model"
)

func testSnapshot(portfolioID string, at time.Time) *model.RiskSnapshot {
	return &model.RiskSnapshot{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		Metrics: model.RiskMetrics{
			AnnualizedVolatility: 42.5,
			VaR95:                3.1,
			Source:               model.SourceHistorical,
		},
		CreatedAt: at,
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snap := testSnapshot("portfolio-1", time.Now())
	if err := s.SaveRiskSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetRiskSnapshot(ctx, snap.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PortfolioID != "portfolio-1" {
		t.Errorf("portfolio ID = %q", got.PortfolioID)
	}
	if got.Metrics.VaR95 != 3.1 {
		t.Errorf("metrics did not round-trip: VaR95 = %v", got.Metrics.VaR95)
	}

	// Mutating the returned copy must not affect the store.
	got.Metrics.VaR95 = 99
	again, _ := s.GetRiskSnapshot(ctx, snap.ID)
	if again.Metrics.VaR95 != 3.1 {
		t.Error("store returned a shared reference, not a copy")
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetRiskSnapshot(context.Background(), uuid.NewString())
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("want ErrSnapshotNotFound, got %v", err)
	}
}

func TestMemoryStore_ListNewestFirstWithLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		snap := testSnapshot("portfolio-1", base.Add(time.Duration(i)*time.Hour))
		snap.Metrics.VaR95 = float64(i)
		if err := s.SaveRiskSnapshot(ctx, snap); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	// A second portfolio must not leak into the listing.
	if err := s.SaveRiskSnapshot(ctx, testSnapshot("portfolio-2", base)); err != nil {
		t.Fatalf("save other: %v", err)
	}

	snaps, err := s.ListRiskSnapshots(ctx, "portfolio-1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("limit ignored: got %d snapshots", len(snaps))
	}
	for i, want := range []float64{4, 3, 2} {
		if snaps[i].Metrics.VaR95 != want {
			t.Errorf("snaps[%d].VaR95 = %v, want %v (newest first)", i, snaps[i].Metrics.VaR95, want)
		}
	}

	all, err := s.ListRiskSnapshots(ctx, "portfolio-1", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("limit 0 should return everything, got %d", len(all))
	}
}

func TestMemoryStore_Latest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.LatestRiskSnapshot(ctx, "portfolio-1"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("empty portfolio: want ErrSnapshotNotFound, got %v", err)
	}

	var lastID string
	for i := 0; i < 3; i++ {
		snap := testSnapshot("portfolio-1", base.Add(time.Duration(i)*time.Minute))
		lastID = snap.ID
		if err := s.SaveRiskSnapshot(ctx, snap); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	latest, err := s.LatestRiskSnapshot(ctx, "portfolio-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != lastID {
		t.Errorf("latest ID = %s, want %s", latest.ID, lastID)
	}
}

func TestMemoryStore_ConcurrentSaves(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				pid := fmt.Sprintf("portfolio-%d", g)
				if err := s.SaveRiskSnapshot(ctx, testSnapshot(pid, time.Now())); err != nil {
					t.Errorf("save: %v", err)
					return
				}
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	for g := 0; g < 4; g++ {
		snaps, err := s.ListRiskSnapshots(ctx, fmt.Sprintf("portfolio-%d", g), 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(snaps) != 50 {
			t.Errorf("portfolio-%d has %d snapshots, want 50", g, len(snaps))
		}
	}
}
