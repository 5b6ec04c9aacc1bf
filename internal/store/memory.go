package store

import (
	"context"
	"sort"
	"sync"

	"github.com/quantfolio/risk-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots []model.RiskSnapshot
	byID      map[string]int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]int),
	}
}

func (s *MemoryStore) SaveRiskSnapshot(_ context.Context, snap *model.RiskSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	s.snapshots = append(s.snapshots, *snap)
	s.byID[snap.ID] = len(s.snapshots) - 1
	return nil
}

func (s *MemoryStore) GetRiskSnapshot(_ context.Context, id string) (*model.RiskSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	snap := s.snapshots[idx]
	return &snap, nil
}

func (s *MemoryStore) ListRiskSnapshots(_ context.Context, portfolioID string, limit int) ([]model.RiskSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.RiskSnapshot
	for _, snap := range s.snapshots {
		if snap.PortfolioID == portfolioID {
			result = append(result, snap)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) LatestRiskSnapshot(ctx context.Context, portfolioID string) (*model.RiskSnapshot, error) {
	snaps, err := s.ListRiskSnapshots(ctx, portfolioID, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrSnapshotNotFound
	}
	return &snaps[0], nil
}
