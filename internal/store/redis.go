package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfolio/risk-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the per-portfolio
// history; single-snapshot reads check Redis first then fall back.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) SaveRiskSnapshot(ctx context.Context, snap *model.RiskSnapshot) error {
	if err := s.primary.SaveRiskSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cacheSnapshot(ctx, snap)
	// Invalidate history and latest; next read will re-populate.
	s.rdb.Del(ctx, historyKey(snap.PortfolioID), latestKey(snap.PortfolioID))
	return nil
}

func (s *CachedStore) GetRiskSnapshot(ctx context.Context, id string) (*model.RiskSnapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, snapshotKey(id)).Bytes()
	if err == nil {
		var snap model.RiskSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss: read from primary.
	snap, err := s.primary.GetRiskSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

func (s *CachedStore) ListRiskSnapshots(ctx context.Context, portfolioID string, limit int) ([]model.RiskSnapshot, error) {
	// Only the unlimited listing is cached; bounded queries pass through.
	if limit > 0 {
		return s.primary.ListRiskSnapshots(ctx, portfolioID, limit)
	}

	data, err := s.rdb.Get(ctx, historyKey(portfolioID)).Bytes()
	if err == nil {
		var snaps []model.RiskSnapshot
		if json.Unmarshal(data, &snaps) == nil {
			return snaps, nil
		}
	}

	snaps, err := s.primary.ListRiskSnapshots(ctx, portfolioID, 0)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(snaps); err == nil {
		s.rdb.Set(ctx, historyKey(portfolioID), data, s.ttl)
	}
	return snaps, nil
}

func (s *CachedStore) LatestRiskSnapshot(ctx context.Context, portfolioID string) (*model.RiskSnapshot, error) {
	data, err := s.rdb.Get(ctx, latestKey(portfolioID)).Bytes()
	if err == nil {
		var snap model.RiskSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	snap, err := s.primary.LatestRiskSnapshot(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, latestKey(portfolioID), data, s.ttl)
	}
	return snap, nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheSnapshot(ctx context.Context, snap *model.RiskSnapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, snapshotKey(snap.ID), data, s.ttl)
	}
}

func snapshotKey(id string) string { return fmt.Sprintf("risk:snapshot:%s", id) }
func historyKey(pid string) string { return fmt.Sprintf("risk:history:%s", pid) }
func latestKey(pid string) string  { return fmt.Sprintf("risk:latest:%s", pid) }
