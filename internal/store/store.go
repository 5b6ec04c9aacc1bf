// Package store persists computed risk snapshots so dashboards can chart
// risk history. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/quantfolio/risk-engine/internal/model"
)

// ErrSnapshotNotFound is returned when a snapshot ID has no record.
var ErrSnapshotNotFound = errors.New("store: snapshot not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// SaveRiskSnapshot persists a computed snapshot. The caller assigns the
	// ID and CreatedAt.
	SaveRiskSnapshot(ctx context.Context, snap *model.RiskSnapshot) error

	// GetRiskSnapshot retrieves a snapshot by its ID.
	GetRiskSnapshot(ctx context.Context, id string) (*model.RiskSnapshot, error)

	// ListRiskSnapshots returns up to limit snapshots for a portfolio,
	// newest first. limit <= 0 means no limit.
	ListRiskSnapshots(ctx context.Context, portfolioID string, limit int) ([]model.RiskSnapshot, error)

	// LatestRiskSnapshot returns the most recent snapshot for a portfolio.
	LatestRiskSnapshot(ctx context.Context, portfolioID string) (*model.RiskSnapshot, error)
}
