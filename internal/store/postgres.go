package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfolio/risk-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// The metrics payload is stored as JSONB; filtering and ordering happen on
// the indexed (portfolio_id, created_at) columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveRiskSnapshot(ctx context.Context, snap *model.RiskSnapshot) error {
	metrics, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO risk_snapshots (id, portfolio_id, metrics, created_at)
		 VALUES ($1, $2, $3::JSONB, $4)`,
		snap.ID, snap.PortfolioID, metrics, snap.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetRiskSnapshot(ctx context.Context, id string) (*model.RiskSnapshot, error) {
	var snap model.RiskSnapshot
	var metrics []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, portfolio_id, metrics, created_at
		 FROM risk_snapshots WHERE id = $1`, id).
		Scan(&snap.ID, &snap.PortfolioID, &metrics, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}

	if err := json.Unmarshal(metrics, &snap.Metrics); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return &snap, nil
}

func (s *PostgresStore) ListRiskSnapshots(ctx context.Context, portfolioID string, limit int) ([]model.RiskSnapshot, error) {
	query := `SELECT id, portfolio_id, metrics, created_at
	          FROM risk_snapshots
	          WHERE portfolio_id = $1
	          ORDER BY created_at DESC`
	args := []any{portfolioID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.RiskSnapshot
	for rows.Next() {
		var snap model.RiskSnapshot
		var metrics []byte
		if err := rows.Scan(&snap.ID, &snap.PortfolioID, &metrics, &snap.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metrics, &snap.Metrics); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) LatestRiskSnapshot(ctx context.Context, portfolioID string) (*model.RiskSnapshot, error) {
	snaps, err := s.ListRiskSnapshots(ctx, portfolioID, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrSnapshotNotFound
	}
	return &snaps[0], nil
}
