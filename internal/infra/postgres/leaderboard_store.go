package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"exam-grading-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// LeaderboardStore keeps leaderboard documents in the leaderboards table.
// Writes are compare-and-swap on the version column; a lost race surfaces as
// domain.ErrConflict and leaves the row untouched.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

func (s *LeaderboardStore) Update(ctx context.Context, paperID string, settings domain.LeaderboardSettings, mutate func(*domain.Leaderboard) error) (domain.Leaderboard, error) {
	lb, err := s.Get(ctx, paperID)
	exists := err == nil
	if errors.Is(err, domain.ErrLeaderboardNotFound) {
		lb = domain.NewLeaderboard(paperID, settings)
	} else if err != nil {
		return domain.Leaderboard{}, err
	}

	expected := lb.Version
	if err := mutate(&lb); err != nil {
		return domain.Leaderboard{}, err
	}
	lb.Version = expected + 1

	raw, err := json.Marshal(lb)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	var query string
	var args []interface{}
	if exists {
		query = `UPDATE leaderboards SET data=$2::jsonb, version=$3, updated_at=now() WHERE paper_id=$1 AND version=$4`
		args = []interface{}{paperID, string(raw), lb.Version, expected}
	} else {
		query = `INSERT INTO leaderboards (paper_id, data, version) VALUES ($1, $2::jsonb, $3) ON CONFLICT (paper_id) DO NOTHING`
		args = []interface{}{paperID, string(raw), lb.Version}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("write leaderboard: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Leaderboard{}, fmt.Errorf("leaderboard %s at version %d: %w", paperID, expected, domain.ErrConflict)
	}
	return lb, nil
}

func (s *LeaderboardStore) Get(ctx context.Context, paperID string) (domain.Leaderboard, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, `SELECT data, version FROM leaderboards WHERE paper_id=$1`, paperID).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Leaderboard{}, domain.ErrLeaderboardNotFound
	}
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("unmarshal leaderboard: %w", err)
	}
	lb.Version = version
	return lb, nil
}
