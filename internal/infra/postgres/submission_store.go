package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"exam-grading-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SubmissionStore persists graded submissions. Attempt numbers are assigned
// under a transaction-scoped advisory lock on paper+user.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

func (s *SubmissionStore) Save(ctx context.Context, record domain.SubmissionRecord) (domain.SubmissionRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.SubmissionRecord{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, record.PaperID, record.UserID); err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("lock attempts: %w", err)
	}

	var previous int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(attempt_number), 0) FROM submissions WHERE paper_id=$1 AND user_id=$2`,
		record.PaperID, record.UserID,
	).Scan(&previous)
	if err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("count attempts: %w", err)
	}

	record.ID = uuid.NewString()
	record.AttemptNumber = previous + 1
	raw, err := json.Marshal(record)
	if err != nil {
		return domain.SubmissionRecord{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO submissions (id, paper_id, user_id, attempt_number, data, submitted_at) VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		record.ID, record.PaperID, record.UserID, record.AttemptNumber, string(raw), record.SubmittedAt,
	)
	if err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("insert submission: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SubmissionRecord{}, err
	}
	return record, nil
}

func (s *SubmissionStore) Get(ctx context.Context, id string) (domain.SubmissionRecord, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM submissions WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SubmissionRecord{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("load submission: %w", err)
	}
	var record domain.SubmissionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("unmarshal submission: %w", err)
	}
	return record, nil
}
