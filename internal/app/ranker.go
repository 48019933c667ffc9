package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/metrics"
	"exam-grading-service/internal/ranking"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// LeaderboardStore keeps one leaderboard document per paper.
//
// Update applies mutate to the committed leaderboard of paperID, creating an
// empty one with settings when none exists. Implementations must serialize
// updates per paper (or detect concurrent writers and return
// domain.ErrConflict) and must commit nothing when mutate returns an error.
// Get returns domain.ErrLeaderboardNotFound for papers without a document.
type LeaderboardStore interface {
	Update(ctx context.Context, paperID string, settings domain.LeaderboardSettings, mutate func(*domain.Leaderboard) error) (domain.Leaderboard, error)
	Get(ctx context.Context, paperID string) (domain.Leaderboard, error)
}

// RetryPolicy bounds how often a conflicting leaderboard update is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when a zero RetryPolicy is supplied.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 8,
	BaseDelay:   5 * time.Millisecond,
	MaxDelay:    200 * time.Millisecond,
}

var errNotRanked = errors.New("entry not ranked")

// Ranker places scored attempts on their paper's leaderboard.
type Ranker struct {
	store    LeaderboardStore
	settings domain.LeaderboardSettings
	retry    RetryPolicy
	hub      *Hub
	metrics  *metrics.Collector
	now      func() time.Time
}

func NewRanker(store LeaderboardStore, settings domain.LeaderboardSettings, retry RetryPolicy, hub *Hub, collector *metrics.Collector) *Ranker {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Ranker{
		store:    store,
		settings: settings,
		retry:    retry,
		hub:      hub,
		metrics:  collector,
		now:      time.Now,
	}
}

// Submit merges entry into the leaderboard of paperID and returns its rank, or
// nil when the attempt was not ranked (no improvement in best-attempt mode, or
// cut by the entry cap). Conflicting writers are retried with backoff; when
// retries run out the error wraps domain.ErrRankingContention and nothing of
// this call has been applied.
func (r *Ranker) Submit(ctx context.Context, paperID string, entry domain.LeaderboardEntry) (*int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Ranker.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("paper.id", paperID),
		attribute.String("user.id", entry.UserID),
	)

	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		var rank int
		board, err := r.store.Update(ctx, paperID, r.settings, func(lb *domain.Leaderboard) error {
			var ok bool
			rank, ok = ranking.Apply(lb, entry)
			if !ok {
				return errNotRanked
			}
			lb.UpdatedAt = r.now()
			return nil
		})

		switch {
		case err == nil:
			r.hub.Publish(board)
			r.metrics.ObserveRanking(metrics.OutcomeRanked)
			span.SetAttributes(attribute.Int("leaderboard.rank", rank))
			return &rank, nil
		case errors.Is(err, errNotRanked):
			r.metrics.ObserveRanking(metrics.OutcomeUnranked)
			return nil, nil
		case errors.Is(err, domain.ErrConflict):
			r.metrics.ObserveConflict()
			if attempt == r.retry.MaxAttempts-1 {
				break
			}
			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				span.SetStatus(codes.Error, "canceled while waiting to retry")
				return nil, ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		default:
			r.metrics.ObserveRanking(metrics.OutcomeError)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("rank on paper %s: %w", paperID, err)
		}
	}

	r.metrics.ObserveRanking(metrics.OutcomeContention)
	err := fmt.Errorf("%w: paper %s after %d attempts", domain.ErrRankingContention, paperID, r.retry.MaxAttempts)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// Leaderboard returns the committed leaderboard of paperID, or an empty one
// carrying the default settings when nothing was ranked yet.
func (r *Ranker) Leaderboard(ctx context.Context, paperID string) (domain.Leaderboard, error) {
	lb, err := r.store.Get(ctx, paperID)
	if errors.Is(err, domain.ErrLeaderboardNotFound) {
		return domain.NewLeaderboard(paperID, r.settings), nil
	}
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return lb, nil
}

// Subscribe streams committed leaderboard snapshots of paperID.
func (r *Ranker) Subscribe(ctx context.Context, paperID string) (<-chan domain.Leaderboard, func(), error) {
	current, err := r.Leaderboard(ctx, paperID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := r.hub.Subscribe(paperID, current)
	return ch, cancel, nil
}

// backoff is exponential in attempt with +/-25% jitter, capped at MaxDelay.
func (r *Ranker) backoff(attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	delay := r.retry.BaseDelay * time.Duration(1<<uint(attempt))
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - delay/4
	if r.retry.MaxDelay > 0 && delay > r.retry.MaxDelay {
		delay = r.retry.MaxDelay
	}
	return delay
}
