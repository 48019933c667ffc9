package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"exam-grading-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// LeaderboardStore keeps one JSON leaderboard document per paper under
// leaderboard:{paperID}. Updates are optimistic: the key is WATCHed while the
// mutation runs and the write is dropped with domain.ErrConflict when another
// writer committed first, so several service instances can share a paper.
type LeaderboardStore struct {
	client *redis.Client
}

func NewLeaderboardStore(client *redis.Client) *LeaderboardStore {
	return &LeaderboardStore{client: client}
}

func (s *LeaderboardStore) Update(ctx context.Context, paperID string, settings domain.LeaderboardSettings, mutate func(*domain.Leaderboard) error) (domain.Leaderboard, error) {
	key := leaderboardKey(paperID)
	var committed domain.Leaderboard

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		lb, err := load(ctx, tx, key)
		if errors.Is(err, domain.ErrLeaderboardNotFound) {
			lb = domain.NewLeaderboard(paperID, settings)
		} else if err != nil {
			return err
		}

		if err := mutate(&lb); err != nil {
			return err
		}
		lb.Version++

		raw, err := json.Marshal(lb)
		if err != nil {
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		}); err != nil {
			return err
		}
		committed = lb
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return domain.Leaderboard{}, fmt.Errorf("leaderboard %s: %w", paperID, domain.ErrConflict)
	}
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return committed, nil
}

func (s *LeaderboardStore) Get(ctx context.Context, paperID string) (domain.Leaderboard, error) {
	return load(ctx, s.client, leaderboardKey(paperID))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, key string) (domain.Leaderboard, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Leaderboard{}, domain.ErrLeaderboardNotFound
	}
	if err != nil {
		return domain.Leaderboard{}, err
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("decode leaderboard %s: %w", key, err)
	}
	return lb, nil
}

func leaderboardKey(paperID string) string {
	return "leaderboard:" + paperID
}
