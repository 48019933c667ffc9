package memory

import (
	"context"
	"sync"

	"exam-grading-service/internal/domain"
)

// LeaderboardStore is an in-memory implementation of app.LeaderboardStore.
// Each paper has its own lock, held for the whole read-modify-commit cycle,
// so updates of one paper are serialized while different papers proceed in parallel.
type LeaderboardStore struct {
	mu     sync.Mutex
	papers map[string]*paperBoard
}

type paperBoard struct {
	// lock is a one-slot semaphore so waiters can give up when their context ends.
	lock  chan struct{}
	board *domain.Leaderboard
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{
		papers: make(map[string]*paperBoard),
	}
}

func (s *LeaderboardStore) Update(ctx context.Context, paperID string, settings domain.LeaderboardSettings, mutate func(*domain.Leaderboard) error) (domain.Leaderboard, error) {
	pb := s.getOrCreate(paperID)

	select {
	case pb.lock <- struct{}{}:
	case <-ctx.Done():
		return domain.Leaderboard{}, ctx.Err()
	}
	defer func() { <-pb.lock }()

	var working domain.Leaderboard
	if pb.board != nil {
		working = pb.board.Clone()
	} else {
		working = domain.NewLeaderboard(paperID, settings)
	}

	if err := mutate(&working); err != nil {
		return domain.Leaderboard{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Leaderboard{}, err
	}

	working.Version++
	pb.board = &working
	return working.Clone(), nil
}

func (s *LeaderboardStore) Get(ctx context.Context, paperID string) (domain.Leaderboard, error) {
	s.mu.Lock()
	pb, ok := s.papers[paperID]
	s.mu.Unlock()
	if !ok {
		return domain.Leaderboard{}, domain.ErrLeaderboardNotFound
	}

	select {
	case pb.lock <- struct{}{}:
	case <-ctx.Done():
		return domain.Leaderboard{}, ctx.Err()
	}
	defer func() { <-pb.lock }()

	if pb.board == nil {
		return domain.Leaderboard{}, domain.ErrLeaderboardNotFound
	}
	return pb.board.Clone(), nil
}

// getOrCreate returns the slot for paperID; concurrent callers share one slot.
func (s *LeaderboardStore) getOrCreate(paperID string) *paperBoard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pb, ok := s.papers[paperID]; ok {
		return pb
	}
	pb := &paperBoard{lock: make(chan struct{}, 1)}
	s.papers[paperID] = pb
	return pb
}
