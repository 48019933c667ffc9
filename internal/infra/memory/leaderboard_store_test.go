package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-grading-service/internal/domain"
)

func TestLeaderboardStoreLifecycle(t *testing.T) {
	store := NewLeaderboardStore()
	ctx := context.Background()
	settings := domain.LeaderboardSettings{MaxEntries: 10}

	if _, err := store.Get(ctx, "paper-1"); !errors.Is(err, domain.ErrLeaderboardNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	lb, err := store.Update(ctx, "paper-1", settings, func(lb *domain.Leaderboard) error {
		lb.Entries = append(lb.Entries, domain.LeaderboardEntry{UserID: "u1", Score: 10, Rank: 1})
		lb.TotalParticipants = 1
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if lb.Version != 1 || lb.Settings != settings || lb.PaperID != "paper-1" {
		t.Fatalf("unexpected committed board %+v", lb)
	}

	// mutating the returned snapshot must not leak into the store
	lb.Entries[0].Score = 99

	got, err := store.Get(ctx, "paper-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Entries[0].Score != 10 {
		t.Fatalf("expected committed score 10, got %v", got.Entries[0].Score)
	}
}

func TestLeaderboardStoreFailedMutationCommitsNothing(t *testing.T) {
	store := NewLeaderboardStore()
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := store.Update(ctx, "paper-1", domain.LeaderboardSettings{}, func(lb *domain.Leaderboard) error {
		lb.Entries = append(lb.Entries, domain.LeaderboardEntry{UserID: "u1"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	if _, err := store.Get(ctx, "paper-1"); !errors.Is(err, domain.ErrLeaderboardNotFound) {
		t.Fatalf("expected nothing committed, got %v", err)
	}
}

func TestLeaderboardStoreWaitRespectsContext(t *testing.T) {
	store := NewLeaderboardStore()
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = store.Update(context.Background(), "paper-1", domain.LeaderboardSettings{}, func(lb *domain.Leaderboard) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := store.Update(ctx, "paper-1", domain.LeaderboardSettings{}, func(lb *domain.Leaderboard) error {
		t.Errorf("mutation must not run while another writer holds the paper")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(release)
}
