package app_test

import (
	"testing"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/domain"
)

func TestHubDropsStaleSnapshots(t *testing.T) {
	hub := app.NewHub()
	ch, cancel := hub.Subscribe("paper-1", domain.Leaderboard{PaperID: "paper-1", Version: 1})
	defer cancel()

	if initial := <-ch; initial.Version != 1 {
		t.Fatalf("expected initial version 1, got %d", initial.Version)
	}

	hub.Publish(domain.Leaderboard{PaperID: "paper-1", Version: 3})
	hub.Publish(domain.Leaderboard{PaperID: "paper-1", Version: 2})
	hub.Publish(domain.Leaderboard{PaperID: "paper-2", Version: 9})

	if got := <-ch; got.Version != 3 {
		t.Fatalf("expected version 3, got %d", got.Version)
	}
	select {
	case got := <-ch:
		t.Fatalf("expected no further updates, got version %d", got.Version)
	default:
	}
}

func TestHubInitialSnapshotPrefersNewestPublished(t *testing.T) {
	hub := app.NewHub()
	hub.Publish(domain.Leaderboard{PaperID: "paper-1", Version: 5})

	ch, cancel := hub.Subscribe("paper-1", domain.Leaderboard{PaperID: "paper-1", Version: 4})
	defer cancel()

	if initial := <-ch; initial.Version != 5 {
		t.Fatalf("expected newest snapshot, got version %d", initial.Version)
	}
}

func TestHubSlowSubscriberKeepsLatest(t *testing.T) {
	hub := app.NewHub()
	ch, cancel := hub.Subscribe("paper-1", domain.Leaderboard{PaperID: "paper-1"})

	for v := int64(1); v <= 20; v++ {
		hub.Publish(domain.Leaderboard{PaperID: "paper-1", Version: v})
	}

	var last int64
	for len(ch) > 0 {
		last = (<-ch).Version
	}
	if last != 20 {
		t.Fatalf("expected latest version 20 retained, got %d", last)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if hub.Subscribers("paper-1") != 0 {
		t.Fatalf("expected no subscribers left")
	}
}
