package app

import (
	"sync"

	"exam-grading-service/internal/domain"
)

// Hub fans committed leaderboard snapshots out to subscribers of a paper.
// Snapshots older than the newest one already published are dropped, so a
// subscriber never sees a leaderboard go back in time.
type Hub struct {
	mu          sync.Mutex
	latest      map[string]domain.Leaderboard
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func NewHub() *Hub {
	return &Hub{
		latest:      make(map[string]domain.Leaderboard),
		subscribers: make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

// Subscribe registers for updates of paperID. The channel first receives the
// newer of current and the last published snapshot. The caller must invoke
// the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(paperID string, current domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[paperID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[paperID] = subs
	}
	subs[ch] = struct{}{}
	initial := current
	if latest, ok := h.latest[paperID]; ok && latest.Version > current.Version {
		initial = latest
	}
	ch <- initial.Clone()
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[paperID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, paperID)
		}
	}
	return ch, cancel
}

// Publish delivers lb to every subscriber of its paper.
func (h *Hub) Publish(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if latest, ok := h.latest[lb.PaperID]; ok && latest.Version >= lb.Version {
		return
	}
	snapshot := lb.Clone()
	h.latest[lb.PaperID] = snapshot

	for ch := range h.subscribers[lb.PaperID] {
		select {
		case ch <- snapshot:
		default:
			// slow subscriber: drop its oldest pending snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

// Subscribers reports how many subscribers a paper has.
func (h *Hub) Subscribers(paperID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[paperID])
}
