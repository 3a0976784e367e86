package app

import (
	"sync"

	"psychout-service/internal/domain"
)

// StateEvent is pushed to subscribers whenever a mutation changes a game's
// phase or current question.
type StateEvent struct {
	GameID     int64        `json:"gameId"`
	Phase      domain.Phase `json:"phase"`
	QuestionID *int64       `json:"questionId"`
}

// Feed fans state events out to websocket subscribers. Slow subscribers have
// their stale event replaced rather than blocking the broadcaster.
type Feed struct {
	mu   sync.Mutex
	subs map[chan StateEvent]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan StateEvent]struct{})}
}

// Subscribe returns a channel of state events. The caller must invoke the
// returned cancel function to avoid leaks.
func (f *Feed) Subscribe() (<-chan StateEvent, func()) {
	ch := make(chan StateEvent, 8)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers the event to every subscriber without blocking.
func (f *Feed) Broadcast(ev StateEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
