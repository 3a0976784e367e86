package app

import (
	"testing"

	"psychout-service/internal/domain"
)

func TestFeedDeliversToSubscribers(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe()
	defer cancel()

	feed.Broadcast(StateEvent{GameID: 1, Phase: domain.PhaseVoting})
	ev := <-ch
	if ev.GameID != 1 || ev.Phase != domain.PhaseVoting {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestFeedDropsStaleEventsForSlowSubscribers(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe()
	defer cancel()

	// Fill well past the buffer; the broadcaster must never block.
	for i := 0; i < 50; i++ {
		feed.Broadcast(StateEvent{GameID: int64(i)})
	}

	var last StateEvent
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	if last.GameID != 49 {
		t.Fatalf("expected the newest event to survive, got %d", last.GameID)
	}
}

func TestFeedCancelIsIdempotent(t *testing.T) {
	feed := NewFeed()
	_, cancel := feed.Subscribe()
	cancel()
	cancel()
	feed.Broadcast(StateEvent{GameID: 1})
}
