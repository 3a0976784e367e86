package http

import (
	"errors"
	"log"
	"net/http"

	"psychout-service/internal/app"
	"psychout-service/internal/domain"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type outboundMessage struct {
	Type    string         `json:"type"`
	Payload app.StateEvent `json:"payload"`
}

// serveWS upgrades the connection and streams game state events so waiting
// screens can react without hammering the polling endpoint. Clients send
// nothing meaningful; the read loop only detects disconnects.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Initial snapshot so a client doesn't wait for the next mutation.
	if game, err := h.service.ActiveGame(r.Context()); err == nil {
		state, err := h.service.State(r.Context(), game.ID)
		if err == nil {
			_ = conn.WriteJSON(outboundMessage{Type: "state", Payload: app.StateEvent{
				GameID:     game.ID,
				Phase:      state.Phase,
				QuestionID: state.Game.CurrentQuestionID,
			}})
		}
	} else if !errors.Is(err, domain.ErrNoGame) {
		return
	}

	events, cancel := h.feed.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			// Discard inbound frames; an error means the peer went away.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "state", Payload: ev}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
