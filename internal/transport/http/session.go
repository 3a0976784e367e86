package http

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"psychout-service/internal/domain"
)

const sessionCookie = "psychout_session"

func newSessionToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// currentPlayer resolves the request's session cookie to a player in the
// given game. A token belonging to a player of an earlier game is treated as
// unregistered so stale sessions fall back to the welcome screen.
func (h *Handler) currentPlayer(r *http.Request, gameID int64) (domain.Player, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return domain.Player{}, false
	}
	playerID, ok, err := h.sessions.Lookup(r.Context(), cookie.Value)
	if err != nil || !ok {
		return domain.Player{}, false
	}
	player, err := h.service.Player(r.Context(), playerID)
	if err != nil || player.GameID != gameID {
		return domain.Player{}, false
	}
	return player, true
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
