package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"psychout-service/internal/domain"
)

// curQuestionResponse is the polling payload waiting screens consume.
type curQuestionResponse struct {
	Cur    *int64 `json:"cur"`
	IsQuiz bool   `json:"is_quiz"`
}

func (h *Handler) curQuestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := curQuestionResponse{}

	game, err := h.service.ActiveGame(ctx)
	if err == nil {
		state, stateErr := h.service.State(ctx, game.ID)
		if stateErr != nil {
			h.serverError(w, stateErr)
			return
		}
		resp.Cur = state.Game.CurrentQuestionID
		resp.IsQuiz = state.Phase == domain.PhaseVoting
	} else if !errors.Is(err, domain.ErrNoGame) {
		h.serverError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
