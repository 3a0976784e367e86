package http

import (
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"psychout-service/internal/app"
	"psychout-service/internal/domain"
	"github.com/gorilla/mux"
)

// Handler serves the player-facing HTML views, the operator dashboard, the
// polling API, and the websocket state feed.
type Handler struct {
	service  *app.GameService
	sessions app.SessionStore
	feed     *app.Feed
	tmpl     *template.Template
}

func NewHandler(service *app.GameService, sessions app.SessionStore, feed *app.Feed) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		feed:     feed,
		tmpl:     parseTemplates(),
	}
}

// Router wires all endpoints.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", h.index).Methods(http.MethodGet)
	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/open_question", h.openQuestion).Methods(http.MethodPost)
	r.HandleFunc("/quiz", h.answerQuiz).Methods(http.MethodPost)
	r.HandleFunc("/summary/{question_id:[0-9]+}", h.summary).Methods(http.MethodGet)
	r.HandleFunc("/manage", h.manage).Methods(http.MethodGet)
	r.HandleFunc("/manage/start_new", h.startNew).Methods(http.MethodPost)
	r.HandleFunc("/manage/next", h.next).Methods(http.MethodPost)
	r.HandleFunc("/api/cur_question", h.curQuestion).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	game, err := h.service.ActiveGame(ctx)
	if errors.Is(err, domain.ErrNoGame) {
		h.render(w, "welcome.html", map[string]any{"HasGame": false})
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}

	player, registered := h.currentPlayer(r, game.ID)
	if !registered {
		h.render(w, "welcome.html", map[string]any{"HasGame": true})
		return
	}

	state, err := h.service.State(ctx, game.ID)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if state.Phase == domain.PhaseAwaitingQuestion {
		if _, _, err := h.service.EnsureCurrentQuestion(ctx, state.Game); err != nil {
			h.serverError(w, err)
			return
		}
		state, err = h.service.State(ctx, game.ID)
		if err != nil {
			h.serverError(w, err)
			return
		}
	}

	switch state.Phase {
	case domain.PhaseCollectingAnswers:
		answered, err := h.service.HasAnswered(ctx, game.ID, state.Question.ID, player.ID)
		if err != nil {
			h.serverError(w, err)
			return
		}
		if answered {
			h.renderWaiting(w, player, state, "Waiting for the other players to make up their answers.")
			return
		}
		h.render(w, "question.html", map[string]any{"Question": state.Question})
	case domain.PhaseVoting:
		voted, err := h.service.HasVoted(ctx, game.ID, state.Question.ID, player.ID)
		if err != nil {
			h.serverError(w, err)
			return
		}
		if voted {
			h.renderWaiting(w, player, state, "Waiting for the other players to vote.")
			return
		}
		question, entries, err := h.service.ComposeQuiz(ctx, game.ID)
		if err != nil {
			h.serverError(w, err)
			return
		}
		h.render(w, "quiz.html", map[string]any{"Question": question, "Entries": entries})
	case domain.PhaseSummary:
		http.Redirect(w, r, fmt.Sprintf("/summary/%d", state.Question.ID), http.StatusSeeOther)
	case domain.PhaseEnded:
		scores, err := h.service.Scores(ctx, game.ID)
		if err != nil {
			h.serverError(w, err)
			return
		}
		h.render(w, "ended.html", map[string]any{"Scores": scores})
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	game, err := h.service.ActiveGame(ctx)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	player, err := h.service.RegisterPlayer(ctx, game.ID, r.FormValue("name"))
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	token, err := newSessionToken()
	if err != nil {
		h.serverError(w, err)
		return
	}
	if err := h.sessions.Put(ctx, token, player.ID); err != nil {
		h.serverError(w, err)
		return
	}
	setSessionCookie(w, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) openQuestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	game, err := h.service.ActiveGame(ctx)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	player, registered := h.currentPlayer(r, game.ID)
	if !registered {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := h.service.SubmitAnswer(ctx, game.ID, player.ID, r.FormValue("answer")); err != nil {
		if errors.Is(err, domain.ErrInvariant) || errors.Is(err, domain.ErrNoQuestions) {
			h.serverError(w, err)
			return
		}
		log.Printf("submit answer: %v", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) answerQuiz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	game, err := h.service.ActiveGame(ctx)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	player, registered := h.currentPlayer(r, game.ID)
	if !registered {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	slot, err := strconv.Atoi(r.FormValue("answer"))
	if err != nil {
		// Not a slot id at all; back to the quiz.
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := h.service.CastVote(ctx, game.ID, player.ID, slot); err != nil {
		if errors.Is(err, domain.ErrInvariant) {
			h.serverError(w, err)
			return
		}
		// ErrSlotNotFound, ErrVotingNotOpen and friends: the vote is
		// rejected, not scored.
		log.Printf("cast vote: %v", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	questionID, err := strconv.ParseInt(mux.Vars(r)["question_id"], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	game, err := h.service.ActiveGame(ctx)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	summary, err := h.service.Summary(ctx, game.ID, questionID)
	if err != nil {
		if errors.Is(err, domain.ErrQuestionNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, err)
		return
	}

	// Viewing the summary nudges the round forward once everyone has voted.
	// The advance is a compare-and-set on the current question, so concurrent
	// viewers cannot move the game twice.
	if _, err := h.service.AdvanceRound(ctx, game.ID, false); err != nil {
		log.Printf("advance round: %v", err)
	}

	h.render(w, "summary.html", map[string]any{"Summary": summary})
}

func (h *Handler) manage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	game, err := h.service.ActiveGame(ctx)
	if errors.Is(err, domain.ErrNoGame) {
		h.render(w, "manage.html", map[string]any{"HasGame": false})
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}
	state, err := h.service.State(ctx, game.ID)
	if err != nil {
		h.serverError(w, err)
		return
	}
	scores, err := h.service.Scores(ctx, game.ID)
	if err != nil {
		h.serverError(w, err)
		return
	}
	h.render(w, "manage.html", map[string]any{"HasGame": true, "State": state, "Scores": scores})
}

func (h *Handler) startNew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	numAnswers, _ := strconv.Atoi(r.FormValue("num_answers"))
	_, err := h.service.StartGame(ctx, r.FormValue("topic"), numAnswers)
	if err != nil {
		if errors.Is(err, domain.ErrTopicNotFound) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.serverError(w, err)
		return
	}
	http.Redirect(w, r, "/manage", http.StatusSeeOther)
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	game, err := h.service.ActiveGame(ctx)
	if err != nil {
		http.Redirect(w, r, "/manage", http.StatusSeeOther)
		return
	}
	if _, err := h.service.AdvanceRound(ctx, game.ID, true); err != nil {
		h.serverError(w, err)
		return
	}
	http.Redirect(w, r, "/manage", http.StatusSeeOther)
}

func (h *Handler) renderWaiting(w http.ResponseWriter, player domain.Player, state app.GameState, message string) {
	h.render(w, "waiting.html", map[string]any{
		"PlayerName": player.Name,
		"Message":    message,
		"QuestionID": state.Question.ID,
		"IsQuiz":     state.Phase == domain.PhaseVoting,
	})
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("render %s: %v", name, err)
	}
}

// serverError is for configuration errors and invariant violations only;
// recoverable conditions redirect back to the index instead.
func (h *Handler) serverError(w http.ResponseWriter, err error) {
	log.Printf("server error: %v", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
