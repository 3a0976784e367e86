package app

import (
	"context"
	"sort"

	"psychout-service/internal/domain"
)

// GameState is a snapshot of where a game sits in the question lifecycle,
// with the counts the views and the operator dashboard render.
type GameState struct {
	Game        domain.Game
	Question    *domain.Question
	Phase       domain.Phase
	PlayerCount int
	DecoyCount  int
	VoteCount   int
}

// SummaryRow is one tallied quiz entry for a finished question.
type SummaryRow struct {
	Slot   int
	Text   string
	Author string // empty for the real answer
	IsReal bool
	Votes  int
	Voters []string
}

// QuestionSummary is everything the summary page shows for one question.
type QuestionSummary struct {
	Question domain.Question
	Rows     []SummaryRow
	Scores   []domain.Player
}

// State derives the game's phase from stored counts:
//
//	current nil + unasked remain  -> awaiting_question
//	current nil + pool exhausted  -> ended
//	decoys < quota                -> collecting_answers
//	votes < players               -> voting
//	otherwise                     -> summary
func (s *GameService) State(ctx context.Context, gameID int64) (GameState, error) {
	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return GameState{}, err
	}

	players, err := s.store.Players(ctx, gameID)
	if err != nil {
		return GameState{}, err
	}
	state := GameState{Game: game, PlayerCount: len(players)}

	if game.CurrentQuestionID == nil {
		candidates, err := s.unasked(ctx, game)
		if err != nil {
			return GameState{}, err
		}
		if len(candidates) == 0 {
			state.Phase = domain.PhaseEnded
		} else {
			state.Phase = domain.PhaseAwaitingQuestion
		}
		return state, nil
	}

	question, err := s.store.Question(ctx, *game.CurrentQuestionID)
	if err != nil {
		return GameState{}, err
	}
	state.Question = &question

	answers, err := s.store.Answers(ctx, gameID, question.ID)
	if err != nil {
		return GameState{}, err
	}
	state.DecoyCount = len(answers)

	votes, err := s.store.Votes(ctx, gameID, question.ID)
	if err != nil {
		return GameState{}, err
	}
	state.VoteCount = len(votes)

	switch {
	case state.DecoyCount < game.NumPsychAnswers:
		state.Phase = domain.PhaseCollectingAnswers
	case state.PlayerCount == 0 || state.VoteCount < state.PlayerCount:
		state.Phase = domain.PhaseVoting
	default:
		state.Phase = domain.PhaseSummary
	}
	return state, nil
}

// HasAnswered reports whether the player already submitted a decoy for the
// question, and HasVoted whether they already voted on it.
func (s *GameService) HasAnswered(ctx context.Context, gameID, questionID, playerID int64) (bool, error) {
	answers, err := s.store.Answers(ctx, gameID, questionID)
	if err != nil {
		return false, err
	}
	for _, a := range answers {
		if a.AuthorID == playerID {
			return true, nil
		}
	}
	return false, nil
}

func (s *GameService) HasVoted(ctx context.Context, gameID, questionID, playerID int64) (bool, error) {
	votes, err := s.store.Votes(ctx, gameID, questionID)
	if err != nil {
		return false, err
	}
	for _, v := range votes {
		if v.VoterID == playerID {
			return true, nil
		}
	}
	return false, nil
}

// Summary tallies the votes for a (possibly already asked) question and
// returns the rows with authorship revealed, plus the scoreboard.
func (s *GameService) Summary(ctx context.Context, gameID, questionID int64) (QuestionSummary, error) {
	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return QuestionSummary{}, err
	}
	question, err := s.store.Question(ctx, questionID)
	if err != nil {
		return QuestionSummary{}, err
	}
	answers, err := s.store.Answers(ctx, gameID, questionID)
	if err != nil {
		return QuestionSummary{}, err
	}
	votes, err := s.store.Votes(ctx, gameID, questionID)
	if err != nil {
		return QuestionSummary{}, err
	}
	players, err := s.store.Players(ctx, gameID)
	if err != nil {
		return QuestionSummary{}, err
	}
	names := make(map[int64]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}

	votersByAnswer := make(map[int64][]string)
	var realVoters []string
	for _, v := range votes {
		if v.AnswerID == nil {
			realVoters = append(realVoters, names[v.VoterID])
		} else {
			votersByAnswer[*v.AnswerID] = append(votersByAnswer[*v.AnswerID], names[v.VoterID])
		}
	}

	rows := make([]SummaryRow, 0, len(answers)+1)
	for _, a := range answers {
		rows = append(rows, SummaryRow{
			Slot:   a.Slot,
			Text:   a.Text,
			Author: names[a.AuthorID],
			Votes:  len(votersByAnswer[a.ID]),
			Voters: votersByAnswer[a.ID],
		})
	}
	realSlot, err := reservedSlot(answers, game.NumPsychAnswers)
	if err != nil {
		return QuestionSummary{}, err
	}
	rows = append(rows, SummaryRow{
		Slot:   realSlot,
		Text:   question.AnswerText,
		IsReal: true,
		Votes:  len(realVoters),
		Voters: realVoters,
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].Slot < rows[j].Slot })

	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].Name < players[j].Name
	})

	return QuestionSummary{Question: question, Rows: rows, Scores: players}, nil
}

// Scores returns the game's scoreboard, highest first.
func (s *GameService) Scores(ctx context.Context, gameID int64) ([]domain.Player, error) {
	players, err := s.store.Players(ctx, gameID)
	if err != nil {
		return nil, err
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].Name < players[j].Name
	})
	return players, nil
}
