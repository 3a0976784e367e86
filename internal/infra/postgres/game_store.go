package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"psychout-service/internal/app"
	"psychout-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// GameStore is the bun-backed implementation of app.GameStore. Uniqueness
// constraints in the schema carry the race detection: a 23505 on answers maps
// to ErrSlotTaken, on votes to ErrAlreadyVoted. Answer inserts serialize on a
// game-row lock so the decoy quota holds under concurrency. Vote rows and
// their score deltas commit in one transaction.
type GameStore struct {
	db *bun.DB
}

func NewGameStore(db *bun.DB) *GameStore {
	return &GameStore{db: db}
}

// askedQuestion is the append-only (game, question) asked set.
type askedQuestion struct {
	bun.BaseModel `bun:"table:asked_questions"`

	GameID     int64 `bun:"game_id,pk"`
	QuestionID int64 `bun:"question_id,pk"`
}

func (s *GameStore) ActiveGame(ctx context.Context) (domain.Game, error) {
	var game domain.Game
	err := s.db.NewSelect().Model(&game).Order("id DESC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, domain.ErrNoGame
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("active game: %w", err)
	}
	return game, nil
}

func (s *GameStore) Game(ctx context.Context, id int64) (domain.Game, error) {
	var game domain.Game
	err := s.db.NewSelect().Model(&game).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, domain.ErrNoGame
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("load game %d: %w", id, err)
	}
	return game, nil
}

func (s *GameStore) CreateGame(ctx context.Context, topicName string, numPsychAnswers int) (domain.Game, error) {
	var topic domain.Topic
	err := s.db.NewSelect().Model(&topic).Where("lower(name) = lower(?)", topicName).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, fmt.Errorf("%q: %w", topicName, domain.ErrTopicNotFound)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("load topic: %w", err)
	}

	game := domain.Game{TopicID: topic.ID, NumPsychAnswers: numPsychAnswers}
	if _, err := s.db.NewInsert().Model(&game).Returning("*").Exec(ctx); err != nil {
		return domain.Game{}, fmt.Errorf("create game: %w", err)
	}
	return game, nil
}

func (s *GameStore) SwapCurrentQuestion(ctx context.Context, gameID int64, expect, next *int64) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*domain.Game)(nil)).
		Set("current_question_id = ?", next).
		Where("id = ?", gameID).
		Where("current_question_id IS NOT DISTINCT FROM ?", expect).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("swap current question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *GameStore) MarkAsked(ctx context.Context, gameID, questionID int64) error {
	_, err := s.db.NewInsert().
		Model(&askedQuestion{GameID: gameID, QuestionID: questionID}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark asked: %w", err)
	}
	return nil
}

func (s *GameStore) AskedQuestions(ctx context.Context, gameID int64) ([]int64, error) {
	var rows []askedQuestion
	if err := s.db.NewSelect().Model(&rows).Where("game_id = ?", gameID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("asked questions: %w", err)
	}
	out := make([]int64, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.QuestionID)
	}
	return out, nil
}

func (s *GameStore) Question(ctx context.Context, id int64) (domain.Question, error) {
	var question domain.Question
	err := s.db.NewSelect().Model(&question).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question %d: %w", id, err)
	}
	return question, nil
}

func (s *GameStore) GetOrCreatePlayer(ctx context.Context, gameID int64, name string) (domain.Player, error) {
	player := domain.Player{GameID: gameID, Name: name}
	_, err := s.db.NewInsert().
		Model(&player).
		On("CONFLICT (game_id, name) DO NOTHING").
		Returning("*").
		Exec(ctx)
	if err == nil && player.ID != 0 {
		return player, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, fmt.Errorf("create player: %w", err)
	}

	// Conflict: the name already exists in this game, fetch it.
	var existing domain.Player
	err = s.db.NewSelect().Model(&existing).
		Where("game_id = ?", gameID).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		return domain.Player{}, fmt.Errorf("fetch player: %w", err)
	}
	return existing, nil
}

func (s *GameStore) Player(ctx context.Context, id int64) (domain.Player, error) {
	var player domain.Player
	err := s.db.NewSelect().Model(&player).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load player %d: %w", id, err)
	}
	return player, nil
}

func (s *GameStore) Players(ctx context.Context, gameID int64) ([]domain.Player, error) {
	var players []domain.Player
	if err := s.db.NewSelect().Model(&players).Where("game_id = ?", gameID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	return players, nil
}

// CreateAnswer locks the game row so concurrent submitters for the same game
// serialize; the quota count and the duplicate-text check then see every
// committed insert, and racers at the quota boundary cannot both get in.
func (s *GameStore) CreateAnswer(ctx context.Context, answer domain.Answer, quota int) (domain.Answer, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var game domain.Game
		err := tx.NewSelect().Model(&game).Where("id = ?", answer.GameID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNoGame
		}
		if err != nil {
			return fmt.Errorf("lock game: %w", err)
		}

		count, err := tx.NewSelect().Model((*domain.Answer)(nil)).
			Where("game_id = ?", answer.GameID).
			Where("question_id = ?", answer.QuestionID).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count answers: %w", err)
		}
		if count >= quota {
			return domain.ErrQuotaReached
		}

		dup, err := tx.NewSelect().Model((*domain.Answer)(nil)).
			Where("game_id = ?", answer.GameID).
			Where("question_id = ?", answer.QuestionID).
			Where("lower(text) = lower(?)", answer.Text).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check duplicate answer: %w", err)
		}
		if dup {
			return domain.ErrDuplicateAnswer
		}

		if _, err := tx.NewInsert().Model(&answer).Returning("*").Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrSlotTaken
			}
			return fmt.Errorf("create answer: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

func (s *GameStore) Answers(ctx context.Context, gameID, questionID int64) ([]domain.Answer, error) {
	var answers []domain.Answer
	err := s.db.NewSelect().Model(&answers).
		Where("game_id = ?", gameID).
		Where("question_id = ?", questionID).
		Order("permutation_order ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return answers, nil
}

func (s *GameStore) RecordVote(ctx context.Context, vote domain.Vote, deltas []app.ScoreDelta) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&vote).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyVoted
			}
			return fmt.Errorf("insert vote: %w", err)
		}
		for _, d := range deltas {
			res, err := tx.NewUpdate().
				Model((*domain.Player)(nil)).
				Set("score = score + ?", d.Delta).
				Where("id = ?", d.PlayerID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("apply score delta: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected != 1 {
				return domain.ErrPlayerNotFound
			}
		}
		return nil
	})
	return err
}

func (s *GameStore) Votes(ctx context.Context, gameID, questionID int64) ([]domain.Vote, error) {
	var votes []domain.Vote
	err := s.db.NewSelect().Model(&votes).
		Where("game_id = ?", gameID).
		Where("question_id = ?", questionID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	return votes, nil
}

// isUniqueViolation reports whether err is a Postgres 23505.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
