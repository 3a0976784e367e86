package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"psychout-service/internal/app"
	"psychout-service/internal/domain"
)

// GameStore is an in-memory implementation of app.GameStore, used in dev mode
// and tests. It enforces the same rules as the Postgres store: one answer per
// (game, question, slot), at most quota answers per (game, question), one vote
// per (game, question, voter), one player name per game. All mutations run
// under one lock, which stands in for the database transaction.
type GameStore struct {
	mu      sync.RWMutex
	nextID  int64
	topics  map[int64]domain.Topic
	pools   map[int64][]domain.Question // topicID -> questions
	games   map[int64]domain.Game
	asked   map[int64]map[int64]bool // gameID -> questionID set
	players map[int64]domain.Player
	answers map[int64]domain.Answer
	votes   map[int64]domain.Vote
}

func NewGameStore() *GameStore {
	return &GameStore{
		topics:  make(map[int64]domain.Topic),
		pools:   make(map[int64][]domain.Question),
		games:   make(map[int64]domain.Game),
		asked:   make(map[int64]map[int64]bool),
		players: make(map[int64]domain.Player),
		answers: make(map[int64]domain.Answer),
		votes:   make(map[int64]domain.Vote),
	}
}

func (s *GameStore) id() int64 {
	s.nextID++
	return s.nextID
}

// AddTopic seeds a topic with its question pool.
func (s *GameStore) AddTopic(name string, questions []domain.Question) domain.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	topic := domain.Topic{ID: s.id(), Name: name}
	s.topics[topic.ID] = topic
	for _, q := range questions {
		q.ID = s.id()
		q.TopicID = topic.ID
		s.pools[topic.ID] = append(s.pools[topic.ID], q)
	}
	return topic
}

func (s *GameStore) ActiveGame(_ context.Context) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest domain.Game
	found := false
	for _, g := range s.games {
		if !found || g.ID > latest.ID {
			latest = g
			found = true
		}
	}
	if !found {
		return domain.Game{}, domain.ErrNoGame
	}
	return latest, nil
}

func (s *GameStore) Game(_ context.Context, id int64) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[id]
	if !ok {
		return domain.Game{}, domain.ErrNoGame
	}
	return game, nil
}

func (s *GameStore) CreateGame(_ context.Context, topicName string, numPsychAnswers int) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var topic *domain.Topic
	for id := range s.topics {
		t := s.topics[id]
		if strings.EqualFold(t.Name, topicName) {
			topic = &t
			break
		}
	}
	if topic == nil {
		return domain.Game{}, fmt.Errorf("%q: %w", topicName, domain.ErrTopicNotFound)
	}
	game := domain.Game{
		ID:              s.id(),
		TopicID:         topic.ID,
		NumPsychAnswers: numPsychAnswers,
		Started:         time.Now(),
	}
	s.games[game.ID] = game
	s.asked[game.ID] = make(map[int64]bool)
	return game, nil
}

func (s *GameStore) SwapCurrentQuestion(_ context.Context, gameID int64, expect, next *int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return false, domain.ErrNoGame
	}
	if !sameID(game.CurrentQuestionID, expect) {
		return false, nil
	}
	game.CurrentQuestionID = next
	s.games[gameID] = game
	return true, nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *GameStore) MarkAsked(_ context.Context, gameID, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.asked[gameID]
	if !ok {
		return domain.ErrNoGame
	}
	set[questionID] = true
	return nil
}

func (s *GameStore) AskedQuestions(_ context.Context, gameID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for id := range s.asked[gameID] {
		out = append(out, id)
	}
	return out, nil
}

func (s *GameStore) Question(_ context.Context, id int64) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, pool := range s.pools {
		for _, q := range pool {
			if q.ID == id {
				return q, nil
			}
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// QuestionsByTopic doubles as the loader behind the cached question repository.
func (s *GameStore) QuestionsByTopic(_ context.Context, topicID int64) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool := s.pools[topicID]
	out := make([]domain.Question, len(pool))
	copy(out, pool)
	return out, nil
}

func (s *GameStore) GetOrCreatePlayer(_ context.Context, gameID int64, name string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return domain.Player{}, domain.ErrNoGame
	}
	for _, p := range s.players {
		if p.GameID == gameID && p.Name == name {
			return p, nil
		}
	}
	player := domain.Player{ID: s.id(), GameID: gameID, Name: name}
	s.players[player.ID] = player
	return player, nil
}

func (s *GameStore) Player(_ context.Context, id int64) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *GameStore) Players(_ context.Context, gameID int64) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Player
	for _, p := range s.players {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *GameStore) CreateAnswer(_ context.Context, answer domain.Answer, quota int) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.answers {
		if a.GameID != answer.GameID || a.QuestionID != answer.QuestionID {
			continue
		}
		count++
		if strings.EqualFold(a.Text, answer.Text) {
			return domain.Answer{}, domain.ErrDuplicateAnswer
		}
		if a.Slot == answer.Slot {
			return domain.Answer{}, domain.ErrSlotTaken
		}
	}
	if count >= quota {
		return domain.Answer{}, domain.ErrQuotaReached
	}
	answer.ID = s.id()
	s.answers[answer.ID] = answer
	return answer, nil
}

func (s *GameStore) Answers(_ context.Context, gameID, questionID int64) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Answer
	for _, a := range s.answers {
		if a.GameID == gameID && a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *GameStore) RecordVote(_ context.Context, vote domain.Vote, deltas []app.ScoreDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.votes {
		if v.GameID == vote.GameID && v.QuestionID == vote.QuestionID && v.VoterID == vote.VoterID {
			return domain.ErrAlreadyVoted
		}
	}
	for _, d := range deltas {
		if _, ok := s.players[d.PlayerID]; !ok {
			return domain.ErrPlayerNotFound
		}
	}
	vote.ID = s.id()
	s.votes[vote.ID] = vote
	for _, d := range deltas {
		p := s.players[d.PlayerID]
		p.Score += d.Delta
		s.players[d.PlayerID] = p
	}
	return nil
}

func (s *GameStore) Votes(_ context.Context, gameID, questionID int64) ([]domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Vote
	for _, v := range s.votes {
		if v.GameID == gameID && v.QuestionID == questionID {
			out = append(out, v)
		}
	}
	return out, nil
}
