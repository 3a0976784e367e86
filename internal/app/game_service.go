package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"psychout-service/internal/domain"
)

// GameStore abstracts how game state is persisted (in-memory, Postgres).
// Implementations must enforce the uniqueness constraints behind
// domain.ErrSlotTaken and domain.ErrAlreadyVoted, and apply RecordVote's
// score deltas in the same atomic unit as the vote row.
type GameStore interface {
	ActiveGame(ctx context.Context) (domain.Game, error)
	Game(ctx context.Context, id int64) (domain.Game, error)
	CreateGame(ctx context.Context, topicName string, numPsychAnswers int) (domain.Game, error)
	// SwapCurrentQuestion atomically replaces the game's current question,
	// but only if it still matches expect. Returns false when the swap lost.
	SwapCurrentQuestion(ctx context.Context, gameID int64, expect, next *int64) (bool, error)
	MarkAsked(ctx context.Context, gameID, questionID int64) error
	AskedQuestions(ctx context.Context, gameID int64) ([]int64, error)
	Question(ctx context.Context, id int64) (domain.Question, error)
	GetOrCreatePlayer(ctx context.Context, gameID int64, name string) (domain.Player, error)
	Player(ctx context.Context, id int64) (domain.Player, error)
	Players(ctx context.Context, gameID int64) ([]domain.Player, error)
	// CreateAnswer inserts a decoy. The quota check, the duplicate-text check
	// and the slot-uniqueness check all run inside the store's atomic unit;
	// violations map to ErrQuotaReached, ErrDuplicateAnswer and ErrSlotTaken.
	CreateAnswer(ctx context.Context, answer domain.Answer, quota int) (domain.Answer, error)
	Answers(ctx context.Context, gameID, questionID int64) ([]domain.Answer, error)
	RecordVote(ctx context.Context, vote domain.Vote, deltas []ScoreDelta) error
	Votes(ctx context.Context, gameID, questionID int64) ([]domain.Vote, error)
}

// QuestionRepository loads a topic's question pool (usually through a cache).
type QuestionRepository interface {
	QuestionsByTopic(ctx context.Context, topicID int64) ([]domain.Question, error)
}

// SessionStore maps opaque session tokens to player ids.
type SessionStore interface {
	Put(ctx context.Context, token string, playerID int64) error
	Lookup(ctx context.Context, token string) (int64, bool, error)
}

// ScoreDelta is a score adjustment applied atomically with a vote.
type ScoreDelta struct {
	PlayerID int64
	Delta    int
}

// Rules holds the tunable game constants.
type Rules struct {
	NumPsychAnswers int // decoys collected per question
	CorrectPoints   int // awarded for picking the real answer
	SelfVotePenalty int // deducted for picking your own decoy
	DecoyPoints     int // awarded to a decoy's author per vote it draws
}

// DefaultRules returns the standard scoring constants.
func DefaultRules() Rules {
	return Rules{NumPsychAnswers: 3, CorrectPoints: 3, SelfVotePenalty: 3, DecoyPoints: 1}
}

// withDefaults only repairs a nonsensical quota. The scoring magnitudes pass
// through untouched: an explicit zero is a valid rule, not an unset field.
func (r Rules) withDefaults() Rules {
	if r.NumPsychAnswers <= 0 {
		r.NumPsychAnswers = DefaultRules().NumPsychAnswers
	}
	return r
}

// maxSlotAttempts bounds the retry loop for slot-assignment races.
const maxSlotAttempts = 5

// GameService contains the game's use cases: resolving the current question,
// collecting decoy answers, composing the voting quiz, recording votes with
// their scoring effects, and advancing the round.
type GameService struct {
	store     GameStore
	questions QuestionRepository
	rules     Rules
	feed      *Feed
}

func NewGameService(store GameStore, questions QuestionRepository, rules Rules, feed *Feed) *GameService {
	return &GameService{store: store, questions: questions, rules: rules.withDefaults(), feed: feed}
}

// Rules exposes the effective scoring constants.
func (s *GameService) Rules() Rules {
	return s.rules
}

// ActiveGame resolves the game new requests act against. Handlers call this
// once per request and pass the id explicitly from then on.
func (s *GameService) ActiveGame(ctx context.Context) (domain.Game, error) {
	return s.store.ActiveGame(ctx)
}

// StartGame creates a fresh game for the named topic. numPsychAnswers <= 0
// falls back to the configured default.
func (s *GameService) StartGame(ctx context.Context, topicName string, numPsychAnswers int) (domain.Game, error) {
	if numPsychAnswers <= 0 {
		numPsychAnswers = s.rules.NumPsychAnswers
	}
	game, err := s.store.CreateGame(ctx, topicName, numPsychAnswers)
	if err != nil {
		return domain.Game{}, err
	}
	s.notify(ctx, game.ID)
	return game, nil
}

// RegisterPlayer creates or fetches the named player in the game.
func (s *GameService) RegisterPlayer(ctx context.Context, gameID int64, name string) (domain.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return s.store.GetOrCreatePlayer(ctx, gameID, name)
}

// Player looks up a player by id.
func (s *GameService) Player(ctx context.Context, id int64) (domain.Player, error) {
	return s.store.Player(ctx, id)
}

// EnsureCurrentQuestion guarantees the game has a current question before a
// player-facing operation proceeds. When current is nil it picks uniformly at
// random from the topic's unasked questions; a caller losing the assignment
// race adopts the winner's pick. ok=false means the pool is exhausted and the
// round has ended. An empty pool is a configuration error (ErrNoQuestions).
func (s *GameService) EnsureCurrentQuestion(ctx context.Context, game domain.Game) (domain.Question, bool, error) {
	if game.CurrentQuestionID != nil {
		q, err := s.store.Question(ctx, *game.CurrentQuestionID)
		return q, true, err
	}

	candidates, err := s.unasked(ctx, game)
	if err != nil {
		return domain.Question{}, false, err
	}
	if len(candidates) == 0 {
		return domain.Question{}, false, nil
	}

	pick := candidates[rand.Intn(len(candidates))]
	swapped, err := s.store.SwapCurrentQuestion(ctx, game.ID, nil, &pick.ID)
	if err != nil {
		return domain.Question{}, false, err
	}
	if swapped {
		s.notify(ctx, game.ID)
		return pick, true, nil
	}

	// Lost the race: another request assigned first, observe its value.
	fresh, err := s.store.Game(ctx, game.ID)
	if err != nil {
		return domain.Question{}, false, err
	}
	if fresh.CurrentQuestionID == nil {
		return domain.Question{}, false, nil
	}
	q, err := s.store.Question(ctx, *fresh.CurrentQuestionID)
	return q, true, err
}

// SubmitAnswer accepts a decoy submission for the game's current question.
// True-answer matches, duplicate texts, and over-quota submissions are all
// dropped silently so the submitter learns nothing. The quota and duplicate
// checks here are a fast path only; the store re-runs both inside the same
// atomic unit as the insert, so racing submitters cannot overshoot the quota.
// Slot assignment retries on lost races with a fresh read of the taken slots.
func (s *GameService) SubmitAnswer(ctx context.Context, gameID, playerID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return err
	}
	question, ok, err := s.EnsureCurrentQuestion(ctx, game)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if strings.EqualFold(text, question.AnswerText) {
		// The player guessed right. Say nothing.
		return nil
	}

	for attempt := 0; attempt < maxSlotAttempts; attempt++ {
		answers, err := s.store.Answers(ctx, gameID, question.ID)
		if err != nil {
			return err
		}
		if len(answers) >= game.NumPsychAnswers {
			return nil
		}
		taken := make(map[int]bool, len(answers))
		for _, a := range answers {
			if strings.EqualFold(a.Text, text) {
				return nil
			}
			taken[a.Slot] = true
		}

		// One slot beyond the decoy quota exists so the real answer always
		// has a home; which slot that ends up being is decided here by
		// elimination, never directly.
		var free []int
		for slot := 0; slot <= game.NumPsychAnswers; slot++ {
			if !taken[slot] {
				free = append(free, slot)
			}
		}
		if len(free) == 0 {
			return fmt.Errorf("no free slot with %d of %d decoys: %w", len(answers), game.NumPsychAnswers, domain.ErrInvariant)
		}

		_, err = s.store.CreateAnswer(ctx, domain.Answer{
			GameID:     gameID,
			QuestionID: question.ID,
			AuthorID:   playerID,
			Text:       text,
			Slot:       free[rand.Intn(len(free))],
		}, game.NumPsychAnswers)
		if errors.Is(err, domain.ErrSlotTaken) {
			continue
		}
		if errors.Is(err, domain.ErrQuotaReached) || errors.Is(err, domain.ErrDuplicateAnswer) {
			return nil
		}
		if err != nil {
			return err
		}
		s.notify(ctx, gameID)
		return nil
	}
	return fmt.Errorf("slot assignment lost %d races: %w", maxSlotAttempts, domain.ErrInvariant)
}

// ComposeQuiz builds the voting list for the current question: all decoys
// plus the real answer in the one remaining free slot, ordered by slot.
// Anything other than exactly one free slot means the collector corrupted
// state and the request must abort.
func (s *GameService) ComposeQuiz(ctx context.Context, gameID int64) (domain.Question, []domain.QuizEntry, error) {
	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return domain.Question{}, nil, err
	}
	question, ok, err := s.EnsureCurrentQuestion(ctx, game)
	if err != nil {
		return domain.Question{}, nil, err
	}
	if !ok {
		return domain.Question{}, nil, domain.ErrQuestionNotFound
	}

	answers, err := s.store.Answers(ctx, gameID, question.ID)
	if err != nil {
		return domain.Question{}, nil, err
	}
	realSlot, err := reservedSlot(answers, game.NumPsychAnswers)
	if err != nil {
		return domain.Question{}, nil, err
	}

	entries := make([]domain.QuizEntry, 0, len(answers)+1)
	for _, a := range answers {
		entries = append(entries, domain.QuizEntry{Slot: a.Slot, Text: a.Text})
	}
	entries = append(entries, domain.QuizEntry{Slot: realSlot, Text: question.AnswerText})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Slot < entries[j].Slot })
	return question, entries, nil
}

// CastVote resolves the chosen slot to the real answer or a decoy, persists
// the vote, and applies the scoring effect in the same atomic unit:
//
//   - real answer:            voter +CorrectPoints
//   - voter's own decoy:      voter -SelfVotePenalty
//   - another player's decoy: author +DecoyPoints
//
// A repeated vote for the same question is ignored, so it never double-scores.
// A slot matching nothing is rejected with ErrSlotNotFound, and a vote cast
// before the decoy quota is met with ErrVotingNotOpen.
func (s *GameService) CastVote(ctx context.Context, gameID, voterID int64, slot int) error {
	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if game.CurrentQuestionID == nil {
		return domain.ErrQuestionNotFound
	}
	questionID := *game.CurrentQuestionID

	answers, err := s.store.Answers(ctx, gameID, questionID)
	if err != nil {
		return err
	}
	if len(answers) < game.NumPsychAnswers {
		return domain.ErrVotingNotOpen
	}

	vote := domain.Vote{GameID: gameID, QuestionID: questionID, VoterID: voterID}
	var deltas []ScoreDelta

	var chosen *domain.Answer
	for i := range answers {
		if answers[i].Slot == slot {
			chosen = &answers[i]
			break
		}
	}
	switch {
	case chosen != nil && chosen.AuthorID == voterID:
		deltas = []ScoreDelta{{PlayerID: voterID, Delta: -s.rules.SelfVotePenalty}}
		vote.AnswerID = &chosen.ID
	case chosen != nil:
		deltas = []ScoreDelta{{PlayerID: chosen.AuthorID, Delta: s.rules.DecoyPoints}}
		vote.AnswerID = &chosen.ID
	default:
		realSlot, err := reservedSlot(answers, game.NumPsychAnswers)
		if err != nil {
			return err
		}
		if slot != realSlot {
			return domain.ErrSlotNotFound
		}
		deltas = []ScoreDelta{{PlayerID: voterID, Delta: s.rules.CorrectPoints}}
	}

	if err := s.store.RecordVote(ctx, vote, deltas); err != nil {
		if errors.Is(err, domain.ErrAlreadyVoted) {
			return nil
		}
		return err
	}
	s.notify(ctx, gameID)
	return nil
}

// AdvanceRound moves the game past its current question once every player has
// voted (or unconditionally when force is set, for the operator). The current
// question is appended to the asked set and the swap to the next question is
// a compare-and-set on the expected current id, so racing observers cannot
// advance twice; a loser simply reports advanced=false and shows the state
// the winner produced.
func (s *GameService) AdvanceRound(ctx context.Context, gameID int64, force bool) (bool, error) {
	game, err := s.store.Game(ctx, gameID)
	if err != nil {
		return false, err
	}
	if game.CurrentQuestionID == nil {
		return false, nil
	}
	current := *game.CurrentQuestionID

	if !force {
		players, err := s.store.Players(ctx, gameID)
		if err != nil {
			return false, err
		}
		votes, err := s.store.Votes(ctx, gameID, current)
		if err != nil {
			return false, err
		}
		if len(players) == 0 || len(votes) < len(players) {
			return false, nil
		}
	}

	if err := s.store.MarkAsked(ctx, gameID, current); err != nil {
		return false, err
	}
	candidates, err := s.unasked(ctx, game)
	if err != nil {
		return false, err
	}

	var next *int64
	remaining := candidates[:0]
	for _, q := range candidates {
		if q.ID != current {
			remaining = append(remaining, q)
		}
	}
	if len(remaining) > 0 {
		next = &remaining[rand.Intn(len(remaining))].ID
	}

	expect := current
	swapped, err := s.store.SwapCurrentQuestion(ctx, gameID, &expect, next)
	if err != nil {
		return false, err
	}
	if swapped {
		s.notify(ctx, gameID)
	}
	return swapped, nil
}

// unasked returns the topic's questions not yet in the asked set.
func (s *GameService) unasked(ctx context.Context, game domain.Game) ([]domain.Question, error) {
	pool, err := s.questions.QuestionsByTopic(ctx, game.TopicID)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("topic %d: %w", game.TopicID, domain.ErrNoQuestions)
	}
	askedIDs, err := s.store.AskedQuestions(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	asked := make(map[int64]bool, len(askedIDs))
	for _, id := range askedIDs {
		asked[id] = true
	}
	var out []domain.Question
	for _, q := range pool {
		if !asked[q.ID] {
			out = append(out, q)
		}
	}
	return out, nil
}

// reservedSlot finds the single free slot in 0..numPsychAnswers left for the
// real answer. Any other count of free slots is an invariant failure.
func reservedSlot(answers []domain.Answer, numPsychAnswers int) (int, error) {
	taken := make(map[int]bool, len(answers))
	for _, a := range answers {
		taken[a.Slot] = true
	}
	free := -1
	count := 0
	for slot := 0; slot <= numPsychAnswers; slot++ {
		if !taken[slot] {
			free = slot
			count++
		}
	}
	if count != 1 {
		return 0, fmt.Errorf("%d free slots, want exactly 1: %w", count, domain.ErrInvariant)
	}
	return free, nil
}

func (s *GameService) notify(ctx context.Context, gameID int64) {
	if s.feed == nil {
		return
	}
	state, err := s.State(ctx, gameID)
	if err != nil {
		return
	}
	s.feed.Broadcast(StateEvent{
		GameID:     gameID,
		Phase:      state.Phase,
		QuestionID: state.Game.CurrentQuestionID,
	})
}
