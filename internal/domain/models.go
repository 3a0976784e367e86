package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Topic owns a pool of questions. One game plays through one topic.
type Topic struct {
	bun.BaseModel `bun:"table:topics"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name,notnull,unique" json:"name"`
}

// Question carries the prompt and the single true answer. Immutable after creation.
type Question struct {
	bun.BaseModel `bun:"table:questions"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	TopicID      int64  `bun:"topic_id,notnull" json:"topicId"`
	QuestionText string `bun:"question_text,notnull" json:"questionText"`
	AnswerText   string `bun:"answer_text,notnull" json:"-"`
}

// Game is one playthrough of a topic. CurrentQuestionID nil means the round
// either needs advancing or has ended (no unasked questions left).
type Game struct {
	bun.BaseModel `bun:"table:games"`

	ID                int64     `bun:"id,pk,autoincrement" json:"id"`
	TopicID           int64     `bun:"topic_id,notnull" json:"topicId"`
	NumPsychAnswers   int       `bun:"num_psych_answers,notnull" json:"numPsychAnswers"`
	CurrentQuestionID *int64    `bun:"current_question_id" json:"currentQuestionId"`
	Started           time.Time `bun:"started,notnull,default:current_timestamp" json:"started"`
}

// Player belongs to exactly one game. Name is unique within the game.
type Player struct {
	bun.BaseModel `bun:"table:players"`

	ID     int64  `bun:"id,pk,autoincrement" json:"id"`
	GameID int64  `bun:"game_id,notnull" json:"gameId"`
	Name   string `bun:"name,notnull" json:"name"`
	Score  int    `bun:"score,notnull,default:0" json:"score"`
}

// Answer is a decoy submitted by one player for one question. Slot is the
// presentation position among all entries (decoys plus the real answer) for
// that question; slots for a (game, question) pair never collide.
type Answer struct {
	bun.BaseModel `bun:"table:answers"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	GameID     int64  `bun:"game_id,notnull" json:"gameId"`
	QuestionID int64  `bun:"question_id,notnull" json:"questionId"`
	AuthorID   int64  `bun:"author_id,notnull" json:"authorId"`
	Text       string `bun:"text,notnull" json:"text"`
	Slot       int    `bun:"permutation_order,notnull" json:"slot"`
}

// Vote is one player's pick for one question. AnswerID nil means the player
// picked the real answer. At most one vote per (game, question, voter).
type Vote struct {
	bun.BaseModel `bun:"table:votes"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	GameID     int64  `bun:"game_id,notnull" json:"gameId"`
	QuestionID int64  `bun:"question_id,notnull" json:"questionId"`
	VoterID    int64  `bun:"voter_id,notnull" json:"voterId"`
	AnswerID   *int64 `bun:"answer_id" json:"answerId"`
}

// QuizEntry is one row of the voting list shown to players. Only the slot and
// the text are exposed; authorship never leaves the server.
type QuizEntry struct {
	Slot int    `json:"slot"`
	Text string `json:"text"`
}

// Phase is the position of a game within one question's lifecycle.
type Phase string

const (
	// PhaseAwaitingQuestion: no current question yet, but unasked ones remain.
	PhaseAwaitingQuestion Phase = "awaiting_question"
	// PhaseCollectingAnswers: decoys are still being gathered.
	PhaseCollectingAnswers Phase = "collecting_answers"
	// PhaseVoting: the decoy quota is met; players pick the real answer.
	PhaseVoting Phase = "voting"
	// PhaseSummary: everyone has voted; results are shown.
	PhaseSummary Phase = "summary"
	// PhaseEnded: the topic's question pool is exhausted.
	PhaseEnded Phase = "ended"
)
