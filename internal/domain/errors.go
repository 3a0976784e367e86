package domain

import "errors"

var (
	// ErrNoGame is returned when no game has been started yet.
	ErrNoGame = errors.New("no active game")
	// ErrTopicNotFound indicates an unknown topic name.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrNoQuestions means the topic has no questions at all; this is a
	// configuration error, not something a player can recover from.
	ErrNoQuestions = errors.New("no questions configured for topic")
	// ErrQuestionNotFound indicates a question id that does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrPlayerNotFound is returned when a session resolves to no player.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrSlotTaken signals a lost race on a (game, question, slot) insert.
	// Callers re-read the taken slots and retry; it never reaches a player.
	ErrSlotTaken = errors.New("permutation slot already taken")
	// ErrQuotaReached signals the decoy quota was already met when the insert
	// arrived. The submission is dropped silently.
	ErrQuotaReached = errors.New("decoy quota already met")
	// ErrDuplicateAnswer signals the decoy text is already present for the
	// question. The submission is dropped silently.
	ErrDuplicateAnswer = errors.New("duplicate decoy text")
	// ErrVotingNotOpen rejects a vote cast before the decoy quota is met.
	ErrVotingNotOpen = errors.New("voting not open for this question")
	// ErrSlotNotFound indicates a vote payload naming no known slot.
	ErrSlotNotFound = errors.New("slot matches no quiz entry")
	// ErrAlreadyVoted signals a duplicate (game, question, voter) vote.
	ErrAlreadyVoted = errors.New("player already voted on this question")
	// ErrInvariant indicates corrupted slot state (zero or several free
	// slots at composition time). It aborts the request; a retry cannot fix it.
	ErrInvariant = errors.New("slot invariant violated")
)
