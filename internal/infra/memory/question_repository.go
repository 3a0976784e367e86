package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"psychout-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a topic's question pool from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, topicID int64) ([]domain.Question, error)
}

// QuestionRepository caches topic pools with TTL. Questions are immutable
// after creation, so a stale window only delays newly seeded topics.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedPool),
	}
}

func (r *QuestionRepository) QuestionsByTopic(ctx context.Context, topicID int64) ([]domain.Question, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[topicID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(strconv.FormatInt(topicID, 10), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[topicID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.questions, nil
		}
		r.mu.RUnlock()

		questions, err := r.loader.LoadQuestions(ctx, topicID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[topicID] = cachedPool{
			questions: questions,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StoreLoader adapts the in-memory GameStore to the QuestionLoader interface.
type StoreLoader struct {
	Store *GameStore
}

func (l StoreLoader) LoadQuestions(ctx context.Context, topicID int64) ([]domain.Question, error) {
	return l.Store.QuestionsByTopic(ctx, topicID)
}
