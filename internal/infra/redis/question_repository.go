package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"psychout-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a topic's question pool from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, topicID int64) ([]domain.Question, error)
}

// QuestionRepository caches topic pools in Redis (hash per topic) and falls
// back to the loader on cache miss.
// Questions are stored as: HSET psychout:topic:{topicID}:questions {questionID} {json}
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) QuestionsByTopic(ctx context.Context, topicID int64) ([]domain.Question, error) {
	key := r.poolKey(topicID)

	cached, err := r.client.HGetAll(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		return decodePool(cached)
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := r.client.HGetAll(ctx, key).Result()
		if err == nil && len(cached) > 0 {
			return decodePoolRaw(cached)
		}

		questions, err := r.loader.LoadQuestions(ctx, topicID)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return questions, nil
		}

		pipe := r.client.Pipeline()
		for _, q := range questions {
			data, err := json.Marshal(cachedQuestion{
				ID:           q.ID,
				TopicID:      q.TopicID,
				QuestionText: q.QuestionText,
				AnswerText:   q.AnswerText,
			})
			if err != nil {
				return nil, err
			}
			pipe.HSet(ctx, key, strconv.FormatInt(q.ID, 10), data)
		}
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) poolKey(topicID int64) string {
	return "psychout:topic:" + strconv.FormatInt(topicID, 10) + ":questions"
}

// cachedQuestion mirrors domain.Question but keeps the answer text in the
// JSON payload; the cache is server-side only and never leaves the process.
type cachedQuestion struct {
	ID           int64  `json:"id"`
	TopicID      int64  `json:"topicId"`
	QuestionText string `json:"questionText"`
	AnswerText   string `json:"answerText"`
}

func decodePool(cached map[string]string) ([]domain.Question, error) {
	raw, err := decodePoolRaw(cached)
	if err != nil {
		return nil, err
	}
	return raw.([]domain.Question), nil
}

func decodePoolRaw(cached map[string]string) (interface{}, error) {
	questions := make([]domain.Question, 0, len(cached))
	for _, payload := range cached {
		var cq cachedQuestion
		if err := json.Unmarshal([]byte(payload), &cq); err != nil {
			return nil, err
		}
		questions = append(questions, domain.Question{
			ID:           cq.ID,
			TopicID:      cq.TopicID,
			QuestionText: cq.QuestionText,
			AnswerText:   cq.AnswerText,
		})
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions, nil
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
