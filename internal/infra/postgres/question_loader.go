package postgres

import (
	"context"
	"fmt"

	"psychout-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader reads topic question pools from Postgres. It sits behind the
// cached question repositories so the pool query runs once per TTL window.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, topicID int64) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, topic_id, question_text, answer_text FROM questions WHERE topic_id=$1 ORDER BY id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.TopicID, &q.QuestionText, &q.AnswerText); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return questions, nil
}
