package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"exam-grading-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads a paper's questions from the questions table, one JSONB
// document per question.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, paperID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT number, data FROM questions WHERE paper_id=$1 ORDER BY number`, paperID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			number int
			raw    []byte
		)
		if err := rows.Scan(&number, &raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question %d: %w", number, err)
		}
		q.PaperID = paperID
		q.Number = number
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrPaperNotFound
	}
	return questions, nil
}
