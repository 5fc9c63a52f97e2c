package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/samber/lo"

	"quizroom/internal/domain"
)

// QuestionLoader reads a quiz's questions and their options in two queries.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	var exists bool
	if err := l.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)`, quizID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if !exists {
		return nil, domain.ErrQuizNotFound
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, quiz_id, question_text, time_limit, COALESCE(image_url, ''), order_index
		 FROM questions WHERE quiz_id = $1 ORDER BY order_index, id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	questions := make([]domain.Question, 0)
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &q.TimeLimit, &q.Image, &q.OrderIndex); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	ids := lo.Map(questions, func(q domain.Question, _ int) int64 { return q.ID })
	rows, err = l.pool.Query(ctx,
		`SELECT id, question_id, option_text, is_correct, COALESCE(color, ''), order_index
		 FROM options WHERE question_id = ANY($1) ORDER BY question_id, order_index, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()

	byQuestion := make(map[int64][]domain.Option, len(questions))
	for rows.Next() {
		var (
			opt        domain.Option
			questionID int64
		)
		if err := rows.Scan(&opt.ID, &questionID, &opt.Text, &opt.IsCorrect, &opt.Color, &opt.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		byQuestion[questionID] = append(byQuestion[questionID], opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}

	for i := range questions {
		questions[i].Options = byQuestion[questions[i].ID]
	}
	return questions, nil
}
