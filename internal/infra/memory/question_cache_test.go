package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"quizroom/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestions(map[int64][]domain.Question{1: sampleQuestions()})}
	cache := NewQuestionCache(loader, time.Minute)

	if _, err := cache.LoadQuestions(context.Background(), 1); err != nil {
		t.Fatalf("load questions: %v", err)
	}
	questions, err := cache.LoadQuestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("load questions 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
	if len(questions) != 2 || questions[0].Options[1].ID != 2 {
		t.Fatalf("unexpected questions %+v", questions)
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestions(map[int64][]domain.Question{1: sampleQuestions()})}
	cache := NewQuestionCache(loader, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	cache.clock = func() time.Time { return now }

	if _, err := cache.LoadQuestions(context.Background(), 1); err != nil {
		t.Fatalf("load questions: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cache.LoadQuestions(context.Background(), 1); err != nil {
		t.Fatalf("load questions after expiry: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionCacheDoesNotCacheErrors(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestions(nil)}
	cache := NewQuestionCache(loader, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cache.LoadQuestions(context.Background(), 9)
		if !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected ErrQuizNotFound, got %v", err)
		}
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected every miss to reach the loader, got %d", loader.calls.Load())
	}
}

type countingLoader struct {
	QuestionLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	l.calls.Add(1)
	return l.QuestionLoader.LoadQuestions(ctx, quizID)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:        10,
			QuizID:    1,
			Text:      "What is 2 + 2?",
			TimeLimit: 30,
			Options: []domain.Option{
				{ID: 1, Text: "3"},
				{ID: 2, Text: "4", IsCorrect: true},
			},
		},
		{
			ID:         11,
			QuizID:     1,
			Text:       "Capital of France?",
			TimeLimit:  20,
			OrderIndex: 1,
			Options: []domain.Option{
				{ID: 3, Text: "Paris", IsCorrect: true},
				{ID: 4, Text: "Lyon"},
			},
		},
	}
}
