package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizroom/internal/domain"
)

// QuestionLoader fetches question sets from the backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// QuestionCache keeps question sets as JSON under quiz:{quizID}:questions and
// falls back to the loader on a miss. Redis errors degrade to a direct load.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	log    *slog.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration, log *slog.Logger) *QuestionCache {
	if log == nil {
		log = slog.Default()
	}
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	if questions, ok := c.cached(ctx, quizID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		// Another caller may have filled the key while we waited.
		if questions, ok := c.cached(ctx, quizID); ok {
			return questions, nil
		}
		questions, err := c.loader.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("encode questions: %w", err)
		}
		if err := c.client.Set(ctx, questionsKey(quizID), raw, c.ttlWithJitter()).Err(); err != nil {
			c.log.Warn("cache questions", "quiz", quizID, "err", err)
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached set, e.g. after the quiz was edited.
func (c *QuestionCache) Invalidate(ctx context.Context, quizID int64) error {
	return c.client.Del(ctx, questionsKey(quizID)).Err()
}

func (c *QuestionCache) cached(ctx context.Context, quizID int64) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, questionsKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("read cached questions", "quiz", quizID, "err", err)
		}
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		c.log.Warn("decode cached questions", "quiz", quizID, "err", err)
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionsKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":questions"
}
