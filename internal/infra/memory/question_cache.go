package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizroom/internal/domain"
)

// QuestionLoader fetches question sets from the backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// QuestionCache keeps question sets in process memory with a TTL so rooms on
// the same quiz share one load.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[int64]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedQuestions),
	}
}

func (c *QuestionCache) LoadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	if questions, ok := c.lookup(quizID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		if questions, ok := c.lookup(quizID); ok {
			return questions, nil
		}
		questions, err := c.loader.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[quizID] = cachedQuestions{
			questions: questions,
			expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) lookup(quizID int64) ([]domain.Question, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[quizID]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return entry.questions, true
}

func (c *QuestionCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations of quizzes loaded together
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticQuestions serves fixed question sets, for demos and tests.
type StaticQuestions struct {
	quizzes map[int64][]domain.Question
}

func NewStaticQuestions(quizzes map[int64][]domain.Question) *StaticQuestions {
	return &StaticQuestions{quizzes: quizzes}
}

func (s *StaticQuestions) LoadQuestions(_ context.Context, quizID int64) ([]domain.Question, error) {
	if questions, ok := s.quizzes[quizID]; ok {
		return questions, nil
	}
	return nil, domain.ErrQuizNotFound
}
