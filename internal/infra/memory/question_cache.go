package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"festive-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a quiz's ordered questions from the record store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// QuestionCache caches question lists with TTL to avoid repeated store hits.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuestions
	// gens is bumped by Invalidate; a load only stores its result if the
	// generation it started under is still current.
	gens map[string]uint64
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
		cache:  make(map[string]cachedQuestions),
		gens:   make(map[string]uint64),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, quizID string) ([]domain.Question, error) {
	if questions, ok := c.lookup(quizID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		if questions, ok := c.lookup(quizID); ok {
			return questions, nil
		}

		now := c.clock()
		c.mu.RLock()
		gen := c.gens[quizID]
		c.mu.RUnlock()

		questions, err := c.loader.ListQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if ttl := c.ttlWithJitterLocked(); ttl > 0 && c.gens[quizID] == gen {
			c.cache[quizID] = cachedQuestions{questions: questions, expiresAt: now.Add(ttl)}
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached list so the next read reloads it.
func (c *QuestionCache) Invalidate(_ context.Context, quizID string) error {
	c.sf.Forget(quizID)
	c.mu.Lock()
	delete(c.cache, quizID)
	c.gens[quizID]++
	c.mu.Unlock()
	return nil
}

func (c *QuestionCache) lookup(quizID string) ([]domain.Question, bool) {
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
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
