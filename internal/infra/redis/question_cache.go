package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"festive-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var errStaleLoad = errors.New("question list changed during load")

// QuestionLoader fetches a quiz's ordered questions from the record store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// QuestionCache keeps each quiz's ordered question list as JSON in Redis,
// shared by every instance, and falls back to the loader on a miss.
//
//	SET quiz:{quizID}:questions [...] EX ttl
//	INCR quiz:{quizID}:questions:gen   (on Invalidate)
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, quizID string) ([]domain.Question, error) {
	if questions, ok := c.cached(ctx, quizID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.cached(ctx, quizID); ok {
			return questions, nil
		}

		gen, genErr := c.generation(ctx, quizID)
		questions, err := c.loader.ListQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 && genErr == nil {
			if raw, err := json.Marshal(questions); err == nil {
				_ = c.store(ctx, quizID, gen, raw, ttl)
			}
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate deletes the cached list for every instance.
func (c *QuestionCache) Invalidate(ctx context.Context, quizID string) error {
	c.sf.Forget(quizID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(quizID))
		pipe.Del(ctx, c.key(quizID))
		return nil
	})
	if err != nil {
		return domain.Unavailable("invalidate questions", err)
	}
	return nil
}

func (c *QuestionCache) generation(ctx context.Context, quizID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(quizID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// store writes raw only while the generation is still gen, so a load that
// raced an Invalidate on any instance is discarded.
func (c *QuestionCache) store(ctx context.Context, quizID string, gen int64, raw []byte, ttl time.Duration) error {
	genKey := c.genKey(quizID)
	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if errors.Is(err, redis.Nil) {
			current, err = 0, nil
		}
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(quizID), raw, ttl)
			return nil
		})
		return err
	}, genKey)
}

// cached treats Redis errors as misses; the loader stays authoritative.
func (c *QuestionCache) cached(ctx context.Context, quizID string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) key(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (c *QuestionCache) genKey(quizID string) string {
	return c.key(quizID) + ":gen"
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
