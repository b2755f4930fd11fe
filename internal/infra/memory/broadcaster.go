package memory

import (
	"context"
	"sync"

	"festive-quiz-service/internal/domain"
)

// Broadcaster is an in-process implementation of app.Notifier. It also serves
// as the local fan-out behind the Redis and Postgres notifiers.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Change]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]map[chan domain.Change]struct{})}
}

func (b *Broadcaster) Publish(_ context.Context, change domain.Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[change.QuizID] {
		select {
		case ch <- change:
		default:
			// slow subscriber: drop its oldest pending change
			select {
			case <-ch:
			default:
			}
			ch <- change
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(_ context.Context, quizID string) (<-chan domain.Change, func(), error) {
	ch := make(chan domain.Change, 8)

	b.mu.Lock()
	subs, ok := b.subscribers[quizID]
	if !ok {
		subs = make(map[chan domain.Change]struct{})
		b.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[quizID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(b.subscribers, quizID)
		}
	}
	return ch, cancel, nil
}

// Subscribers reports how many subscriptions are open for a quiz.
func (b *Broadcaster) Subscribers(quizID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[quizID])
}
