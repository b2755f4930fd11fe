package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"festive-quiz-service/internal/domain"
	"festive-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "quiz:changes:"

// Notifier publishes changes on Redis pub/sub so every instance sees them.
// Notes:
//   - One pattern subscription per process receives all quizzes' changes.
//   - Local subscribers are served by an in-process Broadcaster.
type Notifier struct {
	client *redis.Client
	local  *memory.Broadcaster
	logger *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewNotifier(client *redis.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client: client,
		local:  memory.NewBroadcaster(),
		logger: logger,
	}
}

// Start subscribes to the change channels and forwards messages until Close.
// Changes published before Start returns may be missed.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pubsub != nil {
		return nil
	}

	pubsub := n.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to quiz changes: %w", err)
	}
	n.pubsub = pubsub
	n.done = make(chan struct{})

	go n.forward(pubsub.Channel(), n.done)
	return nil
}

func (n *Notifier) forward(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		var change domain.Change
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			n.logger.Warn("discarding malformed change", "channel", msg.Channel, "error", err)
			continue
		}
		if change.QuizID == "" {
			change.QuizID = strings.TrimPrefix(msg.Channel, channelPrefix)
		}
		_ = n.local.Publish(context.Background(), change)
	}
}

// Close stops the subscription.
func (n *Notifier) Close() error {
	n.mu.Lock()
	pubsub, done := n.pubsub, n.done
	n.pubsub = nil
	n.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}

func (n *Notifier) Publish(ctx context.Context, change domain.Change) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, channelPrefix+change.QuizID, raw).Err(); err != nil {
		return domain.Unavailable("publish change", err)
	}
	return nil
}

func (n *Notifier) Subscribe(ctx context.Context, quizID string) (<-chan domain.Change, func(), error) {
	return n.local.Subscribe(ctx, quizID)
}
