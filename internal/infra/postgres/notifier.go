package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"festive-quiz-service/internal/domain"
	"festive-quiz-service/internal/infra/memory"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const notifyChannel = "quiz_changes"

// Notifier fans changes out through Postgres LISTEN/NOTIFY, so every instance
// sharing the database sees every committed write.
type Notifier struct {
	pool   *pgxpool.Pool
	local  *memory.Broadcaster
	logger *slog.Logger

	retryInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewNotifier(pool *pgxpool.Pool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		pool:          pool,
		local:         memory.NewBroadcaster(),
		logger:        logger,
		retryInterval: 500 * time.Millisecond,
	}
}

// Start holds one pooled connection in LISTEN mode until Close. A dropped
// connection is replaced with backoff; changes sent while reconnecting are lost.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return nil
	}

	conn, err := n.acquireListener(ctx)
	if err != nil {
		return err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.run(listenCtx, conn, n.done)
	return nil
}

func (n *Notifier) acquireListener(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	return conn, nil
}

func (n *Notifier) run(ctx context.Context, conn *pgxpool.Conn, done chan struct{}) {
	defer close(done)
	for {
		err := n.listen(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		n.logger.Warn("listen for quiz changes interrupted, reconnecting", "error", err)

		conn, err = n.reconnect(ctx)
		if err != nil {
			return
		}
		n.logger.Info("listening for quiz changes again")
	}
}

// reconnect retries until a listener is back or ctx is canceled.
func (n *Notifier) reconnect(ctx context.Context) (*pgxpool.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.retryInterval
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	var conn *pgxpool.Conn
	err := backoff.RetryNotify(func() error {
		c, err := n.acquireListener(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		n.logger.Warn("reconnect quiz change listener failed", "error", err, "retry_in", wait)
	})
	return conn, err
}

// listen forwards notifications until the connection fails. It always
// releases conn, destroying it so a broken connection is not reused.
func (n *Notifier) listen(ctx context.Context, conn *pgxpool.Conn) error {
	defer func() {
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}()
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var change domain.Change
		if err := json.Unmarshal([]byte(notification.Payload), &change); err != nil {
			n.logger.Warn("discarding malformed change", "payload", notification.Payload, "error", err)
			continue
		}
		_ = n.local.Publish(ctx, change)
	}
}

func (n *Notifier) Close() error {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel = nil
	n.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (n *Notifier) Publish(ctx context.Context, change domain.Change) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if _, err := n.pool.Exec(ctx, "SELECT pg_notify($1, $2)", notifyChannel, string(raw)); err != nil {
		return domain.Unavailable("notify change", err)
	}
	return nil
}

func (n *Notifier) Subscribe(ctx context.Context, quizID string) (<-chan domain.Change, func(), error) {
	return n.local.Subscribe(ctx, quizID)
}
