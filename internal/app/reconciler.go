package app

import (
	"context"
	"log/slog"
	"time"

	"festive-quiz-service/internal/domain"
)

// Reconciler periodically closes active quizzes whose players have all finished.
// It backs up the atomic finish in FinishPlayer when a request dies between the
// player's own update and the aggregate step.
type Reconciler struct {
	store    Store
	sessions *SessionService
	interval time.Duration
	logger   *slog.Logger
}

func NewReconciler(store Store, sessions *SessionService, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, sessions: sessions, interval: interval, logger: logger}
}

// Run sweeps until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("reconcile sweep failed", "error", err)
			}
		}
	}
}

// Sweep checks every active quiz once and returns the ids it closed.
func (r *Reconciler) Sweep(ctx context.Context) ([]string, error) {
	quizzes, err := r.store.ListQuizzes(ctx, domain.QuizFilter{Status: domain.QuizActive})
	if err != nil {
		return nil, err
	}
	var closed []string
	for _, q := range quizzes {
		ok, err := r.sessions.Reconcile(ctx, q.ID)
		if err != nil {
			r.logger.Warn("reconcile quiz failed", "quiz_id", q.ID, "error", err)
			continue
		}
		if ok {
			closed = append(closed, q.ID)
		}
	}
	return closed, nil
}
