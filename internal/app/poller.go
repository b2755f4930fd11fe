package app

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"log/slog"
	"time"

	"festive-quiz-service/internal/domain"
)

// Poller is an Observer for stores without push notifications. Each subscriber
// polls the quiz record set and receives a change whenever its content differs
// from the previous poll.
type Poller struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewPoller(store Store, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{store: store, interval: interval, logger: logger, now: time.Now}
}

// Subscribe starts a polling loop for quizID. The first poll only records a baseline.
func (p *Poller) Subscribe(ctx context.Context, quizID string) (<-chan domain.Change, func(), error) {
	last, err := p.fingerprint(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.Change, 1)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current, err := p.fingerprint(ctx, quizID)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("poll failed", "quiz_id", quizID, "error", err)
				}
				continue
			}
			if current == last {
				continue
			}
			last = current
			select {
			case ch <- domain.Change{QuizID: quizID, Kind: domain.ChangeQuiz, RecordID: quizID, At: p.now()}:
			default:
				// a change is already pending; the reader will snapshot the latest state
			}
		}
	}()
	return ch, cancel, nil
}

func (p *Poller) fingerprint(ctx context.Context, quizID string) ([sha256.Size]byte, error) {
	quiz, err := p.store.GetQuiz(ctx, quizID)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	players, err := p.store.ListPlayers(ctx, quizID)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	answers, err := p.store.ListAnswers(ctx, domain.AnswerFilter{QuizID: quizID})
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	questions, err := p.store.ListQuestions(ctx, quizID)
	if err != nil {
		return [sha256.Size]byte{}, err
	}

	raw, err := json.Marshal(struct {
		Quiz      domain.Quiz       `json:"quiz"`
		Players   []domain.Player   `json:"players"`
		Answers   []domain.Answer   `json:"answers"`
		Questions []domain.Question `json:"questions"`
	}{quiz, players, answers, questions})
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(raw), nil
}
