package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"festive-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// AdvanceResult is returned by AdvancePlayer.
type AdvanceResult struct {
	Player       domain.Player `json:"player"`
	Finished     bool          `json:"finished"`
	QuizFinished bool          `json:"quizFinished"`
}

// SessionService runs the session state machine against the record store.
type SessionService struct {
	store     Store
	questions QuestionSource
	notifier  Notifier
	observer  Observer
	logger    *slog.Logger
	retry     RetryPolicy
	now       func() time.Time
	newID     func() string

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Option configures the services in this package.
type Option func(*options)

type options struct {
	observer Observer
	logger   *slog.Logger
	retry    RetryPolicy
	now      func() time.Time
	newID    func() string
	rnd      *rand.Rand
	codeLen  int
}

func defaultOptions() options {
	return options{
		logger:  slog.Default(),
		retry:   DefaultRetryPolicy,
		now:     time.Now,
		newID:   uuid.NewString,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		codeLen: domain.DefaultJoinCodeLength,
	}
}

// WithObserver replaces the notifier as the source of Subscribe updates, e.g. with a Poller.
func WithObserver(o Observer) Option { return func(opts *options) { opts.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(opts *options) { opts.logger = l } }

func WithRetryPolicy(p RetryPolicy) Option { return func(opts *options) { opts.retry = p } }

// WithClock is intended for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option { return func(opts *options) { opts.now = now } }

func WithIDs(newID func() string) Option { return func(opts *options) { opts.newID = newID } }

func WithRand(rnd *rand.Rand) Option { return func(opts *options) { opts.rnd = rnd } }

// WithJoinCodeLength sets the length of generated join codes.
func WithJoinCodeLength(n int) Option { return func(opts *options) { opts.codeLen = n } }

func NewSessionService(store Store, questions QuestionSource, notifier Notifier, opts ...Option) *SessionService {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	observer := o.observer
	if observer == nil {
		observer = notifier
	}
	return &SessionService{
		store:     store,
		questions: questions,
		notifier:  notifier,
		observer:  observer,
		logger:    o.logger,
		retry:     o.retry,
		now:       o.now,
		newID:     o.newID,
		rnd:       o.rnd,
	}
}

// Join adds a player to the quiz identified by code.
func (s *SessionService) Join(ctx context.Context, code, name string) (domain.Player, domain.Quiz, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Player{}, domain.Quiz{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}

	quiz, err := retry(ctx, s.retry, func() (domain.Quiz, error) {
		return s.store.GetQuizByCode(ctx, domain.NormalizeJoinCode(code))
	})
	if err != nil {
		return domain.Player{}, domain.Quiz{}, err
	}
	if err := domain.CheckJoinable(quiz); err != nil {
		return domain.Player{}, quiz, err
	}

	existing, err := retry(ctx, s.retry, func() ([]domain.Player, error) {
		return s.store.ListPlayers(ctx, quiz.ID)
	})
	if err != nil {
		return domain.Player{}, quiz, err
	}
	used := make([]string, 0, len(existing))
	for _, p := range existing {
		used = append(used, p.AvatarID)
	}
	avatar := domain.PickAvatar(used, s.intn)

	player := domain.NewPlayer(s.newID(), quiz, name, avatar.ID, s.now())
	created, err := retry(ctx, s.retry, func() (domain.Player, error) {
		return s.store.CreatePlayer(ctx, player)
	})
	if err != nil {
		return domain.Player{}, quiz, err
	}

	s.publish(ctx, quiz.ID, domain.ChangePlayer, created.ID)
	s.logger.Info("player joined", "quiz_id", quiz.ID, "player_id", created.ID, "avatar", created.AvatarID)
	return created, quiz, nil
}

// Start moves a waiting quiz to active.
func (s *SessionService) Start(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := s.Quiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if _, err := domain.StartQuiz(quiz); err != nil {
		return quiz, fmt.Errorf("%w: quiz is %s", err, quiz.Status)
	}

	started, err := retry(ctx, s.retry, func() (domain.Quiz, error) {
		return s.store.TransitionQuiz(ctx, quizID, domain.QuizWaiting, domain.QuizActive)
	})
	if err != nil {
		return quiz, err
	}
	s.publish(ctx, quizID, domain.ChangeQuiz, quizID)
	s.logger.Info("quiz started", "quiz_id", quizID)
	return started, nil
}

// SubmitAnswer judges and stores a player's answer. Resubmissions replace the
// earlier answer. The player's position is not changed.
func (s *SessionService) SubmitAnswer(ctx context.Context, playerID, questionID, text string) (domain.Answer, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Answer{}, fmt.Errorf("%w: answer is required", domain.ErrInvalidInput)
	}
	player, quiz, err := s.playerAndQuiz(ctx, playerID)
	if err != nil {
		return domain.Answer{}, err
	}
	if quiz.Status != domain.QuizActive {
		return domain.Answer{}, fmt.Errorf("%w: quiz is %s", domain.ErrInvalidState, quiz.Status)
	}
	if player.Status != domain.PlayerPlaying {
		return domain.Answer{}, fmt.Errorf("%w: player has finished", domain.ErrInvalidState)
	}

	question, err := retry(ctx, s.retry, func() (domain.Question, error) {
		return s.store.GetQuestion(ctx, questionID)
	})
	if err != nil {
		return domain.Answer{}, err
	}
	if question.QuizID != quiz.ID {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}

	answer := domain.Answer{
		ID:         s.newID(),
		PlayerID:   player.ID,
		QuestionID: question.ID,
		Text:       text,
		Correct:    domain.JudgeAnswer(question, text),
		AnsweredAt: s.now(),
	}
	saved, err := retry(ctx, s.retry, func() (domain.Answer, error) {
		return s.store.UpsertAnswer(ctx, answer)
	})
	if err != nil {
		return domain.Answer{}, err
	}
	s.publish(ctx, quiz.ID, domain.ChangeAnswer, saved.ID)
	return saved, nil
}

// AdvancePlayer moves the player to their next question, finishing them after
// the last one. The last player to finish closes the quiz.
func (s *SessionService) AdvancePlayer(ctx context.Context, playerID string) (AdvanceResult, error) {
	player, quiz, err := s.playerAndQuiz(ctx, playerID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if quiz.Status == domain.QuizWaiting {
		return AdvanceResult{}, fmt.Errorf("%w: quiz has not started", domain.ErrInvalidState)
	}

	if player.Status == domain.PlayerFinished {
		closed, err := s.Reconcile(ctx, quiz.ID)
		if err != nil {
			return AdvanceResult{}, err
		}
		return AdvanceResult{Player: player, Finished: true, QuizFinished: closed || quiz.Status == domain.QuizFinished}, nil
	}

	questions, err := s.questionList(ctx, quiz.ID)
	if err != nil {
		return AdvanceResult{}, err
	}

	next, finished := domain.AdvancePlayer(player, len(questions))
	if !finished {
		updated, err := retry(ctx, s.retry, func() (domain.Player, error) {
			return s.store.SetPlayerIndex(ctx, player.ID, next.QuestionIndex)
		})
		if err != nil {
			return AdvanceResult{}, err
		}
		s.publish(ctx, quiz.ID, domain.ChangePlayer, player.ID)
		return AdvanceResult{Player: updated}, nil
	}

	res, err := retry(ctx, s.retry, func() (domain.FinishResult, error) {
		return s.store.FinishPlayer(ctx, player.ID)
	})
	if err != nil {
		return AdvanceResult{}, err
	}
	s.publish(ctx, quiz.ID, domain.ChangePlayer, player.ID)
	s.logger.Info("player finished", "quiz_id", quiz.ID, "player_id", player.ID)
	if res.QuizFinished {
		s.publish(ctx, quiz.ID, domain.ChangeQuiz, quiz.ID)
		s.logger.Info("quiz finished", "quiz_id", quiz.ID, "last_player_id", player.ID)
	}
	return AdvanceResult{Player: res.Player, Finished: true, QuizFinished: res.QuizFinished}, nil
}

// Score returns the player's correct answers out of the quiz's question count.
func (s *SessionService) Score(ctx context.Context, playerID string) (domain.Score, error) {
	player, err := s.Player(ctx, playerID)
	if err != nil {
		return domain.Score{}, err
	}
	questions, err := s.questionList(ctx, player.QuizID)
	if err != nil {
		return domain.Score{}, err
	}
	answers, err := s.Answers(ctx, playerID)
	if err != nil {
		return domain.Score{}, err
	}
	return domain.ComputeScore(player, answers, questions), nil
}

// Leaderboard scores every player of the quiz.
func (s *SessionService) Leaderboard(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	snap, err := s.Snapshot(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return snap.Leaderboard, nil
}

// Snapshot reads the current quiz, roster and leaderboard.
func (s *SessionService) Snapshot(ctx context.Context, quizID string) (domain.Snapshot, error) {
	quiz, err := s.Quiz(ctx, quizID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	players, err := s.Players(ctx, quizID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	questions, err := s.questionList(ctx, quizID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	answers, err := retry(ctx, s.retry, func() ([]domain.Answer, error) {
		return s.store.ListAnswers(ctx, domain.AnswerFilter{QuizID: quizID})
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		Quiz:        quiz,
		Players:     players,
		Leaderboard: domain.BuildLeaderboard(quizID, players, answers, questions, s.now()),
	}, nil
}

// Reconcile closes the quiz when every player has finished. It is safe to call repeatedly.
func (s *SessionService) Reconcile(ctx context.Context, quizID string) (bool, error) {
	closed, err := retry(ctx, s.retry, func() (bool, error) {
		return s.store.CloseIfDone(ctx, quizID)
	})
	if err != nil {
		return false, err
	}
	if closed {
		s.publish(ctx, quizID, domain.ChangeQuiz, quizID)
		s.logger.Info("quiz finished by reconciliation", "quiz_id", quizID)
	}
	return closed, nil
}

// Subscribe streams snapshots of the quiz, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(ctx context.Context, quizID string) (<-chan domain.Snapshot, func(), error) {
	if s.observer == nil {
		return nil, nil, fmt.Errorf("%w: no observer configured", domain.ErrInvalidState)
	}
	if _, err := s.Quiz(ctx, quizID); err != nil {
		return nil, nil, err
	}
	changes, cancelChanges, err := s.observer.Subscribe(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan domain.Snapshot, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		send := func() bool {
			snap, err := s.Snapshot(ctx, quizID)
			if err != nil {
				s.logger.Warn("snapshot failed", "quiz_id", quizID, "error", err)
				return true
			}
			select {
			case out <- snap:
				return true
			case <-done:
			case <-ctx.Done():
			}
			return false
		}

		if !send() {
			return
		}
		for {
			select {
			case _, ok := <-changes:
				if !ok {
					return
				}
				drain(changes)
				if !send() {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			cancelChanges()
		})
	}
	return out, cancel, nil
}

// drain discards queued changes so a burst produces one snapshot.
func drain(changes <-chan domain.Change) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (s *SessionService) Quiz(ctx context.Context, id string) (domain.Quiz, error) {
	return retry(ctx, s.retry, func() (domain.Quiz, error) {
		return s.store.GetQuiz(ctx, id)
	})
}

func (s *SessionService) QuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	return retry(ctx, s.retry, func() (domain.Quiz, error) {
		return s.store.GetQuizByCode(ctx, domain.NormalizeJoinCode(code))
	})
}

func (s *SessionService) Player(ctx context.Context, id string) (domain.Player, error) {
	return retry(ctx, s.retry, func() (domain.Player, error) {
		return s.store.GetPlayer(ctx, id)
	})
}

func (s *SessionService) Players(ctx context.Context, quizID string) ([]domain.Player, error) {
	return retry(ctx, s.retry, func() ([]domain.Player, error) {
		return s.store.ListPlayers(ctx, quizID)
	})
}

// Questions returns the quiz's questions in play order.
func (s *SessionService) Questions(ctx context.Context, quizID string) ([]domain.Question, error) {
	if _, err := s.Quiz(ctx, quizID); err != nil {
		return nil, err
	}
	return s.questionList(ctx, quizID)
}

// Answers returns the answers submitted by one player.
func (s *SessionService) Answers(ctx context.Context, playerID string) ([]domain.Answer, error) {
	return retry(ctx, s.retry, func() ([]domain.Answer, error) {
		return s.store.ListAnswers(ctx, domain.AnswerFilter{PlayerID: playerID})
	})
}

func (s *SessionService) questionList(ctx context.Context, quizID string) ([]domain.Question, error) {
	return retry(ctx, s.retry, func() ([]domain.Question, error) {
		return s.questions.Questions(ctx, quizID)
	})
}

func (s *SessionService) playerAndQuiz(ctx context.Context, playerID string) (domain.Player, domain.Quiz, error) {
	player, err := s.Player(ctx, playerID)
	if err != nil {
		return domain.Player{}, domain.Quiz{}, err
	}
	quiz, err := s.Quiz(ctx, player.QuizID)
	if err != nil {
		return domain.Player{}, domain.Quiz{}, err
	}
	return player, quiz, nil
}

func (s *SessionService) publish(ctx context.Context, quizID string, kind domain.ChangeKind, recordID string) {
	publish(ctx, s.notifier, s.logger, domain.Change{QuizID: quizID, Kind: kind, RecordID: recordID, At: s.now()})
}

func (s *SessionService) intn(n int) int {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.rnd.Intn(n)
}

// publish logs and drops notification failures.
func publish(ctx context.Context, notifier Notifier, logger *slog.Logger, change domain.Change) {
	if notifier == nil {
		return
	}
	if err := notifier.Publish(ctx, change); err != nil {
		logger.Warn("publish change failed", "quiz_id", change.QuizID, "kind", change.Kind, "error", err)
	}
}
