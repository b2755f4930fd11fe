package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"festive-quiz-service/internal/domain"
)

const joinCodeAttempts = 5

// QuizUpdate carries the optional fields of an admin quiz edit.
type QuizUpdate struct {
	Title  *string
	Status *domain.QuizStatus
}

// QuestionInput is an authored question before ids and defaults are assigned.
type QuestionInput struct {
	Text           string
	Type           domain.QuestionType
	Options        []string
	CorrectAnswers []string
	OrderIndex     *int
	ImageURL       string
	Category       string
}

// MoveDirection is the direction a question moves in the play order.
type MoveDirection string

const (
	MoveUp   MoveDirection = "up"
	MoveDown MoveDirection = "down"
)

// AdminService implements quiz authoring. Callers must authenticate admins first.
type AdminService struct {
	store     Store
	questions QuestionSource
	notifier  Notifier
	logger    *slog.Logger
	retry     RetryPolicy
	now       func() time.Time
	newID     func() string
	codeLen   int
}

func NewAdminService(store Store, questions QuestionSource, notifier Notifier, opts ...Option) *AdminService {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &AdminService{
		store:     store,
		questions: questions,
		notifier:  notifier,
		logger:    o.logger,
		retry:     o.retry,
		now:       o.now,
		newID:     o.newID,
		codeLen:   o.codeLen,
	}
}

// CreateQuiz creates a waiting quiz. An empty code asks for a generated one.
func (s *AdminService) CreateQuiz(ctx context.Context, title, code string) (domain.Quiz, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Quiz{}, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}

	if code != "" {
		code = domain.NormalizeJoinCode(code)
		if !domain.ValidJoinCode(code) {
			return domain.Quiz{}, fmt.Errorf("%w: join code must be alphanumeric", domain.ErrInvalidInput)
		}
		return s.insertQuiz(ctx, title, code)
	}

	for i := 0; i < joinCodeAttempts; i++ {
		generated, err := domain.NewJoinCode(s.codeLen)
		if err != nil {
			return domain.Quiz{}, err
		}
		quiz, err := s.insertQuiz(ctx, title, generated)
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			continue
		}
		return quiz, err
	}
	return domain.Quiz{}, fmt.Errorf("create quiz: %w", domain.ErrJoinCodeTaken)
}

func (s *AdminService) insertQuiz(ctx context.Context, title, code string) (domain.Quiz, error) {
	quiz := domain.Quiz{
		ID:        s.newID(),
		Title:     title,
		JoinCode:  code,
		Status:    domain.QuizWaiting,
		CreatedAt: s.now(),
	}
	created, err := retry(ctx, s.retry, func() (domain.Quiz, error) {
		return s.store.CreateQuiz(ctx, quiz)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	s.logger.Info("quiz created", "quiz_id", created.ID, "join_code", created.JoinCode)
	return created, nil
}

func (s *AdminService) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return retry(ctx, s.retry, func() ([]domain.Quiz, error) {
		return s.store.ListQuizzes(ctx, domain.QuizFilter{})
	})
}

func (s *AdminService) GetQuiz(ctx context.Context, id string) (domain.Quiz, error) {
	return retry(ctx, s.retry, func() (domain.Quiz, error) {
		return s.store.GetQuiz(ctx, id)
	})
}

// UpdateQuiz renames the quiz and/or moves its status forward.
func (s *AdminService) UpdateQuiz(ctx context.Context, id string, update QuizUpdate) (domain.Quiz, error) {
	quiz, err := s.GetQuiz(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}

	var title string
	if update.Title != nil {
		title = strings.TrimSpace(*update.Title)
		if title == "" {
			return domain.Quiz{}, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
		}
	}
	from := quiz.Status
	transition := update.Status != nil && *update.Status != from
	if transition && !domain.TransitionAllowed(from, *update.Status) {
		return quiz, fmt.Errorf("%w: cannot move quiz from %s to %s", domain.ErrInvalidState, from, *update.Status)
	}

	if update.Title != nil {
		quiz, err = retry(ctx, s.retry, func() (domain.Quiz, error) {
			return s.store.RenameQuiz(ctx, id, title)
		})
		if err != nil {
			return domain.Quiz{}, err
		}
	}

	if transition {
		to := *update.Status
		quiz, err = retry(ctx, s.retry, func() (domain.Quiz, error) {
			return s.store.TransitionQuiz(ctx, id, from, to)
		})
		if err != nil {
			return domain.Quiz{}, err
		}
		s.logger.Info("quiz status changed by admin", "quiz_id", id, "from", from, "to", to)
	}

	s.publish(ctx, id, domain.ChangeQuiz, id)
	return quiz, nil
}

// DeleteQuiz removes the quiz with its questions, players and answers.
func (s *AdminService) DeleteQuiz(ctx context.Context, id string) error {
	if err := retryErr(ctx, s.retry, func() error { return s.store.DeleteQuiz(ctx, id) }); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.publish(ctx, id, domain.ChangeQuiz, id)
	s.logger.Info("quiz deleted", "quiz_id", id)
	return nil
}

// ResetQuiz returns the quiz to waiting and clears its roster and answers.
func (s *AdminService) ResetQuiz(ctx context.Context, id string) (domain.Quiz, error) {
	quiz, err := retry(ctx, s.retry, func() (domain.Quiz, error) {
		return s.store.ResetQuiz(ctx, id)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	s.invalidate(ctx, id)
	s.publish(ctx, id, domain.ChangeQuiz, id)
	s.logger.Info("quiz reset", "quiz_id", id)
	return quiz, nil
}

// ListQuestions reads questions straight from the store, bypassing the cache.
func (s *AdminService) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	if _, err := s.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return retry(ctx, s.retry, func() ([]domain.Question, error) {
		return s.store.ListQuestions(ctx, quizID)
	})
}

// AddQuestion validates and appends a question. Without an explicit order
// index it is placed after the current last question.
func (s *AdminService) AddQuestion(ctx context.Context, quizID string, in QuestionInput) (domain.Question, error) {
	existing, err := s.ListQuestions(ctx, quizID)
	if err != nil {
		return domain.Question{}, err
	}

	question := domain.Question{
		ID:             s.newID(),
		QuizID:         quizID,
		Text:           strings.TrimSpace(in.Text),
		Type:           in.Type,
		Options:        trimAll(in.Options),
		CorrectAnswers: trimAll(in.CorrectAnswers),
		ImageURL:       strings.TrimSpace(in.ImageURL),
		Category:       strings.TrimSpace(in.Category),
		CreatedAt:      s.now(),
	}
	if question.Type == "" {
		question.Type = domain.FreeText
		if len(question.Options) > 0 {
			question.Type = domain.MultipleChoice
		}
	}
	if in.OrderIndex != nil {
		question.OrderIndex = *in.OrderIndex
	} else {
		question.OrderIndex = domain.NextOrderIndex(existing)
	}
	if err := domain.ValidateQuestion(question); err != nil {
		return domain.Question{}, err
	}

	created, err := retry(ctx, s.retry, func() (domain.Question, error) {
		return s.store.CreateQuestion(ctx, question)
	})
	if err != nil {
		return domain.Question{}, err
	}
	s.invalidate(ctx, quizID)
	s.publish(ctx, quizID, domain.ChangeQuestion, created.ID)
	return created, nil
}

func (s *AdminService) DeleteQuestion(ctx context.Context, id string) error {
	question, err := retry(ctx, s.retry, func() (domain.Question, error) {
		return s.store.GetQuestion(ctx, id)
	})
	if err != nil {
		return err
	}
	if err := retryErr(ctx, s.retry, func() error { return s.store.DeleteQuestion(ctx, id) }); err != nil {
		return err
	}
	s.invalidate(ctx, question.QuizID)
	s.publish(ctx, question.QuizID, domain.ChangeQuestion, id)
	return nil
}

// SetQuestionOrder moves a question to a free order index.
func (s *AdminService) SetQuestionOrder(ctx context.Context, id string, orderIndex int) (domain.Question, error) {
	question, err := retry(ctx, s.retry, func() (domain.Question, error) {
		return s.store.SetQuestionOrder(ctx, id, orderIndex)
	})
	if err != nil {
		return domain.Question{}, err
	}
	s.invalidate(ctx, question.QuizID)
	s.publish(ctx, question.QuizID, domain.ChangeQuestion, id)
	return question, nil
}

// MoveQuestion swaps a question's order index with its neighbour and returns
// the reordered list. Moving past either end leaves the order unchanged.
func (s *AdminService) MoveQuestion(ctx context.Context, id string, dir MoveDirection) ([]domain.Question, error) {
	if dir != MoveUp && dir != MoveDown {
		return nil, fmt.Errorf("%w: direction must be up or down", domain.ErrInvalidInput)
	}
	question, err := retry(ctx, s.retry, func() (domain.Question, error) {
		return s.store.GetQuestion(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	questions, err := s.ListQuestions(ctx, question.QuizID)
	if err != nil {
		return nil, err
	}

	pos := -1
	for i := range questions {
		if questions[i].ID == id {
			pos = i
			break
		}
	}
	neighbour := pos - 1
	if dir == MoveDown {
		neighbour = pos + 1
	}
	if pos < 0 || neighbour < 0 || neighbour >= len(questions) {
		return questions, nil
	}

	other := questions[neighbour].ID
	if err := retryErr(ctx, s.retry, func() error { return s.store.SwapQuestionOrder(ctx, id, other) }); err != nil {
		return nil, err
	}
	s.invalidate(ctx, question.QuizID)
	s.publish(ctx, question.QuizID, domain.ChangeQuestion, id)
	return s.ListQuestions(ctx, question.QuizID)
}

func (s *AdminService) invalidate(ctx context.Context, quizID string) {
	if s.questions == nil {
		return
	}
	if err := s.questions.Invalidate(ctx, quizID); err != nil {
		s.logger.Warn("invalidate question cache failed", "quiz_id", quizID, "error", err)
	}
}

func (s *AdminService) publish(ctx context.Context, quizID string, kind domain.ChangeKind, recordID string) {
	publish(ctx, s.notifier, s.logger, domain.Change{QuizID: quizID, Kind: kind, RecordID: recordID, At: s.now()})
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
