package app

import (
	"context"

	"festive-quiz-service/internal/domain"
)

// QuizStore persists quiz sessions.
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	GetQuiz(ctx context.Context, id string) (domain.Quiz, error)
	GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, error)
	RenameQuiz(ctx context.Context, id, title string) (domain.Quiz, error)
	// TransitionQuiz is a compare-and-set on status; it fails with ErrInvalidState
	// when the stored status is not from.
	TransitionQuiz(ctx context.Context, id string, from, to domain.QuizStatus) (domain.Quiz, error)
	DeleteQuiz(ctx context.Context, id string) error
	// ResetQuiz puts the quiz back to waiting and deletes its players and answers.
	ResetQuiz(ctx context.Context, id string) (domain.Quiz, error)
}

// QuestionStore persists the ordered questions of a quiz.
type QuestionStore interface {
	CreateQuestion(ctx context.Context, question domain.Question) (domain.Question, error)
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
	SetQuestionOrder(ctx context.Context, id string, orderIndex int) (domain.Question, error)
	SwapQuestionOrder(ctx context.Context, firstID, secondID string) error
	DeleteQuestion(ctx context.Context, id string) error
}

// PlayerStore persists players and owns the atomic finish step.
type PlayerStore interface {
	// CreatePlayer fails with ErrAlreadyFinished when the quiz finished concurrently.
	CreatePlayer(ctx context.Context, player domain.Player) (domain.Player, error)
	GetPlayer(ctx context.Context, id string) (domain.Player, error)
	ListPlayers(ctx context.Context, quizID string) ([]domain.Player, error)
	SetPlayerIndex(ctx context.Context, id string, index int) (domain.Player, error)
	// FinishPlayer marks the player finished and, within the same atomic unit,
	// finishes the quiz when domain.ShouldFinish holds for the fresh player set.
	FinishPlayer(ctx context.Context, id string) (domain.FinishResult, error)
	// CloseIfDone applies only the aggregate step.
	CloseIfDone(ctx context.Context, quizID string) (bool, error)
}

// AnswerStore persists answers keyed by (player, question).
type AnswerStore interface {
	UpsertAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error)
	ListAnswers(ctx context.Context, filter domain.AnswerFilter) ([]domain.Answer, error)
}

// Store is the record store the session state machine runs against.
type Store interface {
	QuizStore
	QuestionStore
	PlayerStore
	AnswerStore
}

// QuestionSource serves a quiz's ordered questions, usually from a cache.
type QuestionSource interface {
	Questions(ctx context.Context, quizID string) ([]domain.Question, error)
	Invalidate(ctx context.Context, quizID string) error
}

// Observer delivers changes to the record set of one quiz.
// The caller must invoke the returned cancel function to avoid leaks.
type Observer interface {
	Subscribe(ctx context.Context, quizID string) (<-chan domain.Change, func(), error)
}

// Notifier is an Observer that committed writes are published to.
type Notifier interface {
	Observer
	Publish(ctx context.Context, change domain.Change) error
}

// StoreQuestions adapts a QuestionStore into an uncached QuestionSource.
type StoreQuestions struct {
	Store QuestionStore
}

func (s StoreQuestions) Questions(ctx context.Context, quizID string) ([]domain.Question, error) {
	return s.Store.ListQuestions(ctx, quizID)
}

func (StoreQuestions) Invalidate(context.Context, string) error { return nil }

