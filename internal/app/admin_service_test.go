package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"festive-quiz-service/internal/app"
	"festive-quiz-service/internal/domain"
	"festive-quiz-service/internal/infra/memory"
)

func TestCreateQuizGeneratesCode(t *testing.T) {
	store := memory.NewStore()
	admin := app.NewAdminService(store, app.StoreQuestions{Store: store}, nil, append(testOptions(), app.WithJoinCodeLength(8))...)

	quiz, err := admin.CreateQuiz(context.Background(), "  Winter Fun ", "")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if quiz.Title != "Winter Fun" || quiz.Status != domain.QuizWaiting {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if len(quiz.JoinCode) != 8 || !domain.ValidJoinCode(quiz.JoinCode) {
		t.Fatalf("unexpected join code %q", quiz.JoinCode)
	}
}

func TestCreateQuizValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.admin.CreateQuiz(ctx, " ", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank title, got %v", err)
	}
	if _, err := f.admin.CreateQuiz(ctx, "Dup", "XMAS24"); !errors.Is(err, domain.ErrJoinCodeTaken) {
		t.Fatalf("expected ErrJoinCodeTaken, got %v", err)
	}
	if _, err := f.admin.CreateQuiz(ctx, "Bad", "X-1"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad code, got %v", err)
	}
}

func TestUpdateQuizOnlyMovesForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	title := "Boxing Day"
	active := domain.QuizActive
	quiz, err := f.admin.UpdateQuiz(ctx, f.quiz.ID, app.QuizUpdate{Title: &title, Status: &active})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if quiz.Title != title || quiz.Status != domain.QuizActive {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}

	waiting := domain.QuizWaiting
	if _, err := f.admin.UpdateQuiz(ctx, f.quiz.ID, app.QuizUpdate{Status: &waiting}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState moving backwards, got %v", err)
	}
}

func TestUpdateQuizRejectedTransitionLeavesTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	title := "Renamed"
	waiting := domain.QuizWaiting
	_, err := f.admin.UpdateQuiz(ctx, f.quiz.ID, app.QuizUpdate{Title: &title, Status: &waiting})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	quiz, err := f.admin.GetQuiz(ctx, f.quiz.ID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Title != f.quiz.Title {
		t.Fatalf("expected title %q unchanged, got %q", f.quiz.Title, quiz.Title)
	}
}

// recordingQuestions counts invalidations per quiz.
type recordingQuestions struct {
	app.StoreQuestions
	invalidated map[string]int
}

func (r *recordingQuestions) Invalidate(_ context.Context, quizID string) error {
	r.invalidated[quizID]++
	return nil
}

func TestResetQuizInvalidatesQuestions(t *testing.T) {
	store := memory.NewStore()
	questions := &recordingQuestions{StoreQuestions: app.StoreQuestions{Store: store}, invalidated: map[string]int{}}
	admin := app.NewAdminService(store, questions, nil, testOptions()...)
	ctx := context.Background()

	quiz, err := admin.CreateQuiz(ctx, "Reset me", "RESET1")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if _, err := admin.ResetQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if questions.invalidated[quiz.ID] != 1 {
		t.Fatalf("expected one invalidation on reset, got %d", questions.invalidated[quiz.ID])
	}
}

func TestResetQuizClearsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.join(t, "Holly")
	f.start(t)
	f.answer(t, p.ID, 0, "Rudolph")

	quiz, err := f.admin.ResetQuiz(ctx, f.quiz.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if quiz.Status != domain.QuizWaiting {
		t.Fatalf("expected waiting quiz, got %s", quiz.Status)
	}
	players, _ := f.sessions.Players(ctx, f.quiz.ID)
	if len(players) != 0 {
		t.Fatalf("expected roster cleared, got %d players", len(players))
	}
	questions, _ := f.sessions.Questions(ctx, f.quiz.ID)
	if len(questions) != 3 {
		t.Fatalf("expected questions kept, got %d", len(questions))
	}
}

func TestDeleteQuiz(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.admin.DeleteQuiz(ctx, f.quiz.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.admin.GetQuiz(ctx, f.quiz.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.admin.DeleteQuiz(ctx, f.quiz.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAddQuestionDefaults(t *testing.T) {
	f := newFixture(t)
	if f.qs[0].Type != domain.MultipleChoice || f.qs[1].Type != domain.FreeText {
		t.Fatalf("expected type inferred from options: %s %s", f.qs[0].Type, f.qs[1].Type)
	}
	for i, q := range f.qs {
		if q.OrderIndex != i {
			t.Fatalf("expected appended order %d, got %d", i, q.OrderIndex)
		}
	}

	_, err := f.admin.AddQuestion(context.Background(), f.quiz.ID, app.QuestionInput{
		Text: "Odd one out?", Options: []string{"a", "b"}, CorrectAnswers: []string{"c"},
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	order := 1
	_, err = f.admin.AddQuestion(context.Background(), f.quiz.ID, app.QuestionInput{
		Text: "Clash?", CorrectAnswers: []string{"x"}, OrderIndex: &order,
	})
	if !errors.Is(err, domain.ErrOrderTaken) {
		t.Fatalf("expected ErrOrderTaken, got %v", err)
	}
}

func TestMoveQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	questions, err := f.admin.MoveQuestion(ctx, f.qs[2].ID, app.MoveUp)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if ids(questions) != ids([]domain.Question{f.qs[0], f.qs[2], f.qs[1]}) {
		t.Fatalf("unexpected order after move up: %s", ids(questions))
	}

	questions, err = f.admin.MoveQuestion(ctx, f.qs[0].ID, app.MoveUp)
	if err != nil {
		t.Fatalf("move past top: %v", err)
	}
	if questions[0].ID != f.qs[0].ID {
		t.Fatalf("moving past the top must be a no-op")
	}

	if _, err := f.admin.MoveQuestion(ctx, f.qs[0].ID, "sideways"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQuestionEditsInvalidateCache(t *testing.T) {
	store := memory.NewStore()
	cache := memory.NewQuestionCache(store, time.Hour)
	opts := testOptions()
	admin := app.NewAdminService(store, cache, nil, opts...)
	sessions := app.NewSessionService(store, cache, nil, opts...)
	ctx := context.Background()

	quiz, err := admin.CreateQuiz(ctx, "Cached", "CACHE1")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if _, err := admin.AddQuestion(ctx, quiz.ID, app.QuestionInput{Text: "One?", CorrectAnswers: []string{"1"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	first, _ := sessions.Questions(ctx, quiz.ID)

	if _, err := admin.AddQuestion(ctx, quiz.ID, app.QuestionInput{Text: "Two?", CorrectAnswers: []string{"2"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	second, _ := sessions.Questions(ctx, quiz.ID)
	if len(first) != 1 || len(second) != 2 {
		t.Fatalf("expected cache invalidated on add, got %d then %d", len(first), len(second))
	}

	if err := admin.DeleteQuestion(ctx, second[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	third, _ := sessions.Questions(ctx, quiz.ID)
	if len(third) != 1 || third[0].ID != second[1].ID {
		t.Fatalf("expected cache invalidated on delete, got %+v", third)
	}
}

func ids(questions []domain.Question) string {
	out := ""
	for _, q := range questions {
		out += q.ID + ","
	}
	return out
}
