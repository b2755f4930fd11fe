package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"festive-quiz-service/internal/domain"
)

var epoch = time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)

func seedQuiz(t *testing.T, s *Store, status domain.QuizStatus) domain.Quiz {
	t.Helper()
	quiz, err := s.CreateQuiz(context.Background(), domain.Quiz{
		ID: "quiz-1", Title: "Christmas", JoinCode: "XMAS24", Status: status, CreatedAt: epoch,
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return quiz
}

func seedPlayer(t *testing.T, s *Store, id string, joined time.Time) domain.Player {
	t.Helper()
	p, err := s.CreatePlayer(context.Background(), domain.Player{
		ID: id, QuizID: "quiz-1", Name: id, Status: domain.PlayerPlaying, JoinedAt: joined,
	})
	if err != nil {
		t.Fatalf("create player %s: %v", id, err)
	}
	return p
}

func TestStoreQuizLookups(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedQuiz(t, s, domain.QuizWaiting)

	if _, err := s.GetQuizByCode(ctx, "XMAS24"); err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if _, err := s.GetQuizByCode(ctx, "NOPE"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err := s.CreateQuiz(ctx, domain.Quiz{ID: "quiz-2", JoinCode: "XMAS24"})
	if !errors.Is(err, domain.ErrJoinCodeTaken) {
		t.Fatalf("expected ErrJoinCodeTaken, got %v", err)
	}
}

func TestStoreTransitionQuizIsCompareAndSet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedQuiz(t, s, domain.QuizWaiting)

	quiz, err := s.TransitionQuiz(ctx, "quiz-1", domain.QuizWaiting, domain.QuizActive)
	if err != nil || quiz.Status != domain.QuizActive {
		t.Fatalf("transition: %+v %v", quiz, err)
	}
	quiz, err = s.TransitionQuiz(ctx, "quiz-1", domain.QuizWaiting, domain.QuizActive)
	if !errors.Is(err, domain.ErrInvalidState) || quiz.Status != domain.QuizActive {
		t.Fatalf("expected ErrInvalidState with current quiz, got %+v %v", quiz, err)
	}
}

func TestStoreCreatePlayerRejectsFinishedQuiz(t *testing.T) {
	s := NewStore()
	seedQuiz(t, s, domain.QuizFinished)

	_, err := s.CreatePlayer(context.Background(), domain.Player{ID: "p1", QuizID: "quiz-1"})
	if !errors.Is(err, domain.ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished, got %v", err)
	}
}

func TestStoreFinishPlayerClosesQuizWithLastPlayer(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedQuiz(t, s, domain.QuizActive)
	seedPlayer(t, s, "a", epoch)
	seedPlayer(t, s, "b", epoch.Add(time.Second))

	res, err := s.FinishPlayer(ctx, "a")
	if err != nil {
		t.Fatalf("finish a: %v", err)
	}
	if res.QuizFinished || res.Player.Status != domain.PlayerFinished {
		t.Fatalf("unexpected result after first finisher: %+v", res)
	}

	res, err = s.FinishPlayer(ctx, "b")
	if err != nil {
		t.Fatalf("finish b: %v", err)
	}
	if !res.QuizFinished {
		t.Fatalf("expected quiz to finish with last player")
	}
	quiz, _ := s.GetQuiz(ctx, "quiz-1")
	if quiz.Status != domain.QuizFinished {
		t.Fatalf("expected finished quiz, got %s", quiz.Status)
	}
}

func TestStoreConcurrentFinishersCloseQuiz(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedQuiz(t, s, domain.QuizActive)
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for i, id := range ids {
		seedPlayer(t, s, id, epoch.Add(time.Duration(i)*time.Second))
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := s.FinishPlayer(ctx, id)
			if err != nil {
				t.Errorf("finish %s: %v", id, err)
				return
			}
			if res.QuizFinished {
				mu.Lock()
				closed++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if closed != 1 {
		t.Fatalf("expected exactly one finisher to close the quiz, got %d", closed)
	}
	quiz, _ := s.GetQuiz(ctx, "quiz-1")
	if quiz.Status != domain.QuizFinished {
		t.Fatalf("expected finished quiz, got %s", quiz.Status)
	}
}

func TestStoreCloseIfDone(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedQuiz(t, s, domain.QuizActive)

	closed, err := s.CloseIfDone(ctx, "quiz-1")
	if err != nil || closed {
		t.Fatalf("quiz without players must stay open: %v %v", closed, err)
	}
	if _, err := s.CloseIfDone(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestStoreUpsertAnswerKeepsOneRow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedQuiz(t, s, domain.QuizActive)
	seedPlayer(t, s, "p1", epoch)
	if _, err := s.CreateQuestion(ctx, domain.Question{ID: "q1", QuizID: "quiz-1", OrderIndex: 0}); err != nil {
		t.Fatalf("create question: %v", err)
	}

	first, err := s.UpsertAnswer(ctx, domain.Answer{ID: "a1", PlayerID: "p1", QuestionID: "q1", Text: "x", AnsweredAt: epoch})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := s.UpsertAnswer(ctx, domain.Answer{ID: "a2", PlayerID: "p1", QuestionID: "q1", Text: "y", Correct: true, AnsweredAt: epoch.Add(time.Second)})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID || second.Text != "y" || !second.Correct {
		t.Fatalf("expected replaced answer with original id, got %+v", second)
	}

	answers, _ := s.ListAnswers(ctx, domain.AnswerFilter{QuizID: "quiz-1"})
	if len(answers) != 1 {
		t.Fatalf("expected one answer, got %d", len(answers))
	}

	if _, err := s.UpsertAnswer(ctx, domain.Answer{PlayerID: "p1", QuestionID: "nope"}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestStoreQuestionOrdering(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedQuiz(t, s, domain.QuizWaiting)
	for i, id := range []string{"q2", "q0", "q1"} {
		order := []int{2, 0, 1}[i]
		if _, err := s.CreateQuestion(ctx, domain.Question{ID: id, QuizID: "quiz-1", OrderIndex: order}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := s.CreateQuestion(ctx, domain.Question{ID: "dup", QuizID: "quiz-1", OrderIndex: 1}); !errors.Is(err, domain.ErrOrderTaken) {
		t.Fatalf("expected ErrOrderTaken, got %v", err)
	}

	if err := s.SwapQuestionOrder(ctx, "q0", "q2"); err != nil {
		t.Fatalf("swap: %v", err)
	}
	questions, _ := s.ListQuestions(ctx, "quiz-1")
	got := []string{questions[0].ID, questions[1].ID, questions[2].ID}
	if got[0] != "q2" || got[1] != "q1" || got[2] != "q0" {
		t.Fatalf("unexpected order after swap: %v", got)
	}

	if _, err := s.SetQuestionOrder(ctx, "q1", 0); !errors.Is(err, domain.ErrOrderTaken) {
		t.Fatalf("expected ErrOrderTaken, got %v", err)
	}
}

func TestStoreResetClearsSession(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedQuiz(t, s, domain.QuizActive)
	seedPlayer(t, s, "p1", epoch)
	_, _ = s.CreateQuestion(ctx, domain.Question{ID: "q1", QuizID: "quiz-1"})
	_, _ = s.UpsertAnswer(ctx, domain.Answer{ID: "a1", PlayerID: "p1", QuestionID: "q1"})

	quiz, err := s.ResetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if quiz.Status != domain.QuizWaiting {
		t.Fatalf("expected waiting quiz, got %s", quiz.Status)
	}
	players, _ := s.ListPlayers(ctx, "quiz-1")
	answers, _ := s.ListAnswers(ctx, domain.AnswerFilter{QuizID: "quiz-1"})
	questions, _ := s.ListQuestions(ctx, "quiz-1")
	if len(players) != 0 || len(answers) != 0 || len(questions) != 1 {
		t.Fatalf("expected players and answers cleared, questions kept: %d %d %d", len(players), len(answers), len(questions))
	}
}

func TestStoreDeleteQuizCascades(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedQuiz(t, s, domain.QuizActive)
	seedPlayer(t, s, "p1", epoch)
	_, _ = s.CreateQuestion(ctx, domain.Question{ID: "q1", QuizID: "quiz-1"})

	if err := s.DeleteQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetPlayer(ctx, "p1"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player removed, got %v", err)
	}
	if _, err := s.GetQuestion(ctx, "q1"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question removed, got %v", err)
	}
	// the join code is free again
	if _, err := s.CreateQuiz(ctx, domain.Quiz{ID: "quiz-2", JoinCode: "XMAS24"}); err != nil {
		t.Fatalf("reuse code: %v", err)
	}
}
