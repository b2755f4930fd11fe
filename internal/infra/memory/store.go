package memory

import (
	"context"
	"sort"
	"sync"

	"festive-quiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Every operation holds one
// lock, which makes multi-record steps such as FinishPlayer atomic.
type Store struct {
	mu        sync.RWMutex
	quizzes   map[string]domain.Quiz
	codes     map[string]string
	questions map[string]domain.Question
	players   map[string]domain.Player
	answers   map[answerKey]domain.Answer
}

type answerKey struct {
	playerID   string
	questionID string
}

func NewStore() *Store {
	return &Store{
		quizzes:   make(map[string]domain.Quiz),
		codes:     make(map[string]string),
		questions: make(map[string]domain.Question),
		players:   make(map[string]domain.Player),
		answers:   make(map[answerKey]domain.Answer),
	}
}

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.quizzes[quiz.ID]; ok {
		return existing, nil
	}
	if _, ok := s.codes[quiz.JoinCode]; ok {
		return domain.Quiz{}, domain.ErrJoinCodeTaken
	}
	s.quizzes[quiz.ID] = quiz
	s.codes[quiz.JoinCode] = quiz.ID
	return quiz, nil
}

func (s *Store) GetQuiz(_ context.Context, id string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) GetQuizByCode(_ context.Context, code string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return s.quizzes[id], nil
}

// ListQuizzes returns quizzes newest first.
func (s *Store) ListQuizzes(_ context.Context, filter domain.QuizFilter) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) RenameQuiz(_ context.Context, id, title string) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz.Title = title
	s.quizzes[id] = quiz
	return quiz, nil
}

func (s *Store) TransitionQuiz(_ context.Context, id string, from, to domain.QuizStatus) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if quiz.Status != from {
		return quiz, domain.ErrInvalidState
	}
	quiz.Status = to
	s.quizzes[id] = quiz
	return quiz, nil
}

func (s *Store) DeleteQuiz(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.ErrQuizNotFound
	}
	s.clearSessionLocked(id)
	for qid, q := range s.questions {
		if q.QuizID == id {
			delete(s.questions, qid)
		}
	}
	delete(s.codes, quiz.JoinCode)
	delete(s.quizzes, id)
	return nil
}

func (s *Store) ResetQuiz(_ context.Context, id string) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	s.clearSessionLocked(id)
	quiz.Status = domain.QuizWaiting
	quiz.CurrentQuestionIndex = 0
	s.quizzes[id] = quiz
	return quiz, nil
}

// clearSessionLocked removes the players of a quiz and their answers.
func (s *Store) clearSessionLocked(quizID string) {
	for pid, p := range s.players {
		if p.QuizID != quizID {
			continue
		}
		for key := range s.answers {
			if key.playerID == pid {
				delete(s.answers, key)
			}
		}
		delete(s.players, pid)
	}
}

func (s *Store) CreateQuestion(_ context.Context, question domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[question.QuizID]; !ok {
		return domain.Question{}, domain.ErrQuizNotFound
	}
	if s.orderTakenLocked(question.QuizID, question.OrderIndex, question.ID) {
		return domain.Question{}, domain.ErrOrderTaken
	}
	question.Options = cloneStrings(question.Options)
	question.CorrectAnswers = cloneStrings(question.CorrectAnswers)
	s.questions[question.ID] = question
	return question, nil
}

func (s *Store) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

// ListQuestions returns the quiz's questions by ascending order index.
func (s *Store) ListQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.questionsLocked(quizID), nil
}

func (s *Store) questionsLocked(quizID string) []domain.Question {
	out := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.QuizID == quizID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func (s *Store) SetQuestionOrder(_ context.Context, id string, orderIndex int) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if s.orderTakenLocked(q.QuizID, orderIndex, id) {
		return domain.Question{}, domain.ErrOrderTaken
	}
	q.OrderIndex = orderIndex
	s.questions[id] = q
	return q, nil
}

func (s *Store) SwapQuestionOrder(_ context.Context, firstID, secondID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.questions[firstID]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	b, ok := s.questions[secondID]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if a.QuizID != b.QuizID {
		return domain.ErrInvalidState
	}
	a.OrderIndex, b.OrderIndex = b.OrderIndex, a.OrderIndex
	s.questions[firstID] = a
	s.questions[secondID] = b
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, id)
	for key := range s.answers {
		if key.questionID == id {
			delete(s.answers, key)
		}
	}
	return nil
}

func (s *Store) orderTakenLocked(quizID string, orderIndex int, exceptID string) bool {
	for id, q := range s.questions {
		if q.QuizID == quizID && q.OrderIndex == orderIndex && id != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) CreatePlayer(_ context.Context, player domain.Player) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.players[player.ID]; ok {
		return existing, nil
	}
	quiz, ok := s.quizzes[player.QuizID]
	if !ok {
		return domain.Player{}, domain.ErrQuizNotFound
	}
	if err := domain.CheckJoinable(quiz); err != nil {
		return domain.Player{}, err
	}
	s.players[player.ID] = player
	return player, nil
}

func (s *Store) GetPlayer(_ context.Context, id string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p, nil
}

// ListPlayers returns the quiz's players in join order.
func (s *Store) ListPlayers(_ context.Context, quizID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playersLocked(quizID), nil
}

func (s *Store) playersLocked(quizID string) []domain.Player {
	out := make([]domain.Player, 0)
	for _, p := range s.players {
		if p.QuizID == quizID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) SetPlayerIndex(_ context.Context, id string, index int) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	p.QuestionIndex = index
	s.players[id] = p
	return p, nil
}

func (s *Store) FinishPlayer(_ context.Context, id string) (domain.FinishResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return domain.FinishResult{}, domain.ErrPlayerNotFound
	}
	p.Status = domain.PlayerFinished
	s.players[id] = p
	return domain.FinishResult{Player: p, QuizFinished: s.closeIfDoneLocked(p.QuizID)}, nil
}

func (s *Store) CloseIfDone(_ context.Context, quizID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return false, domain.ErrQuizNotFound
	}
	return s.closeIfDoneLocked(quizID), nil
}

func (s *Store) closeIfDoneLocked(quizID string) bool {
	quiz, ok := s.quizzes[quizID]
	if !ok || !domain.ShouldFinish(quiz, s.playersLocked(quizID)) {
		return false
	}
	quiz.Status = domain.QuizFinished
	s.quizzes[quizID] = quiz
	return true
}

// UpsertAnswer stores the answer under (player, question); a later write
// replaces the earlier one but keeps its id.
func (s *Store) UpsertAnswer(_ context.Context, answer domain.Answer) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[answer.PlayerID]; !ok {
		return domain.Answer{}, domain.ErrPlayerNotFound
	}
	if _, ok := s.questions[answer.QuestionID]; !ok {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}
	key := answerKey{playerID: answer.PlayerID, questionID: answer.QuestionID}
	if existing, ok := s.answers[key]; ok {
		answer.ID = existing.ID
	}
	s.answers[key] = answer
	return answer, nil
}

// ListAnswers returns answers oldest first.
func (s *Store) ListAnswers(_ context.Context, filter domain.AnswerFilter) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0)
	for key, a := range s.answers {
		if filter.PlayerID != "" && key.playerID != filter.PlayerID {
			continue
		}
		if filter.QuizID != "" && s.players[key.playerID].QuizID != filter.QuizID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AnsweredAt.Equal(out[j].AnsweredAt) {
			return out[i].AnsweredAt.Before(out[j].AnsweredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
