package domain

import "time"

// QuizStatus is the lifecycle state of a quiz session.
type QuizStatus string

const (
	QuizWaiting  QuizStatus = "waiting"
	QuizActive   QuizStatus = "active"
	QuizFinished QuizStatus = "finished"
)

// QuestionType selects how a question is answered.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	FreeText       QuestionType = "text"
)

// PlayerStatus tracks a player's own progress through the quiz.
type PlayerStatus string

const (
	PlayerPlaying  PlayerStatus = "playing"
	PlayerFinished PlayerStatus = "finished"
)

// Quiz is a single session identified by its join code.
type Quiz struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	JoinCode             string     `json:"joinCode"`
	Status               QuizStatus `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// Question belongs to one quiz; questions are played in OrderIndex order.
type Question struct {
	ID             string       `json:"id"`
	QuizID         string       `json:"quizId"`
	Text           string       `json:"questionText"`
	Type           QuestionType `json:"questionType"`
	Options        []string     `json:"options"`
	CorrectAnswers []string     `json:"correctAnswers"`
	OrderIndex     int          `json:"orderIndex"`
	ImageURL       string       `json:"image,omitempty"`
	Category       string       `json:"category,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Player is a participant with an independent pointer into the question sequence.
type Player struct {
	ID            string       `json:"id"`
	QuizID        string       `json:"quizId"`
	Name          string       `json:"name"`
	AvatarID      string       `json:"avatarId"`
	Status        PlayerStatus `json:"status"`
	QuestionIndex int          `json:"currentQuestionIndex"`
	JoinedAt      time.Time    `json:"joinedAt"`
}

// Answer is the latest submission of a player for a question.
type Answer struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"playerId"`
	QuestionID string    `json:"questionId"`
	Text       string    `json:"answerText"`
	Correct    bool      `json:"isCorrect"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// Score is a player's result against the full question count.
type Score struct {
	PlayerID string       `json:"playerId"`
	Name     string       `json:"name"`
	AvatarID string       `json:"avatarId"`
	Status   PlayerStatus `json:"status"`
	Correct  int          `json:"correctAnswers"`
	Total    int          `json:"totalQuestions"`
}

// Leaderboard captures the ordered scoreboard for a quiz session.
type Leaderboard struct {
	QuizID    string    `json:"quizId"`
	Entries   []Score   `json:"entries"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot is what observers of a session receive after every change.
type Snapshot struct {
	Quiz        Quiz        `json:"quiz"`
	Players     []Player    `json:"players"`
	Leaderboard Leaderboard `json:"leaderboard"`
}

// ChangeKind names the record set a change touched.
type ChangeKind string

const (
	ChangeQuiz     ChangeKind = "quiz"
	ChangeQuestion ChangeKind = "question"
	ChangePlayer   ChangeKind = "player"
	ChangeAnswer   ChangeKind = "answer"
)

// Change notifies observers that a record of a quiz was written.
type Change struct {
	QuizID   string     `json:"quizId"`
	Kind     ChangeKind `json:"kind"`
	RecordID string     `json:"recordId"`
	At       time.Time  `json:"at"`
}

// QuizFilter narrows quiz listings. Zero value lists everything.
type QuizFilter struct {
	Status QuizStatus
}

// AnswerFilter selects answers by player or by quiz; at least one must be set.
type AnswerFilter struct {
	PlayerID string
	QuizID   string
}

// FinishResult reports the outcome of marking a player finished.
type FinishResult struct {
	Player       Player
	QuizFinished bool
}
