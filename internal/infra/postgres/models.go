package postgres

import (
	"time"

	"festive-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID                   string    `bun:"id,pk"`
	Title                string    `bun:"title,notnull"`
	JoinCode             string    `bun:"join_code,notnull"`
	Status               string    `bun:"status,notnull"`
	CurrentQuestionIndex int       `bun:"current_question_index,notnull"`
	CreatedAt            time.Time `bun:"created_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qn"`

	ID             string    `bun:"id,pk"`
	QuizID         string    `bun:"quiz_id,notnull"`
	Text           string    `bun:"question_text,notnull"`
	Type           string    `bun:"question_type,notnull"`
	Options        []string  `bun:"options,array"`
	CorrectAnswers []string  `bun:"correct_answers,array,notnull"`
	OrderIndex     int       `bun:"order_index,notnull"`
	ImageURL       string    `bun:"image_url,nullzero"`
	Category       string    `bun:"category,nullzero"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

type playerRow struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID            string    `bun:"id,pk"`
	QuizID        string    `bun:"quiz_id,notnull"`
	Name          string    `bun:"name,notnull"`
	AvatarID      string    `bun:"avatar_id,notnull"`
	Status        string    `bun:"status,notnull"`
	QuestionIndex int       `bun:"current_question_index,notnull"`
	JoinedAt      time.Time `bun:"joined_at,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID         string    `bun:"id,pk"`
	PlayerID   string    `bun:"player_id,notnull"`
	QuestionID string    `bun:"question_id,notnull"`
	Text       string    `bun:"answer_text,notnull"`
	Correct    bool      `bun:"is_correct,notnull"`
	AnsweredAt time.Time `bun:"answered_at,notnull"`
}

func fromQuiz(q domain.Quiz) quizRow {
	return quizRow{
		ID:                   q.ID,
		Title:                q.Title,
		JoinCode:             q.JoinCode,
		Status:               string(q.Status),
		CurrentQuestionIndex: q.CurrentQuestionIndex,
		CreatedAt:            q.CreatedAt,
	}
}

func (r quizRow) toDomain() domain.Quiz {
	return domain.Quiz{
		ID:                   r.ID,
		Title:                r.Title,
		JoinCode:             r.JoinCode,
		Status:               domain.QuizStatus(r.Status),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		CreatedAt:            r.CreatedAt,
	}
}

func fromQuestion(q domain.Question) questionRow {
	correct := q.CorrectAnswers
	if correct == nil {
		correct = []string{}
	}
	return questionRow{
		ID:             q.ID,
		QuizID:         q.QuizID,
		Text:           q.Text,
		Type:           string(q.Type),
		Options:        q.Options,
		CorrectAnswers: correct,
		OrderIndex:     q.OrderIndex,
		ImageURL:       q.ImageURL,
		Category:       q.Category,
		CreatedAt:      q.CreatedAt,
	}
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question{
		ID:             r.ID,
		QuizID:         r.QuizID,
		Text:           r.Text,
		Type:           domain.QuestionType(r.Type),
		Options:        r.Options,
		CorrectAnswers: r.CorrectAnswers,
		OrderIndex:     r.OrderIndex,
		ImageURL:       r.ImageURL,
		Category:       r.Category,
		CreatedAt:      r.CreatedAt,
	}
}

func fromPlayer(p domain.Player) playerRow {
	return playerRow{
		ID:            p.ID,
		QuizID:        p.QuizID,
		Name:          p.Name,
		AvatarID:      p.AvatarID,
		Status:        string(p.Status),
		QuestionIndex: p.QuestionIndex,
		JoinedAt:      p.JoinedAt,
	}
}

func (r playerRow) toDomain() domain.Player {
	return domain.Player{
		ID:            r.ID,
		QuizID:        r.QuizID,
		Name:          r.Name,
		AvatarID:      r.AvatarID,
		Status:        domain.PlayerStatus(r.Status),
		QuestionIndex: r.QuestionIndex,
		JoinedAt:      r.JoinedAt,
	}
}

func fromAnswer(a domain.Answer) answerRow {
	return answerRow{
		ID:         a.ID,
		PlayerID:   a.PlayerID,
		QuestionID: a.QuestionID,
		Text:       a.Text,
		Correct:    a.Correct,
		AnsweredAt: a.AnsweredAt,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:         r.ID,
		PlayerID:   r.PlayerID,
		QuestionID: r.QuestionID,
		Text:       r.Text,
		Correct:    r.Correct,
		AnsweredAt: r.AnsweredAt,
	}
}

func playersToDomain(rows []playerRow) []domain.Player {
	out := make([]domain.Player, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
