package http

import (
	"log/slog"
	"net/http"

	"festive-quiz-service/internal/app"
	"festive-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
)

// SessionHandler serves the player-facing endpoints.
type SessionHandler struct {
	sessions *app.SessionService
	logger   *slog.Logger
}

func NewSessionHandler(sessions *app.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

type joinRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type joinResponse struct {
	Player domain.Player `json:"player"`
	Quiz   domain.Quiz   `json:"quiz"`
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// playerQuestion is a question as players see it, without the accepted answers.
type playerQuestion struct {
	ID         string              `json:"id"`
	QuizID     string              `json:"quizId"`
	Text       string              `json:"questionText"`
	Type       domain.QuestionType `json:"questionType"`
	Options    []string            `json:"options"`
	OrderIndex int                 `json:"orderIndex"`
	ImageURL   string              `json:"image,omitempty"`
	Category   string              `json:"category,omitempty"`
}

func hideAnswers(questions []domain.Question) []playerQuestion {
	out := make([]playerQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, playerQuestion{
			ID:         q.ID,
			QuizID:     q.QuizID,
			Text:       q.Text,
			Type:       q.Type,
			Options:    q.Options,
			OrderIndex: q.OrderIndex,
			ImageURL:   q.ImageURL,
			Category:   q.Category,
		})
	}
	return out
}

func (h *SessionHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid join request")
		return
	}
	player, quiz, err := h.sessions.Join(c.Request.Context(), req.Code, req.Name)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, joinResponse{Player: player, Quiz: quiz})
}

func (h *SessionHandler) QuizByCode(c *gin.Context) {
	quiz, err := h.sessions.QuizByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *SessionHandler) Start(c *gin.Context) {
	quiz, err := h.sessions.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *SessionHandler) Questions(c *gin.Context) {
	questions, err := h.sessions.Questions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, hideAnswers(questions))
}

func (h *SessionHandler) Players(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.sessions.Quiz(ctx, c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	players, err := h.sessions.Players(ctx, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, players)
}

func (h *SessionHandler) Leaderboard(c *gin.Context) {
	board, err := h.sessions.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *SessionHandler) Player(c *gin.Context) {
	player, err := h.sessions.Player(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.QuestionID == "" {
		badRequest(c, "questionId and answer are required")
		return
	}
	answer, err := h.sessions.SubmitAnswer(c.Request.Context(), c.Param("id"), req.QuestionID, req.Answer)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (h *SessionHandler) Advance(c *gin.Context) {
	res, err := h.sessions.AdvancePlayer(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) Score(c *gin.Context) {
	score, err := h.sessions.Score(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, score)
}

func (h *SessionHandler) Answers(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.sessions.Player(ctx, c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	answers, err := h.sessions.Answers(ctx, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, answers)
}

func (h *SessionHandler) Avatars(c *gin.Context) {
	c.JSON(http.StatusOK, domain.Avatars())
}
