package http

import (
	"log/slog"
	"net/http"

	"festive-quiz-service/internal/app"
	"festive-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves quiz authoring. Routes are mounted behind BasicAuth.
type AdminHandler struct {
	admin  *app.AdminService
	logger *slog.Logger
}

func NewAdminHandler(admin *app.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

type createQuizRequest struct {
	Title    string `json:"title"`
	JoinCode string `json:"joinCode"`
}

type updateQuizRequest struct {
	Title  *string            `json:"title"`
	Status *domain.QuizStatus `json:"status"`
}

type questionRequest struct {
	Text           string              `json:"questionText"`
	Type           domain.QuestionType `json:"questionType"`
	Options        []string            `json:"options"`
	CorrectAnswers []string            `json:"correctAnswers"`
	OrderIndex     *int                `json:"orderIndex"`
	ImageURL       string              `json:"image"`
	Category       string              `json:"category"`
}

type orderRequest struct {
	OrderIndex *int `json:"orderIndex"`
}

type moveRequest struct {
	Direction app.MoveDirection `json:"direction"`
}

func (h *AdminHandler) ListQuizzes(c *gin.Context) {
	quizzes, err := h.admin.ListQuizzes(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quizzes)
}

func (h *AdminHandler) CreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid quiz")
		return
	}
	quiz, err := h.admin.CreateQuiz(c.Request.Context(), req.Title, req.JoinCode)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, quiz)
}

func (h *AdminHandler) GetQuiz(c *gin.Context) {
	quiz, err := h.admin.GetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *AdminHandler) UpdateQuiz(c *gin.Context) {
	var req updateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid quiz update")
		return
	}
	quiz, err := h.admin.UpdateQuiz(c.Request.Context(), c.Param("id"), app.QuizUpdate{Title: req.Title, Status: req.Status})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *AdminHandler) DeleteQuiz(c *gin.Context) {
	if err := h.admin.DeleteQuiz(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) ResetQuiz(c *gin.Context) {
	quiz, err := h.admin.ResetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *AdminHandler) ListQuestions(c *gin.Context) {
	questions, err := h.admin.ListQuestions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

func (h *AdminHandler) AddQuestion(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid question")
		return
	}
	question, err := h.admin.AddQuestion(c.Request.Context(), c.Param("id"), app.QuestionInput{
		Text:           req.Text,
		Type:           req.Type,
		Options:        req.Options,
		CorrectAnswers: req.CorrectAnswers,
		OrderIndex:     req.OrderIndex,
		ImageURL:       req.ImageURL,
		Category:       req.Category,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

func (h *AdminHandler) DeleteQuestion(c *gin.Context) {
	if err := h.admin.DeleteQuestion(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) SetQuestionOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderIndex == nil {
		badRequest(c, "orderIndex is required")
		return
	}
	question, err := h.admin.SetQuestionOrder(c.Request.Context(), c.Param("id"), *req.OrderIndex)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

func (h *AdminHandler) MoveQuestion(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "direction is required")
		return
	}
	questions, err := h.admin.MoveQuestion(c.Request.Context(), c.Param("id"), req.Direction)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}
