package http

import (
	"log/slog"
	"net/http"
	"time"

	"festive-quiz-service/internal/app"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig wires the services into the HTTP API.
type RouterConfig struct {
	Sessions     *app.SessionService
	Admin        *app.AdminService
	Credentials  AdminCredentials
	AllowOrigins []string
	Logger       *slog.Logger
}

// NewRouter builds the gin engine with the player, admin and websocket routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	sessions := NewSessionHandler(cfg.Sessions, logger)
	admin := NewAdminHandler(cfg.Admin, logger)
	ws := NewWSHandler(cfg.Sessions, logger)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", gin.WrapF(ws.ServeWS))

	api := router.Group("/api")
	{
		api.GET("/avatars", sessions.Avatars)

		games := api.Group("/games")
		{
			games.POST("/join", sessions.Join)
			games.GET("/:code", sessions.QuizByCode)
		}

		quizzes := api.Group("/quizzes")
		{
			quizzes.POST("/:id/start", sessions.Start)
			quizzes.GET("/:id/questions", sessions.Questions)
			quizzes.GET("/:id/players", sessions.Players)
			quizzes.GET("/:id/leaderboard", sessions.Leaderboard)
		}

		players := api.Group("/players")
		{
			players.GET("/:id", sessions.Player)
			players.POST("/:id/answers", sessions.SubmitAnswer)
			players.GET("/:id/answers", sessions.Answers)
			players.POST("/:id/advance", sessions.Advance)
			players.GET("/:id/score", sessions.Score)
		}

		protected := api.Group("/admin")
		protected.Use(BasicAuth(cfg.Credentials))
		{
			protected.GET("/quizzes", admin.ListQuizzes)
			protected.POST("/quizzes", admin.CreateQuiz)
			protected.GET("/quizzes/:id", admin.GetQuiz)
			protected.PUT("/quizzes/:id", admin.UpdateQuiz)
			protected.DELETE("/quizzes/:id", admin.DeleteQuiz)
			protected.POST("/quizzes/:id/reset", admin.ResetQuiz)
			protected.GET("/quizzes/:id/questions", admin.ListQuestions)
			protected.POST("/quizzes/:id/questions", admin.AddQuestion)
			protected.DELETE("/questions/:id", admin.DeleteQuestion)
			protected.PUT("/questions/:id/order", admin.SetQuestionOrder)
			protected.POST("/questions/:id/move", admin.MoveQuestion)
		}
	}
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
