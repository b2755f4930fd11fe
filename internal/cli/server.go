package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"festive-quiz-service/internal/app"
	"festive-quiz-service/internal/config"
	"festive-quiz-service/internal/infra/memory"
	"festive-quiz-service/internal/infra/postgres"
	redisinfra "festive-quiz-service/internal/infra/redis"
	transport "festive-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// closer collects shutdown hooks and runs them in reverse order.
type closer []func()

func (c *closer) add(fn func()) { *c = append(*c, fn) }

func (c closer) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cleanup closer
	defer cleanup.run()

	store, err := openStore(ctx, cfg, logger, &cleanup)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanup.add(func() { _ = redisClient.Close() })
	}

	questions, err := questionSource(cfg, store, redisClient)
	if err != nil {
		return err
	}
	notifier, err := openNotifier(ctx, cfg, redisClient, logger, &cleanup)
	if err != nil {
		return err
	}

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithJoinCodeLength(cfg.Session.JoinCodeLength),
		app.WithRetryPolicy(retryPolicy(cfg.Session.Retry)),
	}
	if cfg.Session.Observe == "poll" {
		interval := config.TTLDuration(cfg.Session.PollInterval, time.Second)
		opts = append(opts, app.WithObserver(app.NewPoller(store, interval, logger)))
	}

	sessions := app.NewSessionService(store, questions, notifier, opts...)
	admin := app.NewAdminService(store, questions, notifier, opts...)
	reconciler := app.NewReconciler(store, sessions,
		config.TTLDuration(cfg.Session.ReconcileInterval, 30*time.Second), logger)

	if cfg.Admin.PasswordHash == "" {
		logger.Warn("admin password hash not configured; admin API will reject every request")
	}
	router := transport.NewRouter(transport.RouterConfig{
		Sessions:     sessions,
		Admin:        admin,
		Credentials:  transport.AdminCredentials{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash},
		AllowOrigins: cfg.Server.AllowOrigins,
		Logger:       logger,
	})

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		timeout := config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func retryPolicy(cfg config.RetryConfig) app.RetryPolicy {
	if cfg.Attempts == 0 {
		return app.DefaultRetryPolicy
	}
	return app.RetryPolicy{
		Attempts:        cfg.Attempts,
		InitialInterval: config.TTLDuration(cfg.InitialInterval, app.DefaultRetryPolicy.InitialInterval),
		MaxInterval:     config.TTLDuration(cfg.MaxInterval, app.DefaultRetryPolicy.MaxInterval),
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, cleanup *closer) (app.Store, error) {
	if cfg.Postgres.URL == "" {
		logger.Info("using in-memory store")
		return memory.NewStore(), nil
	}
	db := postgres.Open(cfg.Postgres.URL)
	cleanup.add(func() { _ = db.Close() })
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := runMigrations(ctx, db, logger); err != nil {
		return nil, err
	}
	return postgres.NewStore(db), nil
}

func questionSource(cfg config.Config, store app.Store, client *redis.Client) (app.QuestionSource, error) {
	ttl := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	switch cfg.Questions.Cache {
	case "none":
		return app.StoreQuestions{Store: store}, nil
	case "redis":
		if client == nil {
			return nil, errors.New("questions.cache is redis but redis.addr is empty")
		}
		return redisinfra.NewQuestionCache(client, store, ttl), nil
	case "memory":
		return memory.NewQuestionCache(store, ttl), nil
	}
	if client != nil {
		return redisinfra.NewQuestionCache(client, store, ttl), nil
	}
	return memory.NewQuestionCache(store, ttl), nil
}

// openNotifier prefers Redis pub/sub, then Postgres LISTEN/NOTIFY, then an
// in-process broadcaster for single-instance deployments.
func openNotifier(ctx context.Context, cfg config.Config, client *redis.Client, logger *slog.Logger, cleanup *closer) (app.Notifier, error) {
	switch {
	case client != nil:
		n := redisinfra.NewNotifier(client, logger)
		if err := n.Start(ctx); err != nil {
			return nil, err
		}
		cleanup.add(func() { _ = n.Close() })
		return n, nil
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres listener: %w", err)
		}
		cleanup.add(pool.Close)
		n := postgres.NewNotifier(pool, logger)
		if err := n.Start(ctx); err != nil {
			return nil, err
		}
		cleanup.add(func() { _ = n.Close() })
		return n, nil
	}
	return memory.NewBroadcaster(), nil
}
