package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"festive-quiz-service/internal/app"
	"festive-quiz-service/internal/domain"
	"festive-quiz-service/internal/infra/postgres"
	pgmigrations "festive-quiz-service/internal/infra/postgres/migrations"
	infraredis "festive-quiz-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// TestFullGameOnPostgresAndRedis plays a session against the production
// adapters: bun store, Redis question cache and Redis pub/sub.
func TestFullGameOnPostgresAndRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	redisURL := startRedis(t, ctx)

	db := migratedDB(t, ctx, pgURL)
	store := postgres.NewStore(db)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	questions := infraredis.NewQuestionCache(redisClient, store, 5*time.Minute)
	notifier := infraredis.NewNotifier(redisClient, nil)
	if err := notifier.Start(ctx); err != nil {
		t.Fatalf("start notifier: %v", err)
	}
	defer notifier.Close()

	admin := app.NewAdminService(store, questions, notifier)
	sessions := app.NewSessionService(store, questions, notifier)

	quiz, qs := seedQuiz(t, ctx, admin, "XMAS24")

	alice, _, err := sessions.Join(ctx, "xmas24", "Alice")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, _, err := sessions.Join(ctx, "XMAS24", "Bob")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if alice.AvatarID == bob.AvatarID {
		t.Fatalf("expected distinct avatars, both got %s", alice.AvatarID)
	}

	snapshots, cancel, err := sessions.Subscribe(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-snapshots

	if _, err := sessions.Start(ctx, quiz.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, snapshots, domain.QuizActive)

	for _, p := range []domain.Player{alice, bob} {
		answer := "Rudolph"
		if p.ID == bob.ID {
			answer = "Dasher"
		}
		if _, err := sessions.SubmitAnswer(ctx, p.ID, qs[0].ID, answer); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := sessions.SubmitAnswer(ctx, p.ID, qs[1].ID, "north pole"); err != nil {
			t.Fatalf("submit: %v", err)
		}
		// A resubmission replaces the earlier answer.
		if _, err := sessions.SubmitAnswer(ctx, p.ID, qs[1].ID, "North Pole"); err != nil {
			t.Fatalf("resubmit: %v", err)
		}
		for i := 0; i < 2; i++ {
			res, err := sessions.AdvancePlayer(ctx, p.ID)
			if err != nil {
				t.Fatalf("advance: %v", err)
			}
			if res.Finished {
				t.Fatalf("player finished before the last question")
			}
		}
	}

	answers, err := sessions.Answers(ctx, alice.ID)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("expected 2 answers after resubmission, got %d", len(answers))
	}

	// Both players finish at once; exactly one of them closes the quiz.
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed int
	)
	for _, p := range []domain.Player{alice, bob} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := sessions.AdvancePlayer(ctx, id)
			if err != nil {
				t.Errorf("final advance: %v", err)
				return
			}
			if res.QuizFinished {
				mu.Lock()
				closed++
				mu.Unlock()
			}
		}(p.ID)
	}
	wg.Wait()
	if closed != 1 {
		t.Fatalf("expected quiz to be closed once, got %d", closed)
	}
	waitForStatus(t, snapshots, domain.QuizFinished)

	board, err := sessions.Leaderboard(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.Entries) != 2 || board.Entries[0].PlayerID != alice.ID {
		t.Fatalf("expected alice leading, got %+v", board.Entries)
	}
	if board.Entries[0].Correct != 2 || board.Entries[0].Total != 3 {
		t.Fatalf("expected 2/3 for alice, got %+v", board.Entries[0])
	}

	if _, _, err := sessions.Join(ctx, "XMAS24", "Carol"); !errors.Is(err, domain.ErrAlreadyFinished) {
		t.Fatalf("expected already finished, got %v", err)
	}
}

func TestPostgresStoreConstraints(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	db := migratedDB(t, ctx, startPostgres(t, ctx))
	store := postgres.NewStore(db)
	admin := app.NewAdminService(store, app.StoreQuestions{Store: store}, nil)

	quiz, qs := seedQuiz(t, ctx, admin, "CAROLS")

	t.Run("join code is unique", func(t *testing.T) {
		if _, err := admin.CreateQuiz(ctx, "Duplicate", "carols"); !errors.Is(err, domain.ErrJoinCodeTaken) {
			t.Fatalf("expected join code taken, got %v", err)
		}
	})

	t.Run("order index is unique per quiz", func(t *testing.T) {
		if _, err := store.SetQuestionOrder(ctx, qs[0].ID, qs[1].OrderIndex); !errors.Is(err, domain.ErrOrderTaken) {
			t.Fatalf("expected order taken, got %v", err)
		}
	})

	t.Run("swap keeps both rows", func(t *testing.T) {
		if err := store.SwapQuestionOrder(ctx, qs[0].ID, qs[1].ID); err != nil {
			t.Fatalf("swap: %v", err)
		}
		got, err := store.ListQuestions(ctx, quiz.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if got[0].ID != qs[1].ID || got[1].ID != qs[0].ID {
			t.Fatalf("unexpected order after swap: %s, %s", got[0].ID, got[1].ID)
		}
	})

	t.Run("missing rows map to not found", func(t *testing.T) {
		if _, err := store.GetQuizByCode(ctx, "NOPE00"); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected quiz not found, got %v", err)
		}
		_, err := store.UpsertAnswer(ctx, domain.Answer{
			ID: "answer-x", PlayerID: "ghost", QuestionID: qs[0].ID, Text: "x", AnsweredAt: time.Now(),
		})
		if !errors.Is(err, domain.ErrPlayerNotFound) {
			t.Fatalf("expected player not found, got %v", err)
		}
	})

	t.Run("delete cascades", func(t *testing.T) {
		if err := admin.DeleteQuiz(ctx, quiz.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := store.GetQuestion(ctx, qs[2].ID); !errors.Is(err, domain.ErrQuestionNotFound) {
			t.Fatalf("expected questions removed, got %v", err)
		}
	})
}

func TestPostgresNotifierDeliversAcrossConnections(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	migratedDB(t, ctx, pgURL)

	newNotifier := func() *postgres.Notifier {
		pool, err := pgxpool.Connect(ctx, pgURL)
		if err != nil {
			t.Fatalf("connect pool: %v", err)
		}
		t.Cleanup(pool.Close)
		n := postgres.NewNotifier(pool, nil)
		if err := n.Start(ctx); err != nil {
			t.Fatalf("start notifier: %v", err)
		}
		t.Cleanup(func() { _ = n.Close() })
		return n
	}
	listener, publisher := newNotifier(), newNotifier()

	changes, cancel, err := listener.Subscribe(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := publisher.Publish(ctx, domain.Change{QuizID: "quiz-2", Kind: domain.ChangePlayer, RecordID: "p"}); err != nil {
		t.Fatalf("publish other: %v", err)
	}
	if err := publisher.Publish(ctx, domain.Change{QuizID: "quiz-1", Kind: domain.ChangeQuiz, RecordID: "quiz-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case change := <-changes:
		if change.QuizID != "quiz-1" || change.Kind != domain.ChangeQuiz {
			t.Fatalf("unexpected change %+v", change)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for notification")
	}
}

func TestPostgresNotifierRecoversAfterConnectionLoss(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	migratedDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	listener := postgres.NewNotifier(pool, nil)
	if err := listener.Start(ctx); err != nil {
		t.Fatalf("start notifier: %v", err)
	}
	defer listener.Close()

	changes, cancel, err := listener.Subscribe(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	admin, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect admin pool: %v", err)
	}
	defer admin.Close()
	tag, err := admin.Exec(ctx,
		`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE query LIKE 'LISTEN%' AND pid <> pg_backend_pid()`)
	if err != nil {
		t.Fatalf("terminate listener: %v", err)
	}
	if tag.RowsAffected() == 0 {
		t.Fatalf("expected a listening backend to terminate")
	}

	// Notifications sent while the listener reconnects are lost, so keep sending.
	deadline := time.After(20 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case change := <-changes:
			if change.QuizID != "quiz-1" {
				t.Fatalf("unexpected change %+v", change)
			}
			return
		case <-tick.C:
			payload := `{"quizId":"quiz-1","kind":"quiz","recordId":"quiz-1"}`
			if _, err := admin.Exec(ctx, "SELECT pg_notify('quiz_changes', $1)", payload); err != nil {
				t.Fatalf("notify: %v", err)
			}
		case <-deadline:
			t.Fatalf("listener did not resume after its connection was terminated")
		}
	}
}

func seedQuiz(t *testing.T, ctx context.Context, admin *app.AdminService, code string) (domain.Quiz, []domain.Question) {
	t.Helper()
	quiz, err := admin.CreateQuiz(ctx, "Christmas Trivia", code)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	inputs := []app.QuestionInput{
		{Text: "Which reindeer has a red nose?", Type: domain.MultipleChoice,
			Options: []string{"Rudolph", "Dasher", "Comet"}, CorrectAnswers: []string{"Rudolph"}},
		{Text: "Where does Santa live?", Type: domain.FreeText,
			CorrectAnswers: []string{"North Pole", "Lapland"}},
		{Text: "How many reindeer pull the sleigh?", Type: domain.MultipleChoice,
			Options: []string{"Six", "Eight"}, CorrectAnswers: []string{"Eight"}},
	}
	qs := make([]domain.Question, 0, len(inputs))
	for _, in := range inputs {
		q, err := admin.AddQuestion(ctx, quiz.ID, in)
		if err != nil {
			t.Fatalf("add question: %v", err)
		}
		qs = append(qs, q)
	}
	return quiz, qs
}

func waitForStatus(t *testing.T, snapshots <-chan domain.Snapshot, want domain.QuizStatus) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				t.Fatalf("snapshot stream closed before %s", want)
			}
			if snap.Quiz.Status == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for quiz status %s", want)
		}
	}
}

func migratedDB(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	db := postgres.Open(dsn)
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
