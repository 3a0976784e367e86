package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"psychout-service/internal/app"
	"psychout-service/internal/domain"
	pg "psychout-service/internal/infra/postgres"
	"psychout-service/internal/infra/postgres/migrations"
	infraredis "psychout-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestFullRoundEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	seedTopic(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	store := pg.NewGameStore(db)
	repo := infraredis.NewQuestionRepository(redisClient, pg.NewQuestionLoader(pool), 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewGameService(store, repo, app.DefaultRules(), nil)

	game, err := service.StartGame(ctx, "Movies", 2)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}

	alice, err := service.RegisterPlayer(ctx, game.ID, "Alice")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bob, err := service.RegisterPlayer(ctx, game.ID, "Bob")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	if err := sessions.Put(ctx, "integration-token", alice.ID); err != nil {
		t.Fatalf("session put: %v", err)
	}
	if id, ok, err := sessions.Lookup(ctx, "integration-token"); err != nil || !ok || id != alice.ID {
		t.Fatalf("session lookup: id=%d ok=%v err=%v", id, ok, err)
	}

	question, ok, err := service.EnsureCurrentQuestion(ctx, game)
	if err != nil {
		t.Fatalf("ensure question: %v", err)
	}
	if !ok {
		t.Fatalf("expected an open question")
	}

	if err := service.SubmitAnswer(ctx, game.ID, alice.ID, "Waterworld"); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if err := service.SubmitAnswer(ctx, game.ID, bob.ID, "Jurassic Park"); err != nil {
		t.Fatalf("bob submit: %v", err)
	}

	_, entries, err := service.ComposeQuiz(ctx, game.ID)
	if err != nil {
		t.Fatalf("compose quiz: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 quiz entries, got %d", len(entries))
	}

	answers, err := store.Answers(ctx, game.ID, question.ID)
	if err != nil {
		t.Fatalf("load answers: %v", err)
	}
	realSlot, bobSlot := -1, -1
	taken := map[int]bool{}
	for _, a := range answers {
		taken[a.Slot] = true
		if a.AuthorID == bob.ID {
			bobSlot = a.Slot
		}
	}
	for slot := 0; slot <= len(answers); slot++ {
		if !taken[slot] {
			realSlot = slot
			break
		}
	}
	if realSlot < 0 || bobSlot < 0 {
		t.Fatalf("could not resolve slots from %+v", answers)
	}

	// Bob finds the real answer, Alice falls for Bob's decoy.
	if err := service.CastVote(ctx, game.ID, bob.ID, realSlot); err != nil {
		t.Fatalf("bob vote: %v", err)
	}
	if err := service.CastVote(ctx, game.ID, alice.ID, bobSlot); err != nil {
		t.Fatalf("alice vote: %v", err)
	}

	scores, err := service.Scores(ctx, game.ID)
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if len(scores) != 2 || scores[0].Name != "Bob" || scores[0].Score != 4 || scores[1].Score != 0 {
		t.Fatalf("unexpected scores: %+v", scores)
	}

	advanced, err := service.AdvanceRound(ctx, game.ID, false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !advanced {
		t.Fatalf("expected round to advance")
	}

	state, err := service.State(ctx, game.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Phase != domain.PhaseCollectingAnswers {
		t.Fatalf("expected collecting_answers after advance, got %s", state.Phase)
	}
	if state.Game.CurrentQuestionID == nil || *state.Game.CurrentQuestionID == question.ID {
		t.Fatalf("expected a fresh current question, got %+v", state.Game.CurrentQuestionID)
	}

	// The pool was served through the Redis cache; the topic hash must exist.
	n, err := redisClient.Exists(ctx, fmt.Sprintf("psychout:topic:%d:questions", game.TopicID)).Result()
	if err != nil || n != 1 {
		t.Fatalf("expected cached topic pool, n=%d err=%v", n, err)
	}
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedTopic(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	topic := domain.Topic{Name: "Movies"}
	if _, err := db.NewInsert().Model(&topic).Returning("*").Exec(ctx); err != nil {
		t.Fatalf("insert topic: %v", err)
	}
	questions := []domain.Question{
		{TopicID: topic.ID, QuestionText: "What is the highest-grossing film of 1997?", AnswerText: "Titanic"},
		{TopicID: topic.ID, QuestionText: "Which film won the first Academy Award for Best Picture?", AnswerText: "Wings"},
	}
	if _, err := db.NewInsert().Model(&questions).Exec(ctx); err != nil {
		t.Fatalf("insert questions: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "psych", "POSTGRES_PASSWORD": "psychpass", "POSTGRES_DB": "psychdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://psych:psychpass@%s:%s/psychdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
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
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
