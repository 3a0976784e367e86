package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"psychout-service/internal/app"
	"psychout-service/internal/config"
	"psychout-service/internal/domain"
	"psychout-service/internal/infra/memory"
	pg "psychout-service/internal/infra/postgres"
	redisinfra "psychout-service/internal/infra/redis"
	transport "psychout-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 4*time.Hour)
	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)

	var store app.GameStore
	var loader memory.QuestionLoader
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		store = pg.NewGameStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		loader = pg.NewQuestionLoader(pool)
	} else {
		memStore := memory.NewGameStore()
		seedSampleTopics(memStore)
		store = memStore
		loader = memory.StoreLoader{Store: memStore}
	}

	var questions app.QuestionRepository
	if redisClient != nil {
		questions = redisinfra.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, questionTTL)
	}

	var sessions app.SessionStore
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, sessionTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	rules := app.DefaultRules()
	if v := cfg.Game.NumPsychAnswers; v != nil {
		rules.NumPsychAnswers = *v
	}
	if v := cfg.Game.CorrectPoints; v != nil {
		rules.CorrectPoints = *v
	}
	if v := cfg.Game.SelfVotePenalty; v != nil {
		rules.SelfVotePenalty = *v
	}
	if v := cfg.Game.DecoyPoints; v != nil {
		rules.DecoyPoints = *v
	}
	feed := app.NewFeed()
	service := app.NewGameService(store, questions, rules, feed)
	handler := transport.NewHandler(service, sessions, feed)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting psychout server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedSampleTopics gives the in-memory mode something to play with; real
// deployments seed Postgres via the seed subcommand instead.
func seedSampleTopics(store *memory.GameStore) {
	store.AddTopic("Movies", []domain.Question{
		{QuestionText: "What was the first feature-length animated film?", AnswerText: "Snow White and the Seven Dwarfs"},
		{QuestionText: "Which film won the first Academy Award for Best Picture?", AnswerText: "Wings"},
		{QuestionText: "What is the highest-grossing film of 1997?", AnswerText: "Titanic"},
	})
}
