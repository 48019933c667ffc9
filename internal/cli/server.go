package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/config"
	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/infra/memory"
	"exam-grading-service/internal/infra/postgres"
	infraredis "exam-grading-service/internal/infra/redis"
	"exam-grading-service/internal/metrics"
	transport "exam-grading-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam grading server",
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
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled() {
		collector = metrics.New()
	}

	service, err := buildService(cfg, redisClient, pool, collector)
	if err != nil {
		return err
	}
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	if collector != nil {
		mux.Handle(cfg.MetricsPath(), collector.Handler())
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting exam grading service on :%s (leaderboard store: %s)", finalPort, cfg.LeaderboardStore())
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

// buildService wires catalog, submission and leaderboard backends from what is configured.
func buildService(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool, collector *metrics.Collector) (*app.ExamService, error) {
	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(samplePapers())
	if pool != nil {
		loader = postgres.NewQuestionLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var questions app.QuestionRepository
	if redisClient != nil {
		questions = infraredis.NewQuestionRepository(redisClient, loader, catalogTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, catalogTTL)
	}

	var submissions app.SubmissionStore = memory.NewSubmissionStore()
	if pool != nil {
		submissions = postgres.NewSubmissionStore(pool)
	}

	var leaderboards app.LeaderboardStore
	switch cfg.LeaderboardStore() {
	case config.StoreRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("leaderboard store redis: redis not configured")
		}
		leaderboards = infraredis.NewLeaderboardStore(redisClient)
	case config.StorePostgres:
		if pool == nil {
			return nil, fmt.Errorf("leaderboard store postgres: postgres not configured")
		}
		leaderboards = postgres.NewLeaderboardStore(pool)
	default:
		leaderboards = memory.NewLeaderboardStore()
	}

	settings := domain.LeaderboardSettings{
		MaxEntries:          cfg.Leaderboard.MaxEntries,
		ShowOnlyBestAttempt: cfg.ShowOnlyBestAttempt(),
	}
	if settings.MaxEntries == 0 {
		settings.MaxEntries = 100
	}
	retry := app.RetryPolicy{
		MaxAttempts: cfg.Leaderboard.MaxRetries,
		BaseDelay:   config.TTLDuration(cfg.Leaderboard.RetryBaseDelay, app.DefaultRetryPolicy.BaseDelay),
		MaxDelay:    config.TTLDuration(cfg.Leaderboard.RetryMaxDelay, app.DefaultRetryPolicy.MaxDelay),
	}
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = app.DefaultRetryPolicy.MaxAttempts
	}

	ranker := app.NewRanker(leaderboards, settings, retry, app.NewHub(), collector)
	return app.NewExamService(questions, submissions, ranker, collector), nil
}

// samplePapers provides a small demo paper; a configured postgres catalog replaces it.
func samplePapers() map[string][]domain.Question {
	tolerance := 1.0
	return map[string][]domain.Question{
		"paper-1": {
			{PaperID: "paper-1", Number: 1, Subject: domain.SubjectPhysics, Type: domain.QuestionSingleCorrect, CorrectAnswer: "B"},
			{PaperID: "paper-1", Number: 2, Subject: domain.SubjectChemistry, Type: domain.QuestionMultipleCorrect, CorrectAnswer: "A,C"},
			{PaperID: "paper-1", Number: 3, Subject: domain.SubjectMathematics, Type: domain.QuestionInteger, CorrectAnswer: "42"},
			{
				PaperID:       "paper-1",
				Number:        4,
				Subject:       domain.SubjectPhysics,
				Type:          domain.QuestionNumerical,
				CorrectAnswer: "9.81",
				Rule:          &domain.NumericRule{Tolerance: &tolerance},
			},
		},
	}
}
