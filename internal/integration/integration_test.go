package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/infra/postgres"
	pgmigrations "exam-grading-service/internal/infra/postgres/migrations"
	infraredis "exam-grading-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"
)

func TestSubmitAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedPaper(t, ctx, pgURL, samplePaper())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	questions := infraredis.NewQuestionRepository(redisClient, postgres.NewQuestionLoader(pool), 5*time.Minute)
	settings := domain.LeaderboardSettings{MaxEntries: 10, ShowOnlyBestAttempt: true}
	retry := app.RetryPolicy{MaxAttempts: 50, BaseDelay: 2 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	// one service per leaderboard backend, sharing the catalog and submissions
	services := map[string]*app.ExamService{
		"redis":    app.NewExamService(questions, postgres.NewSubmissionStore(pool), app.NewRanker(infraredis.NewLeaderboardStore(redisClient), settings, retry, nil, nil), nil),
		"postgres": app.NewExamService(questions, postgres.NewSubmissionStore(pool), app.NewRanker(postgres.NewLeaderboardStore(pool), settings, retry, nil, nil), nil),
	}

	for name, service := range services {
		t.Run(name, func(t *testing.T) {
			paperID := "paper-1"
			var g errgroup.Group
			for i, answer := range []string{"B", "A", "B", "B"} {
				i, answer := i, answer
				g.Go(func() error {
					_, err := service.SubmitAttempt(ctx, domain.Submission{
						PaperID:          paperID,
						UserID:           fmt.Sprintf("%s-u%d", name, i),
						DisplayName:      fmt.Sprintf("user %d", i),
						Answers:          map[int]domain.Answer{1: domain.TextAnswer(answer), 2: domain.TextAnswer("7")},
						TimeTakenSeconds: int64(100 + i),
					})
					return err
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatalf("submit: %v", err)
			}

			lb, err := service.GetLeaderboard(ctx, paperID)
			if err != nil {
				t.Fatalf("leaderboard: %v", err)
			}
			if lb.Version != 4 || len(lb.Entries) != 4 {
				t.Fatalf("expected 4 committed entries, got %d at version %d", len(lb.Entries), lb.Version)
			}
			if lb.Entries[0].UserID != name+"-u0" || lb.Entries[0].Score != 8 {
				t.Fatalf("expected fastest full score first, got %+v", lb.Entries[0])
			}
			if last := lb.Entries[3]; last.UserID != name+"-u1" || last.Rank != 4 {
				t.Fatalf("expected wrong answer last, got %+v", last)
			}

			res, err := service.SubmitAttempt(ctx, domain.Submission{
				PaperID: paperID,
				UserID:  name + "-u1",
				Answers: map[int]domain.Answer{1: domain.TextAnswer("b"), 2: domain.TextAnswer("7")},
			})
			if err != nil {
				t.Fatalf("retry submit: %v", err)
			}
			if res.Submission.AttemptNumber != 2 || res.Rank == nil || *res.Rank != 1 {
				t.Fatalf("expected improved second attempt ranked first, got attempt %d rank %v", res.Submission.AttemptNumber, res.Rank)
			}
			stored, err := service.GetSubmission(ctx, res.Submission.ID)
			if err != nil || stored.Result.TotalScore != 8 {
				t.Fatalf("expected stored submission, got %+v %v", stored, err)
			}
		})
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
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
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
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

func seedPaper(t *testing.T, ctx context.Context, dsn string, questions []domain.Question) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			t.Fatalf("marshal question: %v", err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO questions (paper_id, number, data) VALUES (?, ?, ?::jsonb) ON CONFLICT (paper_id, number) DO UPDATE SET data=EXCLUDED.data`, q.PaperID, q.Number, string(data)); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func samplePaper() []domain.Question {
	return []domain.Question{
		{PaperID: "paper-1", Number: 1, Subject: domain.SubjectPhysics, Type: domain.QuestionSingleCorrect, CorrectAnswer: "B"},
		{PaperID: "paper-1", Number: 2, Subject: domain.SubjectMathematics, Type: domain.QuestionInteger, CorrectAnswer: "7"},
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
