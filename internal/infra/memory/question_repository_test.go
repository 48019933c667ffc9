package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"exam-grading-service/internal/domain"
)

func TestQuestionRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionLoader(map[string][]domain.Question{
			"paper-1": samplePaper(),
		}),
	}
	repo := NewQuestionRepository(loader, time.Minute)

	if _, err := repo.GetQuestions(context.Background(), "paper-1"); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	questions, err := repo.GetQuestions(context.Background(), "paper-1")
	if err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	repo.Invalidate("paper-1")
	if _, err := repo.GetQuestions(context.Background(), "paper-1"); err != nil {
		t.Fatalf("get questions 3: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionLoader(map[string][]domain.Question{"paper-1": samplePaper()}),
	}
	repo := NewQuestionRepository(loader, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuestions(context.Background(), "paper-1")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuestions(context.Background(), "paper-1")

	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionRepositoryConcurrentMissLoadsOnce(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionLoader(map[string][]domain.Question{"paper-1": samplePaper()}),
		gate:           release,
	}
	repo := NewQuestionRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuestions(context.Background(), "paper-1"); err != nil {
				t.Errorf("get questions: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", loader.calls.Load())
	}
}

func TestQuestionRepositoryUnknownPaper(t *testing.T) {
	repo := NewQuestionRepository(NewStaticQuestionLoader(nil), time.Minute)
	if _, err := repo.GetQuestions(context.Background(), "missing"); !errors.Is(err, domain.ErrPaperNotFound) {
		t.Fatalf("expected paper not found, got %v", err)
	}
}

type countingLoader struct {
	QuestionLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadQuestions(ctx context.Context, paperID string) ([]domain.Question, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuestionLoader.LoadQuestions(ctx, paperID)
}

func samplePaper() []domain.Question {
	return []domain.Question{
		{PaperID: "paper-1", Number: 1, Subject: domain.SubjectPhysics, Type: domain.QuestionSingleCorrect, CorrectAnswer: "B"},
		{PaperID: "paper-1", Number: 2, Subject: domain.SubjectChemistry, Type: domain.QuestionInteger, CorrectAnswer: "7"},
	}
}
