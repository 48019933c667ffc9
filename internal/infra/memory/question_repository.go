package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam-grading-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a paper's questions from the backing catalog store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, paperID string) ([]domain.Question, error)
}

// QuestionRepository caches papers with TTL to avoid repeated catalog hits.
// Cached slices are shared; callers must treat them as read-only.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedPaper
}

type cachedPaper struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPaper),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, paperID string) ([]domain.Question, error) {
	if questions, ok := r.cached(paperID); ok {
		return questions, nil
	}

	result, err, _ := r.sf.Do(paperID, func() (interface{}, error) {
		if questions, ok := r.cached(paperID); ok {
			return questions, nil
		}

		questions, err := r.loader.LoadQuestions(ctx, paperID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[paperID] = cachedPaper{
			questions: questions,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops a cached paper so the next read reloads it.
func (r *QuestionRepository) Invalidate(paperID string) {
	r.mu.Lock()
	delete(r.cache, paperID)
	r.mu.Unlock()
}

func (r *QuestionRepository) cached(paperID string) ([]domain.Question, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[paperID]; ok && entry.expiresAt.After(now) {
		return entry.questions, true
	}
	return nil, false
}

// ttlWithJitterLocked adds up to 10% jitter to spread expirations; r.mu must be held.
func (r *QuestionRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	papers map[string][]domain.Question
}

func NewStaticQuestionLoader(papers map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{papers: papers}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, paperID string) ([]domain.Question, error) {
	if questions, ok := l.papers[paperID]; ok {
		return questions, nil
	}
	return nil, domain.ErrPaperNotFound
}
