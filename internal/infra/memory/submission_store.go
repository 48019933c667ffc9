package memory

import (
	"context"
	"sync"

	"exam-grading-service/internal/domain"
	"github.com/google/uuid"
)

// SubmissionStore is an in-memory implementation of app.SubmissionStore.
type SubmissionStore struct {
	mu       sync.RWMutex
	records  map[string]domain.SubmissionRecord
	attempts map[string]int
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		records:  make(map[string]domain.SubmissionRecord),
		attempts: make(map[string]int),
	}
}

func (s *SubmissionStore) Save(_ context.Context, record domain.SubmissionRecord) (domain.SubmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := record.PaperID + "::" + record.UserID
	s.attempts[key]++
	record.ID = uuid.NewString()
	record.AttemptNumber = s.attempts[key]
	s.records[record.ID] = record
	return record, nil
}

func (s *SubmissionStore) Get(_ context.Context, id string) (domain.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return domain.SubmissionRecord{}, domain.ErrSubmissionNotFound
	}
	return record, nil
}
