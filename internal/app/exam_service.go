package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/grading"
	"exam-grading-service/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "exam-grading-service/app"

// QuestionRepository loads the ordered questions of a paper from the catalog.
type QuestionRepository interface {
	GetQuestions(ctx context.Context, paperID string) ([]domain.Question, error)
}

// SubmissionStore persists graded submissions. Save assigns the record's ID and
// its attempt number for the user on that paper.
type SubmissionStore interface {
	Save(ctx context.Context, record domain.SubmissionRecord) (domain.SubmissionRecord, error)
	Get(ctx context.Context, id string) (domain.SubmissionRecord, error)
}

// ExamService grades submissions, stores them and ranks them on the paper's leaderboard.
type ExamService struct {
	questions   QuestionRepository
	submissions SubmissionStore
	ranker      *Ranker
	metrics     *metrics.Collector
	now         func() time.Time
}

func NewExamService(questions QuestionRepository, submissions SubmissionStore, ranker *Ranker, collector *metrics.Collector) *ExamService {
	return &ExamService{
		questions:   questions,
		submissions: submissions,
		ranker:      ranker,
		metrics:     collector,
		now:         time.Now,
	}
}

// NewExamServiceWithClock is test-only for deterministic timestamps.
func NewExamServiceWithClock(questions QuestionRepository, submissions SubmissionStore, ranker *Ranker, now func() time.Time) *ExamService {
	s := NewExamService(questions, submissions, ranker, nil)
	s.now = now
	return s
}

// SubmitAttempt grades sub, persists it and ranks it.
//
// Once the submission is stored a result is always returned. A ranking
// failure is reported alongside it with a nil rank: errors wrapping
// domain.ErrRankingContention mean the leaderboard was too contended, anything
// else means no rank could be obtained.
func (s *ExamService) SubmitAttempt(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error) {
	start := s.now()
	defer func() { s.metrics.ObserveSubmitLatency(s.now().Sub(start)) }()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ExamService.SubmitAttempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("paper.id", sub.PaperID),
		attribute.String("user.id", sub.UserID),
	)

	if sub.PaperID == "" || sub.UserID == "" || sub.TimeTakenSeconds < 0 {
		return domain.SubmissionResult{}, domain.ErrInvalidSubmission
	}

	questions, err := s.questions.GetQuestions(ctx, sub.PaperID)
	if err == nil && len(questions) == 0 {
		err = domain.ErrPaperNotFound
	}
	if err != nil {
		if errors.Is(err, domain.ErrPaperNotFound) {
			s.metrics.ObserveSubmission(metrics.OutcomePaperNotFound)
		} else {
			s.metrics.ObserveSubmission(metrics.OutcomeError)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.SubmissionResult{}, err
	}

	result := grading.Aggregate(sub.Answers, questions, sub.MarkedForReview)
	span.SetAttributes(
		attribute.Float64("score.total", result.TotalScore),
		attribute.Int("score.correct", result.Correct),
	)

	record, err := s.submissions.Save(ctx, domain.SubmissionRecord{
		PaperID:          sub.PaperID,
		UserID:           sub.UserID,
		DisplayName:      sub.DisplayName,
		Result:           result,
		Answers:          sub.Answers,
		MarkedForReview:  sub.MarkedForReview,
		TimeTakenSeconds: sub.TimeTakenSeconds,
		SubmittedAt:      s.now(),
	})
	if err != nil {
		s.metrics.ObserveSubmission(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.SubmissionResult{}, fmt.Errorf("save submission: %w", err)
	}
	s.metrics.ObserveSubmission(metrics.OutcomeGraded)

	out := domain.SubmissionResult{Submission: record}
	rank, err := s.ranker.Submit(ctx, sub.PaperID, leaderboardEntry(record))
	if err != nil {
		log.Printf("rank submission %s on paper %s: %v", record.ID, sub.PaperID, err)
		return out, err
	}
	out.Rank = rank
	return out, nil
}

// GetSubmission returns a stored submission by id.
func (s *ExamService) GetSubmission(ctx context.Context, id string) (domain.SubmissionRecord, error) {
	return s.submissions.Get(ctx, id)
}

// GetLeaderboard returns the committed leaderboard of a paper.
func (s *ExamService) GetLeaderboard(ctx context.Context, paperID string) (domain.Leaderboard, error) {
	return s.ranker.Leaderboard(ctx, paperID)
}

// Subscribe returns a channel that receives leaderboard updates for a paper.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ExamService) Subscribe(ctx context.Context, paperID string) (<-chan domain.Leaderboard, func(), error) {
	return s.ranker.Subscribe(ctx, paperID)
}

func leaderboardEntry(record domain.SubmissionRecord) domain.LeaderboardEntry {
	subjectScores := make(map[domain.Subject]float64, len(record.Result.Subjects))
	for subject, stats := range record.Result.Subjects {
		subjectScores[subject] = stats.Marks
	}
	percentage := 0.0
	if record.Result.MaxScore > 0 {
		percentage = math.Round(record.Result.TotalScore/record.Result.MaxScore*10000) / 100
	}
	return domain.LeaderboardEntry{
		SubmissionID:     record.ID,
		UserID:           record.UserID,
		DisplayName:      record.DisplayName,
		Score:            record.Result.TotalScore,
		MaxScore:         record.Result.MaxScore,
		Percentage:       percentage,
		TimeTakenSeconds: record.TimeTakenSeconds,
		AttemptNumber:    record.AttemptNumber,
		SubjectScores:    subjectScores,
		SubmittedAt:      record.SubmittedAt,
	}
}
