package domain

import (
	"time"
)

// Subject groups questions of a paper for per-subject breakdowns.
type Subject string

const (
	SubjectPhysics     Subject = "physics"
	SubjectChemistry   Subject = "chemistry"
	SubjectMathematics Subject = "mathematics"
	SubjectBiology     Subject = "biology"
)

// QuestionType selects the comparison rule used to evaluate an answer.
type QuestionType string

const (
	QuestionSingleCorrect   QuestionType = "single_correct"
	QuestionMultipleCorrect QuestionType = "multiple_correct"
	QuestionInteger         QuestionType = "integer"
	QuestionNumerical       QuestionType = "numerical"
	QuestionDecimal         QuestionType = "decimal"
	// QuestionUnknown covers any unrecognized type string; it is graded like single correct.
	QuestionUnknown QuestionType = "unknown"
)

// ParseQuestionType maps a catalog type string onto the closed set of question types.
func ParseQuestionType(raw string) QuestionType {
	switch QuestionType(raw) {
	case QuestionSingleCorrect, QuestionMultipleCorrect, QuestionInteger, QuestionNumerical, QuestionDecimal:
		return QuestionType(raw)
	}
	switch raw {
	case "Single-Correct", "single-correct", "SINGLE_CORRECT", "mcq_single":
		return QuestionSingleCorrect
	case "Multiple-Correct", "multiple-correct", "MULTIPLE_CORRECT", "mcq_multi":
		return QuestionMultipleCorrect
	case "Integer", "INTEGER":
		return QuestionInteger
	case "Numerical", "NUMERICAL", "numeric":
		return QuestionNumerical
	case "Decimal", "DECIMAL":
		return QuestionDecimal
	}
	return QuestionUnknown
}

const (
	DefaultPositiveMarks = 4.0
	DefaultNegativeMarks = -1.0
)

// NumericRule widens the acceptance of numerical and decimal answers.
// Tolerance is a percentage of the correct value; Min/Max is an inclusive range.
// When both are present the tolerance wins.
type NumericRule struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Tolerance *float64 `json:"tolerance,omitempty"`
}

// HasRange reports whether both range bounds are set.
func (r *NumericRule) HasRange() bool {
	return r != nil && r.Min != nil && r.Max != nil
}

// HasTolerance reports whether a percentage tolerance is set.
func (r *NumericRule) HasTolerance() bool {
	return r != nil && r.Tolerance != nil
}

// Question is a catalog question as seen by the grading engine.
type Question struct {
	PaperID       string       `json:"paperId"`
	Number        int          `json:"number"`
	Subject       Subject      `json:"subject"`
	Type          QuestionType `json:"type"`
	CorrectAnswer string       `json:"correctAnswer"`
	Rule          *NumericRule `json:"rule,omitempty"`
	PositiveMarks *float64     `json:"positiveMarks,omitempty"`
	NegativeMarks *float64     `json:"negativeMarks,omitempty"`
}

// Award returns the marks added for a correct answer.
func (q *Question) Award() float64 {
	if q.PositiveMarks == nil {
		return DefaultPositiveMarks
	}
	return *q.PositiveMarks
}

// Penalty returns the marks added for an incorrect answer. It is never positive:
// catalogs that store the penalty as a magnitude are normalized here.
func (q *Question) Penalty() float64 {
	if q.NegativeMarks == nil {
		return DefaultNegativeMarks
	}
	if *q.NegativeMarks > 0 {
		return -*q.NegativeMarks
	}
	return *q.NegativeMarks
}

// Status is the outcome of evaluating one answer.
type Status int

const (
	StatusUnattempted Status = iota
	StatusCorrect
	StatusIncorrect
)

func (s Status) String() string {
	switch s {
	case StatusCorrect:
		return "correct"
	case StatusIncorrect:
		return "incorrect"
	default:
		return "unattempted"
	}
}

// SubjectStats is the per-subject slice of a ScoreResult.
type SubjectStats struct {
	Correct     int     `json:"correct"`
	Incorrect   int     `json:"incorrect"`
	Unattempted int     `json:"unattempted"`
	Total       int     `json:"total"`
	Marks       float64 `json:"marks"`
	Accuracy    float64 `json:"accuracy"`
}

// ScoreResult is the graded outcome of one submission.
type ScoreResult struct {
	TotalScore     float64                  `json:"totalScore"`
	MaxScore       float64                  `json:"maxScore"`
	Correct        int                      `json:"correct"`
	Incorrect      int                      `json:"incorrect"`
	Unattempted    int                      `json:"unattempted"`
	TotalQuestions int                      `json:"totalQuestions"`
	Attempted      int                      `json:"attempted"`
	Accuracy       float64                  `json:"accuracy"`
	Subjects       map[Subject]SubjectStats `json:"subjects"`
}

// Submission is a candidate's finished attempt at a paper.
type Submission struct {
	PaperID          string         `json:"paperId"`
	UserID           string         `json:"userId"`
	DisplayName      string         `json:"displayName"`
	Answers          map[int]Answer `json:"answers"`
	MarkedForReview  []int          `json:"markedForReview"`
	TimeTakenSeconds int64          `json:"timeTakenSeconds"`
}

// SubmissionRecord is a persisted, graded submission.
type SubmissionRecord struct {
	ID               string         `json:"id"`
	PaperID          string         `json:"paperId"`
	UserID           string         `json:"userId"`
	DisplayName      string         `json:"displayName"`
	AttemptNumber    int            `json:"attemptNumber"`
	Result           ScoreResult    `json:"result"`
	Answers          map[int]Answer `json:"answers"`
	MarkedForReview  []int          `json:"markedForReview"`
	TimeTakenSeconds int64          `json:"timeTakenSeconds"`
	SubmittedAt      time.Time      `json:"submittedAt"`
}

// SubmissionResult is what callers get back after submitting: the stored record
// plus the leaderboard rank, which is nil when the attempt was not ranked.
type SubmissionResult struct {
	Submission SubmissionRecord `json:"submission"`
	Rank       *int             `json:"rank"`
}

// LeaderboardEntry is one ranked attempt on a paper's leaderboard.
type LeaderboardEntry struct {
	SubmissionID     string              `json:"submissionId"`
	UserID           string              `json:"userId"`
	DisplayName      string              `json:"displayName"`
	Score            float64             `json:"score"`
	MaxScore         float64             `json:"maxScore"`
	Percentage       float64             `json:"percentage"`
	TimeTakenSeconds int64               `json:"timeTakenSeconds"`
	AttemptNumber    int                 `json:"attemptNumber"`
	SubjectScores    map[Subject]float64 `json:"subjectScores,omitempty"`
	Rank             int                 `json:"rank"`
	SubmittedAt      time.Time           `json:"submittedAt"`
}

// LeaderboardStatistics summarizes the current entries of a leaderboard.
type LeaderboardStatistics struct {
	AverageScore       float64 `json:"averageScore"`
	HighestScore       float64 `json:"highestScore"`
	LowestScore        float64 `json:"lowestScore"`
	AverageTimeSeconds float64 `json:"averageTimeSeconds"`
}

// LeaderboardSettings are fixed when a leaderboard document is created.
type LeaderboardSettings struct {
	MaxEntries          int  `json:"maxEntries"`
	ShowOnlyBestAttempt bool `json:"showOnlyBestAttempt"`
}

// Leaderboard is the ranked document kept per paper.
type Leaderboard struct {
	PaperID           string                `json:"paperId"`
	Entries           []LeaderboardEntry    `json:"entries"`
	TotalParticipants int                   `json:"totalParticipants"`
	Statistics        LeaderboardStatistics `json:"statistics"`
	Settings          LeaderboardSettings   `json:"settings"`
	Version           int64                 `json:"version"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

// NewLeaderboard returns an empty leaderboard for paperID.
func NewLeaderboard(paperID string, settings LeaderboardSettings) Leaderboard {
	return Leaderboard{
		PaperID:  paperID,
		Entries:  []LeaderboardEntry{},
		Settings: settings,
	}
}

// Clone returns a deep copy so callers can mutate it without touching committed state.
func (lb Leaderboard) Clone() Leaderboard {
	out := lb
	out.Entries = make([]LeaderboardEntry, len(lb.Entries))
	for i, e := range lb.Entries {
		if e.SubjectScores != nil {
			scores := make(map[Subject]float64, len(e.SubjectScores))
			for k, v := range e.SubjectScores {
				scores[k] = v
			}
			e.SubjectScores = scores
		}
		out.Entries[i] = e
	}
	return out
}
