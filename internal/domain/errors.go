package domain

import "errors"

var (
	// ErrPaperNotFound is returned when a paper has no questions in the catalog.
	ErrPaperNotFound = errors.New("paper not found")
	// ErrSubmissionNotFound is returned when a submission id is unknown.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrLeaderboardNotFound is returned when no leaderboard exists for a paper yet.
	ErrLeaderboardNotFound = errors.New("leaderboard not found")
	// ErrInvalidSubmission indicates a submission is missing its paper or user.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrConflict is returned by leaderboard stores when a concurrent writer won.
	ErrConflict = errors.New("leaderboard update conflict")
	// ErrRankingContention is returned when ranking kept conflicting until retries ran out.
	ErrRankingContention = errors.New("could not complete ranking after contention")
)
