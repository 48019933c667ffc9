// Package ranking holds the leaderboard mutation rule: merge an attempt, re-sort,
// assign dense ranks, enforce the entry cap and refresh statistics. Callers are
// responsible for serializing Apply calls on the same leaderboard.
package ranking

import (
	"sort"

	"exam-grading-service/internal/domain"
)

// Apply merges entry into lb and returns the rank it ended up with. ok is false
// when the attempt did not improve the user's best score in best-attempt mode or
// was cut off by the entry cap.
func Apply(lb *domain.Leaderboard, entry domain.LeaderboardEntry) (rank int, ok bool) {
	entry.Rank = 0

	if lb.Settings.ShowOnlyBestAttempt {
		if idx := indexOfUser(lb.Entries, entry.UserID); idx >= 0 {
			if entry.Score <= lb.Entries[idx].Score {
				return 0, false
			}
			lb.Entries[idx] = entry
		} else {
			lb.Entries = append(lb.Entries, entry)
		}
	} else {
		lb.Entries = append(lb.Entries, entry)
	}

	Rerank(lb)

	for _, e := range lb.Entries {
		if e.SubmissionID == entry.SubmissionID && e.UserID == entry.UserID {
			return e.Rank, true
		}
	}
	return 0, false
}

// Rerank sorts the entries (score descending, faster time first), assigns ranks
// 1..N, drops entries beyond the cap and refreshes the derived fields.
func Rerank(lb *domain.Leaderboard) {
	sort.SliceStable(lb.Entries, func(i, j int) bool {
		a, b := lb.Entries[i], lb.Entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.TimeTakenSeconds < b.TimeTakenSeconds
	})

	if limit := lb.Settings.MaxEntries; limit > 0 && len(lb.Entries) > limit {
		lb.Entries = lb.Entries[:limit]
	}
	for i := range lb.Entries {
		lb.Entries[i].Rank = i + 1
	}

	lb.TotalParticipants = len(lb.Entries)
	lb.Statistics = Statistics(lb.Entries)
}

// Statistics summarizes entries; an empty list yields zero values.
func Statistics(entries []domain.LeaderboardEntry) domain.LeaderboardStatistics {
	if len(entries) == 0 {
		return domain.LeaderboardStatistics{}
	}
	stats := domain.LeaderboardStatistics{
		HighestScore: entries[0].Score,
		LowestScore:  entries[0].Score,
	}
	var scoreSum, timeSum float64
	for _, e := range entries {
		scoreSum += e.Score
		timeSum += float64(e.TimeTakenSeconds)
		if e.Score > stats.HighestScore {
			stats.HighestScore = e.Score
		}
		if e.Score < stats.LowestScore {
			stats.LowestScore = e.Score
		}
	}
	n := float64(len(entries))
	stats.AverageScore = scoreSum / n
	stats.AverageTimeSeconds = timeSum / n
	return stats
}

func indexOfUser(entries []domain.LeaderboardEntry, userID string) int {
	for i := range entries {
		if entries[i].UserID == userID {
			return i
		}
	}
	return -1
}
