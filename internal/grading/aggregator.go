package grading

import (
	"log"
	"math"
	"sort"

	"exam-grading-service/internal/domain"
)

// Aggregate grades every submitted answer against the paper's questions and
// builds the overall and per-subject breakdown. Unknown question numbers in
// answers are logged and skipped; an empty question list yields a zero result.
func Aggregate(answers map[int]domain.Answer, questions []domain.Question, markedForReview []int) domain.ScoreResult {
	byNumber := make(map[int]*domain.Question, len(questions))
	subjects := make(map[domain.Subject]domain.SubjectStats)
	for i := range questions {
		q := &questions[i]
		byNumber[q.Number] = q
		stats := subjects[q.Subject]
		stats.Total++
		subjects[q.Subject] = stats
	}

	result := domain.ScoreResult{TotalQuestions: len(questions)}
	for i := range questions {
		result.MaxScore += questions[i].Award()
	}

	processed := make(map[int]struct{}, len(answers))
	processedBySubject := make(map[domain.Subject]int)
	markProcessed := func(q *domain.Question) {
		processed[q.Number] = struct{}{}
		processedBySubject[q.Subject]++
	}

	var score float64
	for _, number := range sortedNumbers(answers) {
		q, ok := byNumber[number]
		if !ok {
			log.Printf("skipping answer for unknown question %d on paper %s", number, paperOf(questions))
			continue
		}
		stats := subjects[q.Subject]
		switch Evaluate(q, answers[number]) {
		case domain.StatusCorrect:
			result.Correct++
			stats.Correct++
			score += q.Award()
			stats.Marks += q.Award()
		case domain.StatusIncorrect:
			result.Incorrect++
			stats.Incorrect++
			score += q.Penalty()
			stats.Marks += q.Penalty()
		default:
			result.Unattempted++
			stats.Unattempted++
		}
		subjects[q.Subject] = stats
		markProcessed(q)
	}

	for _, number := range markedForReview {
		if _, done := processed[number]; done {
			continue
		}
		q, ok := byNumber[number]
		if !ok {
			continue
		}
		stats := subjects[q.Subject]
		stats.Unattempted++
		subjects[q.Subject] = stats
		result.Unattempted++
		markProcessed(q)
	}

	// Questions never answered, left blank or flagged land in their own subject.
	result.Unattempted += result.TotalQuestions - len(processed)
	for subject, stats := range subjects {
		stats.Unattempted += stats.Total - processedBySubject[subject]
		stats.Accuracy = accuracy(stats.Correct, stats.Incorrect)
		stats.Marks = math.Max(0, stats.Marks)
		subjects[subject] = stats
	}

	result.Subjects = subjects
	result.Attempted = result.Correct + result.Incorrect
	result.TotalScore = math.Max(0, score)
	result.Accuracy = accuracy(result.Correct, result.Incorrect)
	return result
}

func accuracy(correct, incorrect int) float64 {
	attempted := correct + incorrect
	if attempted == 0 {
		return 0
	}
	return roundTo2(float64(correct) / float64(attempted) * 100)
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedNumbers(answers map[int]domain.Answer) []int {
	numbers := make([]int, 0, len(answers))
	for n := range answers {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

func paperOf(questions []domain.Question) string {
	if len(questions) == 0 {
		return "?"
	}
	return questions[0].PaperID
}
