// Package grading turns raw candidate answers into scored results.
package grading

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"exam-grading-service/internal/domain"
	"golang.org/x/text/cases"
)

// decimalEpsilon is the fixed acceptance band for numerical answers without a rule.
const decimalEpsilon = 0.01

// Evaluate decides whether answer is unattempted, correct or incorrect for q.
// It has no side effects and is safe for concurrent use.
func Evaluate(q *domain.Question, answer domain.Answer) domain.Status {
	if answer.IsEmpty() {
		return domain.StatusUnattempted
	}

	var ok bool
	switch q.Type {
	case domain.QuestionSingleCorrect:
		ok = matchText(q.CorrectAnswer, answer.String())
	case domain.QuestionMultipleCorrect:
		ok = matchOptions(q.CorrectAnswer, answer)
	case domain.QuestionInteger:
		ok = matchInteger(q.CorrectAnswer, answer.String())
	case domain.QuestionNumerical, domain.QuestionDecimal:
		ok = matchNumeric(q, answer.String())
	default:
		ok = matchText(q.CorrectAnswer, answer.String())
	}

	if ok {
		return domain.StatusCorrect
	}
	return domain.StatusIncorrect
}

func matchText(correct, given string) bool {
	return fold(strings.TrimSpace(correct)) == fold(strings.TrimSpace(given))
}

// matchOptions compares option multisets; duplicates are significant.
func matchOptions(correct string, given domain.Answer) bool {
	var raw []string
	if len(given) == 1 {
		raw = strings.Split(given[0], ",")
	} else {
		raw = given
	}
	want := normalizeOptions(strings.Split(correct, ","))
	got := normalizeOptions(raw)
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func normalizeOptions(options []string) []string {
	out := make([]string, len(options))
	for i, opt := range options {
		out[i] = fold(strings.TrimSpace(opt))
	}
	sort.Strings(out)
	return out
}

func matchInteger(correct, given string) bool {
	want, err := strconv.ParseInt(strings.TrimSpace(correct), 10, 64)
	if err != nil {
		return false
	}
	got, err := strconv.ParseInt(strings.TrimSpace(given), 10, 64)
	if err != nil {
		return false
	}
	return want == got
}

func matchNumeric(q *domain.Question, given string) bool {
	want, ok := parseFinite(q.CorrectAnswer)
	if !ok {
		return false
	}
	got, ok := parseFinite(given)
	if !ok {
		return false
	}

	switch {
	case q.Rule.HasTolerance():
		return math.Abs(got-want) <= math.Abs(want)*(*q.Rule.Tolerance)/100
	case q.Rule.HasRange():
		return *q.Rule.Min <= got && got <= *q.Rule.Max
	default:
		return math.Abs(got-want) < decimalEpsilon
	}
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// fold case-folds s. Casers carry state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
