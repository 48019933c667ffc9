package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Answer is a raw candidate answer: one element for a plain value, several for a
// multi-select list. A nil Answer is an absent answer.
type Answer []string

// TextAnswer wraps a single raw value.
func TextAnswer(s string) Answer {
	return Answer{s}
}

// String renders the answer the way it is compared: list elements joined by commas.
func (a Answer) String() string {
	return strings.Join(a, ",")
}

// IsEmpty reports whether the answer is absent or blank once stringified.
func (a Answer) IsEmpty() bool {
	return strings.TrimSpace(a.String()) == ""
}

// UnmarshalJSON accepts null, a string, a number, a bool or an array of those.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(Answer, 0, len(raw))
		for _, item := range raw {
			s, err := scalarString(item)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*a = out
		return nil
	}
	s, err := scalarString(data)
	if err != nil {
		return err
	}
	*a = Answer{s}
	return nil
}

func scalarString(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return "", nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		return string(data), nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", fmt.Errorf("unsupported answer value %s", data)
		}
		return n.String(), nil
	}
}

// UnmarshalJSON normalizes catalog type strings onto the closed set.
func (t *QuestionType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = ParseQuestionType(raw)
	return nil
}
