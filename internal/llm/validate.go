package llm

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/quizzer/internal/model"
)

// FieldError names the field that made a candidate question invalid.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

type fieldRule struct {
	name     string
	required bool
	check    func(any) string // empty result means the value is acceptable
}

var questionSchema = []fieldRule{
	{"question_text", true, nonEmptyText},
	{"option_a", true, nonEmptyText},
	{"option_b", true, nonEmptyText},
	{"option_c", true, nonEmptyText},
	{"option_d", true, nonEmptyText},
	{"correct_answer", true, oneOf("A", "B", "C", "D")},
	{"category", true, nonEmptyText},
	{"topic", true, nonEmptyText},
	{"difficulty", true, oneOf("easy", "medium", "hard")},
	{"explanation", false, text},
}

func text(v any) string {
	if _, ok := v.(string); !ok {
		return fmt.Sprintf("want string, got %T", v)
	}
	return ""
}

func nonEmptyText(v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("want string, got %T", v)
	}
	if strings.TrimSpace(s) == "" {
		return "empty"
	}
	return ""
}

func oneOf(allowed ...string) func(any) string {
	return func(v any) string {
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("want string, got %T", v)
		}
		for _, a := range allowed {
			if s == a {
				return ""
			}
		}
		return fmt.Sprintf("%q not in %v", s, allowed)
	}
}

// CheckQuestion returns a *FieldError for the first field of candidate that
// fails its rule, or nil.
func CheckQuestion(candidate map[string]any) error {
	for _, rule := range questionSchema {
		v, ok := candidate[rule.name]
		if !ok {
			if rule.required {
				return &FieldError{Field: rule.name, Reason: "missing"}
			}
			continue
		}
		if reason := rule.check(v); reason != "" {
			return &FieldError{Field: rule.name, Reason: reason}
		}
	}
	return nil
}

// ValidateQuestion reports whether candidate satisfies every rule.
func ValidateQuestion(candidate map[string]any) bool {
	if err := CheckQuestion(candidate); err != nil {
		slog.Warn("rejected question", "error", err)
		return false
	}
	return true
}

// FilterValid keeps the candidates that are objects passing validation,
// converted to questions, in their original order.
func FilterValid(candidates []any, source model.QuestionSource) []model.Question {
	var out []model.Question
	for i, c := range candidates {
		m, ok := c.(map[string]any)
		if !ok {
			slog.Warn("rejected question", "index", i, "error", fmt.Sprintf("want object, got %T", c))
			continue
		}
		if !ValidateQuestion(m) {
			continue
		}
		q := toQuestion(m)
		q.Source = source
		out = append(out, q)
	}
	return out
}

// toQuestion assumes m passed CheckQuestion.
func toQuestion(m map[string]any) model.Question {
	str := func(k string) string {
		s, _ := m[k].(string)
		return strings.TrimSpace(s)
	}
	return model.Question{
		Text:          str("question_text"),
		OptionA:       str("option_a"),
		OptionB:       str("option_b"),
		OptionC:       str("option_c"),
		OptionD:       str("option_d"),
		CorrectAnswer: model.AnswerOption(str("correct_answer")),
		Category:      str("category"),
		Topic:         str("topic"),
		Difficulty:    model.Difficulty(str("difficulty")),
		Explanation:   str("explanation"),
	}
}
