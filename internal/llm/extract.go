package llm

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a response contains no brace-delimited span.
var ErrNoJSON = errors.New("no JSON object in response")

// Greedy: the response wraps exactly one object, possibly inside code fences.
var jsonObjectRegex = regexp.MustCompile(`\{[\s\S]*\}`)

// ExtractJSON returns the span from the first '{' to the last '}' in raw.
// It does not parse the result.
func ExtractJSON(raw string) (string, error) {
	span := jsonObjectRegex.FindString(raw)
	if span == "" {
		return "", ErrNoJSON
	}
	return strings.TrimSpace(span), nil
}
