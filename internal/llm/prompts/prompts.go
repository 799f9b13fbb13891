package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/quizzer/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

const maxFieldRunes = 200

// Characters that could break out of the quoted fields in the JSON example.
var unsafeFieldRegex = regexp.MustCompile("[{}\"`\\\\]")

var (
	loadOnce     sync.Once
	loadErr      error
	generateTmpl *template.Template
)

// GenerateData holds template data for the question generation prompt.
type GenerateData struct {
	Count      int
	Category   string
	Topic      string
	Difficulty model.Difficulty
	Language   string
}

var languageNames = map[string]string{
	"en": "English",
	"ar": "Arabic",
}

func load() error {
	loadOnce.Do(func() {
		content, err := templateFS.ReadFile("templates/generate.txt")
		if err != nil {
			loadErr = fmt.Errorf("read prompt template: %w", err)
			return
		}
		generateTmpl, err = template.New("generate").Parse(string(content))
		if err != nil {
			loadErr = fmt.Errorf("parse prompt template: %w", err)
		}
	})
	return loadErr
}

// BuildGeneratePrompt renders the generation prompt. lang is a locale tag
// such as "en" or "ar"; unknown or empty tags leave the language unspecified.
func BuildGeneratePrompt(params model.GenerationParams, count int, lang string) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	difficulty := params.Difficulty
	if !difficulty.Valid() {
		difficulty = model.DifficultyMedium
	}
	data := GenerateData{
		Count:      count,
		Category:   sanitizeField(params.Category, "general"),
		Topic:      sanitizeField(params.Topic, "general"),
		Difficulty: difficulty,
		Language:   languageNames[lang],
	}
	var buf bytes.Buffer
	if err := generateTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

func sanitizeField(s, fallback string) string {
	s = unsafeFieldRegex.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return fallback
	}
	if utf8.RuneCountInString(s) > maxFieldRunes {
		s = string([]rune(s)[:maxFieldRunes])
	}
	return s
}
