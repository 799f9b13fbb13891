package quiz

import (
	"context"
	"testing"

	"github.com/pavelanni/quizzer/internal/store"
)

const importFile = `{"questions": [
  {"question_text": "2+2?", "option_a": "3", "option_b": "4", "option_c": "5", "option_d": "6",
   "correct_answer": "B", "category": "Math", "topic": "Arithmetic", "difficulty": "easy", "explanation": "basic"},
  {"question_text": "3*3?", "option_a": "6", "option_b": "9", "option_c": "12", "option_d": "33",
   "correct_answer": "B", "category": "Math", "topic": "Arithmetic", "difficulty": "easy"},
  {"question_text": "broken", "option_a": "x", "correct_answer": "Z"},
  "not an object"
]}`

func TestImport(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := NewService(s, nil, nil, Config{})

	report, err := svc.Import(ctx, "math.json", []byte(importFile))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Imported != 2 || report.Rejected != 2 || report.Skipped {
		t.Errorf("report = %+v, want 2 imported, 2 rejected", report)
	}
	n, err := s.CountQuestions(ctx, store.QuestionFilter{Category: "Math", Topic: "Arithmetic"})
	if err != nil {
		t.Fatalf("CountQuestions: %v", err)
	}
	if n != 2 {
		t.Errorf("bank holds %d, want 2", n)
	}

	report, err = svc.Import(ctx, "math.json", []byte(importFile))
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if !report.Skipped {
		t.Error("unchanged file should be skipped")
	}
	if n, _ := s.CountQuestions(ctx, store.QuestionFilter{}); n != 2 {
		t.Errorf("bank holds %d after skip, want 2", n)
	}
}

func TestImportBareArray(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil, Config{})
	data := `[{"question_text": "Q", "option_a": "1", "option_b": "2", "option_c": "3", "option_d": "4",
	  "correct_answer": "D", "category": "Physics", "topic": "Units", "difficulty": "hard"}]`
	report, err := svc.Import(context.Background(), "physics.json", []byte(data))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Imported != 1 {
		t.Errorf("imported = %d, want 1", report.Imported)
	}
}

func TestImportMalformed(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil, Config{})
	for _, data := range []string{`not json`, `{"items": []}`, `42`} {
		if _, err := svc.Import(context.Background(), "bad.json", []byte(data)); err == nil {
			t.Errorf("Import(%q): expected error", data)
		}
	}
}
