package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/quizzer/internal/model"
)

// scriptedCompleter replays replies in order and repeats the last one.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	r := s.replies[min(s.calls, len(s.replies)-1)]
	s.calls++
	return r.text, r.err
}

func batchJSON(t *testing.T, n int) string {
	t.Helper()
	var qs []map[string]any
	for i := range n {
		c := validCandidate()
		c["question_text"] = fmt.Sprintf("Question %d?", i+1)
		qs = append(qs, c)
	}
	data, err := json.Marshal(map[string]any{"questions": qs})
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	return string(data)
}

var testParams = model.GenerationParams{Category: "Math", Topic: "Arithmetic", Difficulty: model.DifficultyEasy}

func TestGenerateSuccessFirstAttempt(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{text: "Sure!\n```json\n" + batchJSON(t, 5) + "\n```"}}}
	g := NewGenerator(c, 0, 0, "en")

	out := g.Generate(context.Background(), testParams, 5)
	if !out.OK() {
		t.Fatalf("expected OK, got %s: %v", out.Status, out.Err())
	}
	if len(out.Questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(out.Questions))
	}
	if c.calls != 1 {
		t.Errorf("expected 1 call, got %d", c.calls)
	}
	if len(out.Attempts) != 1 || out.Attempts[0].Failure != FailureNone {
		t.Errorf("unexpected attempts: %+v", out.Attempts)
	}
	if out.BatchID == "" {
		t.Error("expected a batch ID")
	}
	if !strings.Contains(c.prompts[0], "Create 5 multiple-choice questions") {
		t.Error("prompt should request the batch size")
	}
}

func TestGenerateTruncatesToCount(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{text: batchJSON(t, 8)}}}
	g := NewGenerator(c, 3, time.Second, "")

	out := g.Generate(context.Background(), testParams, 3)
	if len(out.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(out.Questions))
	}
	for i, q := range out.Questions {
		if want := fmt.Sprintf("Question %d?", i+1); q.Text != want {
			t.Errorf("question %d = %q, want %q", i, q.Text, want)
		}
	}
}

func TestGenerateTransportFailureExhausts(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{err: errors.New("status code: 500")}}}
	g := NewGenerator(c, DefaultMaxAttempts, time.Second, "")

	out := g.Generate(context.Background(), testParams, 5)
	if out.OK() {
		t.Fatal("expected exhausted outcome")
	}
	if len(out.Questions) != 0 {
		t.Errorf("expected no questions, got %d", len(out.Questions))
	}
	if c.calls != DefaultMaxAttempts {
		t.Errorf("expected %d calls, got %d", DefaultMaxAttempts, c.calls)
	}
	for _, a := range out.Attempts {
		if a.Failure != FailureTransport {
			t.Errorf("attempt %d failure = %s, want transport", a.N, a.Failure)
		}
	}
	if !errors.Is(out.Err(), ErrGenerationExhausted) {
		t.Errorf("Err() = %v, want ErrGenerationExhausted", out.Err())
	}
}

func TestGenerateRecoversAfterFailures(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{
		{err: errors.New("connection refused")},
		{text: "I cannot produce JSON today."},
		{text: batchJSON(t, 2)},
	}}
	g := NewGenerator(c, 3, time.Second, "")

	out := g.Generate(context.Background(), testParams, 2)
	if !out.OK() {
		t.Fatalf("expected OK on third attempt, got %v", out.Err())
	}
	want := []Failure{FailureTransport, FailureContent, FailureNone}
	if len(out.Attempts) != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), len(out.Attempts))
	}
	for i, f := range want {
		if out.Attempts[i].Failure != f {
			t.Errorf("attempt %d failure = %s, want %s", i+1, out.Attempts[i].Failure, f)
		}
	}
}

func TestGenerateFailureKinds(t *testing.T) {
	partial := validCandidate()
	partial["correct_answer"] = "Z"
	shortBatch, _ := json.Marshal(map[string]any{"questions": []any{validCandidate(), partial}})

	tests := []struct {
		name  string
		reply reply
		want  Failure
	}{
		{"transport", reply{err: ErrNoChoices}, FailureTransport},
		{"no json", reply{text: "nothing useful"}, FailureContent},
		{"broken json", reply{text: `{"questions": [}`}, FailureContent},
		{"wrong shape", reply{text: `{"questions": "many"}`}, FailureContent},
		{"shortfall", reply{text: string(shortBatch)}, FailureShortfall},
		{"empty list", reply{text: `{"questions": []}`}, FailureShortfall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scriptedCompleter{replies: []reply{tt.reply}}
			out := NewGenerator(c, 2, time.Second, "").Generate(context.Background(), testParams, 2)
			if out.OK() || len(out.Questions) != 0 {
				t.Fatalf("expected exhausted outcome with no questions, got %+v", out)
			}
			if c.calls != 2 {
				t.Errorf("expected 2 calls, got %d", c.calls)
			}
			for _, a := range out.Attempts {
				if a.Failure != tt.want {
					t.Errorf("attempt %d failure = %s, want %s", a.N, a.Failure, tt.want)
				}
			}
		})
	}
}

func TestGenerateNeverExceedsCount(t *testing.T) {
	replies := []reply{
		{text: batchJSON(t, 1)},
		{text: batchJSON(t, 4)},
		{text: batchJSON(t, 20)},
		{err: errors.New("boom")},
		{text: "```json\n" + batchJSON(t, 7) + "\n```"},
	}
	for count := 1; count <= 6; count++ {
		for i := range replies {
			c := &scriptedCompleter{replies: replies[i:]}
			out := NewGenerator(c, 3, time.Second, "").Generate(context.Background(), testParams, count)
			if len(out.Questions) > count {
				t.Errorf("count %d, script %d: got %d questions", count, i, len(out.Questions))
			}
			if out.OK() && len(out.Questions) != count {
				t.Errorf("count %d, script %d: OK outcome with %d questions", count, i, len(out.Questions))
			}
		}
	}
}

func TestGenerateNonPositiveCount(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{text: batchJSON(t, 3)}}}
	out := NewGenerator(c, 3, time.Second, "").Generate(context.Background(), testParams, 0)
	if out.OK() || c.calls != 0 {
		t.Errorf("expected exhausted without calls, got status %s and %d calls", out.Status, c.calls)
	}
}

// blockingCompleter waits for the per-attempt deadline.
type blockingCompleter struct{ calls int }

func (b *blockingCompleter) Complete(ctx context.Context, _ string) (string, error) {
	b.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGenerateAttemptTimeout(t *testing.T) {
	b := &blockingCompleter{}
	out := NewGenerator(b, 2, 10*time.Millisecond, "").Generate(context.Background(), testParams, 1)
	if out.OK() {
		t.Fatal("expected exhausted outcome")
	}
	if b.calls != 2 {
		t.Errorf("expected 2 calls, got %d", b.calls)
	}
	if !errors.Is(out.Attempts[0].Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", out.Attempts[0].Err)
	}
}
