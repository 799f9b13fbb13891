package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/quizzer/internal/catalog"
	"github.com/pavelanni/quizzer/internal/llm"
	"github.com/pavelanni/quizzer/internal/model"
	"github.com/pavelanni/quizzer/internal/store"
)

const testUser = int64(1)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedQuestions(t *testing.T, s *store.Store, n int, category, topic string, difficulty model.Difficulty) {
	t.Helper()
	for i := range n {
		_, err := s.InsertQuestion(context.Background(), model.Question{
			Text:          fmt.Sprintf("%s question %d", topic, i),
			OptionA:       "a",
			OptionB:       "b",
			OptionC:       "c",
			OptionD:       "d",
			CorrectAnswer: model.OptionA,
			Category:      category,
			Topic:         topic,
			Difficulty:    difficulty,
			Explanation:   "a is right",
			Source:        model.SourceBank,
		})
		if err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}
}

type fakeGenerator struct {
	outcome llm.Outcome
	calls   int
}

func (f *fakeGenerator) Generate(_ context.Context, _ model.GenerationParams, count int) llm.Outcome {
	f.calls++
	out := f.outcome
	if out.OK() && len(out.Questions) > count {
		out.Questions = out.Questions[:count]
	}
	return out
}

func generatedBatch(n int) llm.Outcome {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			Text:          fmt.Sprintf("generated %d", i),
			OptionA:       "a",
			OptionB:       "b",
			OptionC:       "c",
			OptionD:       "d",
			CorrectAnswer: model.OptionB,
			Category:      "Mathematics",
			Topic:         "whatever",
			Difficulty:    model.DifficultyHard,
			Source:        model.SourceLLM,
		}
	}
	return llm.Outcome{BatchID: "batch", Status: llm.StatusOK, Questions: qs}
}

func mathStart(count int) StartRequest {
	return StartRequest{
		UserID:     testUser,
		Selection:  catalog.Selection{Subject: "Math", Specialization: "Algebra"},
		Difficulty: model.DifficultyMedium,
		Count:      count,
	}
}

func TestQuizLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedQuestions(t, s, 5, "Math", "Algebra", model.DifficultyMedium)
	svc := NewService(s, nil, nil, Config{Source: SourceBank})

	v, err := svc.Start(ctx, mathStart(5))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if v.Total != 5 || v.CurrentIndex != 0 || v.Complete {
		t.Fatalf("unexpected start view: %+v", v)
	}
	if v.Question == nil || v.Question.Position != 0 {
		t.Fatalf("expected first question, got %+v", v.Question)
	}

	answers := []model.AnswerOption{model.OptionA, model.OptionB, model.OptionA, model.OptionC, model.OptionA}
	for i, a := range answers {
		cur, err := svc.Current(ctx, v.Token, testUser)
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if cur.CurrentIndex != i || cur.Question == nil {
			t.Fatalf("step %d: unexpected view %+v", i, cur)
		}
		out, err := svc.AnswerCurrent(ctx, AnswerRequest{Token: v.Token, UserID: testUser, Position: i, Answer: a})
		if err != nil {
			t.Fatalf("AnswerCurrent(%d): %v", i, err)
		}
		if out.Correct != (a == model.OptionA) {
			t.Errorf("step %d: correct = %v", i, out.Correct)
		}
		if out.CorrectAnswer != model.OptionA {
			t.Errorf("step %d: correct answer = %q", i, out.CorrectAnswer)
		}
		if out.CurrentIndex != i+1 {
			t.Errorf("step %d: cursor = %d", i, out.CurrentIndex)
		}
	}

	done, err := svc.IsComplete(ctx, v.Token, testUser)
	if err != nil || !done {
		t.Fatalf("IsComplete = %v, %v", done, err)
	}
	cur, err := svc.Current(ctx, v.Token, testUser)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !cur.Complete || cur.Question != nil || cur.Score != 3 {
		t.Errorf("unexpected complete view: %+v", cur)
	}
	for _, pos := range []int{4, 0, 5, -1} {
		_, err = svc.AnswerCurrent(ctx, AnswerRequest{Token: v.Token, UserID: testUser, Position: pos, Answer: model.OptionA})
		if !errors.Is(err, model.ErrSessionComplete) {
			t.Errorf("answer at %d after completion: got %v, want ErrSessionComplete", pos, err)
		}
	}

	svc.now = func() time.Time { return time.Now().Add(90 * time.Second) }
	r, err := svc.Finalize(ctx, v.Token, testUser)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if r.Score != 3 || r.TotalQuestions != 5 {
		t.Errorf("result = %d/%d, want 3/5", r.Score, r.TotalQuestions)
	}
	if r.ElapsedSeconds < 89 {
		t.Errorf("elapsed = %d", r.ElapsedSeconds)
	}
	if len(r.Answers) != 5 {
		t.Errorf("answers = %d", len(r.Answers))
	}

	if _, err := svc.Current(ctx, v.Token, testUser); !errors.Is(err, model.ErrNoActiveSession) {
		t.Errorf("session should be gone, got %v", err)
	}
	if _, err := svc.Finalize(ctx, v.Token, testUser); !errors.Is(err, model.ErrNoActiveSession) {
		t.Errorf("second finalize: got %v", err)
	}

	p, err := s.GetProgress(ctx, testUser, "Math", "Algebra")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p == nil || p.CorrectCount != 3 || p.TotalCount != 5 {
		t.Errorf("progress = %+v, want 3/5", p)
	}

	stored, err := s.GetResult(ctx, r.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetResult: %v", err)
	}
	if stored.Score != 3 || len(stored.Answers) != 5 {
		t.Errorf("stored result = %+v", stored)
	}
}

func TestAnswerCurrentRejectsResubmit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedQuestions(t, s, 3, "Math", "Algebra", model.DifficultyMedium)
	svc := NewService(s, nil, nil, Config{Source: SourceBank})

	v, err := svc.Start(ctx, mathStart(3))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	req := AnswerRequest{Token: v.Token, UserID: testUser, Position: 0, Answer: model.OptionA}
	if _, err := svc.AnswerCurrent(ctx, req); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if _, err := svc.AnswerCurrent(ctx, req); !errors.Is(err, model.ErrSlotAnswered) {
		t.Fatalf("resubmit: got %v, want ErrSlotAnswered", err)
	}

	cur, err := svc.Current(ctx, v.Token, testUser)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.CurrentIndex != 1 || cur.Score != 1 {
		t.Errorf("cursor = %d, score = %d, want 1, 1", cur.CurrentIndex, cur.Score)
	}
	p, err := s.GetProgress(ctx, testUser, "Math", "Algebra")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p.TotalCount != 1 || p.CorrectCount != 1 {
		t.Errorf("progress = %d/%d, want 1/1", p.CorrectCount, p.TotalCount)
	}
}

func TestAnswerCurrentConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedQuestions(t, s, 3, "Math", "Algebra", model.DifficultyMedium)
	svc := NewService(s, nil, nil, Config{Source: SourceBank})

	v, err := svc.Start(ctx, mathStart(3))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	const submitters = 4
	errs := make([]error, submitters)
	var wg sync.WaitGroup
	for i := range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.AnswerCurrent(ctx, AnswerRequest{Token: v.Token, UserID: testUser, Position: 0, Answer: model.OptionA})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, model.ErrSlotAnswered), errors.Is(err, model.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d submissions succeeded, want 1", succeeded)
	}

	cur, err := svc.Current(ctx, v.Token, testUser)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.CurrentIndex != 1 || cur.Score != 1 {
		t.Errorf("cursor = %d, score = %d, want 1, 1", cur.CurrentIndex, cur.Score)
	}
}

func TestAnswerCurrentValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedQuestions(t, s, 2, "Math", "Algebra", model.DifficultyMedium)
	svc := NewService(s, nil, nil, Config{Source: SourceBank})

	v, err := svc.Start(ctx, mathStart(2))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tests := []struct {
		name string
		req  AnswerRequest
		want error
	}{
		{"bad option", AnswerRequest{Token: v.Token, UserID: testUser, Position: 0, Answer: "E"}, model.ErrInvalidAnswer},
		{"lowercase option", AnswerRequest{Token: v.Token, UserID: testUser, Position: 0, Answer: "a"}, model.ErrInvalidAnswer},
		{"unknown token", AnswerRequest{Token: "nope", UserID: testUser, Position: 0, Answer: "A"}, model.ErrNoActiveSession},
		{"other user", AnswerRequest{Token: v.Token, UserID: 99, Position: 0, Answer: "A"}, model.ErrNoActiveSession},
		{"ahead of cursor", AnswerRequest{Token: v.Token, UserID: testUser, Position: 1, Answer: "A"}, model.ErrConflict},
		{"out of range", AnswerRequest{Token: v.Token, UserID: testUser, Position: 7, Answer: "A"}, model.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.AnswerCurrent(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFinalizeIncomplete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedQuestions(t, s, 2, "Math", "Algebra", model.DifficultyMedium)
	svc := NewService(s, nil, nil, Config{Source: SourceBank})

	v, err := svc.Start(ctx, mathStart(2))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Finalize(ctx, v.Token, testUser); !errors.Is(err, model.ErrSessionIncomplete) {
		t.Fatalf("got %v, want ErrSessionIncomplete", err)
	}
	if _, err := svc.Current(ctx, v.Token, testUser); err != nil {
		t.Errorf("session should survive a rejected finalize: %v", err)
	}
}

func TestStartEmptyBank(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil, Config{Source: SourceBank})
	_, err := svc.Start(context.Background(), mathStart(5))
	if !errors.Is(err, model.ErrNoQuestionsAvailable) {
		t.Fatalf("got %v, want ErrNoQuestionsAvailable", err)
	}
}

func TestStartShortBank(t *testing.T) {
	s := newTestStore(t)
	seedQuestions(t, s, 2, "Math", "Algebra", model.DifficultyMedium)
	svc := NewService(s, nil, nil, Config{Source: SourceBank})
	v, err := svc.Start(context.Background(), mathStart(5))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if v.Total != 2 {
		t.Errorf("total = %d, want 2", v.Total)
	}
}

func TestStartValidation(t *testing.T) {
	s := newTestStore(t)
	cat := &catalog.Catalog{Subjects: []catalog.Node{{Name: "Math", Children: []catalog.Node{{Name: "Algebra"}}}}}
	svc := NewService(s, nil, cat, Config{Source: SourceBank, MaxQuestions: 20})

	tests := []struct {
		name string
		req  StartRequest
		want error
	}{
		{"too many", mathStart(21), model.ErrInvalidCount},
		{"negative", mathStart(-1), model.ErrInvalidCount},
		{"unknown subject", StartRequest{UserID: testUser, Selection: catalog.Selection{Subject: "History"}}, model.ErrInvalidSelection},
		{"bad difficulty", StartRequest{UserID: testUser, Selection: catalog.Selection{Subject: "Math"}, Difficulty: "brutal"}, model.ErrInvalidSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Start(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStartAdaptiveDifficulty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedQuestions(t, s, 3, "Math", "Algebra", model.DifficultyHard)
	seedQuestions(t, s, 3, "Math", "Algebra", model.DifficultyMedium)

	err := s.InTx(ctx, func(tx *store.Tx) error {
		for i := range 10 {
			if err := tx.AddProgress(ctx, testUser, "Math", "Geometry", i != 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	svc := NewService(s, nil, nil, Config{Source: SourceBank})
	req := mathStart(3)
	req.Difficulty = ""
	v, err := svc.Start(ctx, req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if v.Difficulty != model.DifficultyHard {
		t.Errorf("difficulty = %q, want hard", v.Difficulty)
	}
	if v.Question.Difficulty != model.DifficultyHard {
		t.Errorf("question difficulty = %q", v.Question.Difficulty)
	}
}

func TestStartGeneratesWhenBankEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	gen := &fakeGenerator{outcome: generatedBatch(5)}
	svc := NewService(s, gen, nil, Config{Source: SourceAuto})

	v, err := svc.Start(ctx, mathStart(4))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if gen.calls != 1 || v.Total != 4 {
		t.Fatalf("calls = %d, total = %d", gen.calls, v.Total)
	}
	if v.Question.Category != "Math" || v.Question.Topic != "Algebra" || v.Question.Difficulty != model.DifficultyMedium {
		t.Errorf("generated question not filed under the selection: %+v", v.Question)
	}
	n, err := s.CountQuestions(ctx, store.QuestionFilter{Category: "Math"})
	if err != nil {
		t.Fatalf("CountQuestions: %v", err)
	}
	if n != 4 {
		t.Errorf("bank holds %d questions, want 4", n)
	}

	out, err := svc.AnswerCurrent(ctx, AnswerRequest{Token: v.Token, UserID: testUser, Position: 0, Answer: model.OptionB})
	if err != nil {
		t.Fatalf("AnswerCurrent: %v", err)
	}
	if !out.Correct {
		t.Error("expected generated answer key to be used")
	}

	// A second quiz is served from the bank.
	if _, err := svc.Start(ctx, mathStart(4)); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1", gen.calls)
	}
}

func TestStartGenerationExhausted(t *testing.T) {
	cause := errors.New("connection refused")
	gen := &fakeGenerator{outcome: llm.Outcome{
		Status:   llm.StatusExhausted,
		Attempts: []llm.Attempt{{N: 3, Failure: llm.FailureTransport, Err: cause}},
	}}
	svc := NewService(newTestStore(t), gen, nil, Config{Source: SourceLLM})

	_, err := svc.Start(context.Background(), mathStart(5))
	if !errors.Is(err, llm.ErrGenerationExhausted) {
		t.Fatalf("got %v, want ErrGenerationExhausted", err)
	}
	if errors.Is(err, model.ErrNoQuestionsAvailable) {
		t.Error("generation failure must be distinguishable from an empty source")
	}
	if !errors.Is(err, cause) {
		t.Error("expected the transport cause to be wrapped")
	}
}

func TestStartLLMWithoutGenerator(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil, Config{Source: SourceLLM})
	if _, err := svc.Start(context.Background(), mathStart(5)); !errors.Is(err, ErrGeneratorDisabled) {
		t.Fatalf("got %v, want ErrGeneratorDisabled", err)
	}
}

func TestStartAdmitGuardsGeneration(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	gen := &fakeGenerator{outcome: generatedBatch(5)}
	svc := NewService(s, gen, nil, Config{Source: SourceAuto})

	admitted := 0
	refuse := func() error {
		admitted++
		return model.ErrRateLimited
	}

	req := mathStart(3)
	req.Admit = refuse
	if _, err := svc.Start(ctx, req); !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	if admitted != 1 || gen.calls != 0 {
		t.Fatalf("admitted = %d, generator calls = %d, want 1, 0", admitted, gen.calls)
	}
	if n, err := s.CountQuestions(ctx, store.QuestionFilter{}); err != nil || n != 0 {
		t.Errorf("bank = %d, %v; refused generation must not store questions", n, err)
	}

	seedQuestions(t, s, 3, "Math", "Algebra", model.DifficultyMedium)
	if _, err := svc.Start(ctx, req); err != nil {
		t.Fatalf("bank hit: %v", err)
	}
	if admitted != 1 {
		t.Errorf("bank hit consulted Admit")
	}

	req.Source = SourceLLM
	req.Admit = func() error { admitted++; return nil }
	if _, err := svc.Start(ctx, req); err != nil {
		t.Fatalf("admitted llm start: %v", err)
	}
	if admitted != 2 || gen.calls != 1 {
		t.Errorf("admitted = %d, generator calls = %d, want 2, 1", admitted, gen.calls)
	}
}

func TestGenerateQuestionsWithoutPersist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := NewService(s, &fakeGenerator{outcome: generatedBatch(3)}, nil, Config{})

	qs, err := svc.GenerateQuestions(ctx, model.GenerationParams{Category: "Physics", Difficulty: model.DifficultyEasy}, 3, false)
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 3 || qs[0].ID != 0 || qs[0].Category != "Physics" || qs[0].Topic != "whatever" {
		t.Errorf("unexpected questions: %+v", qs)
	}
	if n, _ := s.CountQuestions(ctx, store.QuestionFilter{}); n != 0 {
		t.Errorf("bank holds %d questions, want 0", n)
	}
	if _, err := svc.GenerateQuestions(ctx, model.GenerationParams{Category: "Physics"}, 50, false); !errors.Is(err, model.ErrInvalidCount) {
		t.Errorf("got %v, want ErrInvalidCount", err)
	}
}

func TestResultVisibility(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedQuestions(t, s, 1, "Math", "Algebra", model.DifficultyMedium)
	svc := NewService(s, nil, nil, Config{Source: SourceBank})

	v, err := svc.Start(ctx, mathStart(1))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.AnswerCurrent(ctx, AnswerRequest{Token: v.Token, UserID: testUser, Position: 0, Answer: model.OptionA}); err != nil {
		t.Fatalf("AnswerCurrent: %v", err)
	}
	r, err := svc.Finalize(ctx, v.Token, testUser)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	owner := &model.User{ID: testUser, Role: model.UserRoleStudent}
	other := &model.User{ID: 2, Role: model.UserRoleStudent}
	admin := &model.User{ID: 3, Role: model.UserRoleAdmin}
	if _, err := svc.Result(ctx, r.ID, owner); err != nil {
		t.Errorf("owner: %v", err)
	}
	if _, err := svc.Result(ctx, r.ID, admin); err != nil {
		t.Errorf("admin: %v", err)
	}
	if _, err := svc.Result(ctx, r.ID, other); !errors.Is(err, model.ErrResultNotFound) {
		t.Errorf("other: got %v", err)
	}
	if _, err := svc.Result(ctx, r.ID+100, owner); !errors.Is(err, model.ErrResultNotFound) {
		t.Errorf("missing: got %v", err)
	}
}

func TestParseSource(t *testing.T) {
	for in, want := range map[string]Source{"": SourceAuto, "auto": SourceAuto, "bank": SourceBank, "llm": SourceLLM} {
		got, err := ParseSource(in)
		if err != nil || got != want {
			t.Errorf("ParseSource(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSource("web"); err == nil {
		t.Error("expected error")
	}
}
