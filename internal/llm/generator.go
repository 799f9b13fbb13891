package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizzer/internal/llm/prompts"
	"github.com/pavelanni/quizzer/internal/metrics"
	"github.com/pavelanni/quizzer/internal/model"
)

const (
	// DefaultMaxAttempts bounds the generation retry loop.
	DefaultMaxAttempts = 3
	// DefaultAttemptTimeout bounds a single completion call.
	DefaultAttemptTimeout = 30 * time.Second
)

// ErrGenerationExhausted is returned by callers that surface an exhausted Outcome as an error.
var ErrGenerationExhausted = errors.New("question generation exhausted all attempts")

// Completer sends a prompt to a text-generation endpoint and returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Failure classifies why an attempt did not produce a batch.
type Failure string

const (
	FailureNone      Failure = "none"
	FailureTransport Failure = "transport"
	FailureContent   Failure = "content"
	FailureShortfall Failure = "shortfall"
)

// Status is the final state of a Generate call.
type Status string

const (
	StatusOK        Status = "ok"
	StatusExhausted Status = "exhausted"
)

// Attempt records one pass of the retry loop.
type Attempt struct {
	N       int
	Failure Failure
	Valid   int
	Err     error
}

// Outcome is the result of Generate. Questions is empty unless Status is StatusOK.
type Outcome struct {
	BatchID   string
	Status    Status
	Questions []model.Question
	Attempts  []Attempt
}

// OK reports whether the batch was filled.
func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

// Err returns nil for a filled batch and an error wrapping
// ErrGenerationExhausted and the last attempt's error otherwise.
func (o Outcome) Err() error {
	if o.OK() {
		return nil
	}
	if n := len(o.Attempts); n > 0 && o.Attempts[n-1].Err != nil {
		last := o.Attempts[n-1]
		return fmt.Errorf("%w: attempt %d %s: %w", ErrGenerationExhausted, last.N, last.Failure, last.Err)
	}
	return ErrGenerationExhausted
}

// Generator produces validated question batches with bounded sequential retries.
type Generator struct {
	completer   Completer
	maxAttempts int
	timeout     time.Duration
	lang        string
}

// NewGenerator creates a Generator. Non-positive limits fall back to the defaults.
// lang selects the language of the generated text ("en", "ar").
func NewGenerator(c Completer, maxAttempts int, timeout time.Duration, lang string) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Generator{completer: c, maxAttempts: maxAttempts, timeout: timeout, lang: lang}
}

// Generate asks for count questions matching params. It never returns more
// than count questions and returns none unless a full batch validated.
func (g *Generator) Generate(ctx context.Context, params model.GenerationParams, count int) Outcome {
	out := Outcome{BatchID: uuid.NewString(), Status: StatusExhausted}
	log := slog.With(
		"batch", out.BatchID,
		"category", params.Category,
		"topic", params.Topic,
		"difficulty", params.Difficulty,
		"count", count,
	)
	defer func() {
		metrics.GenerationBatches.WithLabelValues(string(out.Status)).Inc()
	}()

	if count <= 0 {
		log.Warn("generation requested with non-positive count")
		return out
	}

	prompt, err := prompts.BuildGeneratePrompt(params, count, g.lang)
	if err != nil {
		log.Error("failed to build generation prompt", "error", err)
		return out
	}

	for n := 1; n <= g.maxAttempts; n++ {
		questions, att := g.attempt(ctx, prompt, count, n)
		out.Attempts = append(out.Attempts, att)
		metrics.GenerationAttempts.WithLabelValues(string(att.Failure)).Inc()

		if att.Failure == FailureNone {
			out.Status = StatusOK
			out.Questions = questions
			log.Info("generated questions", "attempt", n, "valid", att.Valid)
			return out
		}
		log.Warn("generation attempt failed",
			"attempt", n,
			"failure", att.Failure,
			"valid", att.Valid,
			"error", att.Err,
		)
	}

	log.Error("generation exhausted", "attempts", len(out.Attempts))
	return out
}

func (g *Generator) attempt(ctx context.Context, prompt string, count, n int) ([]model.Question, Attempt) {
	att := Attempt{N: n}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.completer.Complete(callCtx, prompt)
	if err != nil {
		att.Failure = FailureTransport
		att.Err = err
		return nil, att
	}
	slog.Debug("LLM response", "attempt", n, "raw", raw)

	body, err := ExtractJSON(raw)
	if err != nil {
		att.Failure = FailureContent
		att.Err = err
		return nil, att
	}

	var batch struct {
		Questions []any `json:"questions"`
	}
	if err := json.Unmarshal([]byte(body), &batch); err != nil {
		att.Failure = FailureContent
		att.Err = fmt.Errorf("parse questions: %w", err)
		return nil, att
	}

	valid := FilterValid(batch.Questions, model.SourceLLM)
	att.Valid = len(valid)
	if rejected := len(batch.Questions) - len(valid); rejected > 0 {
		metrics.RejectedQuestions.Add(float64(rejected))
	}
	if len(valid) < count {
		att.Failure = FailureShortfall
		att.Err = fmt.Errorf("%d of %d requested questions valid", len(valid), count)
		return nil, att
	}

	att.Failure = FailureNone
	return valid[:count], att
}
