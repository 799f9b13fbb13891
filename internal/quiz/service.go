package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/quizzer/internal/catalog"
	"github.com/pavelanni/quizzer/internal/llm"
	"github.com/pavelanni/quizzer/internal/metrics"
	"github.com/pavelanni/quizzer/internal/model"
	"github.com/pavelanni/quizzer/internal/store"
)

// Source selects where quiz questions come from.
type Source string

const (
	// SourceBank samples stored questions only.
	SourceBank Source = "bank"
	// SourceLLM generates fresh questions for every quiz.
	SourceLLM Source = "llm"
	// SourceAuto samples the bank and generates only when it has nothing.
	SourceAuto Source = "auto"
)

// ParseSource validates a source name. Empty means SourceAuto.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case "", SourceAuto:
		return SourceAuto, nil
	case SourceBank, SourceLLM:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown question source %q (want bank, llm or auto)", s)
}

const (
	DefaultQuestionCount = 10
	DefaultMaxQuestions  = 20
)

// ErrGeneratorDisabled is returned when a quiz needs generated questions but
// no generator is configured.
var ErrGeneratorDisabled = errors.New("question generation is not configured")

// QuestionGenerator produces validated question batches.
type QuestionGenerator interface {
	Generate(ctx context.Context, params model.GenerationParams, count int) llm.Outcome
}

// Config holds quiz parameters set via CLI flags.
type Config struct {
	Source       Source
	DefaultCount int
	MaxQuestions int
}

// Service owns the quiz session lifecycle.
type Service struct {
	store   *store.Store
	gen     QuestionGenerator
	policy  *Policy
	catalog *catalog.Catalog
	cfg     Config
	now     func() time.Time
}

// NewService creates a Service. gen may be nil, which restricts quizzes to the bank.
func NewService(s *store.Store, gen QuestionGenerator, cat *catalog.Catalog, cfg Config) *Service {
	if cfg.Source == "" {
		cfg.Source = SourceAuto
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = DefaultMaxQuestions
	}
	if cfg.DefaultCount <= 0 || cfg.DefaultCount > cfg.MaxQuestions {
		cfg.DefaultCount = min(DefaultQuestionCount, cfg.MaxQuestions)
	}
	if cat == nil {
		cat = &catalog.Catalog{}
	}
	return &Service{
		store:   s,
		gen:     gen,
		policy:  NewPolicy(s),
		catalog: cat,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Source returns the configured question source.
func (s *Service) Source() Source {
	return s.cfg.Source
}

// MaxQuestions returns the upper bound on questions per quiz or generation call.
func (s *Service) MaxQuestions() int {
	return s.cfg.MaxQuestions
}

// StartRequest describes a new quiz.
type StartRequest struct {
	UserID     int64
	Selection  catalog.Selection
	Difficulty model.Difficulty // empty means adaptive
	Count      int              // zero means the configured default
	Source     Source           // empty means the configured default
	// Admit, if set, is called right before the generator would run and
	// can refuse the call. Bank hits never consult it.
	Admit func() error
}

// Start selects questions and creates a session. Question generation, if
// any, completes before the session row exists.
func (s *Service) Start(ctx context.Context, req StartRequest) (*model.SessionView, error) {
	count := req.Count
	if count == 0 {
		count = s.cfg.DefaultCount
	}
	if count < 1 || count > s.cfg.MaxQuestions {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", model.ErrInvalidCount, count, s.cfg.MaxQuestions)
	}

	category, topic, err := s.catalog.Resolve(req.Selection)
	if err != nil {
		return nil, err
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty, err = s.policy.Select(ctx, req.UserID, category)
		if err != nil {
			return nil, fmt.Errorf("select difficulty: %w", err)
		}
		slog.Debug("selected adaptive difficulty", "user_id", req.UserID, "category", category, "difficulty", difficulty)
	} else if !difficulty.Valid() {
		return nil, fmt.Errorf("%w: unknown difficulty %q", model.ErrInvalidSelection, difficulty)
	}

	source := req.Source
	if source == "" {
		source = s.cfg.Source
	}
	params := model.GenerationParams{Category: category, Topic: topic, Difficulty: difficulty}
	questions, used, err := s.collect(ctx, params, count, source, req.Admit)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, model.ErrNoQuestionsAvailable
	}

	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	sess, err := s.store.CreateQuizSession(ctx, model.QuizSession{
		UserID:     req.UserID,
		Category:   category,
		Topic:      topic,
		Difficulty: difficulty,
	}, ids)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.QuizzesStarted.WithLabelValues(string(used)).Inc()
	slog.Info("started quiz",
		"user_id", req.UserID,
		"category", category,
		"topic", topic,
		"difficulty", difficulty,
		"questions", len(ids),
		"source", used,
	)

	v := sessionView(sess)
	qv := model.NewQuestionView(questions[0], 0)
	v.Question = &qv
	return v, nil
}

// collect returns up to count stored questions, generating and storing
// them first when the source calls for it.
func (s *Service) collect(ctx context.Context, params model.GenerationParams, count int, source Source, admit func() error) ([]model.Question, Source, error) {
	switch source {
	case SourceBank, SourceAuto:
		qs, err := s.store.SampleQuestions(ctx, store.QuestionFilter{
			Category:   params.Category,
			Topic:      params.Topic,
			Difficulty: params.Difficulty,
		}, count)
		if err != nil {
			return nil, source, fmt.Errorf("sample questions: %w", err)
		}
		if len(qs) > 0 || source == SourceBank || s.gen == nil {
			return qs, SourceBank, nil
		}
		slog.Info("question bank empty for selection, generating",
			"category", params.Category, "topic", params.Topic, "difficulty", params.Difficulty)
		fallthrough
	case SourceLLM:
		if admit != nil && s.gen != nil {
			if err := admit(); err != nil {
				return nil, SourceLLM, err
			}
		}
		qs, err := s.GenerateQuestions(ctx, params, count, true)
		return qs, SourceLLM, err
	}
	return nil, source, fmt.Errorf("unknown question source %q", source)
}

// GenerateQuestions runs the generator and, when persist is set, stores the
// batch in the bank so the returned questions carry IDs. Generated questions
// are filed under the requested category, topic and difficulty.
func (s *Service) GenerateQuestions(ctx context.Context, params model.GenerationParams, count int, persist bool) ([]model.Question, error) {
	if s.gen == nil {
		return nil, ErrGeneratorDisabled
	}
	if count < 1 || count > s.cfg.MaxQuestions {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", model.ErrInvalidCount, count, s.cfg.MaxQuestions)
	}
	out := s.gen.Generate(ctx, params, count)
	if !out.OK() {
		return nil, out.Err()
	}
	qs := out.Questions
	for i := range qs {
		qs[i].Category = params.Category
		if params.Topic != "" {
			qs[i].Topic = params.Topic
		}
		if params.Difficulty.Valid() {
			qs[i].Difficulty = params.Difficulty
		}
	}
	if !persist {
		return qs, nil
	}
	stored, err := s.store.InsertQuestions(ctx, qs)
	if err != nil {
		return nil, fmt.Errorf("store generated questions: %w", err)
	}
	slog.Info("stored generated questions", "batch", out.BatchID, "count", len(stored))
	return stored, nil
}

// Current returns the session's state and, unless it is complete, the
// question at the cursor.
func (s *Service) Current(ctx context.Context, token string, userID int64) (*model.SessionView, error) {
	sess, err := s.store.GetQuizSession(ctx, token, userID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, model.ErrNoActiveSession
	}
	v := sessionView(sess)
	if v.Complete {
		return v, nil
	}
	_, q, err := s.store.GetSlotQuestion(ctx, sess.ID, sess.CurrentIndex)
	if err != nil {
		return nil, fmt.Errorf("get current question: %w", err)
	}
	if q == nil {
		return nil, fmt.Errorf("session %d has no slot at %d", sess.ID, sess.CurrentIndex)
	}
	qv := model.NewQuestionView(*q, sess.CurrentIndex)
	v.Question = &qv
	return v, nil
}

// IsComplete reports whether every slot of the session is answered.
func (s *Service) IsComplete(ctx context.Context, token string, userID int64) (bool, error) {
	sess, err := s.store.GetQuizSession(ctx, token, userID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return false, model.ErrNoActiveSession
	}
	return sess.IsComplete(), nil
}

// AnswerRequest answers the slot at Position, which must be the cursor the
// client last observed.
type AnswerRequest struct {
	Token    string
	UserID   int64
	Position int
	Answer   model.AnswerOption
}

// AnswerCurrent scores one answer. The slot update, cursor advance and
// progress increment commit together or not at all. A complete session
// rejects every position with model.ErrSessionComplete; otherwise a
// submission that lost a race fails with model.ErrConflict or
// model.ErrSlotAnswered.
func (s *Service) AnswerCurrent(ctx context.Context, req AnswerRequest) (*model.AnswerOutcome, error) {
	if !req.Answer.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAnswer, req.Answer)
	}

	var outcome model.AnswerOutcome
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		sess, err := tx.QuizSession(ctx, req.Token, req.UserID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if sess == nil {
			return model.ErrNoActiveSession
		}
		if sess.IsComplete() {
			return model.ErrSessionComplete
		}
		if req.Position < 0 || req.Position >= sess.Total {
			return fmt.Errorf("%w: position %d outside 0..%d", model.ErrConflict, req.Position, sess.Total-1)
		}

		slot, q, err := tx.SlotQuestion(ctx, sess.ID, req.Position)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			return fmt.Errorf("session %d has no slot at %d", sess.ID, req.Position)
		}
		if slot.IsAnswered {
			return model.ErrSlotAnswered
		}
		if req.Position != sess.CurrentIndex {
			return fmt.Errorf("%w: position %d, cursor at %d", model.ErrConflict, req.Position, sess.CurrentIndex)
		}

		correct := req.Answer == q.CorrectAnswer
		applied, err := tx.AnswerSlot(ctx, slot.ID, req.Answer, correct)
		if err != nil {
			return err
		}
		if !applied {
			return model.ErrConflict
		}
		delta := 0
		if correct {
			delta = 1
		}
		advanced, err := tx.AdvanceSession(ctx, sess.ID, sess.CurrentIndex, delta)
		if err != nil {
			return err
		}
		if !advanced {
			return model.ErrConflict
		}
		if err := tx.AddProgress(ctx, req.UserID, q.Category, q.Topic, correct); err != nil {
			return err
		}

		outcome = model.AnswerOutcome{
			Position:      req.Position,
			Correct:       correct,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
			Score:         sess.Score + delta,
			CurrentIndex:  sess.CurrentIndex + 1,
			Complete:      sess.CurrentIndex+1 == sess.Total,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Answers.WithLabelValues(fmt.Sprint(outcome.Correct)).Inc()
	return &outcome, nil
}

// Finalize archives a complete session into a QuizResult and deletes it.
func (s *Service) Finalize(ctx context.Context, token string, userID int64) (*model.QuizResult, error) {
	var result *model.QuizResult
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		sess, err := tx.QuizSession(ctx, token, userID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if sess == nil {
			return model.ErrNoActiveSession
		}
		if !sess.IsComplete() {
			return fmt.Errorf("%w: %d of %d answered", model.ErrSessionIncomplete, sess.CurrentIndex, sess.Total)
		}

		answers, err := tx.ResultAnswers(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("collect answers: %w", err)
		}
		now := s.now().UTC()
		elapsed := max(int64(now.Sub(sess.CreatedAt)/time.Second), 0)

		r := &model.QuizResult{
			UserID:         sess.UserID,
			Category:       sess.Category,
			Topic:          sess.Topic,
			Difficulty:     sess.Difficulty,
			Score:          sess.Score,
			TotalQuestions: sess.Total,
			ElapsedSeconds: elapsed,
			CompletedAt:    now,
			Answers:        answers,
		}
		if err := tx.InsertResult(ctx, r); err != nil {
			return err
		}
		if err := tx.DeleteQuizSession(ctx, sess.ID); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.QuizzesFinished.Inc()
	slog.Info("finished quiz",
		"user_id", userID,
		"result_id", result.ID,
		"score", result.Score,
		"total", result.TotalQuestions,
		"elapsed_seconds", result.ElapsedSeconds,
	)
	return result, nil
}

// Result returns a finished quiz with its answers if viewer owns it or is an admin.
func (s *Service) Result(ctx context.Context, id int64, viewer *model.User) (*model.QuizResult, error) {
	r, err := s.store.GetResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	if r == nil || viewer == nil || (r.UserID != viewer.ID && viewer.Role != model.UserRoleAdmin) {
		return nil, model.ErrResultNotFound
	}
	return r, nil
}

func sessionView(sess *model.QuizSession) *model.SessionView {
	return &model.SessionView{
		Token:        sess.Token,
		Category:     sess.Category,
		Topic:        sess.Topic,
		Difficulty:   sess.Difficulty,
		CurrentIndex: sess.CurrentIndex,
		Total:        sess.Total,
		Score:        sess.Score,
		Complete:     sess.IsComplete(),
	}
}
