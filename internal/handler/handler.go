package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizzer/internal/catalog"
	appI18n "github.com/pavelanni/quizzer/internal/i18n"
	"github.com/pavelanni/quizzer/internal/llm"
	"github.com/pavelanni/quizzer/internal/model"
	"github.com/pavelanni/quizzer/internal/quiz"
	"github.com/pavelanni/quizzer/internal/store"
)

const (
	leaderboardSize = 10
	weakTopicLimit  = 5
	maxBodyBytes    = 1 << 20
)

// Config holds HTTP-level settings.
type Config struct {
	BasePath      string
	SecureCookies bool
	// GenerateRate is the number of generation requests each user may make
	// per minute. Zero disables the limit.
	GenerateRate int
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	quiz      *quiz.Service
	config    Config
	generateL *rateLimiter
}

// New creates a new Handler.
func New(s *store.Store, q *quiz.Service, cfg Config) *Handler {
	return &Handler{
		store:     s,
		quiz:      q,
		config:    cfg,
		generateL: newRateLimiter(cfg.GenerateRate, time.Minute),
	}
}

// Routes registers all API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/register", h.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/logout", h.handleLogout)
		r.Get("/api/me", h.handleMe)
		r.Get("/api/catalog", h.handleCatalog)

		r.Post("/api/quiz", h.handleStartQuiz)
		r.Get("/api/quiz/{token}", h.handleCurrent)
		r.Post("/api/quiz/{token}/answer", h.handleAnswer)
		r.Post("/api/quiz/{token}/finish", h.handleFinish)

		r.Get("/api/results", h.handleListResults)
		r.Get("/api/results/{id}", h.handleGetResult)
		r.Get("/api/progress", h.handleProgress)
		r.Get("/api/leaderboard", h.handleLeaderboard)

		r.With(h.generateL.middleware).Post("/api/questions/generate", h.handleGenerate)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/api/admin/users", h.handleListUsers)
			r.Post("/api/admin/users", h.handleCreateUser)
			r.Post("/api/admin/users/{userID}/toggle", h.handleToggleUserActive)
			r.Get("/api/admin/questions", h.handleBankSummary)
			r.Post("/api/admin/questions", h.handleUploadQuestions)
			r.Get("/api/admin/questions/{questionID}", h.handleGetQuestion)
		})
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends a localized error body. msgID doubles as the stable
// machine-readable code.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID), Code: msgID})
}

var errorStatuses = []struct {
	err    error
	status int
	msgID  string
}{
	{model.ErrNoActiveSession, http.StatusNotFound, "NoActiveSession"},
	{model.ErrResultNotFound, http.StatusNotFound, "ResultNotFound"},
	{model.ErrQuestionNotFound, http.StatusNotFound, "QuestionNotFound"},
	{model.ErrNoQuestionsAvailable, http.StatusNotFound, "NoQuestionsAvailable"},
	{model.ErrSessionComplete, http.StatusConflict, "SessionComplete"},
	{model.ErrSessionIncomplete, http.StatusConflict, "SessionIncomplete"},
	{model.ErrSlotAnswered, http.StatusConflict, "SlotAnswered"},
	{model.ErrConflict, http.StatusConflict, "AnswerConflict"},
	{model.ErrInvalidSelection, http.StatusBadRequest, "InvalidSelection"},
	{model.ErrInvalidAnswer, http.StatusBadRequest, "InvalidAnswer"},
	{model.ErrInvalidCount, http.StatusBadRequest, "InvalidCount"},
	{llm.ErrGenerationExhausted, http.StatusBadGateway, "GenerationFailed"},
	{quiz.ErrGeneratorDisabled, http.StatusServiceUnavailable, "GenerationDisabled"},
	{model.ErrRateLimited, http.StatusTooManyRequests, "RateLimited"},
}

// respondError maps a domain error to its status code. Anything unknown is
// logged and reported as an internal error.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			if e.status >= http.StatusInternalServerError {
				slog.Warn("request failed", "path", r.URL.Path, "error", err)
			} else {
				slog.Debug("request rejected", "path", r.URL.Path, "error", err)
			}
			writeError(w, r, e.status, e.msgID)
			return
		}
	}
	slog.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "InternalError")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		slog.Debug("bad request body", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return false
	}
	return true
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.UserFromContext(r.Context()))
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c, err := h.quiz.Browse(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type startQuizRequest struct {
	catalog.Selection
	Difficulty model.Difficulty `json:"difficulty"`
	Count      int              `json:"count"`
	Source     string           `json:"source"`
}

func (h *Handler) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	var req startQuizRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var source quiz.Source
	if req.Source != "" {
		var err error
		if source, err = quiz.ParseSource(strings.ToLower(req.Source)); err != nil {
			writeError(w, r, http.StatusBadRequest, "BadRequest")
			return
		}
	}
	user := model.UserFromContext(r.Context())
	// Students may narrow a quiz to the bank but not widen it past the
	// configured source.
	if source != "" && source != quiz.SourceBank && source != h.quiz.Source() && user.Role != model.UserRoleAdmin {
		writeError(w, r, http.StatusForbidden, "Forbidden")
		return
	}
	key := visitorKey(r)
	view, err := h.quiz.Start(r.Context(), quiz.StartRequest{
		UserID:     user.ID,
		Selection:  req.Selection,
		Difficulty: req.Difficulty,
		Count:      req.Count,
		Source:     source,
		Admit:      func() error { return h.generateL.admit(key) },
	})
	if err != nil {
		if errors.Is(err, model.ErrRateLimited) {
			w.Header().Set("Retry-After", h.generateL.retryAfter())
		}
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	view, err := h.quiz.Current(r.Context(), chi.URLParam(r, "token"), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type answerRequest struct {
	Position *int   `json:"position"`
	Answer   string `json:"answer"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Position == nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	user := model.UserFromContext(r.Context())
	out, err := h.quiz.AnswerCurrent(r.Context(), quiz.AnswerRequest{
		Token:    chi.URLParam(r, "token"),
		UserID:   user.ID,
		Position: *req.Position,
		Answer:   model.AnswerOption(strings.TrimSpace(req.Answer)),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type finishResponse struct {
	Result     *model.QuizResult `json:"result"`
	Percentage float64           `json:"percentage"`
	Message    string            `json:"message"`
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	result, err := h.quiz.Finalize(r.Context(), chi.URLParam(r, "token"), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, finishResponse{
		Result:     result,
		Percentage: result.Percentage(),
		Message: appI18n.Td(r.Context(), "QuizScore", map[string]any{
			"Score": result.Score,
			"Total": result.TotalQuestions,
		}),
	})
}
