package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/quizzer/internal/i18n"
	"github.com/pavelanni/quizzer/internal/model"
)

func (h *Handler) handleListResults(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	results, err := h.store.ListResults(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if results == nil {
		results = []model.QuizResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	result, err := h.quiz.Result(r.Context(), id, model.UserFromContext(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type progressResponse struct {
	model.UserStats
	LevelLabel string               `json:"level_label"`
	Topics     []model.UserProgress `json:"topics"`
}

var levelMessages = map[model.ProgressLevel]string{
	model.LevelBeginner:     "LevelBeginner",
	model.LevelIntermediate: "LevelIntermediate",
	model.LevelAdvanced:     "LevelAdvanced",
	model.LevelExpert:       "LevelExpert",
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	stats, err := h.store.UserStats(r.Context(), user.ID, weakTopicLimit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	topics, err := h.store.ListProgress(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if topics == nil {
		topics = []model.UserProgress{}
	}
	writeJSON(w, http.StatusOK, progressResponse{
		UserStats:  stats,
		LevelLabel: appI18n.T(r.Context(), levelMessages[stats.Level]),
		Topics:     topics,
	})
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Leaderboard(r.Context(), leaderboardSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type generateRequest struct {
	Category   string           `json:"category"`
	Topic      string           `json:"topic"`
	Difficulty model.Difficulty `json:"difficulty"`
	Count      int              `json:"count"`
	// Save stores the batch in the question bank. Admins only.
	Save bool `json:"save"`
}

type generateResponse struct {
	Count     int              `json:"count"`
	Saved     bool             `json:"saved"`
	Questions []model.Question `json:"questions"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		writeError(w, r, http.StatusBadRequest, "InvalidSelection")
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = model.DifficultyMedium
	}
	if !req.Difficulty.Valid() {
		writeError(w, r, http.StatusBadRequest, "InvalidSelection")
		return
	}
	user := model.UserFromContext(r.Context())
	if req.Save && user.Role != model.UserRoleAdmin {
		writeError(w, r, http.StatusForbidden, "Forbidden")
		return
	}

	qs, err := h.quiz.GenerateQuestions(r.Context(), model.GenerationParams{
		Category:   req.Category,
		Topic:      strings.TrimSpace(req.Topic),
		Difficulty: req.Difficulty,
	}, req.Count, req.Save)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Count: len(qs), Saved: req.Save, Questions: qs})
}
