package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/quizzer/internal/i18n"
	"github.com/pavelanni/quizzer/internal/model"
	"github.com/pavelanni/quizzer/internal/store"
)

const maxUploadBytes = 10 << 20

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch req.Role {
	case "":
		req.Role = model.UserRoleStudent
	case model.UserRoleStudent, model.UserRoleAdmin:
	default:
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	if u, ok := h.createUser(w, r, req); ok {
		slog.Info("created user", "id", u.ID, "username", u.Username, "role", u.Role)
		writeJSON(w, http.StatusCreated, u)
	}
}

// createUser hashes the password and stores the user, writing the error
// response itself when it fails.
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request, req createUserRequest) (*model.User, bool) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return nil, false
	}

	existing, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	if existing != nil {
		writeError(w, r, http.StatusConflict, "UserExists")
		return nil, false
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return nil, false
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	u := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	}
	u.ID, err = h.store.CreateUser(r.Context(), u)
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return &u, true
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	if admin := model.UserFromContext(r.Context()); admin.ID == id {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	found, err := h.store.ToggleUserActive(r.Context(), id)
	if err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, "UserNotFound")
		return
	}
	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	slog.Info("toggled user", "id", id, "active", u.Active)
	writeJSON(w, http.StatusOK, u)
}

type uploadResponse struct {
	model.ImportReport
	Message string `json:"message"`
}

func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	file, header, err := r.FormFile("questions_file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	name := "upload:" + filepath.Base(header.Filename)
	report, err := h.quiz.Import(r.Context(), name, data)
	if err != nil {
		slog.Warn("question upload rejected", "filename", header.Filename, "error", err)
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}

	msg := appI18n.Tp(r.Context(), "QuestionsImported", report.Imported)
	if report.Skipped {
		msg = appI18n.T(r.Context(), "UploadDuplicate")
	}
	slog.Info("uploaded questions via admin", "filename", header.Filename, "imported", report.Imported, "rejected", report.Rejected)
	writeJSON(w, http.StatusOK, uploadResponse{ImportReport: report, Message: msg})
}

func (h *Handler) handleBankSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.QuestionFilter{
		Category:   strings.TrimSpace(q.Get("category")),
		Topic:      strings.TrimSpace(q.Get("topic")),
		Difficulty: model.Difficulty(q.Get("difficulty")),
	}
	if f.Difficulty != "" && !f.Difficulty.Valid() {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	summary, err := h.quiz.BankSummary(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "BadRequest")
		return
	}
	q, err := h.quiz.Question(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
