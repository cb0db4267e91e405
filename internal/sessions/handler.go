// Package sessions exposes the assessment engine over HTTP.
package sessions

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/examprep/backend/internal/engine"
	"github.com/examprep/backend/internal/middleware"
	"github.com/examprep/backend/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type Handler struct {
	engine *engine.Engine
}

func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// RegisterRoutes mounts the session routes on an authenticated router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/sessions/{id}/review", h.Review).Methods("GET")

	m := r.PathPrefix("/sessions/{id}/modules/{moduleId}").Subrouter()
	m.HandleFunc("/begin", h.BeginModule).Methods("POST")
	m.HandleFunc("/questions", h.ModuleQuestions).Methods("GET")
	m.HandleFunc("/answers", h.SubmitAnswer).Methods("POST")
	m.HandleFunc("/flags", h.ToggleFlag).Methods("POST")
	m.HandleFunc("/advance", h.Advance).Methods("POST")
	m.HandleFunc("/finish", h.FinishModule).Methods("POST")
}

// CreateSession creates a session and starts it in one call.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized", Code: "unauthorized"})
		return
	}

	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Code: "invalid_request"})
		return
	}

	st, err := h.engine.CreateSession(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err = h.engine.Start(r.Context(), userID, st.Session.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, st)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := sessionParams(w, r)
	if !ok {
		return
	}
	st, err := h.engine.State(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := sessionParams(w, r)
	if !ok {
		return
	}
	review, err := h.engine.Review(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// ── Module routes ───────────────────────────────────────

func (h *Handler) BeginModule(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, runID, ok := moduleParams(w, r)
	if !ok {
		return
	}
	st, err := h.engine.BeginModule(r.Context(), userID, sessionID, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) ModuleQuestions(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, runID, ok := moduleParams(w, r)
	if !ok {
		return
	}
	served, err := h.engine.ModuleQuestions(r.Context(), userID, sessionID, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, served)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, runID, ok := moduleParams(w, r)
	if !ok {
		return
	}

	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Code: "invalid_request"})
		return
	}

	result, err := h.engine.SubmitAnswer(r.Context(), userID, sessionID, runID, req.QuestionID, req.SelectedChoice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ToggleFlag(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, runID, ok := moduleParams(w, r)
	if !ok {
		return
	}

	var req models.FlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Code: "invalid_request"})
		return
	}

	answer, err := h.engine.ToggleFlag(r.Context(), userID, sessionID, runID, req.QuestionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, runID, ok := moduleParams(w, r)
	if !ok {
		return
	}
	st, err := h.engine.Advance(r.Context(), userID, sessionID, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) FinishModule(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, runID, ok := moduleParams(w, r)
	if !ok {
		return
	}
	st, err := h.engine.FinishModule(r.Context(), userID, sessionID, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ── Helpers ─────────────────────────────────────────────

func sessionParams(w http.ResponseWriter, r *http.Request) (int64, uuid.UUID, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized", Code: "unauthorized"})
		return 0, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session ID", Code: "invalid_request"})
		return 0, uuid.Nil, false
	}
	return userID, sessionID, true
}

func moduleParams(w http.ResponseWriter, r *http.Request) (int64, uuid.UUID, uuid.UUID, bool) {
	userID, sessionID, ok := sessionParams(w, r)
	if !ok {
		return 0, uuid.Nil, uuid.Nil, false
	}
	runID, err := uuid.Parse(mux.Vars(r)["moduleId"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid module ID", Code: "invalid_request"})
		return 0, uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, runID, true
}

// writeError maps engine errors onto HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	var stale *engine.StaleTransitionError
	switch {
	case errors.As(err, &stale):
		writeJSON(w, http.StatusConflict, models.StaleResponse{Error: stale.Error(), Code: "stale_transition", State: stale.State})
	case errors.Is(err, engine.ErrTransientStore):
		log.Printf("[sessions] transient failure: %v", err)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "Service temporarily unavailable, retry shortly", Code: "store_unavailable"})
	case errors.Is(err, engine.ErrInvalidModuleConfig):
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error(), Code: "invalid_module_config"})
	case errors.Is(err, engine.ErrAllocationExhausted):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "No unused questions remain for this module", Code: "allocation_exhausted"})
	case errors.Is(err, engine.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found", Code: "not_found"})
	case errors.Is(err, engine.ErrModuleNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Module not found", Code: "not_found"})
	case errors.Is(err, engine.ErrForbidden):
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Forbidden", Code: "forbidden"})
	case errors.Is(err, engine.ErrInvalidChoice):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: "invalid_choice"})
	case errors.Is(err, engine.ErrQuestionNotAllocated):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: "question_not_allocated"})
	case errors.Is(err, engine.ErrUnknownTopic):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: "unknown_topic"})
	case errors.Is(err, engine.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: "invalid_request"})
	default:
		log.Printf("[sessions] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
