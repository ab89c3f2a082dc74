package attempts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rhythmcheck/backend/internal/auth"
	"github.com/rhythmcheck/backend/internal/gamification"
	"github.com/rhythmcheck/backend/internal/httpjson"
	"github.com/rhythmcheck/backend/internal/models"
	"github.com/rhythmcheck/backend/internal/scoring"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts learner routes on protected and admin routes on admin.
func (h *Handler) Register(protected, admin *mux.Router) {
	protected.HandleFunc("/recordings", h.ListRecordings).Methods("GET")
	protected.HandleFunc("/recordings/{id}", h.GetRecording).Methods("GET")
	protected.HandleFunc("/attempts", h.SubmitAttempt).Methods("POST")
	protected.HandleFunc("/attempts", h.GetHistory).Methods("GET")
	protected.HandleFunc("/attempts/stats", h.GetHistoryStats).Methods("GET")
	protected.HandleFunc("/attempts/{id}", h.GetAttempt).Methods("GET")

	admin.HandleFunc("/recordings", h.UpsertRecording).Methods("POST")
	admin.HandleFunc("/learners", h.CreateLearner).Methods("POST")
}

// ── Learner ─────────────────────────────────────────────

func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req models.SubmitAttemptRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Submit(r.Context(), learnerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	page := httpjson.IntQueryParam(r.URL.Query(), "page", 1)
	pageSize := httpjson.IntQueryParam(r.URL.Query(), "page_size", 20)

	resp, err := h.service.History(r.Context(), learnerID, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetHistoryStats(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	resp, err := h.service.HistoryStats(r.Context(), learnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid attempt id")
		return
	}

	attempt, err := h.service.Attempt(r.Context(), learnerID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, attempt)
}

func (h *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ListRecordings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []models.Recording{}
	}
	httpjson.WriteJSON(w, http.StatusOK, recs)
}

func (h *Handler) GetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetRecording(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, rec)
}

// ── Admin ───────────────────────────────────────────────

func (h *Handler) UpsertRecording(w http.ResponseWriter, r *http.Request) {
	var req models.UpsertRecordingRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.service.UpsertRecording(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) CreateLearner(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLearnerRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.service.CreateLearner(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, p)
}

func writeError(w http.ResponseWriter, err error) {
	var mismatch *scoring.SchemaMismatchError
	switch {
	case errors.As(err, &mismatch) && mismatch.Source == "submission":
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidRequest):
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidRecording),
		errors.Is(err, scoring.ErrSchemaMismatch),
		errors.Is(err, scoring.ErrIncompleteReference),
		errors.Is(err, scoring.ErrInvalidSchema):
		httpjson.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case IsNotFound(err):
		httpjson.WriteError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("attempts request failed", slog.String("error", err.Error()))
		gamification.WriteError(w, err)
	}
}
