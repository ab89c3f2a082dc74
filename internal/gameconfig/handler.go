package gameconfig

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rhythmcheck/backend/internal/auth"
	"github.com/rhythmcheck/backend/internal/httpjson"
	"github.com/rhythmcheck/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the admin routes on a router that already enforces
// authentication and staff role.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/config", h.GetConfig).Methods("GET")
	r.HandleFunc("/config", h.UpdateConfig).Methods("PATCH")
	r.HandleFunc("/config/audit", h.ListAudit).Methods("GET")
	r.HandleFunc("/events", h.ListEvents).Methods("GET")
	r.HandleFunc("/events", h.CreateEvent).Methods("POST")
	r.HandleFunc("/events/{id}", h.DeleteEvent).Methods("DELETE")
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Get(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusServiceUnavailable, "Game config unavailable")
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	actorID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.Update(r.Context(), patch, actorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := httpjson.IntQueryParam(r.URL.Query(), "limit", 50)
	records, err := h.service.Audit(r.Context(), limit)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, "Failed to list config audit")
		return
	}
	if records == nil {
		records = []models.ConfigAudit{}
	}
	httpjson.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	if events == nil {
		events = []models.MultiplierEvent{}
	}
	httpjson.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	actorID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req models.MultiplierEvent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	e, err := h.service.CreateEvent(r.Context(), req, actorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid event id")
		return
	}
	if err := h.service.DeleteEvent(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrForbiddenField), errors.Is(err, ErrInvalidValue):
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStaleConfig):
		httpjson.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrEventNotFound):
		httpjson.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConfigUnavailable):
		httpjson.WriteError(w, http.StatusServiceUnavailable, "Game config unavailable")
	default:
		httpjson.WriteError(w, http.StatusInternalServerError, "Internal error")
	}
}
