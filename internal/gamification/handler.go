package gamification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rhythmcheck/backend/internal/auth"
	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/httpjson"
	"github.com/rhythmcheck/backend/internal/models"
)

type Handler struct {
	ledger      *Ledger
	concurrency int
}

func NewHandler(ledger *Ledger, recheckConcurrency int) *Handler {
	return &Handler{ledger: ledger, concurrency: recheckConcurrency}
}

// Register mounts learner routes on protected and admin routes on admin.
func (h *Handler) Register(protected, admin *mux.Router) {
	protected.HandleFunc("/progression/me", h.GetMyProgression).Methods("GET")
	protected.HandleFunc("/progression/me/xp-events", h.ListMyXPEvents).Methods("GET")

	admin.HandleFunc("/achievements", h.ListAchievements).Methods("GET")
	admin.HandleFunc("/achievements/toggle", h.ToggleAchievements).Methods("POST")
	admin.HandleFunc("/achievements/recheck", h.RecheckAchievements).Methods("POST")
	admin.HandleFunc("/learners/{id:[0-9]+}/progression", h.GetLearnerProgression).Methods("GET")
	admin.HandleFunc("/learners/{id:[0-9]+}/xp", h.AdjustXP).Methods("POST")
}

// ── Learner ─────────────────────────────────────────────

func (h *Handler) GetMyProgression(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	h.writeProgression(w, r, learnerID)
}

func (h *Handler) ListMyXPEvents(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := httpjson.IntQueryParam(r.URL.Query(), "limit", 50)
	events, err := h.ledger.XPHistory(r.Context(), learnerID, limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	if events == nil {
		events = []models.XPEvent{}
	}
	httpjson.WriteJSON(w, http.StatusOK, events)
}

// ── Admin ───────────────────────────────────────────────

func (h *Handler) GetLearnerProgression(w http.ResponseWriter, r *http.Request) {
	learnerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid learner id")
		return
	}
	h.writeProgression(w, r, learnerID)
}

func (h *Handler) writeProgression(w http.ResponseWriter, r *http.Request, learnerID int64) {
	resp, err := h.ledger.Progression(r.Context(), learnerID)
	if err != nil {
		WriteError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	all, err := h.ledger.Achievements(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, "Failed to list achievements")
		return
	}
	if all == nil {
		all = []models.Achievement{}
	}
	httpjson.WriteJSON(w, http.StatusOK, all)
}

type toggleRequest struct {
	IDs    []string `json:"ids"`
	Active bool     `json:"active"`
}

func (h *Handler) ToggleAchievements(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		httpjson.WriteError(w, http.StatusBadRequest, "ids is required")
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, h.ledger.SetAchievementsActive(r.Context(), req.IDs, req.Active))
}

func (h *Handler) RecheckAchievements(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.RecheckAll(r.Context(), h.concurrency)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, "Failed to recheck achievements")
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, report)
}

type adjustRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

type adjustResponse struct {
	Stats    *models.ProgressionStats `json:"stats"`
	Unlocked []string                 `json:"achievements_unlocked"`
}

func (h *Handler) AdjustXP(w http.ResponseWriter, r *http.Request) {
	actorID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	learnerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid learner id")
		return
	}

	var req adjustRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Reason == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "reason is required")
		return
	}

	stats, unlocked, err := h.ledger.AdjustXP(r.Context(), learnerID, req.Delta, actorID, req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, adjustResponse{Stats: stats, Unlocked: AchievementIDs(unlocked)})
}

// AchievementIDs projects achievements to their ids, never returning nil.
func AchievementIDs(list []models.Achievement) []string {
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	return ids
}

// WriteError maps ledger errors to HTTP status codes.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownLearner):
		httpjson.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConcurrentUpdate):
		httpjson.WriteError(w, http.StatusConflict, "Progression changed concurrently, retry")
	case errors.Is(err, gameconfig.ErrConfigUnavailable):
		httpjson.WriteError(w, http.StatusServiceUnavailable, "Game config unavailable")
	case errors.Is(err, ErrInvalidAdjustment), errors.Is(err, models.ErrMissingLearner):
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		httpjson.WriteError(w, http.StatusInternalServerError, "Internal error")
	}
}
