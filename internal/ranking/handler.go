package ranking

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rhythmcheck/backend/internal/auth"
	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/httpjson"
)

const maxLeaderboardLimit = 100

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/leaderboard", h.GetLeaderboard).Methods("GET")
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := auth.LearnerID(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := httpjson.IntQueryParam(r.URL.Query(), "limit", 50)
	if limit <= 0 || limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	lb, err := h.service.Leaderboard(r.Context(), learnerID, limit)
	if err != nil {
		if errors.Is(err, gameconfig.ErrConfigUnavailable) {
			httpjson.WriteError(w, http.StatusServiceUnavailable, "Game config unavailable")
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, "Failed to get leaderboard")
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, lb)
}
