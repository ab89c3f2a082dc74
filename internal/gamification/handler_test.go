package gamification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rhythmcheck/backend/internal/auth"
	"github.com/rhythmcheck/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*mux.Router, *harness) {
	t.Helper()
	h := newHarness(t, defaultCatalog(t))
	r := mux.NewRouter()
	NewHandler(h.ledger, 2).Register(r, r.PathPrefix("/admin").Subrouter())
	return r, h
}

func do(r http.Handler, learnerID int64, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if learnerID != 0 {
		req = req.WithContext(auth.WithIdentity(req.Context(), learnerID, models.RoleAdmin))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerMyProgression(t *testing.T) {
	r, h := newTestRouter(t)
	ctx := context.Background()
	_, err := h.ledger.EnsureLearner(ctx, 5)
	require.NoError(t, err)
	_, err = h.ledger.RecordAttempt(ctx, 5, outcome(100, true, true, ledgerNow))
	require.NoError(t, err)

	rec := do(r, 5, http.MethodGet, "/progression/me", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.ProgressionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(225), resp.Stats.TotalXP)
	assert.Equal(t, 2, resp.Progress.Level)

	rec = do(r, 5, http.MethodGet, "/progression/me/xp-events?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []models.XPEvent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	assert.Len(t, events, 2)

	rec = do(r, 0, http.MethodGet, "/progression/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(r, 6, http.MethodGet, "/progression/me", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerAdjustXP(t *testing.T) {
	r, h := newTestRouter(t)
	_, err := h.ledger.EnsureLearner(context.Background(), 5)
	require.NoError(t, err)

	rec := do(r, 1, http.MethodPost, "/admin/learners/5/xp", `{"delta":1000,"reason":"import"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp adjustResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(1000), resp.Stats.TotalXP)
	assert.Equal(t, []string{"xp_1000"}, resp.Unlocked)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"missing reason", "/admin/learners/5/xp", `{"delta":10}`, http.StatusBadRequest},
		{"zero delta", "/admin/learners/5/xp", `{"delta":0,"reason":"x"}`, http.StatusBadRequest},
		{"unknown field", "/admin/learners/5/xp", `{"delta":1,"reason":"x","level":9}`, http.StatusBadRequest},
		{"unknown learner", "/admin/learners/77/xp", `{"delta":1,"reason":"x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, 1, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerToggleAndRecheck(t *testing.T) {
	r, h := newTestRouter(t)
	ctx := context.Background()
	_, err := h.ledger.EnsureLearner(ctx, 5)
	require.NoError(t, err)
	_, err = h.ledger.OnAttemptCompleted(ctx, 5, outcome(60, true, false, ledgerNow))
	require.NoError(t, err)

	rec := do(r, 1, http.MethodPost, "/admin/achievements/toggle", `{"ids":["first_read","ghost"],"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled BatchReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&toggled))
	assert.Equal(t, []string{"first_read"}, toggled.Updated)
	assert.Len(t, toggled.Failures, 1)

	rec = do(r, 1, http.MethodPost, "/admin/achievements/recheck", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report BatchReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Unlocks)

	rec = do(r, 1, http.MethodPost, "/admin/achievements/toggle", `{"ids":[],"active":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, 1, http.MethodGet, "/admin/achievements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.Achievement
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.NotEmpty(t, all)
}
