package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhythmcheck/backend/internal/attempts"
	"github.com/rhythmcheck/backend/internal/auth"
	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/gamification"
	"github.com/rhythmcheck/backend/internal/models"
	"github.com/rhythmcheck/backend/internal/ranking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "thisisasecretkeythatis32charslong!!"

const recordingBody = `{
  "id": "stemi-01",
  "title": "Inferior leads",
  "category": "morphology",
  "difficulty": "hard",
  "schema": {"category": "12-lead", "fields": [
    {"id": "rhythm", "label": "Rhythm", "category": "rhythm", "kind": "categorical"},
    {"id": "rate", "label": "Rate", "category": "rate", "kind": "numeric", "tolerance": 10, "unit": "bpm"},
    {"id": "axis", "label": "Axis", "category": "axis", "kind": "categorical"},
    {"id": "pr", "label": "PR interval", "category": "intervals", "kind": "numeric", "tolerance": 40, "unit": "ms"},
    {"id": "st", "label": "ST elevation", "category": "morphology", "kind": "boolean"}
  ]},
  "reference": {
    "rhythm": {"value": "sinus rhythm"},
    "rate": {"value": "78"},
    "axis": {"value": "normal"},
    "pr": {"value": "160"},
    "st": {"value": "present"}
  }
}`

type testServer struct {
	handler http.Handler
	authn   *auth.Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	catalog, err := gamification.DefaultCatalog()
	require.NoError(t, err)

	cfgStore := gameconfig.NewMemoryStore()
	cfg := gameconfig.NewService(cfgStore, cfgStore, nil)
	ledger := gamification.NewLedger(gamification.NewMemoryStore(), gamification.NewMemoryCatalog(catalog), cfg, cfg, nil, nil)
	store := attempts.NewMemoryStore()

	authn := auth.NewAuthenticator(testSecret, time.Hour)
	h := NewRouter(Handlers{
		Attempts:     attempts.NewHandler(attempts.NewService(store, store, store, cfg, ledger, nil)),
		Gamification: gamification.NewHandler(ledger, 2),
		Ranking:      ranking.NewHandler(ranking.NewService(store, store, cfg, 0, nil)),
		Config:       gameconfig.NewHandler(cfg),
	}, authn, []string{"https://app.example.com"}, nil)
	return &testServer{handler: h, authn: authn}
}

func (s *testServer) do(t *testing.T, id int64, role models.Role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if id != 0 {
		token, err := s.authn.IssueToken(id, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, 0, "", http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestAuthBoundary(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		id     int64
		role   models.Role
		method string
		path   string
		status int
	}{
		{"no token", 0, "", http.MethodGet, "/api/v1/progression/me", http.StatusUnauthorized},
		{"learner on admin route", 7, models.RoleLearner, http.MethodGet, "/api/v1/admin/config", http.StatusForbidden},
		{"staff on admin route", 7, models.RoleStaff, http.MethodGet, "/api/v1/admin/config", http.StatusOK},
		{"learner without stats", 7, models.RoleLearner, http.MethodGet, "/api/v1/progression/me", http.StatusNotFound},
		{"leaderboard is open to learners", 7, models.RoleLearner, http.MethodGet, "/api/v1/leaderboard", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.id, tt.role, tt.method, tt.path, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/progression/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/attempts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubmissionFlow(t *testing.T) {
	s := newTestServer(t)
	const adminID = 1000

	rec := s.do(t, adminID, models.RoleAdmin, http.MethodPost, "/api/v1/admin/learners", `{"name":"Sam Rivera"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var profile models.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))

	rec = s.do(t, adminID, models.RoleAdmin, http.MethodPost, "/api/v1/admin/recordings", recordingBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, profile.LearnerID, models.RoleLearner, http.MethodPost, "/api/v1/attempts",
		`{"recording_id":"stemi-01","fields":{"rhythm":"Sinus Rhythm","rate":"78","axis":"normal","pr":"160","st":"yes"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result models.SubmissionResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Scoring.IsPerfect)
	assert.ElementsMatch(t, []string{"first_read", "perfect_1", "hard_ace"}, result.AchievementsUnlocked)

	rec = s.do(t, profile.LearnerID, models.RoleLearner, http.MethodGet, "/api/v1/progression/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var prog models.ProgressionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&prog))
	assert.Equal(t, int64(170+25+30+75), prog.Stats.TotalXP)
	assert.Equal(t, 1, prog.Stats.CategoryPasses[models.CategoryMorphology])

	rec = s.do(t, profile.LearnerID, models.RoleLearner, http.MethodGet, "/api/v1/leaderboard?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lb models.Leaderboard
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&lb))
	assert.Equal(t, 1, lb.TotalParticipants)
	assert.Equal(t, 1, lb.CurrentRank)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, "Sam R.", lb.Entries[0].DisplayName)
	assert.True(t, lb.Entries[0].IsCurrentUser)

	rec = s.do(t, adminID, models.RoleAdmin, http.MethodPatch, "/api/v1/admin/config", `{"pass_threshold":90}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, adminID, models.RoleAdmin, http.MethodGet, "/api/v1/admin/config/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var audit []models.ConfigAudit
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&audit))
	require.Len(t, audit, 1)
	assert.Equal(t, int64(adminID), audit[0].ActorID)
}
