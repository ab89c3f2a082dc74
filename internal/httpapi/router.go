// Package httpapi assembles the HTTP surface: routing, CORS, request
// tracing and the auth boundary in front of every feature handler.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rhythmcheck/backend/internal/attempts"
	"github.com/rhythmcheck/backend/internal/auth"
	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/gamification"
	"github.com/rhythmcheck/backend/internal/httpjson"
	"github.com/rhythmcheck/backend/internal/logger"
	"github.com/rhythmcheck/backend/internal/ranking"
	"github.com/rs/cors"
)

// Handlers groups the feature handlers mounted under /api/v1.
type Handlers struct {
	Attempts     *attempts.Handler
	Gamification *gamification.Handler
	Ranking      *ranking.Handler
	Config       *gameconfig.Handler
}

// NewRouter builds the full handler tree. Everything under /api/v1 needs a
// bearer token; /api/v1/admin additionally needs a staff role.
func NewRouter(h Handlers, authn *auth.Authenticator, allowedOrigins []string, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	r := mux.NewRouter()
	r.Use(traceMiddleware(log))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httpjson.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	protected := r.PathPrefix("/api/v1").Subrouter()
	protected.Use(authn.Middleware)

	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(auth.RequireStaff)

	h.Attempts.Register(protected, admin)
	h.Gamification.Register(protected, admin)
	h.Ranking.Register(protected)
	h.Config.Register(admin)

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// traceMiddleware tags each request with a trace id, carries a child logger
// on the request context and logs the outcome.
func traceMiddleware(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			traceID := uuid.NewString()
			reqLog := log.With(slog.String("trace_id", traceID))
			w.Header().Set("X-Trace-Id", traceID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context(), reqLog)))

			level := slog.LevelDebug
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			reqLog.Log(r.Context(), level, "request handled",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
