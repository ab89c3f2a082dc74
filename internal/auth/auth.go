package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rhythmcheck/backend/internal/httpjson"
	"github.com/rhythmcheck/backend/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

type ctxKey int

const (
	learnerIDKey ctxKey = iota
	roleKey
)

// Authenticator issues and verifies HS256 bearer tokens carrying a learner
// id and role. Registration and passwords live outside this service.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *Authenticator) IssueToken(learnerID int64, role models.Role) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"user_id": learnerID,
		"role":    string(role),
		"exp":     now.Add(a.ttl).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Parse verifies a token and returns its learner id and role.
func (a *Authenticator) Parse(tokenString string) (int64, models.Role, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", ErrInvalidToken
	}
	// JSON numbers decode as float64.
	uid, ok := claims["user_id"].(float64)
	if !ok || uid <= 0 {
		return 0, "", fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	role := models.RoleLearner
	if r, ok := claims["role"].(string); ok && r != "" {
		role = models.Role(r)
	}
	return int64(uid), role, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// learner id and role on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			httpjson.WriteError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		learnerID, role, err := a.Parse(tokenString)
		if err != nil {
			httpjson.WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), learnerID, role)))
	})
}

// RequireStaff rejects requests whose role is not staff or admin.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := RoleFromContext(r.Context())
		if !role.IsStaff() {
			httpjson.WriteError(w, http.StatusForbidden, "Staff access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, learnerID int64, role models.Role) context.Context {
	ctx = context.WithValue(ctx, learnerIDKey, learnerID)
	return context.WithValue(ctx, roleKey, role)
}

func LearnerID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(learnerIDKey).(int64)
	return id, ok
}

func RoleFromContext(ctx context.Context) (models.Role, bool) {
	role, ok := ctx.Value(roleKey).(models.Role)
	return role, ok
}
