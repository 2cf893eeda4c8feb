package auth

import (
	"context"
	"net/http"

	"github.com/sigefi/budget-approval/internal/transport"
)

type ctxKey string

const ContextUserKey ctxKey = "user"

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok
}

// Middleware resolves the bearer token into a *User stored in the request
// context. Token issuance lives in a separate service; this side only
// validates and loads the account.
type Middleware struct {
	*transport.BaseHandler
	repo   Repository
	secret []byte
}

func NewMiddleware(repo Repository, secret []byte) *Middleware {
	return &Middleware{
		BaseHandler: transport.NewBaseHandler(nil),
		repo:        repo,
		secret:      secret,
	}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.ExtractTokenFromHeader(r)
		if token == "" {
			m.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := ParseToken(token, m.secret)
		if err != nil {
			m.Logger.Warn("token validation failed", "error", err)
			m.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := m.repo.GetByID(claims.UserID)
		if err != nil {
			m.Logger.Error("failed to load user from token", "user_id", claims.UserID, "error", err)
			m.WriteError(w, http.StatusUnauthorized, "user not found")
			return
		}
		if !user.IsActive {
			m.WriteError(w, http.StatusForbidden, "user account is inactive")
			return
		}

		ctx := context.WithValue(r.Context(), ContextUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireApprover gates routes that act on validation steps.
func (m *Middleware) RequireApprover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user == nil {
			m.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.Role.CanApprove() {
			m.Logger.Warn("approver role required",
				"user_id", user.ID,
				"role", user.Role)
			m.WriteError(w, http.StatusForbidden, "approver role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireFinanceDirector gates the DAF-specific queue.
func (m *Middleware) RequireFinanceDirector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user == nil {
			m.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.Role.IsFinanceDirector() {
			m.WriteError(w, http.StatusForbidden, "finance director role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
