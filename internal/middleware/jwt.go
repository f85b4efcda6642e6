package myMiddleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"netchat/internal/identity"
)

// 1. Context key (unexported; use WithIdentity / IdentityFrom)
type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom extracts the identity the auth middleware attached.
func IdentityFrom(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityKey).(identity.Identity)
	return id, ok
}

// TokenFrom pulls the bearer token from the Authorization header, falling back
// to the ?token= query parameter browsers use for websockets.
func TokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// 2. The middleware depends only on the identity contract, not on the user package.
type AuthMiddleware struct {
	verifier identity.Verifier
	logger   *slog.Logger
}

func NewAuthMiddleware(v identity.Verifier, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{verifier: v, logger: logger}
}

// 3. Handle rejects the request with 401 unless it carries a valid token; 503 when the verifier itself fails.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFrom(r)
		if token == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		id, err := am.verifier.VerifyToken(r.Context(), token)
		if errors.Is(err, identity.ErrAuth) {
			am.logger.Debug("token rejected", "path", r.URL.Path, "error", err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if err != nil {
			am.logger.Error("token verification unavailable", "path", r.URL.Path, "error", err)
			http.Error(w, "Authentication unavailable", http.StatusServiceUnavailable)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
