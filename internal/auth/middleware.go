package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opsboard/opsboard/internal/authz"
)

type identityContextKey struct{}

type actorContextKey struct{}

// IdentityContextKey returns the context key used to store the identity.
// Exported so other packages can set identity in context for testing.
func IdentityContextKey() identityContextKey {
	return identityContextKey{}
}

// WithIdentity stores the identity and, when its role is known, the derived
// actor in ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	ctx = context.WithValue(ctx, identityContextKey{}, identity)
	if identity == nil {
		return ctx
	}
	if actor, err := identity.Actor(); err == nil {
		ctx = context.WithValue(ctx, actorContextKey{}, actor)
	}
	return ctx
}

// Middleware resolves the bearer token into an identity when one is sent.
// Requests without credentials continue anonymously; rbac.Require decides
// whether the route needs them. Bad tokens are rejected with 401 and
// identities carrying an unknown role with 403.
func Middleware(tokenSvc *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractToken(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := tokenSvc.ValidateToken(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, ErrTokenExpired) {
					msg = "token expired"
				}
				writeAuthError(w, http.StatusUnauthorized, msg)
				return
			}

			// Reject refresh tokens on non-refresh endpoints
			if identity.TokenType != TokenTypeAccess {
				writeAuthError(w, http.StatusUnauthorized, "access token required")
				return
			}

			if _, err := identity.Actor(); err != nil {
				slog.WarnContext(r.Context(), "token carries unknown role",
					"user_id", identity.UserID,
					"role", identity.Role,
				)
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// GetIdentity retrieves the authenticated identity from the request context.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*Identity)
	return identity
}

// GetActor retrieves the authorization principal from the request context,
// or nil for anonymous requests.
func GetActor(ctx context.Context) *authz.Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*authz.Actor)
	return actor
}

// extractToken returns the bearer token, or an empty string when the
// request carries no credentials. WebSocket upgrades may pass the token as
// the access_token query parameter since browsers cannot set headers there.
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if isWebSocketUpgrade(r) {
			return r.URL.Query().Get("access_token"), nil
		}
		return "", nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
