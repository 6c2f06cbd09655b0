package rbac

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/middleware"
)

// MiddlewareOption configures RBAC middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	audit    audit.Logger
	observer DecisionObserver
}

// WithAuditLogger attaches an audit logger to log RBAC denials.
func WithAuditLogger(logger audit.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.audit = logger
	}
}

// WithDecisionObserver reports every decision, typically to metrics.
func WithDecisionObserver(obs DecisionObserver) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.observer = obs
	}
}

// Require returns middleware that admits the request when the actor
// satisfies any entry of required. An empty list marks a public route.
// Missing identity on a protected route is 401, never 403.
func Require(required []authz.Permission, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var mc middlewareConfig
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		if len(required) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := auth.GetActor(r.Context())
			if actor == nil {
				observe(mc.observer, nil, required, false)
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
				})
				return
			}

			decision := authz.Evaluate(actor, required)
			observe(mc.observer, actor, required, decision.Allowed)

			if !decision.Allowed {
				slog.InfoContext(r.Context(), "permission denied",
					"actor_id", actor.ID,
					"role", actor.Role.String(),
					"required", authz.FormatPermissions(required),
					"path", r.URL.Path,
				)
				if mc.audit != nil {
					evt := audit.ActorEvent(actor, audit.ActionAccessDenied, required[0].Resource, "").
						WithMetadata(audit.MetadataPermissions, authz.FormatPermissions(required)).
						WithMetadata(audit.MetadataReason, decision.Reason).
						WithMetadata(audit.MetadataRequestID, middleware.GetRequestID(r.Context()))
					mc.audit.Log(r.Context(), evt)
				}
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":  "forbidden",
					"reason": decision.Reason,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
