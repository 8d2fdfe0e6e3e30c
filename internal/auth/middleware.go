package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware resolves the caller from X-API-Key or a bearer token and stores
// the identity on the request context. Unknown keys get 401.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			apiKey, scheme := credentialFrom(r)
			if apiKey == "" {
				reject(ctx, logger, w, r, "missing_key", "missing API key")
				return
			}

			identity, ok := validator.Validate(ctx, apiKey)
			if !ok {
				reject(ctx, logger, w, r, "invalid_key", "invalid API key")
				return
			}

			observability.LoggerWithTrace(ctx, logger).DebugContext(ctx, "request authenticated",
				slog.String("principal", identity.Principal),
				slog.String("scheme", scheme),
			)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// credentialFrom returns the presented key and how it was sent.
func credentialFrom(r *http.Request) (key, scheme string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, "api_key"
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ""
	}
	return strings.TrimSpace(token), "bearer"
}

func reject(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, r *http.Request, reason, message string) {
	observability.IncrementAuthFailure(reason)
	observability.LoggerWithTrace(ctx, logger).WarnContext(ctx, "authentication failed",
		slog.String("reason", reason),
		slog.String("route", observability.RouteLabel(r.URL.Path)),
	)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="nl2sql"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
