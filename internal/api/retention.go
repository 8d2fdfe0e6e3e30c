package api

import (
	"log/slog"
	"net/http"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/auth"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/observability"
)

func handleRetentionRun(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Retention == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RETENTION_NOT_CONFIGURED", "retention is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleOpsAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	summary, err := deps.Retention.RunOnce(r.Context())
	if err != nil {
		if deps.Logger != nil {
			observability.LoggerWithTrace(r.Context(), deps.Logger).ErrorContext(r.Context(), "manual retention run failed", slog.Any("error", err))
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "RETENTION_FAILED", "retention run failed", true, map[string]any{
			"details": err.Error(),
			"summary": summary,
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
