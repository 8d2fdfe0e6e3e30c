package api

import (
	"errors"
	"net/http"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/auth"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/session"
)

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query assistant is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	sessionID := r.PathValue("session")
	turns, err := deps.Assistant.History(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrInvalidID) {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SESSION_ID", "invalid session_id provided", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", "history lookup failed", true, nil)
		return
	}
	if turns == nil {
		turns = []session.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "turns": turns})
}
