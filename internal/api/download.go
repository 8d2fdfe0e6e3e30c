package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/auth"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/observability"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/storage"
)

func handleDownload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Artifacts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DOWNLOAD_NOT_CONFIGURED", "artifact storage is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	name := r.PathValue("filename")
	if err := storage.ValidateArtifactName(name); err != nil {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "file not found", false, nil)
		return
	}

	body, info, err := deps.Artifacts.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "file not found", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DOWNLOAD_FAILED", "failed to open export", true, map[string]any{"details": err.Error()})
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", storage.ArtifactContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil && deps.Logger != nil {
		observability.LoggerWithTrace(r.Context(), deps.Logger).WarnContext(r.Context(), "download interrupted",
			slog.String("filename", name),
			slog.Any("error", err),
		)
	}
}
