package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/assistant"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/auth"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/config"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/query"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/schema"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/session"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/sqlguard"
)

type queryRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type queryResponse struct {
	SQL               string           `json:"sql"`
	Columns           []string         `json:"columns"`
	PreviewRows       []map[string]any `json:"preview_rows"`
	ExportFilename    string           `json:"export_filename,omitempty"`
	ExportDownloadURL string           `json:"export_download_url,omitempty"`
	ExportRows        int64            `json:"export_rows"`
	Summary           string           `json:"summary"`
}

func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query assistant is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}

	answer, err := deps.Assistant.Ask(r.Context(), strings.TrimSpace(request.SessionID), request.Question)
	if err != nil {
		writeAskError(cfg, w, r, answer, err)
		return
	}
	writeJSON(w, http.StatusOK, newQueryResponse(cfg, answer))
}

func newQueryResponse(cfg config.Config, answer assistant.Answer) queryResponse {
	columns := answer.Preview.Columns
	if columns == nil {
		columns = []string{}
	}
	response := queryResponse{
		SQL:         answer.SQL,
		Columns:     columns,
		PreviewRows: answer.Preview.Records(),
		Summary:     answer.Summary,
	}
	if answer.Artifact != nil {
		response.ExportFilename = answer.Artifact.Filename
		response.ExportDownloadURL = downloadURL(cfg.Export.PublicBaseURL, answer.Artifact.Filename)
		response.ExportRows = answer.Artifact.Rows
	}
	return response
}

func downloadURL(baseURL, filename string) string {
	return strings.TrimRight(baseURL, "/") + "/v1/download/" + url.PathEscape(filename)
}

func writeAskError(cfg config.Config, w http.ResponseWriter, r *http.Request, answer assistant.Answer, err error) {
	ctx := r.Context()
	var (
		violation    *sqlguard.Violation
		translateErr *assistant.TranslateError
		execErr      *query.ExecutionError
		exportErr    *query.ExportError
	)
	switch {
	case errors.Is(err, session.ErrInvalidID):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_SESSION_ID", "invalid session_id provided", false, nil)
	case errors.Is(err, assistant.ErrEmptyQuestion):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
	case errors.Is(err, schema.ErrUnavailable):
		writeError(ctx, w, http.StatusInternalServerError, "SCHEMA_UNAVAILABLE", "schema load failed", false, map[string]any{"details": err.Error()})
	case errors.Is(err, assistant.ErrNoTranslator):
		writeError(ctx, w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "sql generation is not configured", false, nil)
	case errors.As(err, &translateErr):
		writeError(ctx, w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to generate sql", true, map[string]any{"details": translateErr.Err.Error()})
	case errors.As(err, &violation):
		writeError(ctx, w, http.StatusBadRequest, "SQL_REJECTED", "sql validation failed: "+violation.Error(), false, map[string]any{
			"kind":    violation.Kind,
			"subject": violation.Subject,
			"sql":     answer.SQL,
		})
	case errors.As(err, &execErr) || errors.As(err, &exportErr):
		code, message := "EXPORT_FAILED", "csv export failed"
		extra := map[string]any{"partial": newQueryResponse(cfg, answer)}
		if exportErr != nil {
			extra["export_error"] = exportErr.Error()
		}
		if execErr != nil {
			code, message = "PREVIEW_FAILED", "preview query failed"
			extra["preview_error"] = execErr.Error()
		}
		writeError(ctx, w, http.StatusInternalServerError, code, message, true, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "query failed", true, map[string]any{"details": err.Error()})
	}
}
