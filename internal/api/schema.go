package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/auth"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/schema"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/sqlguard"
)

type schemaColumn struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Key      string `json:"key,omitempty"`
}

type schemaTable struct {
	Name    string         `json:"name"`
	Columns []schemaColumn `json:"columns"`
}

type schemaResponse struct {
	Dialect string        `json:"dialect"`
	Tables  []schemaTable `json:"tables"`
}

type validateRequest struct {
	SQL string `json:"sql"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Kind    string `json:"kind,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema source is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	snapshot, err := deps.Schema.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_UNAVAILABLE", "schema load failed", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, describeSnapshot(snapshot))
}

func describeSnapshot(snapshot *schema.Snapshot) schemaResponse {
	response := schemaResponse{Dialect: snapshot.Dialect(), Tables: []schemaTable{}}
	for _, name := range snapshot.Tables() {
		columns := snapshot.Columns(name)
		table := schemaTable{Name: name, Columns: make([]schemaColumn, 0, len(columns))}
		for _, col := range columns {
			table.Columns = append(table.Columns, schemaColumn{Name: col.Name, DataType: col.DataType, Key: col.Key})
		}
		response.Tables = append(response.Tables, table)
	}
	return response
}

func handleValidate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil || deps.Validator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "VALIDATION_NOT_CONFIGURED", "sql validation is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request validateRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid validate request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	snapshot, err := deps.Schema.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_UNAVAILABLE", "schema load failed", false, map[string]any{"details": err.Error()})
		return
	}

	err = deps.Validator.Validate(request.SQL, snapshot)
	if err == nil {
		writeJSON(w, http.StatusOK, validateResponse{Valid: true})
		return
	}
	var violation *sqlguard.Violation
	if !errors.As(err, &violation) {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", "sql validation failed", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:   false,
		Kind:    string(violation.Kind),
		Subject: violation.Subject,
		Message: violation.Error(),
	})
}
