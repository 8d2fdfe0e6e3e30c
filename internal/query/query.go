// Package query runs validated statements against the target database: a
// row-limited preview and a streaming CSV export of the full result.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Preview is a small, type-normalized slice of a result set.
type Preview struct {
	Columns []string
	Rows    [][]any
}

// Records returns the rows as column-name maps. Later duplicate column names
// overwrite earlier ones.
func (p Preview) Records() []map[string]any {
	out := make([]map[string]any, 0, len(p.Rows))
	for _, row := range p.Rows {
		record := make(map[string]any, len(p.Columns))
		for i, col := range p.Columns {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		out = append(out, record)
	}
	return out
}

// Artifact describes a completed CSV export.
type Artifact struct {
	Filename string
	Path     string
	Columns  []string
	Rows     int64
	Bytes    int64
	// Chunks counts the chunk writes after the preview rows.
	Chunks       int
	MaxChunkRows int
	CreatedAt    time.Time
}

type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("preview query failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type ExportError struct {
	Filename string
	Err      error
}

func (e *ExportError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("export to %s failed: %v", e.Filename, e.Err)
	}
	return fmt.Sprintf("export failed: %v", e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// scanner reads rows of a result set into reused buffers and normalizes them.
type scanner struct {
	rows    *sql.Rows
	columns []string
	types   []string
	values  []any
	targets []any
}

func newScanner(rows *sql.Rows) (*scanner, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	types := make([]string, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, ct := range columnTypes {
			if i < len(types) {
				types[i] = ct.DatabaseTypeName()
			}
		}
	}
	s := &scanner{
		rows:    rows,
		columns: columns,
		types:   types,
		values:  make([]any, len(columns)),
		targets: make([]any, len(columns)),
	}
	for i := range s.values {
		s.targets[i] = &s.values[i]
	}
	return s, nil
}

// next scans one row and returns it normalized. ok is false at the end of
// the result set.
func (s *scanner) next() (row []any, ok bool, err error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, false, fmt.Errorf("iterate rows: %w", err)
		}
		return nil, false, nil
	}
	if err := s.rows.Scan(s.targets...); err != nil {
		return nil, false, fmt.Errorf("scan row: %w", err)
	}
	row = make([]any, len(s.values))
	for i, value := range s.values {
		row[i] = Normalize(value, s.types[i])
		s.values[i] = nil
	}
	return row, true, nil
}

// acquire opens a dedicated connection and runs stmt on it. The returned
// release func closes both and must always be called when err is nil.
func acquire(ctx context.Context, db *sql.DB, stmt string) (*sql.Rows, func(), error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	return rows, func() {
		_ = rows.Close()
		_ = conn.Close()
	}, nil
}
