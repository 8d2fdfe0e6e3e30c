package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/sqlguard"
)

const DefaultPreviewRows = 50

type Executor struct {
	DB          *sql.DB
	PreviewRows int
	// Syntax decides which trailing text is comment when the limit is added.
	Syntax sqlguard.Syntax
}

func NewExecutor(db *sql.DB, previewRows int) *Executor {
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	return &Executor{DB: db, PreviewRows: previewRows}
}

// WithPreviewLimit appends a LIMIT clause unless the statement already has a
// LIMIT keyword of its own. Trailing comments and semicolons are cut first so
// the clause cannot end up inside a line comment.
func WithPreviewLimit(syntax sqlguard.Syntax, sqlText string, limit int) string {
	stmt := syntax.TrimStatement(sqlText)
	if syntax.HasKeyword(stmt, "limit") {
		return stmt
	}
	return fmt.Sprintf("%s LIMIT %d", stmt, limit)
}

// Preview runs the statement with a row limit and returns at most PreviewRows
// normalized rows.
func (e *Executor) Preview(ctx context.Context, sqlText string) (Preview, error) {
	stmt := WithPreviewLimit(e.Syntax, sqlText, e.PreviewRows)
	rows, release, err := acquire(ctx, e.DB, stmt)
	if err != nil {
		return Preview{}, &ExecutionError{SQL: stmt, Err: err}
	}
	defer release()

	s, err := newScanner(rows)
	if err != nil {
		return Preview{}, &ExecutionError{SQL: stmt, Err: err}
	}
	preview := Preview{Columns: s.columns, Rows: make([][]any, 0)}
	for len(preview.Rows) < e.PreviewRows {
		row, ok, err := s.next()
		if err != nil {
			return Preview{}, &ExecutionError{SQL: stmt, Err: err}
		}
		if !ok {
			break
		}
		preview.Rows = append(preview.Rows, row)
	}
	return preview, nil
}
