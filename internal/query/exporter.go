package query

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/sqlguard"
)

const DefaultChunkSize = 50000

// maxNameAttempts bounds the collision suffixes tried within one second.
const maxNameAttempts = 1000

// FileCreator creates artifact files exclusively. Create must fail with an
// error matching fs.ErrExist when name is taken.
type FileCreator interface {
	Create(name string) (io.WriteCloser, error)
	Path(name string) string
}

type Exporter struct {
	DB          *sql.DB
	Files       FileCreator
	PreviewRows int
	ChunkSize   int
	Syntax      sqlguard.Syntax
	Clock       func() time.Time
	// OnChunk, when set, is called after each post-preview chunk is flushed.
	OnChunk func(rows int)
}

func NewExporter(db *sql.DB, files FileCreator, previewRows, chunkSize int) *Exporter {
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Exporter{DB: db, Files: files, PreviewRows: previewRows, ChunkSize: chunkSize, Clock: time.Now}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Export runs the statement without a limit and streams the full result to a
// new CSV file. The first PreviewRows rows are also returned as the preview.
// The export is not cancelled when ctx is.
func (e *Exporter) Export(ctx context.Context, sqlText string) (Preview, Artifact, error) {
	ctx = context.WithoutCancel(ctx)
	stmt := e.Syntax.TrimStatement(sqlText)

	rows, release, err := acquire(ctx, e.DB, stmt)
	if err != nil {
		return Preview{}, Artifact{}, &ExportError{Err: err}
	}
	defer release()

	s, err := newScanner(rows)
	if err != nil {
		return Preview{}, Artifact{}, &ExportError{Err: err}
	}

	file, name, createdAt, err := e.create()
	if err != nil {
		return Preview{}, Artifact{}, &ExportError{Err: err}
	}
	artifact := Artifact{
		Filename:  name,
		Path:      e.Files.Path(name),
		Columns:   s.columns,
		CreatedAt: createdAt,
	}
	counter := &countingWriter{w: file}
	preview, err := e.stream(s, csv.NewWriter(counter), &artifact)
	closeErr := file.Close()
	artifact.Bytes = counter.n
	if err == nil && closeErr != nil {
		err = fmt.Errorf("close file: %w", closeErr)
	}
	if err != nil {
		return Preview{}, artifact, &ExportError{Filename: name, Err: err}
	}
	return preview, artifact, nil
}

func (e *Exporter) stream(s *scanner, w *csv.Writer, artifact *Artifact) (Preview, error) {
	if len(s.columns) > 0 {
		if err := w.Write(s.columns); err != nil {
			return Preview{}, fmt.Errorf("write header: %w", err)
		}
	}

	preview := Preview{Columns: s.columns, Rows: make([][]any, 0)}
	for len(preview.Rows) < e.PreviewRows {
		row, ok, err := s.next()
		if err != nil {
			return Preview{}, err
		}
		if !ok {
			break
		}
		preview.Rows = append(preview.Rows, row)
		if err := w.Write(formatRecord(nil, row)); err != nil {
			return Preview{}, fmt.Errorf("write preview rows: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Preview{}, fmt.Errorf("flush preview rows: %w", err)
	}
	artifact.Rows = int64(len(preview.Rows))
	if len(preview.Rows) < e.PreviewRows {
		return preview, nil
	}

	chunk := make([][]string, 0, min(e.ChunkSize, 4096))
	for {
		chunk = chunk[:0]
		for len(chunk) < e.ChunkSize {
			row, ok, err := s.next()
			if err != nil {
				return Preview{}, err
			}
			if !ok {
				break
			}
			var record []string
			if n := len(chunk); n < cap(chunk) {
				record = chunk[:n+1][n]
			}
			chunk = append(chunk, formatRecord(record, row))
		}
		if len(chunk) == 0 {
			return preview, nil
		}
		if err := w.WriteAll(chunk); err != nil {
			return Preview{}, fmt.Errorf("write chunk %d: %w", artifact.Chunks+1, err)
		}
		artifact.Rows += int64(len(chunk))
		artifact.Chunks++
		artifact.MaxChunkRows = max(artifact.MaxChunkRows, len(chunk))
		if e.OnChunk != nil {
			e.OnChunk(len(chunk))
		}
		if len(chunk) < e.ChunkSize {
			return preview, nil
		}
	}
}

// formatRecord renders row into dst, reusing its backing array when possible.
func formatRecord(dst []string, row []any) []string {
	dst = dst[:0]
	for _, value := range row {
		dst = append(dst, FormatCSV(value))
	}
	return dst
}

// create picks results_<unix>.csv, adding a numeric suffix when another
// export in the same second already took the name.
func (e *Exporter) create() (io.WriteCloser, string, time.Time, error) {
	clock := e.Clock
	if clock == nil {
		clock = time.Now
	}
	now := clock()
	base := fmt.Sprintf("results_%d", now.Unix())
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := base + ".csv"
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d.csv", base, attempt)
		}
		file, err := e.Files.Create(name)
		if err == nil {
			return file, name, now, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", time.Time{}, fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil, "", time.Time{}, fmt.Errorf("no free file name for %s", base)
}
