// Package assistant answers a question end to end: schema, SQL generation,
// validation, preview, export and summary.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/nl2sql"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/observability"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/query"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/schema"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/session"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/sqlguard"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/workpool"
)

const FallbackSummary = "Executed query; preview shown."

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoTranslator  = errors.New("sql generation is not configured")
)

// TranslateError reports a model failure while generating SQL.
type TranslateError struct {
	Err error
}

func (e *TranslateError) Error() string {
	return fmt.Sprintf("generate sql: %v", e.Err)
}

func (e *TranslateError) Unwrap() error {
	return e.Err
}

type SchemaSource interface {
	Snapshot(ctx context.Context) (*schema.Snapshot, error)
}

type Previewer interface {
	Preview(ctx context.Context, sql string) (query.Preview, error)
}

type Exporter interface {
	Export(ctx context.Context, sql string) (query.Preview, query.Artifact, error)
}

type Publisher interface {
	Publish(ctx context.Context, name string) error
}

type Service struct {
	Schema     SchemaSource
	Translator nl2sql.Translator
	Summarizer nl2sql.Summarizer
	Validator  sqlguard.Validator
	Previewer  Previewer
	Exporter   Exporter
	Publisher  Publisher
	Sessions   *session.Store
	Pool       *workpool.Pool
	Logger     *slog.Logger
	// SummaryTimeout bounds the summary call. Zero leaves it unbounded.
	SummaryTimeout time.Duration
}

// Answer is populated as far as the pipeline got, so a failed export still
// carries the preview and the other way round.
type Answer struct {
	SQL      string
	Preview  query.Preview
	Artifact *query.Artifact
	Summary  string
}

// Ask runs the pipeline for one question. The error is one of
// session.ErrInvalidID, ErrEmptyQuestion, a wrapped schema.ErrUnavailable, a
// *TranslateError, a *sqlguard.Violation, or a join of *query.ExecutionError
// and *query.ExportError.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (Answer, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return Answer{}, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	logger := observability.LoggerWithTrace(ctx, s.Logger).With(slog.String("session_id", sessionID))

	snapshot, err := workpool.Submit(ctx, s.Pool, s.Schema.Snapshot)
	if err != nil {
		observability.ObserveQuestion("schema_unavailable")
		logger.ErrorContext(ctx, "schema load failed", slog.Any("error", err))
		return Answer{}, err
	}

	sql, err := s.translate(ctx, sessionID, question, snapshot)
	if err != nil {
		observability.ObserveQuestion("translate_failed")
		logger.ErrorContext(ctx, "sql generation failed", slog.Any("error", err))
		return Answer{}, err
	}
	answer := Answer{SQL: sql}

	if err := s.Validator.Validate(sql, snapshot); err != nil {
		var violation *sqlguard.Violation
		if errors.As(err, &violation) {
			observability.IncrementValidationRejection(string(violation.Kind))
		}
		observability.ObserveQuestion(string(session.OutcomeRejected))
		logger.WarnContext(ctx, "sql rejected", slog.String("sql", sql), slog.Any("error", err))
		s.Sessions.Append(sessionID, session.Turn{Question: question, SQL: sql, Outcome: session.OutcomeRejected})
		return answer, err
	}

	previewErr, exportErr := s.execute(ctx, logger, &answer)
	answer.Summary = s.summarize(ctx, logger, question, answer.Preview, previewErr)

	outcome := session.OutcomeOK
	if previewErr != nil || exportErr != nil {
		outcome = session.OutcomeFailed
	}
	s.Sessions.Append(sessionID, session.Turn{Question: question, SQL: sql, Outcome: outcome})
	observability.ObserveQuestion(string(outcome))
	return answer, errors.Join(previewErr, exportErr)
}

// History returns the ordered turns of a session.
func (s *Service) History(sessionID string) ([]session.Turn, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	return s.Sessions.Get(sessionID), nil
}

func (s *Service) translate(ctx context.Context, sessionID, question string, snapshot *schema.Snapshot) (string, error) {
	if s.Translator == nil {
		return "", &TranslateError{Err: ErrNoTranslator}
	}
	req := nl2sql.Request{
		Question: question,
		Schema:   snapshot.Describe(),
		Dialect:  snapshot.Dialect(),
		History:  historyOf(s.Sessions.Get(sessionID)),
	}
	start := time.Now()
	result, err := workpool.Submit(ctx, s.Pool, func(ctx context.Context) (nl2sql.Result, error) {
		return s.Translator.Translate(ctx, req)
	})
	observability.ObserveTranslate(time.Since(start))
	if err != nil {
		return "", &TranslateError{Err: err}
	}
	return result.SQL, nil
}

// execute runs the preview and the export side by side. Each reports its own
// failure; neither stops the other.
func (s *Service) execute(ctx context.Context, logger *slog.Logger, answer *Answer) (previewErr, exportErr error) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		start := time.Now()
		previewErr = s.Pool.Do(ctx, func(ctx context.Context) error {
			preview, err := s.Previewer.Preview(ctx, answer.SQL)
			answer.Preview = preview
			return err
		})
		observability.ObservePreview(time.Since(start))
		if previewErr != nil {
			logger.ErrorContext(ctx, "preview failed", slog.Any("error", previewErr))
		}
	}()
	go func() {
		defer wg.Done()
		// the export is detached from the caller, including its wait for a worker
		exportCtx := context.WithoutCancel(ctx)
		start := time.Now()
		var artifact query.Artifact
		exportErr = s.Pool.Do(exportCtx, func(ctx context.Context) error {
			var err error
			_, artifact, err = s.Exporter.Export(ctx, answer.SQL)
			return err
		})
		if exportErr != nil {
			observability.IncrementExportFailure()
			logger.ErrorContext(ctx, "export failed", slog.Any("error", exportErr))
			return
		}
		observability.ObserveExport(artifact.Rows, artifact.Bytes, time.Since(start))
		if s.Publisher != nil {
			if err := s.Publisher.Publish(exportCtx, artifact.Filename); err != nil {
				logger.WarnContext(ctx, "artifact mirror upload failed; serving scratch copy",
					slog.String("filename", artifact.Filename),
					slog.Any("error", err),
				)
			}
		}
		logger.InfoContext(ctx, "export completed",
			slog.String("filename", artifact.Filename),
			slog.Int64("rows", artifact.Rows),
			slog.Int64("bytes", artifact.Bytes),
			slog.Int("chunks", artifact.Chunks),
		)
		answer.Artifact = &artifact
	}()
	wg.Wait()
	return previewErr, exportErr
}

func (s *Service) summarize(ctx context.Context, logger *slog.Logger, question string, preview query.Preview, previewErr error) string {
	if s.Summarizer == nil || previewErr != nil {
		return FallbackSummary
	}
	if s.SummaryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.SummaryTimeout)
		defer cancel()
	}
	req := nl2sql.SummaryRequest{Question: question, Rows: preview.Records()}
	summary, err := workpool.Submit(ctx, s.Pool, func(ctx context.Context) (string, error) {
		return s.Summarizer.Summarize(ctx, req)
	})
	if err != nil {
		logger.WarnContext(ctx, "summary failed; using fallback", slog.Any("error", err))
		return FallbackSummary
	}
	if summary = strings.TrimSpace(summary); summary == "" {
		return FallbackSummary
	}
	return summary
}

// historyOf turns earlier turns into model context. Turns without SQL carry
// nothing the model can build on.
func historyOf(turns []session.Turn) []nl2sql.Exchange {
	out := make([]nl2sql.Exchange, 0, len(turns))
	for _, turn := range turns {
		if turn.SQL == "" {
			continue
		}
		out = append(out, nl2sql.Exchange{Question: turn.Question, SQL: turn.SQL})
	}
	return out
}
