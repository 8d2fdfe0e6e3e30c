// Package nl2sqlctl is the command-line client for the nl2sql API.
package nl2sqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type Options struct {
	BaseURL    string
	APIKey     string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	NoColor    bool
}

// usageError marks failures that should exit with the usage code.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

type httpError struct {
	status int
	body   []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, strings.TrimSpace(string(e.body)))
}

type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

type runner struct {
	stdout  io.Writer
	stderr  io.Writer
	client  *client
	palette palette
}

type palette struct {
	sql     *color.Color
	ok      *color.Color
	bad     *color.Color
	label   *color.Color
	summary *color.Color
}

func newPalette(disabled bool) palette {
	p := palette{
		sql:     color.New(color.FgCyan),
		ok:      color.New(color.FgGreen, color.Bold),
		bad:     color.New(color.FgRed, color.Bold),
		label:   color.New(color.Bold),
		summary: color.New(color.FgYellow),
	}
	if disabled {
		for _, c := range []*color.Color{p.sql, p.ok, p.bad, p.label, p.summary} {
			c.DisableColor()
		}
	}
	return p
}

// Run executes one command and returns the process exit code.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	r := &runner{stdout: stdout, stderr: stderr, palette: newPalette(defaults.NoColor)}
	root := r.rootCommand(defaults)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var usage usageError
	if errors.As(err, &usage) || isCobraUsageError(err) {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return exitUsage
	}
	_, _ = fmt.Fprintf(stderr, "%s %v\n", r.palette.bad.Sprint("error:"), err)
	return exitError
}

func (r *runner) rootCommand(defaults Options) *cobra.Command {
	var (
		baseURL string
		apiKey  string
		timeout time.Duration
	)
	root := &cobra.Command{
		Use:           "nl2sqlctl",
		Short:         "Ask questions of a database through the nl2sql API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			httpClient := defaults.HTTPClient
			if httpClient == nil {
				httpClient = &http.Client{Timeout: timeout}
			}
			r.client = &client{
				http:    httpClient,
				baseURL: strings.TrimRight(baseURL, "/"),
				apiKey:  strings.TrimSpace(apiKey),
			}
		},
		RunE: func(*cobra.Command, []string) error {
			return usageError{err: errors.New("a command is required")}
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "nl2sql API base URL")
	flags.StringVar(&apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 10*time.Minute), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		r.passthroughCommand("health", "Check API liveness", http.MethodGet, "/v1/health"),
		r.passthroughCommand("ready", "Check API readiness", http.MethodGet, "/v1/ready"),
		r.passthroughCommand("schema", "Show the cached database schema", http.MethodGet, "/v1/schema"),
		r.passthroughCommand("retention-run", "Run one export retention sweep", http.MethodPost, "/v1/retention/run"),
		r.askCommand(defaults.SessionID),
		r.historyCommand(defaults.SessionID),
		r.validateCommand(),
		r.downloadCommand(),
	)
	return root
}

func (r *runner) passthroughCommand(use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := r.client.do(cmd.Context(), method, path, nil)
			if err != nil {
				return err
			}
			r.printJSON(body)
			return nil
		},
	}
}

type askResponse struct {
	SQL               string           `json:"sql"`
	Columns           []string         `json:"columns"`
	PreviewRows       []map[string]any `json:"preview_rows"`
	ExportFilename    string           `json:"export_filename"`
	ExportDownloadURL string           `json:"export_download_url"`
	ExportRows        int64            `json:"export_rows"`
	Summary           string           `json:"summary"`
}

func (r *runner) askCommand(defaultSession string) *cobra.Command {
	var (
		sessionID string
		raw       bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Translate a question to SQL, run it and export the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(sessionID) == "" {
				return usageError{err: errors.New("--session is required")}
			}
			payload := map[string]string{"session_id": sessionID, "question": strings.Join(args, " ")}
			body, err := r.client.do(cmd.Context(), http.MethodPost, "/v1/query", payload)
			if err != nil {
				return err
			}
			if raw {
				r.printJSON(body)
				return nil
			}
			var answer askResponse
			if err := json.Unmarshal(body, &answer); err != nil {
				return fmt.Errorf("decode answer: %w", err)
			}
			r.printAnswer(answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", defaultSession, "conversation session id")
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON response")
	return cmd
}

func (r *runner) printAnswer(answer askResponse) {
	p := r.palette
	_, _ = fmt.Fprintf(r.stdout, "%s %s\n", p.label.Sprint("SQL:"), p.sql.Sprint(answer.SQL))
	if len(answer.PreviewRows) > 0 {
		_, _ = fmt.Fprintf(r.stdout, "%s %d row(s)\n", p.label.Sprint("Preview:"), len(answer.PreviewRows))
		_, _ = fmt.Fprintln(r.stdout, strings.Join(answer.Columns, "\t"))
		for _, row := range answer.PreviewRows {
			cells := make([]string, 0, len(answer.Columns))
			for _, col := range answer.Columns {
				cells = append(cells, formatCell(row[col]))
			}
			_, _ = fmt.Fprintln(r.stdout, strings.Join(cells, "\t"))
		}
	}
	if answer.ExportFilename != "" {
		_, _ = fmt.Fprintf(r.stdout, "%s %s (%d rows) %s\n", p.label.Sprint("Export:"), answer.ExportFilename, answer.ExportRows, answer.ExportDownloadURL)
	}
	_, _ = fmt.Fprintf(r.stdout, "%s %s\n", p.label.Sprint("Summary:"), p.summary.Sprint(answer.Summary))
}

func formatCell(v any) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case string:
		return value
	case float64:
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%g", value)
	default:
		return fmt.Sprint(value)
	}
}

func (r *runner) historyCommand(defaultSession string) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the turns of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(sessionID) == "" {
				return usageError{err: errors.New("--session is required")}
			}
			path := "/v1/sessions/" + url.PathEscape(sessionID) + "/history"
			body, err := r.client.do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			r.printJSON(body)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", defaultSession, "conversation session id")
	return cmd
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// errRejected makes a rejected statement exit non-zero after its verdict is printed.
var errRejected = errors.New("sql rejected")

func (r *runner) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <sql>",
		Short: "Check a SQL statement against the live schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"sql": strings.Join(args, " ")}
			body, err := r.client.do(cmd.Context(), http.MethodPost, "/v1/sql/validate", payload)
			if err != nil {
				return err
			}
			var verdict validateResponse
			if err := json.Unmarshal(body, &verdict); err != nil {
				return fmt.Errorf("decode verdict: %w", err)
			}
			if verdict.Valid {
				_, _ = fmt.Fprintln(r.stdout, r.palette.ok.Sprint("valid"))
				return nil
			}
			_, _ = fmt.Fprintf(r.stdout, "%s [%s] %s\n", r.palette.bad.Sprint("rejected"), verdict.Kind, verdict.Message)
			return errRejected
		},
	}
}

func (r *runner) downloadCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <filename>",
		Short: "Fetch an exported CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			target := out
			if target == "" {
				target = filepath.Base(name)
			}
			var dst io.Writer
			if target == "-" {
				dst = r.stdout
			} else {
				file, err := os.Create(target)
				if err != nil {
					return fmt.Errorf("create %s: %w", target, err)
				}
				defer file.Close()
				dst = file
			}
			written, err := r.client.stream(cmd.Context(), "/v1/download/"+url.PathEscape(name), dst)
			if err != nil {
				return err
			}
			if target != "-" {
				_, _ = fmt.Fprintf(r.stderr, "wrote %d bytes to %s\n", written, target)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path, - for stdout (default: the file name)")
	return cmd
}

func (c *client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{status: resp.StatusCode, body: body}
	}
	return body, nil
}

func (c *client) stream(ctx context.Context, path string, dst io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return 0, &httpError{status: resp.StatusCode, body: body}
	}
	return io.Copy(dst, resp.Body)
}

func (r *runner) printJSON(raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(r.stdout, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(r.stdout, string(raw))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "accepts ", "requires at least", "invalid argument", "flag needs an argument"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
