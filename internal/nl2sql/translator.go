// Package nl2sql turns questions into SQL and query previews into prose by
// calling a language model.
package nl2sql

import "context"

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Exchange is one earlier question and the SQL generated for it.
type Exchange struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

type Request struct {
	Question string     `json:"question"`
	Schema   string     `json:"schema"`
	Dialect  string     `json:"dialect"`
	History  []Exchange `json:"history"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type SummaryRequest struct {
	Question string           `json:"question"`
	Rows     []map[string]any `json:"rows"`
}

type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}
