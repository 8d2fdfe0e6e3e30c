package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SummaryRowLimit caps how many preview rows are sent for summarization.
const SummaryRowLimit = 10

const translateSystemPrompt = "You are an expert SQL generator. You convert natural language questions into a single, " +
	"syntactically correct and executable %s query. Return ONLY SQL. No markdown, no comments, no explanation."

func buildTranslatePrompt(req Request) (string, string) {
	dialect := strings.TrimSpace(req.Dialect)
	if dialect == "" {
		dialect = "SQL"
	}
	system := fmt.Sprintf(translateSystemPrompt, dialect)

	var history strings.Builder
	if len(req.History) == 0 {
		history.WriteString("No prior conversation history.\n")
	}
	for _, exchange := range req.History {
		fmt.Fprintf(&history, "User: %s\nSQL: %s\n", exchange.Question, exchange.SQL)
	}

	user := fmt.Sprintf(
		"Rules:\n"+
			"1. Use only the table and column names exactly as defined in the schema below.\n"+
			"2. Use %s syntax.\n"+
			"3. Only read data. Never modify data or schema.\n"+
			"4. Add LIMIT 10 to SELECT queries unless an aggregation is requested or the question asks for all results.\n"+
			"5. Output a single SQL statement only.\n\n"+
			"Database schema:\n%s\n"+
			"Chat history (use it to answer follow-up questions):\n%s\n"+
			"Question:\n%s",
		dialect,
		strings.TrimSpace(req.Schema)+"\n",
		history.String(),
		strings.TrimSpace(req.Question),
	)
	return system, user
}

func buildSummaryPrompt(req SummaryRequest) (string, error) {
	rows := req.Rows
	if len(rows) > SummaryRowLimit {
		rows = rows[:SummaryRowLimit]
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	sample, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("marshal summary rows: %w", err)
	}
	return fmt.Sprintf(
		"Summarize briefly using ONLY these preview rows:\n%s\n\nQuestion:\n%s",
		string(sample),
		strings.TrimSpace(req.Question),
	), nil
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
