// Package sqlguard is a lexical safety check for model-generated SQL. It
// rejects destructive statements and references to tables or columns missing
// from the live schema. It is a linter, not a sandbox.
package sqlguard

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindUnsafeStatement    Kind = "unsafe_statement"
	KindUnknownTable       Kind = "unknown_table"
	KindUnknownColumn      Kind = "unknown_column"
	KindMultipleStatements Kind = "multiple_statements"
	KindSuspiciousLiteral  Kind = "suspicious_literal"
	KindEmptyStatement     Kind = "empty_statement"
)

// Violation is the rejection verdict. Subject holds the offending keyword,
// table, column or literal in its original casing.
type Violation struct {
	Kind      Kind
	Subject   string
	Statement string
}

func (v *Violation) Error() string {
	switch v.Kind {
	case KindUnsafeStatement:
		return fmt.Sprintf("unsafe statement: %s is not allowed", strings.ToUpper(v.Subject))
	case KindUnknownTable:
		return fmt.Sprintf("unknown table %q", v.Subject)
	case KindUnknownColumn:
		return fmt.Sprintf("unknown column %q", v.Subject)
	case KindMultipleStatements:
		return "multiple statements are not allowed"
	case KindSuspiciousLiteral:
		return fmt.Sprintf("suspicious string literal %q", v.Subject)
	case KindEmptyStatement:
		return "empty statement"
	default:
		return fmt.Sprintf("sql rejected: %s", v.Kind)
	}
}

// Schema is the subset of a schema snapshot the validator consults.
type Schema interface {
	HasTable(name string) bool
	HasColumn(name string) bool
	TableHasColumn(table, column string) bool
}

type Binding string

const (
	// BindingRelaxed accepts a qualified column if any table has it.
	BindingRelaxed Binding = "relaxed"
	// BindingStrict resolves the qualifier through the FROM/JOIN aliases.
	BindingStrict Binding = "strict"
)

func ParseBinding(raw string) (Binding, error) {
	switch b := Binding(strings.ToLower(strings.TrimSpace(raw))); b {
	case "", BindingRelaxed:
		return BindingRelaxed, nil
	case BindingStrict:
		return BindingStrict, nil
	default:
		return "", fmt.Errorf("unknown column binding %q", raw)
	}
}

var forbiddenVerbs = map[string]struct{}{
	"delete":   {},
	"insert":   {},
	"update":   {},
	"drop":     {},
	"alter":    {},
	"truncate": {},
	"create":   {},
	"replace":  {},
	"merge":    {},
}

type Validator struct {
	Binding Binding
	Syntax  Syntax
	// SkipLiteralCheck disables the injection heuristic on string literals.
	SkipLiteralCheck bool
}

// Validate checks sql with relaxed column binding.
func Validate(sql string, s Schema) error {
	return Validator{}.Validate(sql, s)
}

// Validate returns nil when sql is accepted and a *Violation otherwise.
func (v Validator) Validate(sql string, s Schema) error {
	if strings.TrimSpace(sql) == "" {
		return &Violation{Kind: KindEmptyStatement, Statement: sql}
	}
	if verb, ok := findForbiddenVerb(sql); ok {
		return &Violation{Kind: KindUnsafeStatement, Subject: verb, Statement: sql}
	}

	tokens := significant(tokenize(sql, v.Syntax))
	if n := len(tokens); n > 0 && tokens[n-1].isPunct(";") {
		tokens = tokens[:n-1]
	}
	if len(tokens) == 0 {
		return &Violation{Kind: KindEmptyStatement, Statement: sql}
	}
	for _, tok := range tokens {
		if tok.isPunct(";") {
			return &Violation{Kind: KindMultipleStatements, Subject: ";", Statement: sql}
		}
	}

	refs := collectReferences(tokens)
	for _, table := range refs.tables {
		if _, ok := refs.ctes[table.lower]; ok {
			continue
		}
		if !s.HasTable(table.text) {
			return &Violation{Kind: KindUnknownTable, Subject: table.text, Statement: sql}
		}
	}
	for _, col := range refs.columns {
		if !v.columnKnown(col, refs, s) {
			return &Violation{Kind: KindUnknownColumn, Subject: col.column.text, Statement: sql}
		}
	}

	if !v.SkipLiteralCheck {
		for _, tok := range tokens {
			if tok.kind == tokString && isSuspiciousLiteral(tok.text) {
				return &Violation{Kind: KindSuspiciousLiteral, Subject: tok.text, Statement: sql}
			}
		}
	}
	return nil
}

func (v Validator) columnKnown(col columnRef, refs references, s Schema) bool {
	qualifier := col.qualifier.lower
	if refs.isDerived(qualifier) {
		return true
	}
	if v.Binding == BindingStrict {
		table, ok := refs.aliases[qualifier]
		if !ok && s.HasTable(col.qualifier.text) {
			table, ok = col.qualifier.text, true
		}
		if ok && s.HasTable(table) {
			return s.TableHasColumn(table, col.column.text)
		}
	}
	return s.HasColumn(col.column.text)
}

// findForbiddenVerb scans the whole text, literals and comments included, for
// a forbidden verb standing alone as a word.
func findForbiddenVerb(sql string) (string, bool) {
	for i := 0; i < len(sql); {
		if !isWordByte(sql[i]) {
			i++
			continue
		}
		start := i
		for i < len(sql) && isWordByte(sql[i]) {
			i++
		}
		word := sql[start:i]
		if _, ok := forbiddenVerbs[strings.ToLower(word)]; ok {
			return word, true
		}
	}
	return "", false
}

func significant(tokens []token) []token {
	out := make([]token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.kind != tokComment {
			out = append(out, tok)
		}
	}
	return out
}

// HasKeyword reports whether word appears as a bare keyword token in sql,
// ignoring string literals, quoted identifiers and comments.
func (s Syntax) HasKeyword(sql, word string) bool {
	word = strings.ToLower(word)
	for _, tok := range tokenize(sql, s) {
		if tok.isKeyword(word) {
			return true
		}
	}
	return false
}

// TrimStatement cuts everything after the last token that is neither a
// comment nor a semicolon, then trims whitespace. Text appended to the result
// is never swallowed by a trailing line comment.
func (s Syntax) TrimStatement(sql string) string {
	end := 0
	for _, tok := range tokenize(sql, s) {
		if tok.kind == tokComment || tok.isPunct(";") {
			continue
		}
		end = tok.end
	}
	return strings.TrimSpace(sql[:end])
}
