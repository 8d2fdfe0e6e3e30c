package sqlguard

import "strings"

type frame int

const (
	frameNormal frame = iota
	frameFunctionArgs
	frameDerived
)

// Functions whose argument lists use FROM as a separator rather than a
// table clause.
var fromArgumentFunctions = map[string]struct{}{
	"extract":   {},
	"trim":      {},
	"substring": {},
	"substr":    {},
	"position":  {},
	"overlay":   {},
}

// Words that end a table reference instead of naming its alias.
var clauseWords = map[string]struct{}{
	"as": {}, "where": {}, "on": {}, "using": {}, "join": {}, "inner": {}, "left": {},
	"right": {}, "full": {}, "outer": {}, "cross": {}, "natural": {}, "straight_join": {},
	"group": {}, "order": {}, "having": {}, "limit": {}, "offset": {}, "fetch": {},
	"union": {}, "except": {}, "intersect": {}, "minus": {}, "window": {}, "qualify": {},
	"for": {}, "lateral": {}, "with": {}, "select": {}, "from": {}, "when": {}, "then": {},
	"else": {}, "end": {}, "and": {}, "or": {}, "not": {}, "into": {}, "partition": {},
	"tablesample": {}, "use": {}, "force": {}, "ignore": {}, "values": {}, "returning": {},
	"set": {}, "lock": {}, "procedure": {},
}

type columnRef struct {
	qualifier token
	column    token
}

type references struct {
	tables  []token
	columns []columnRef
	// aliases maps a lower-cased alias to the table name it stands for.
	aliases map[string]string
	ctes    map[string]struct{}
	derived map[string]struct{}
}

// isDerived reports whether qualifier names a CTE, a derived table, or an
// alias of a CTE. Columns qualified by those are not checked.
func (r references) isDerived(qualifier string) bool {
	if _, ok := r.ctes[qualifier]; ok {
		return true
	}
	if _, ok := r.derived[qualifier]; ok {
		return true
	}
	if table, ok := r.aliases[qualifier]; ok {
		if _, cte := r.ctes[strings.ToLower(table)]; cte {
			return true
		}
	}
	return false
}

type collector struct {
	tokens []token
	refs   references
	stack  []frame
	// consumed marks token indexes already read as part of a table name.
	consumed map[int]struct{}
}

func collectReferences(tokens []token) references {
	c := &collector{
		tokens: tokens,
		refs: references{
			aliases: map[string]string{},
			ctes:    cteNames(tokens),
			derived: map[string]struct{}{},
		},
		consumed: map[int]struct{}{},
	}
	c.scanTables()
	c.scanColumns()
	return c.refs
}

func (c *collector) at(i int) token {
	return tokenAt(c.tokens, i)
}

func (c *collector) top() frame {
	if len(c.stack) == 0 {
		return frameNormal
	}
	return c.stack[len(c.stack)-1]
}

func tokenAt(tokens []token, i int) token {
	if i < 0 || i >= len(tokens) {
		return token{kind: tokPunct}
	}
	return tokens[i]
}

// cteNames finds names declared as `name AS (` or `name (cols) AS (`.
func cteNames(tokens []token) map[string]struct{} {
	names := map[string]struct{}{}
	for i := range tokens {
		if !tokens[i].isIdent() || !isCTEPosition(tokens, i) {
			continue
		}
		next := i + 1
		if tokenAt(tokens, next).isPunct("(") {
			next = closingParen(tokens, next) + 1
		}
		if !tokenAt(tokens, next).isKeyword("as") {
			continue
		}
		body := next + 1
		if tokenAt(tokens, body).isKeyword("not") {
			body++
		}
		if tokenAt(tokens, body).isKeyword("materialized") {
			body++
		}
		if tokenAt(tokens, body).isPunct("(") {
			names[tokens[i].lower] = struct{}{}
		}
	}
	return names
}

// closingParen returns the index of the parenthesis closing the one at open,
// or len(tokens) if it is never closed.
func closingParen(tokens []token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch {
		case tokens[i].isPunct("("):
			depth++
		case tokens[i].isPunct(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(tokens)
}

// isCTEPosition reports whether the identifier at i directly follows WITH,
// WITH RECURSIVE or the comma separating two CTE definitions.
func isCTEPosition(tokens []token, i int) bool {
	if i == 0 {
		return false
	}
	prev := tokens[i-1]
	if prev.isKeyword("with") {
		return true
	}
	if prev.isKeyword("recursive") && i >= 2 && tokens[i-2].isKeyword("with") {
		return true
	}
	return prev.isPunct(",") && i >= 2 && tokens[i-2].isPunct(")")
}

func (c *collector) scanTables() {
	for i := 0; i < len(c.tokens); i++ {
		tok := c.tokens[i]
		switch {
		case tok.isPunct("("):
			kind := frameNormal
			if prev := c.at(i - 1); prev.kind == tokWord {
				if _, ok := fromArgumentFunctions[prev.lower]; ok {
					kind = frameFunctionArgs
				}
			}
			c.stack = append(c.stack, kind)
		case tok.isPunct(")"):
			if len(c.stack) == 0 {
				continue
			}
			popped := c.top()
			c.stack = c.stack[:len(c.stack)-1]
			if popped == frameDerived {
				if alias, next := c.readAlias(i + 1); alias != nil {
					c.refs.derived[alias.lower] = struct{}{}
					i = next - 1
				}
			}
		case tok.isKeyword("from"):
			if c.top() == frameFunctionArgs || c.at(i-1).isKeyword("distinct") {
				continue
			}
			i = c.readSources(i+1, true) - 1
		case tok.isKeyword("join"):
			i = c.readSources(i+1, false) - 1
		}
	}
}

// readSources reads one table source, or a comma-separated list of them after
// FROM, and returns the index of the first unread token.
func (c *collector) readSources(i int, list bool) int {
	for {
		next, more := c.readSource(i)
		if !more || !list || !c.at(next).isPunct(",") {
			return next
		}
		i = next + 1
	}
}

func (c *collector) readSource(i int) (int, bool) {
	if c.at(i).isKeyword("lateral") {
		i++
	}
	tok := c.at(i)
	if tok.isPunct("(") {
		c.stack = append(c.stack, frameDerived)
		return i + 1, false
	}
	if !tok.isIdent() {
		return i, false
	}

	name := tok
	c.consumed[i] = struct{}{}
	for c.at(i+1).isPunct(".") && c.at(i+2).isIdent() {
		c.consumed[i+1] = struct{}{}
		c.consumed[i+2] = struct{}{}
		name = c.at(i + 2)
		i += 2
	}
	i++
	c.refs.tables = append(c.refs.tables, name)

	if alias, next := c.readAlias(i); alias != nil {
		c.refs.aliases[alias.lower] = name.text
		i = next
	}
	return i, true
}

func (c *collector) readAlias(i int) (*token, int) {
	tok := c.at(i)
	if tok.isKeyword("as") {
		if alias := c.at(i + 1); alias.isIdent() {
			return &alias, i + 2
		}
		return nil, i
	}
	if tok.kind == tokQuoted {
		return &tok, i + 1
	}
	if tok.kind == tokWord {
		if _, reserved := clauseWords[tok.lower]; !reserved {
			return &tok, i + 1
		}
	}
	return nil, i
}

// scanColumns records every qualified identifier chain outside table names.
// For chains longer than two parts the last two are qualifier and column.
func (c *collector) scanColumns() {
	for i := 0; i < len(c.tokens); i++ {
		tok := c.tokens[i]
		if !tok.isIdent() {
			continue
		}
		if _, ok := c.consumed[i]; ok {
			continue
		}
		if c.at(i - 1).isPunct(".") {
			continue
		}
		parts := []token{tok}
		end := i
		for c.at(end+1).isPunct(".") && c.at(end+2).isIdent() {
			end += 2
			parts = append(parts, c.tokens[end])
		}
		i = end
		if len(parts) < 2 {
			continue
		}
		if c.at(end + 1).isPunct("(") {
			continue
		}
		c.refs.columns = append(c.refs.columns, columnRef{
			qualifier: parts[len(parts)-2],
			column:    parts[len(parts)-1],
		})
	}
}
