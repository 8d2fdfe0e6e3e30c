package sqlguard

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokString
	tokNumber
	tokPunct
	tokComment
)

type token struct {
	kind tokenKind
	// text is the source text, with quotes removed and escapes resolved for
	// quoted identifiers and string literals.
	text  string
	lower string
	pos   int
	end   int
}

func (t token) isIdent() bool {
	return t.kind == tokWord || t.kind == tokQuoted
}

func (t token) isKeyword(word string) bool {
	return t.kind == tokWord && t.lower == word
}

func (t token) isPunct(p string) bool {
	return t.kind == tokPunct && t.text == p
}

func isWordByte(b byte) bool {
	return b == '_' || b == '$' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Syntax selects the lexical rules of the target database.
type Syntax int

const (
	// SyntaxStandard covers PostgreSQL and DuckDB: -- and /* */ comments,
	// doubled-quote escapes, backslash escapes only in E'' strings.
	SyntaxStandard Syntax = iota
	// SyntaxMySQL adds # comments, backtick identifiers, backslash escapes
	// and executable /*! */ comments.
	SyntaxMySQL
)

// SyntaxFor maps a database dialect name to its lexical rules.
func SyntaxFor(dialect string) Syntax {
	if strings.EqualFold(strings.TrimSpace(dialect), "mysql") {
		return SyntaxMySQL
	}
	return SyntaxStandard
}

type lexer struct {
	src   string
	pos   int
	mysql bool
}

// tokenize splits src into tokens. It never fails: unterminated literals and
// comments run to the end of the input.
func tokenize(src string, syntax Syntax) []token {
	l := &lexer{src: src, mysql: syntax == SyntaxMySQL}
	var out []token
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			return out
		}
		tok := l.next()
		tok.end = l.pos
		out = append(out, tok)
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) next() token {
	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == '-' && l.peek(1) == '-' && (!l.mysql || l.dashCommentAhead()), c == '#' && l.mysql:
		end := strings.IndexByte(l.src[l.pos:], '\n')
		if end < 0 {
			l.pos = len(l.src)
		} else {
			l.pos += end
		}
		return token{kind: tokComment, text: l.src[start:l.pos], pos: start}
	case c == '/' && l.peek(1) == '*' && l.peek(2) == '!' && l.mysql:
		// MySQL executes the body of /*! */, so it is lexed as code
		l.pos += 3
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
		return token{kind: tokPunct, text: l.src[start:l.pos], lower: l.src[start:l.pos], pos: start}
	case c == '/' && l.peek(1) == '*':
		end := strings.Index(l.src[l.pos+2:], "*/")
		if end < 0 {
			l.pos = len(l.src)
		} else {
			l.pos += end + 4
		}
		return token{kind: tokComment, text: l.src[start:l.pos], pos: start}
	case c == '\'':
		text := l.quoted('\'', l.mysql)
		return token{kind: tokString, text: text, lower: strings.ToLower(text), pos: start}
	case (c == 'e' || c == 'E') && l.peek(1) == '\'' && !l.mysql:
		l.pos++
		text := l.quoted('\'', true)
		return token{kind: tokString, text: text, lower: strings.ToLower(text), pos: start}
	case c == '"':
		text := l.quoted(c, l.mysql)
		return token{kind: tokQuoted, text: text, lower: strings.ToLower(text), pos: start}
	case c == '`' && l.mysql:
		text := l.quoted(c, false)
		return token{kind: tokQuoted, text: text, lower: strings.ToLower(text), pos: start}
	case c >= '0' && c <= '9':
		return l.number()
	case isWordByte(c) || c >= utf8.RuneSelf:
		return l.word()
	default:
		l.pos++
		return token{kind: tokPunct, text: string(c), lower: string(c), pos: start}
	}
}

// dashCommentAhead reports whether the "--" at the cursor opens a MySQL
// comment, which requires whitespace or a control character after it.
func (l *lexer) dashCommentAhead() bool {
	if l.pos+2 >= len(l.src) {
		return true
	}
	c := l.src[l.pos+2]
	return c <= ' '
}

// quoted reads a literal delimited by quote. A doubled quote is an escaped
// quote; backslash escapes apply only when backslash is set.
func (l *lexer) quoted(quote byte, backslash bool) string {
	var b strings.Builder
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case backslash && c == '\\' && l.pos+1 < len(l.src):
			b.WriteByte(l.src[l.pos+1])
			l.pos += 2
		case c == quote && l.peek(1) == quote:
			b.WriteByte(quote)
			l.pos += 2
		case c == quote:
			l.pos++
			return b.String()
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return b.String()
}

func (l *lexer) number() token {
	start := l.pos
	for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
		l.pos++
	}
	if l.pos < len(l.src) && isWordByte(l.src[l.pos]) {
		// identifiers such as 2024_sales may begin with a digit
		l.pos = start
		return l.word()
	}
	if l.peek(0) == '.' && l.peek(1) >= '0' && l.peek(1) <= '9' {
		l.pos++
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
	}
	if c := l.peek(0); c == 'e' || c == 'E' {
		save := l.pos
		l.pos++
		if s := l.peek(0); s == '+' || s == '-' {
			l.pos++
		}
		digits := l.pos
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
		if l.pos == digits {
			l.pos = save
		}
	}
	text := l.src[start:l.pos]
	return token{kind: tokNumber, text: text, lower: text, pos: start}
}

func (l *lexer) word() token {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isWordByte(c) {
			l.pos++
			continue
		}
		if c < utf8.RuneSelf {
			break
		}
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		l.pos += size
	}
	if l.pos == start {
		// a lone non-letter rune
		_, size := utf8.DecodeRuneInString(l.src[l.pos:])
		l.pos += size
		text := l.src[start:l.pos]
		return token{kind: tokPunct, text: text, lower: text, pos: start}
	}
	text := l.src[start:l.pos]
	return token{kind: tokWord, text: text, lower: strings.ToLower(text), pos: start}
}
