package formula

import (
	"strconv"
	"strings"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// tokenKind enumerates the lexical token types of the formula language.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokReference // bracketed column reference: [Status]
	tokIdent     // bare identifier: function name, TRUE, FALSE
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokEq  // =
	tokNeq // <>
	tokLt
	tokLte
	tokGt
	tokGte
)

// token is one lexical unit with its byte offset in the source.
type token struct {
	kind tokenKind
	text string // literal text, reference name, or identifier
	num  float64
	off  int
}

// lexer produces tokens from a formula string. All failures are reported as
// PARSE_ERROR values carrying the offending byte offset.
type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

func parseErrorAt(off int, format string, args ...any) *schema.TrailError {
	return schema.NewErrorf(schema.ErrCodeParse, format, args...).
		WithDetails(map[string]any{"offset": off})
}

// next returns the next token, skipping whitespace.
func (l *lexer) next() (token, *schema.TrailError) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, off: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, off: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, off: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, off: start}, nil
	case c == '.':
		l.pos++
		return token{kind: tokDot, off: start}, nil
	case c == '+':
		l.pos++
		return token{kind: tokPlus, off: start}, nil
	case c == '-':
		l.pos++
		return token{kind: tokMinus, off: start}, nil
	case c == '*':
		l.pos++
		return token{kind: tokStar, off: start}, nil
	case c == '/':
		l.pos++
		return token{kind: tokSlash, off: start}, nil
	case c == '=':
		l.pos++
		return token{kind: tokEq, off: start}, nil
	case c == '<':
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '>' {
			l.pos++
			return token{kind: tokNeq, off: start}, nil
		}
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			l.pos++
			return token{kind: tokLte, off: start}, nil
		}
		return token{kind: tokLt, off: start}, nil
	case c == '>':
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			l.pos++
			return token{kind: tokGte, off: start}, nil
		}
		return token{kind: tokGt, off: start}, nil
	case c == '[':
		return l.lexReference()
	case c == '\'' || c == '"':
		return l.lexString(c)
	case isDigit(c):
		return l.lexNumber()
	case isIdentStart(c):
		return l.lexIdent()
	}

	return token{}, parseErrorAt(start, "unexpected character %q", string(c))
}

// lexReference reads a bracketed column reference. The content between the
// brackets is taken verbatim (dots allowed, e.g. [trigger.body]); only a
// closing bracket ends it.
func (l *lexer) lexReference() (token, *schema.TrailError) {
	start := l.pos
	l.pos++ // consume '['
	end := strings.IndexByte(l.src[l.pos:], ']')
	if end == -1 {
		return token{}, parseErrorAt(start, "unterminated column reference")
	}
	name := strings.TrimSpace(l.src[l.pos : l.pos+end])
	l.pos += end + 1
	if name == "" {
		return token{}, parseErrorAt(start, "empty column reference")
	}
	return token{kind: tokReference, text: name, off: start}, nil
}

// lexString reads a quoted string. No escape processing beyond the closing
// quote — the source language has none.
func (l *lexer) lexString(quote byte) (token, *schema.TrailError) {
	start := l.pos
	l.pos++ // consume opening quote
	end := strings.IndexByte(l.src[l.pos:], quote)
	if end == -1 {
		return token{}, parseErrorAt(start, "unterminated string literal")
	}
	text := l.src[l.pos : l.pos+end]
	l.pos += end + 1
	return token{kind: tokString, text: text, off: start}, nil
}

func (l *lexer) lexNumber() (token, *schema.TrailError) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' &&
		l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	text := l.src[start:l.pos]
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, parseErrorAt(start, "malformed number %q", text)
	}
	return token{kind: tokNumber, text: text, num: num, off: start}, nil
}

func (l *lexer) lexIdent() (token, *schema.TrailError) {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdent, text: l.src[start:l.pos], off: start}, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
