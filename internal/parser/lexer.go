package parser

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokPunct
	tokEOF
)

type token struct {
	kind       tokenKind
	text       string
	line, col  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "<eof>"
	}
	return fmt.Sprintf("%q", t.text)
}

// isWordChar reports whether r may appear inside a bare word: an
// identifier, a hex byte pair, or a `[sign]digitsbase[width]` numeric
// literal, all of which share the same lexical shape.
func isWordChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '=', r == '+', r == '-', r == '!', r == '$':
		return true
	}
	return false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

// lexer turns source text into a flat token stream. Punctuation
// characters ( ) { } [ ] < > : , @ are always their own token even
// without surrounding whitespace; runs of word characters (see
// isWordChar) are grouped into maximal words, matching the
// whitespace-separated token shape of segment/fragment content. Any
// other character outside a string literal or comment is a lexing
// error.
type lexer struct {
	src        []rune
	pos        int
	line, col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src), line: 1, col: 1}
}

func (l *lexer) peekRune() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *lexer) advance() (rune, bool) {
	r, ok := l.peekRune()
	if !ok {
		return 0, false
	}
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r, true
}

func (l *lexer) skipSpaceAndComments() {
	for {
		r, ok := l.peekRune()
		if !ok {
			return
		}
		if isSpace(r) {
			l.advance()
			continue
		}
		if r == '#' || (r == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/') {
			for {
				r, ok := l.peekRune()
				if !ok || r == '\n' {
					break
				}
				l.advance()
			}
			continue
		}
		return
	}
}

// next returns the next token in the stream.
func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	startLine, startCol := l.line, l.col
	r, ok := l.peekRune()
	if !ok {
		return token{kind: tokEOF, line: startLine, col: startCol}, nil
	}

	if r == '"' {
		l.advance()
		var sb strings.Builder
		for {
			c, ok := l.advance()
			if !ok {
				return token{}, fmt.Errorf("unterminated string literal at line %d", startLine)
			}
			if c == '"' {
				break
			}
			sb.WriteRune(c)
		}
		return token{kind: tokString, text: sb.String(), line: startLine, col: startCol}, nil
	}

	switch r {
	case '(', ')', '{', '}', '[', ']', '<', '>', ':', ',', '@':
		l.advance()
		return token{kind: tokPunct, text: string(r), line: startLine, col: startCol}, nil
	}

	if isWordChar(r) {
		var sb strings.Builder
		for {
			r, ok := l.peekRune()
			if !ok || !isWordChar(r) {
				break
			}
			sb.WriteRune(r)
			l.advance()
		}
		return token{kind: tokWord, text: sb.String(), line: startLine, col: startCol}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at line %d", r, startLine)
}
