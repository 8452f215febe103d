// Package plantuml turns the use-case subset of PlantUML into a typed node/edge
// graph with initial layout positions.
//
// Extraction happens in two layers: a Scanner that tokenizes the text and a
// statement reader that recognizes declarations and relations (Read). Node and
// edge extraction then run over the resulting Document, and positions come from
// a pluggable Layout.
package plantuml

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind identifies the lexical class of a token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenString
	TokenArrow
	TokenLBrace
	TokenRBrace
	TokenColon
	TokenIllegal
	TokenOther
)

var tokenNames = map[TokenKind]string{
	TokenEOF:     "EOF",
	TokenIdent:   "IDENT",
	TokenString:  "STRING",
	TokenArrow:   "ARROW",
	TokenLBrace:  "LBRACE",
	TokenRBrace:  "RBRACE",
	TokenColon:   "COLON",
	TokenIllegal: "ILLEGAL",
	TokenOther:   "OTHER",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is a single lexical unit. For TokenString Text holds the quoted
// content without the quotes; for TokenIllegal it holds the partial content of
// an unterminated quoted name.
type Token struct {
	Kind TokenKind
	Text string
	Line int // 1-based
	Col  int // 1-based, in runes
}

// Scanner tokenizes PlantUML text. Whitespace, newlines, single-line (')
// and block (/' ... '/) comments are skipped.
type Scanner struct {
	src  string
	pos  int
	line int
	col  int
}

// NewScanner returns a Scanner positioned at the start of src.
func NewScanner(src string) *Scanner {
	return &Scanner{src: src, line: 1, col: 1}
}

func (s *Scanner) peek() rune {
	if s.pos >= len(s.src) {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(s.src[s.pos:])
	return r
}

func (s *Scanner) atEOF() bool {
	return s.pos >= len(s.src)
}

func (s *Scanner) advance() rune {
	r, width := utf8.DecodeRuneInString(s.src[s.pos:])
	s.pos += width
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

func (s *Scanner) hasPrefix(prefix string) bool {
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

// skipSpaceAndComments consumes everything that can never start a token.
func (s *Scanner) skipSpaceAndComments() {
	for !s.atEOF() {
		switch r := s.peek(); {
		case unicode.IsSpace(r):
			s.advance()
		case r == '\'':
			for !s.atEOF() && s.peek() != '\n' {
				s.advance()
			}
		case s.hasPrefix("/'"):
			s.advance()
			s.advance()
			for !s.atEOF() && !s.hasPrefix("'/") {
				s.advance()
			}
			if !s.atEOF() {
				s.advance()
				s.advance()
			}
		default:
			return
		}
	}
}

func isArrowRune(r rune) bool {
	switch r {
	case '-', '.', '<', '>', '|', '*':
		return true
	}
	return false
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '@' || r == '!'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Next returns the next token, or a TokenEOF token once the input is exhausted.
func (s *Scanner) Next() Token {
	s.skipSpaceAndComments()
	tok := Token{Line: s.line, Col: s.col}
	if s.atEOF() {
		tok.Kind = TokenEOF
		return tok
	}

	start := s.pos
	r := s.advance()
	switch {
	case r == '"':
		return s.scanQuoted(tok)
	case r == '{':
		tok.Kind = TokenLBrace
	case r == '}':
		tok.Kind = TokenRBrace
	case r == ':':
		tok.Kind = TokenColon
	case isArrowRune(r):
		for !s.atEOF() && isArrowRune(s.peek()) {
			s.advance()
		}
		tok.Kind = TokenArrow
	case isIdentStart(r):
		for !s.atEOF() && isIdentPart(s.peek()) {
			s.advance()
		}
		tok.Kind = TokenIdent
	default:
		tok.Kind = TokenOther
	}
	tok.Text = s.src[start:s.pos]
	return tok
}

// scanQuoted reads a quoted name after its opening quote. Names never span
// lines: a newline or EOF before the closing quote yields TokenIllegal and
// leaves the newline unconsumed so scanning resumes on the next line.
func (s *Scanner) scanQuoted(tok Token) Token {
	start := s.pos
	for !s.atEOF() {
		switch s.peek() {
		case '"':
			tok.Kind = TokenString
			tok.Text = s.src[start:s.pos]
			s.advance()
			return tok
		case '\n':
			tok.Kind = TokenIllegal
			tok.Text = strings.TrimRight(s.src[start:s.pos], "\r")
			return tok
		}
		s.advance()
	}
	tok.Kind = TokenIllegal
	tok.Text = s.src[start:s.pos]
	return tok
}

// Tokenize scans src to completion. The trailing TokenEOF is not included.
func Tokenize(src string) []Token {
	s := NewScanner(src)
	var toks []Token
	for {
		t := s.Next()
		if t.Kind == TokenEOF {
			return toks
		}
		toks = append(toks, t)
	}
}
