// Package scanner provides the lexer for the parameter formula language.
package scanner

import (
	"fmt"
	"unicode"

	"github.com/bburan/pyexperiment/internal/token"
)

// Item represents a scanned token with its literal value.
type Item struct {
	Token token.Token
	Value string
	Pos   int // Byte offset where the token started
}

// Scanner tokenizes a formula string.
type Scanner struct {
	src    []rune
	pos    int
	peeked *Item
	err    error
}

// New creates a new Scanner over the given formula text.
func New(src string) *Scanner {
	return &Scanner{src: []rune(src)}
}

// Err returns the first error encountered while scanning.
func (s *Scanner) Err() error {
	return s.err
}

// Peek returns the next item without consuming it.
func (s *Scanner) Peek() Item {
	if s.peeked == nil {
		item := s.scan()
		s.peeked = &item
	}
	return *s.peeked
}

// Next returns the next token from the input.
func (s *Scanner) Next() Item {
	if s.peeked != nil {
		item := *s.peeked
		s.peeked = nil
		return item
	}
	return s.scan()
}

func (s *Scanner) scan() Item {
	s.skipSpace()
	start := s.pos
	if s.pos >= len(s.src) {
		return Item{Token: token.EOF, Pos: start}
	}

	r := s.src[s.pos]
	switch {
	case unicode.IsDigit(r) || (r == '.' && s.digitAt(s.pos+1)):
		return s.scanNumber()
	case r == '\'' || r == '"':
		return s.scanString(r)
	case unicode.IsLetter(r) || r == '_':
		return s.scanIdent()
	}

	s.pos++
	two := func(next rune, pair, single token.Token) Item {
		if s.pos < len(s.src) && s.src[s.pos] == next {
			s.pos++
			return Item{Token: pair, Value: string(r) + string(next), Pos: start}
		}
		return Item{Token: single, Value: string(r), Pos: start}
	}

	switch r {
	case '+':
		return Item{Token: token.PLUS, Value: "+", Pos: start}
	case '-':
		return Item{Token: token.MINUS, Value: "-", Pos: start}
	case '*':
		return two('*', token.POWER, token.STAR)
	case '/':
		return two('/', token.FLOORDIV, token.SLASH)
	case '%':
		return Item{Token: token.PERCENT, Value: "%", Pos: start}
	case '<':
		return two('=', token.LE, token.LT)
	case '>':
		return two('=', token.GE, token.GT)
	case '=':
		return two('=', token.EQ, token.ASSIGN)
	case '!':
		if s.pos < len(s.src) && s.src[s.pos] == '=' {
			s.pos++
			return Item{Token: token.NE, Value: "!=", Pos: start}
		}
	case '(':
		return Item{Token: token.LPAREN, Value: "(", Pos: start}
	case ')':
		return Item{Token: token.RPAREN, Value: ")", Pos: start}
	case '[':
		return Item{Token: token.LBRACKET, Value: "[", Pos: start}
	case ']':
		return Item{Token: token.RBRACKET, Value: "]", Pos: start}
	case ',':
		return Item{Token: token.COMMA, Value: ",", Pos: start}
	}

	s.setErr(fmt.Errorf("unexpected character %q at position %d", r, start))
	return Item{Token: token.ILLEGAL, Value: string(r), Pos: start}
}

func (s *Scanner) skipSpace() {
	for s.pos < len(s.src) && unicode.IsSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *Scanner) digitAt(i int) bool {
	return i < len(s.src) && unicode.IsDigit(s.src[i])
}

func (s *Scanner) scanNumber() Item {
	start := s.pos
	for s.pos < len(s.src) && unicode.IsDigit(s.src[s.pos]) {
		s.pos++
	}
	if s.pos < len(s.src) && s.src[s.pos] == '.' {
		s.pos++
		for s.pos < len(s.src) && unicode.IsDigit(s.src[s.pos]) {
			s.pos++
		}
	}
	// Exponent part (1e3, 2.5e-4)
	if s.pos < len(s.src) && (s.src[s.pos] == 'e' || s.src[s.pos] == 'E') {
		mark := s.pos
		s.pos++
		if s.pos < len(s.src) && (s.src[s.pos] == '+' || s.src[s.pos] == '-') {
			s.pos++
		}
		if s.pos < len(s.src) && unicode.IsDigit(s.src[s.pos]) {
			for s.pos < len(s.src) && unicode.IsDigit(s.src[s.pos]) {
				s.pos++
			}
		} else {
			// Not an exponent after all; treat 'e' as the start of a name.
			s.pos = mark
		}
	}
	return Item{Token: token.NUMBER, Value: string(s.src[start:s.pos]), Pos: start}
}

func (s *Scanner) scanString(quote rune) Item {
	start := s.pos
	s.pos++ // opening quote
	var value []rune
	for s.pos < len(s.src) {
		r := s.src[s.pos]
		if r == quote {
			s.pos++
			return Item{Token: token.STRING, Value: string(value), Pos: start}
		}
		value = append(value, r)
		s.pos++
	}
	s.setErr(fmt.Errorf("unterminated string starting at position %d", start))
	return Item{Token: token.ILLEGAL, Value: string(value), Pos: start}
}

func (s *Scanner) scanIdent() Item {
	start := s.pos
	for s.pos < len(s.src) && isIdentChar(s.src[s.pos]) {
		s.pos++
	}
	value := string(s.src[start:s.pos])
	return Item{Token: token.Lookup(value), Value: value, Pos: start}
}

// isIdentChar returns true if the rune is valid in an identifier (letter,
// digit, underscore).
func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func (s *Scanner) setErr(err error) {
	if s.err == nil {
		s.err = err
	}
}
