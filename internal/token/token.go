// Package token defines the token types of the parameter formula language.
package token

// Token represents a formula token type.
type Token int

const (
	EOF Token = iota
	ILLEGAL

	// Literals and names
	NUMBER
	STRING
	IDENT

	// Keywords
	AND
	OR
	NOT
	TRUE
	FALSE
	NONE

	// Operators
	PLUS     // +
	MINUS    // -
	STAR     // *
	SLASH    // /
	FLOORDIV // //
	PERCENT  // %
	POWER    // **

	// Comparisons
	LT // <
	LE // <=
	GT // >
	GE // >=
	EQ // ==
	NE // !=

	// Delimiters
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	COMMA    // ,
	ASSIGN   // = (keyword arguments only)
)

var names = map[Token]string{
	EOF:      "EOF",
	ILLEGAL:  "ILLEGAL",
	NUMBER:   "NUMBER",
	STRING:   "STRING",
	IDENT:    "IDENT",
	AND:      "and",
	OR:       "or",
	NOT:      "not",
	TRUE:     "True",
	FALSE:    "False",
	NONE:     "None",
	PLUS:     "+",
	MINUS:    "-",
	STAR:     "*",
	SLASH:    "/",
	FLOORDIV: "//",
	PERCENT:  "%",
	POWER:    "**",
	LT:       "<",
	LE:       "<=",
	GT:       ">",
	GE:       ">=",
	EQ:       "==",
	NE:       "!=",
	LPAREN:   "(",
	RPAREN:   ")",
	LBRACKET: "[",
	RBRACKET: "]",
	COMMA:    ",",
	ASSIGN:   "=",
}

// String returns a printable representation of the token.
func (t Token) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return "UNKNOWN"
}

var keywords = map[string]Token{
	"and":   AND,
	"or":    OR,
	"not":   NOT,
	"True":  TRUE,
	"False": FALSE,
	"None":  NONE,
}

// Lookup maps an identifier to its keyword token, or IDENT if it is not a
// keyword.
func Lookup(ident string) Token {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}
