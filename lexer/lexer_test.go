package lexer

import (
	"testing"

	"github.com/go-imp/impc/cerrors"
	"github.com/go-imp/impc/token"
)

// Trivial test of the parsing of numbers and identifiers.
func TestParseNumbers(t *testing.T) {
	input := `3 43 x`

	tests := []struct {
		expectedKind    token.Kind
		expectedLiteral string
	}{
		{token.NUMBER, "3"},
		{token.NUMBER, "43"},
		{token.IDENT, "x"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("tests[%d] - unexpected error: %s", i, err)
		}
		if tok.Kind != tt.expectedKind {
			t.Fatalf("tests[%d] - kind wrong, expected=%q, got=%q", i, tt.expectedKind, tok.Kind)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong, expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

// Trivial test of operators, including the two-character forms.
func TestParseOperators(t *testing.T) {
	input := `+ - * / % == != >= <= > < ! # @ = ( ) { } ; : ,`

	tests := []token.Kind{
		token.PLUS, token.MINUS, token.ASTERISK, token.SLASH, token.PERCENT,
		token.EQ, token.NOT_EQ, token.GTE, token.LTE, token.GT, token.LT,
		token.BANG, token.HASH, token.AT, token.ASSIGN,
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE,
		token.SEMICOLON, token.COLON, token.COMMA,
		token.EOF,
	}

	l := New(input)
	for i, expected := range tests {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("tests[%d] - unexpected error: %s", i, err)
		}
		if tok.Kind != expected {
			t.Fatalf("tests[%d] - kind wrong, expected=%q, got=%q", i, expected, tok.Kind)
		}
	}
}

// Keywords lex as their own kind, not as plain identifiers.
func TestKeywords(t *testing.T) {
	input := `fn let if else while true false`

	expected := []token.Kind{
		token.FUNCTION, token.LET, token.IF, token.ELSE, token.WHILE, token.TRUE, token.FALSE,
	}

	l := New(input)
	for i, kind := range expected {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("tests[%d] - unexpected error: %s", i, err)
		}
		if tok.Kind != kind {
			t.Fatalf("tests[%d] - expected=%q, got=%q", i, kind, tok.Kind)
		}
	}
}

// String literals decode their escapes.
func TestString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"hi"`, "hi"},
		{`"hi\n"`, "hi\n"},
		{`"a\tb\rc\0d"`, "a\tb\rc\x00d"},
		{`"\q"`, "q"}, // unknown escape passes through
	}

	for _, tt := range tests {
		l := New(tt.input)
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("input %q: unexpected error: %s", tt.input, err)
		}
		if tok.Kind != token.STRING {
			t.Fatalf("input %q: expected STRING, got %q", tt.input, tok.Kind)
		}
		if tok.StrValue != tt.expected {
			t.Fatalf("input %q: expected %q, got %q", tt.input, tt.expected, tok.StrValue)
		}
	}
}

// An unclosed string is an error, not a panic or infinite loop.
func TestUnclosedString(t *testing.T) {
	l := New(`"unterminated`)
	_, err := l.NextToken()
	if err == nil {
		t.Fatalf("expected an error for an unclosed string")
	}
}

// A lexical error is produced for an invalid leading character.
func TestInvalidChar(t *testing.T) {
	l := New("$")
	_, err := l.NextToken()
	if err == nil {
		t.Fatalf("expected an error for an invalid character")
	}
}

// Re-lexing the source slices from successive tokens reproduces the same
// sequence of kinds - the lexer round-trip property.
func TestRoundTrip(t *testing.T) {
	input := `fn main ( ) { let x : U64 = 1 ; x + 2 ; }`

	var kinds []token.Kind
	var literals []string

	l := New(input)
	for {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if tok.Kind == token.EOF {
			break
		}
		kinds = append(kinds, tok.Kind)
		literals = append(literals, tok.Literal)
	}

	l2 := New(input)
	for i, k := range kinds {
		tok, err := l2.NextToken()
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if tok.Kind != k || tok.Literal != literals[i] {
			t.Fatalf("re-lex mismatch at %d: got (%q,%q) want (%q,%q)", i, tok.Kind, tok.Literal, k, literals[i])
		}
	}
}

// PeekToken must not consume.
func TestPeekDoesNotConsume(t *testing.T) {
	l := New("1 2")

	peeked, err := l.PeekToken()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if peeked.Literal != "1" {
		t.Fatalf("expected to peek '1', got %q", peeked.Literal)
	}

	next, err := l.NextToken()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if next.Literal != "1" {
		t.Fatalf("peek consumed a token: next is %q", next.Literal)
	}
}

// A number literal too wide for 64 bits is IntegerOverflow, not
// InvalidChar.
func TestIntegerOverflow(t *testing.T) {
	l := New("99999999999999999999")

	_, err := l.NextToken()
	if err == nil {
		t.Fatalf("expected an error for an overflowing literal")
	}
	var overflow cerrors.IntegerOverflow
	if !asOverflow(err, &overflow) {
		t.Fatalf("expected cerrors.IntegerOverflow, got %#v", err)
	}
}

func asOverflow(err error, target *cerrors.IntegerOverflow) bool {
	if o, ok := err.(cerrors.IntegerOverflow); ok {
		*target = o
		return true
	}
	return false
}
