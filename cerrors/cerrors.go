// Package cerrors defines the tagged taxonomy of errors the compiler's
// phases can produce. Each case is its own type implementing error, built
// at the point of detection with github.com/pkg/errors.WithStack so the
// driver can print a full cause trace under -debug.
package cerrors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/go-imp/impc/token"
)

// Wrap attaches a stack trace to err, for diagnostics produced deep in a
// phase. A nil err passes through unchanged.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

// --- lexer / parser errors -------------------------------------------------

// InvalidChar is returned when the lexer encounters a byte or rune that
// cannot begin any valid token.
type InvalidChar struct{ Char rune }

func (e InvalidChar) Error() string {
	return fmt.Sprintf("invalid character %q", e.Char)
}

// UnclosedString is returned when a string literal runs into EOF before
// its closing quote.
type UnclosedString struct{}

func (e UnclosedString) Error() string { return "unclosed string literal" }

// UnclosedParen is returned when a `(` is never matched by a `)`.
type UnclosedParen struct{ Got token.Token }

func (e UnclosedParen) Error() string {
	return fmt.Sprintf("unclosed parenthesis, reached %s", describe(e.Got))
}

// UnexpectedToken is returned when the parser finds a token it cannot use
// in the current grammatical position. Got.Kind == token.EOF represents
// running out of input.
type UnexpectedToken struct{ Got token.Token }

func (e UnexpectedToken) Error() string {
	return fmt.Sprintf("unexpected token %s", describe(e.Got))
}

// IntegerOverflow is returned when an integer literal's text does not fit
// in an unsigned 64-bit value.
type IntegerOverflow struct{ Text string }

func (e IntegerOverflow) Error() string {
	return fmt.Sprintf("integer literal %q overflows 64 bits", e.Text)
}

func describe(t token.Token) string {
	if t.Kind == token.EOF || t.Kind == "" {
		return "EOF"
	}
	return fmt.Sprintf("%q", t.Literal)
}

// --- type-checking errors ---------------------------------------------------

// UndeclaredIdent is returned when an identifier has no visible binding in
// the symbol table.
type UndeclaredIdent struct{ Name string }

func (e UndeclaredIdent) Error() string {
	return fmt.Sprintf("undeclared identifier %q", e.Name)
}

// TypeMismatch is returned when an expression's type does not match what
// its context requires.
type TypeMismatch struct {
	Expected fmt.Stringer
	Got      fmt.Stringer
}

func (e TypeMismatch) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Got)
}

// NotCallable is returned when a call expression's callee is not a
// function.
type NotCallable struct{ Got fmt.Stringer }

func (e NotCallable) Error() string {
	return fmt.Sprintf("value of type %s is not callable", e.Got)
}

// ArityMismatch is returned when a call's argument count does not match
// the callee's parameter count.
type ArityMismatch struct {
	Expected int
	Got      int
}

func (e ArityMismatch) Error() string {
	return fmt.Sprintf("expected %d argument(s), got %d", e.Expected, e.Got)
}

// NotAnLvalue is returned when `#` (reference-of) is applied to an
// expression that has no address.
type NotAnLvalue struct{}

func (e NotAnLvalue) Error() string { return "expression is not an lvalue" }

// Internal represents an invariant violation that should be unreachable
// by construction (e.g. a VoidRegister reaching the emitter). Hitting one
// terminates compilation with an internal-error diagnostic rather than a
// panic, so the driver can still report it cleanly.
type Internal struct{ Detail string }

func (e Internal) Error() string {
	return fmt.Sprintf("internal compiler error: %s", e.Detail)
}
