// Package lexer turns source text into a stream of tokens, on demand.
//
// The lexer is driven by the parser via NextToken/PeekToken: it holds no
// buffered lookahead of its own, instead snapshotting and restoring its
// cursor around a speculative read (see PeekToken). Only ASCII is
// semantically recognised outside of string literals; a non-ASCII byte
// appearing where an identifier or operator is expected is a lexical
// error, but passes through untouched inside a string literal.
package lexer

import (
	"strings"
	"unicode/utf8"

	"github.com/go-imp/impc/cerrors"
	"github.com/go-imp/impc/token"
)

// Lexer holds our object-state.
type Lexer struct {
	src     string
	pos     int  // byte offset of the current character
	readPos int  // byte offset of the next character
	ch      rune // current character (0 at EOF)
}

// New creates a Lexer instance from string input.
func New(src string) *Lexer {
	l := &Lexer{src: src}
	l.readChar()
	return l
}

// checkpoint is a cheap, shallow snapshot of the lexer's cursor - used by
// PeekToken to look one token ahead without duplicating the source
// buffer.
type checkpoint struct {
	pos     int
	readPos int
	ch      rune
}

func (l *Lexer) save() checkpoint {
	return checkpoint{pos: l.pos, readPos: l.readPos, ch: l.ch}
}

func (l *Lexer) restore(c checkpoint) {
	l.pos, l.readPos, l.ch = c.pos, c.readPos, c.ch
}

// readChar advances the cursor by one rune.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.src) {
		l.ch = 0
		l.pos = l.readPos
		return
	}
	r, w := utf8.DecodeRuneInString(l.src[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += w
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.readPos:])
	return r
}

// PeekToken returns the next token without consuming it. It is a shallow
// checkpoint/restore around NextToken, not a pushback buffer.
func (l *Lexer) PeekToken() (token.Token, error) {
	saved := l.save()
	tok, err := l.NextToken()
	l.restore(saved)
	return tok, err
}

// NextToken reads and consumes the next token, skipping leading
// whitespace.
func (l *Lexer) NextToken() (token.Token, error) {
	l.skipWhitespace()

	start := l.pos
	ch := l.ch

	switch {
	case ch == 0:
		return token.Token{Kind: token.EOF}, nil

	case isIdentStart(ch):
		for isIdentPart(l.ch) {
			l.readChar()
		}
		text := l.src[start:l.pos]
		return token.Token{Kind: token.LookupIdentifier(text), Literal: text}, nil

	case isDigit(ch):
		for isDigit(l.ch) {
			l.readChar()
		}
		text := l.src[start:l.pos]
		value, err := parseUint(text)
		if err != nil {
			return token.Token{}, cerrors.IntegerOverflow{Text: text}
		}
		return token.Token{Kind: token.NUMBER, Literal: text, IntValue: value}, nil

	case ch == '"':
		return l.readString()

	case ch >= 0x80:
		l.readChar()
		return token.Token{}, cerrors.InvalidChar{Char: ch}

	default:
		return l.readOperator()
	}
}

// readOperator consumes a punctuator or operator token, preferring
// two-character forms over their one-character prefixes.
func (l *Lexer) readOperator() (token.Token, error) {
	start := l.pos
	ch := l.ch

	two := func(next rune, kind token.Kind, single token.Kind) token.Token {
		if l.peekChar() == next {
			l.readChar()
			l.readChar()
			return token.Token{Kind: kind, Literal: l.src[start:l.pos]}
		}
		l.readChar()
		return token.Token{Kind: single, Literal: l.src[start:l.pos]}
	}

	switch ch {
	case '+':
		l.readChar()
		return token.Token{Kind: token.PLUS, Literal: "+"}, nil
	case '-':
		l.readChar()
		return token.Token{Kind: token.MINUS, Literal: "-"}, nil
	case '*':
		l.readChar()
		return token.Token{Kind: token.ASTERISK, Literal: "*"}, nil
	case '/':
		l.readChar()
		return token.Token{Kind: token.SLASH, Literal: "/"}, nil
	case '%':
		l.readChar()
		return token.Token{Kind: token.PERCENT, Literal: "%"}, nil
	case '=':
		return two('=', token.EQ, token.ASSIGN), nil
	case '!':
		return two('=', token.NOT_EQ, token.BANG), nil
	case '>':
		return two('=', token.GTE, token.GT), nil
	case '<':
		return two('=', token.LTE, token.LT), nil
	case '(':
		l.readChar()
		return token.Token{Kind: token.LPAREN, Literal: "("}, nil
	case ')':
		l.readChar()
		return token.Token{Kind: token.RPAREN, Literal: ")"}, nil
	case '{':
		l.readChar()
		return token.Token{Kind: token.LBRACE, Literal: "{"}, nil
	case '}':
		l.readChar()
		return token.Token{Kind: token.RBRACE, Literal: "}"}, nil
	case '#':
		l.readChar()
		return token.Token{Kind: token.HASH, Literal: "#"}, nil
	case '@':
		l.readChar()
		return token.Token{Kind: token.AT, Literal: "@"}, nil
	case ';':
		l.readChar()
		return token.Token{Kind: token.SEMICOLON, Literal: ";"}, nil
	case ':':
		l.readChar()
		return token.Token{Kind: token.COLON, Literal: ":"}, nil
	case ',':
		l.readChar()
		return token.Token{Kind: token.COMMA, Literal: ","}, nil
	default:
		l.readChar()
		return token.Token{}, cerrors.InvalidChar{Char: ch}
	}
}

// readString consumes a `"`-delimited string literal, decoding escapes as
// it goes. The scan borrows the source slice unless an escape sequence is
// found, in which case it switches to an owned builder and continues -
// a copy-on-write strategy that avoids allocating for the common case of
// an escape-free string.
func (l *Lexer) readString() (token.Token, error) {
	start := l.pos
	l.readChar() // consume opening quote

	contentStart := l.pos
	var owned strings.Builder
	usingOwned := false

	for {
		if l.ch == 0 {
			return token.Token{}, cerrors.UnclosedString{}
		}
		if l.ch == '"' {
			break
		}
		if l.ch == '\\' {
			if !usingOwned {
				owned.WriteString(l.src[contentStart:l.pos])
				usingOwned = true
			}
			l.readChar()
			if l.ch == 0 {
				return token.Token{}, cerrors.UnclosedString{}
			}
			owned.WriteRune(decodeEscape(l.ch))
			l.readChar()
			continue
		}
		if usingOwned {
			owned.WriteRune(l.ch)
		}
		l.readChar()
	}

	raw := l.src[contentStart:l.pos]
	l.readChar() // consume closing quote

	literal := l.src[start:l.pos]

	value := raw
	if usingOwned {
		value = owned.String()
	}

	return token.Token{Kind: token.STRING, Literal: literal, StrValue: value}, nil
}

// decodeEscape maps the character following a `\` to its decoded rune.
// An escape introducer followed by an unrecognised character passes that
// character through unchanged.
func decodeEscape(ch rune) rune {
	switch ch {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case '0':
		return 0
	case '\\':
		return '\\'
	case '"':
		return '"'
	default:
		return ch
	}
}

func (l *Lexer) skipWhitespace() {
	for isWhitespace(l.ch) {
		l.readChar()
	}
}

func isWhitespace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || isDigit(ch)
}

// parseUint parses an unsigned base-10 integer, failing on overflow of a
// 64-bit value rather than the panics strconv avoids but we want surfaced
// as a compiler diagnostic.
func parseUint(text string) (uint64, error) {
	const maxUint64 = ^uint64(0)
	var value uint64
	for _, ch := range text {
		digit := uint64(ch - '0')
		if value > (maxUint64-digit)/10 {
			return 0, cerrors.IntegerOverflow{Text: text}
		}
		value = value*10 + digit
	}
	return value, nil
}
