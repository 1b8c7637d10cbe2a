package fql

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokOp
	tokLBracket
	tokRBracket
	tokAmp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// SyntaxError reports a malformed query and the byte offset of the
// offending token.
type SyntaxError struct {
	Query string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '"' || c == '\'':
			start := i
			quote := c
			i++
			var b strings.Builder
			closed := false
			for i < len(input) {
				if input[i] == '\\' && i+1 < len(input) {
					b.WriteByte(input[i+1])
					i += 2
					continue
				}
				if input[i] == quote {
					closed = true
					i++
					break
				}
				b.WriteByte(input[i])
				i++
			}
			if !closed {
				return nil, &SyntaxError{Query: input, Pos: start, Msg: "unterminated string"}
			}
			toks = append(toks, token{kind: tokString, text: b.String(), pos: start})
		case c == '[':
			toks = append(toks, token{kind: tokLBracket, text: "[", pos: i})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokRBracket, text: "]", pos: i})
			i++
		case c == '&':
			toks = append(toks, token{kind: tokAmp, text: "&", pos: i})
			i++
		case c == '=':
			toks = append(toks, token{kind: tokOp, text: "=", pos: i})
			i++
		case c == '!' && i+1 < len(input) && input[i+1] == '=':
			toks = append(toks, token{kind: tokOp, text: "!=", pos: i})
			i += 2
		case isWordByte(c):
			start := i
			for i < len(input) && isWordByte(input[i]) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: input[start:i], pos: start})
		default:
			return nil, &SyntaxError{Query: input, Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(input)})
	return toks, nil
}

func isWordByte(c byte) bool {
	return c == '.' || c == '_' || c == '-' || c == '/' || c == '*' || c == ':' ||
		unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) || c >= 0x80
}
