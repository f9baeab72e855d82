package condition

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokBool
	tokEmpty
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var symbols = []struct {
	text string
	kind tokenKind
}{
	{"==", tokEq},
	{"!=", tokNeq},
	{"<=", tokLte},
	{">=", tokGte},
	{"&&", tokAnd},
	{"||", tokOr},
	{"<", tokLt},
	{">", tokGt},
	{"!", tokNot},
	{"(", tokLParen},
	{")", tokRParen},
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		ch := input[i]
		if isSpace(ch) {
			i++
			continue
		}

		if tok, ok := matchSymbol(input, i); ok {
			tokens = append(tokens, tok)
			i += len(tok.text)
			continue
		}

		switch {
		case ch == '"' || ch == '\'':
			end := closingQuote(input, i)
			if end < 0 {
				return nil, fmt.Errorf("condition: unterminated string at %d", i)
			}
			raw := input[i : end+1]
			if ch == '\'' {
				raw = `"` + strings.ReplaceAll(raw[1:len(raw)-1], `"`, `\"`) + `"`
			}
			value, err := strconv.Unquote(raw)
			if err != nil {
				return nil, fmt.Errorf("condition: invalid string at %d: %w", i, err)
			}
			tokens = append(tokens, token{kind: tokString, text: value, pos: i})
			i = end + 1
		case ch == '=' || ch == '&' || ch == '|':
			return nil, fmt.Errorf("condition: unexpected %q at %d", ch, i)
		default:
			start := i
			for i < len(input) && isWordByte(input[i]) {
				i++
			}
			if start == i {
				return nil, fmt.Errorf("condition: unexpected %q at %d", ch, i)
			}
			tokens = append(tokens, word(input[start:i], start))
		}
	}
	return tokens, nil
}

func matchSymbol(input string, at int) (token, bool) {
	for _, sym := range symbols {
		if strings.HasPrefix(input[at:], sym.text) {
			return token{kind: sym.kind, text: sym.text, pos: at}, true
		}
	}
	return token{}, false
}

func closingQuote(input string, start int) int {
	quote := input[start]
	for i := start + 1; i < len(input); i++ {
		switch input[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return -1
}

func word(text string, pos int) token {
	switch strings.ToLower(text) {
	case "true", "false":
		return token{kind: tokBool, text: strings.ToLower(text), pos: pos}
	case "null", "nil", "empty":
		return token{kind: tokEmpty, text: "", pos: pos}
	}
	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return token{kind: tokNumber, text: text, pos: pos}
	}
	return token{kind: tokIdent, text: text, pos: pos}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isWordByte(ch byte) bool {
	return ch == '_' || ch == '.' || ch == '-' || ch == '+' || ch == ':' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}
