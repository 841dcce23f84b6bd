// internal/rules/lexer.go
package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Tokenizer for the rule expression language.
 *
 * Produces a flat token slice terminated by tokEOF. Only the keyword class
 * (AND, OR, NOT, IN, MATCHES, BETWEEN) is case-normalized; identifiers keep
 * their case because field names are case-sensitive.
 *
 * Literals:
 *   - strings: single or double quotes, backslash escapes
 *   - numbers: optional leading '-', digits, fraction, exponent
 *   - regex: /pattern/flags, '\/' escapes the delimiter, other escapes pass through
 *
 * Every failure here is a *types.SyntaxError carrying the byte offset.
 */

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokString
	tokNumber
	tokRegex
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind   tokenKind
	text   string  // keyword (upper-cased), identifier, operator, string body or regex pattern
	num    float64 // tokNumber only
	flags  string  // tokRegex only
	offset int
}

var keywords = map[string]bool{
	"AND":     true,
	"OR":      true,
	"NOT":     true,
	"IN":      true,
	"MATCHES": true,
	"BETWEEN": true,
}

// Regex flag letters. i/m/s change matching; g/u/y are accepted for
// compatibility and have no effect on a single unanchored search.
const regexFlagLetters = "gimsuy"

func syntaxErr(offset int, reason string) error {
	return &types.SyntaxError{Reason: reason, Offset: offset}
}

// tokenize splits src into tokens.
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", offset: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", offset: i})
			i++
		case c == '[':
			toks = append(toks, token{kind: tokLBracket, text: "[", offset: i})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokRBracket, text: "]", offset: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", offset: i})
			i++
		case c == '\'' || c == '"':
			tok, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		case c == '/':
			tok, next, err := lexRegex(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		case c == '=' || c == '!' || c == '<' || c == '>':
			tok, next, err := lexOperator(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		case isDigit(c) || ((c == '-' || c == '.') && i+1 < len(src) && isDigit(src[i+1])):
			tok, next, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			word := src[start:i]
			if upper := strings.ToUpper(word); keywords[upper] {
				toks = append(toks, token{kind: tokKeyword, text: upper, offset: start})
			} else {
				toks = append(toks, token{kind: tokIdent, text: word, offset: start})
			}
		default:
			return nil, syntaxErr(i, "unexpected character "+strconv.QuoteRune(rune(c)))
		}
	}
	toks = append(toks, token{kind: tokEOF, offset: len(src)})
	return toks, nil
}

func lexString(src string, start int) (token, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return token{kind: tokString, text: b.String(), offset: start}, i + 1, nil
		case c == '\\':
			if i+1 >= len(src) {
				return token{}, 0, syntaxErr(start, "unterminated string literal")
			}
			switch esc := src[i+1]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(esc)
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return token{}, 0, syntaxErr(start, "unterminated string literal")
}

func lexRegex(src string, start int) (token, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		if c == '\\' && i+1 < len(src) {
			if src[i+1] == '/' {
				b.WriteByte('/')
			} else {
				b.WriteByte(c)
				b.WriteByte(src[i+1])
			}
			i += 2
			continue
		}
		if c == '/' {
			i++
			flagStart := i
			for i < len(src) && isIdentPart(src[i]) {
				if !strings.ContainsRune(regexFlagLetters, rune(src[i])) {
					return token{}, 0, syntaxErr(i, "unknown regex flag "+strconv.QuoteRune(rune(src[i])))
				}
				i++
			}
			return token{kind: tokRegex, text: b.String(), flags: src[flagStart:i], offset: start}, i, nil
		}
		b.WriteByte(c)
		i++
	}
	return token{}, 0, syntaxErr(start, "unterminated regex literal")
}

func lexOperator(src string, start int) (token, int, error) {
	two := ""
	if start+1 < len(src) {
		two = src[start : start+2]
	}
	switch two {
	case "==", "!=", "<=", ">=":
		return token{kind: tokOp, text: two, offset: start}, start + 2, nil
	}
	switch src[start] {
	case '<', '>':
		return token{kind: tokOp, text: src[start : start+1], offset: start}, start + 1, nil
	}
	return token{}, 0, syntaxErr(start, "unknown operator "+strconv.Quote(src[start:start+1]))
}

func lexNumber(src string, start int) (token, int, error) {
	i := start
	if src[i] == '-' {
		i++
	}
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			i = j
			for i < len(src) && isDigit(src[i]) {
				i++
			}
		}
	}
	if i < len(src) && isIdentStart(src[i]) {
		return token{}, 0, syntaxErr(start, "malformed number "+strconv.Quote(src[start:i+1]))
	}
	text := src[start:i]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, 0, syntaxErr(start, "malformed number "+strconv.Quote(text))
	}
	return token{kind: tokNumber, text: text, num: n, offset: start}, i, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
