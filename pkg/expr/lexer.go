package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/stcorp/muninn/pkg/values"
)

var tokenRE = regexp.MustCompile(
	`^(?:` + strings.Join([]string{
		`"(?:[^\\"]|\\.)*"`,                                    // text
		`\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2}:\d{2}(?:\.\d{0,6})?)?`, // timestamp
		`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`, // uuid
		`\d+(?:\.\d*(?:[eE][+-]?\d+)?|[eE][+-]?\d+)`, // real
		`0x[0-9a-fA-F]+|0o[0-7]\d+|0b[01]+|\d+`,       // integer
		`<=|>=|==|!=|~=|not in|[*<>@()\[\],.+\-/]`,    // operators
		`[a-zA-Z]\w*`,                                 // names
	}, "|") + `)`)

var dateMinRE = regexp.MustCompile(`^0000-00-00(?:T00:00:00(?:\.0{0,6})?)?$`)
var dateMaxRE = regexp.MustCompile(`^9999-99-99(?:T99:99:99(?:\.9{0,6})?)?$`)

// Lexer is the regex-driven token stream over an expression's text.
// It exposes a one-token lookahead: Current() returns the token most
// recently produced by Next().
type Lexer struct {
	text    string
	pos     int
	current Token
	atEnd   bool
}

// NewLexer builds a lexer positioned at the first token of text.
func NewLexer(text string) (*Lexer, error) {
	l := &Lexer{text: text}
	if err := l.advance(); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the current lookahead token.
func (l *Lexer) Current() Token { return l.current }

// Next consumes the current token and returns the new lookahead.
func (l *Lexer) Next() (Token, error) {
	if err := l.advance(); err != nil {
		return Token{}, err
	}
	return l.current, nil
}

func (l *Lexer) advance() error {
	start := l.skipWhitespace(l.pos)
	if start >= len(l.text) {
		l.pos = start
		l.current = Token{Type: TokenEnd, Pos: start}
		l.atEnd = true
		return nil
	}

	loc := tokenRE.FindStringIndex(l.text[start:])
	if loc == nil || loc[0] != 0 {
		return &SyntaxError{Pos: start + 1, Message: fmt.Sprintf("syntax error: %q", l.text[start:])}
	}

	matched := l.text[start : start+loc[1]]
	tok, err := classify(matched, start)
	if err != nil {
		return err
	}
	l.pos = start + loc[1]
	l.current = tok
	return nil
}

func (l *Lexer) skipWhitespace(start int) int {
	for start < len(l.text) && unicode.IsSpace(rune(l.text[start])) {
		start++
	}
	return start
}

func classify(s string, pos int) (Token, error) {
	switch {
	case strings.HasPrefix(s, `"`):
		return Token{Type: TokenText, Value: unescapeString(s[1 : len(s)-1]), Pos: pos}, nil
	case isTimestampLiteral(s):
		ts, err := parseTimestampToken(s, pos)
		if err != nil {
			return Token{}, err
		}
		return Token{Type: TokenTimestamp, Value: ts, Pos: pos}, nil
	case isUUIDLiteral(s):
		u, err := uuid.Parse(s)
		if err != nil {
			return Token{}, &SyntaxError{Pos: pos + 1, Message: fmt.Sprintf("invalid UUID: %q", s)}
		}
		return Token{Type: TokenUUID, Value: u, Pos: pos}, nil
	case isRealLiteral(s):
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Token{}, &SyntaxError{Pos: pos + 1, Message: fmt.Sprintf("invalid real literal: %q", s)}
		}
		return Token{Type: TokenReal, Value: f, Pos: pos}, nil
	case isIntegerLiteral(s):
		v, err := parseIntegerLiteral(s)
		if err != nil {
			return Token{}, &SyntaxError{Pos: pos + 1, Message: err.Error()}
		}
		return Token{Type: TokenInteger, Value: v, Pos: pos}, nil
	case isOperatorToken(s):
		return Token{Type: TokenOperator, Value: s, Pos: pos}, nil
	case isNameToken(s):
		switch s {
		case "true", "false":
			return Token{Type: TokenBoolean, Value: s == "true", Pos: pos}, nil
		case "in":
			return Token{Type: TokenOperator, Value: s, Pos: pos}, nil
		default:
			return Token{Type: TokenName, Value: s, Pos: pos}, nil
		}
	default:
		return Token{}, &SyntaxError{Pos: pos + 1, Message: fmt.Sprintf("syntax error: %q", s)}
	}
}

var (
	timestampRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2}:\d{2}(?:\.\d{0,6})?)?$`)
	uuidRE      = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	realRE      = regexp.MustCompile(`^\d+(?:\.\d*(?:[eE][+-]?\d+)?|[eE][+-]?\d+)$`)
	integerRE   = regexp.MustCompile(`^(?:0x[0-9a-fA-F]+|0o[0-7]\d+|0b[01]+|\d+)$`)
	operatorRE  = regexp.MustCompile(`^(?:<=|>=|==|!=|~=|not in|[*<>@()\[\],.+\-/])$`)
	nameRE      = regexp.MustCompile(`^[a-zA-Z]\w*$`)
)

func isTimestampLiteral(s string) bool { return timestampRE.MatchString(s) }
func isUUIDLiteral(s string) bool      { return uuidRE.MatchString(s) }
func isRealLiteral(s string) bool      { return realRE.MatchString(s) }
func isIntegerLiteral(s string) bool   { return integerRE.MatchString(s) }
func isOperatorToken(s string) bool    { return operatorRE.MatchString(s) }
func isNameToken(s string) bool        { return nameRE.MatchString(s) }

func parseIntegerLiteral(s string) (int64, error) {
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"):
		base, s = 16, s[2:]
	case strings.HasPrefix(s, "0o"):
		base, s = 8, s[2:]
	case strings.HasPrefix(s, "0b"):
		base, s = 2, s[2:]
	}
	return strconv.ParseInt(s, base, 64)
}

func parseTimestampToken(s string, pos int) (values.Timestamp, error) {
	if dateMinRE.MatchString(s) {
		return values.MinTimestamp, nil
	}
	if dateMaxRE.MatchString(s) {
		return values.MaxTimestamp, nil
	}
	ts, err := values.ParseTimestamp(s)
	if err != nil {
		return 0, &SyntaxError{Pos: pos + 1, Message: fmt.Sprintf("invalid timestamp: %q", s)}
	}
	return ts, nil
}

var escapeRE = regexp.MustCompile(`\\(\\|["'abfnrtv])`)

var escapeTranslation = map[byte]byte{
	'\\': '\\',
	'\'': '\'',
	'"':  '"',
	'a':  '\a',
	'b':  '\b',
	'f':  '\f',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'v':  '\v',
}

// unescapeString resolves the text literal backslash escapes §4.4
// names: \" \\ \n \t \r (and a few others the lexer accepts for parity
// with the source grammar).
func unescapeString(s string) string {
	return escapeRE.ReplaceAllStringFunc(s, func(m string) string {
		c := m[1]
		if r, ok := escapeTranslation[c]; ok {
			return string(r)
		}
		return m
	})
}
