package compiler

import (
	"strings"
	"unicode"
)

// TokenType represents the type of a token.
type TokenType uint8

const (
	TokenEOF       TokenType = iota
	TokenNewline             // end of statement
	TokenIdent               // mnemonics, label references, keywords
	TokenLabel               // name: (definition)
	TokenDirective           // .name
	TokenInt                 // decimal or 0x hex literal
	TokenString              // "quoted string", escapes resolved
	TokenComma               // ,
	TokenReg                 // R0-RF
	TokenIllegal             // any character the assembler does not accept
)

// String returns the string representation of a token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenIdent:
		return "IDENT"
	case TokenLabel:
		return "LABEL"
	case TokenDirective:
		return "DIRECTIVE"
	case TokenInt:
		return "INT"
	case TokenString:
		return "STRING"
	case TokenComma:
		return "COMMA"
	case TokenReg:
		return "REG"
	case TokenIllegal:
		return "ILLEGAL"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// Lexer tokenizes VSP assembly source code.
type Lexer struct {
	input  string
	pos    int
	line   int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		pos:    0,
		line:   1,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input and returns the tokens.
func (l *Lexer) Tokenize() []Token {
	for l.pos < len(l.input) {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		ch := l.input[l.pos]

		switch {
		case ch == '\n':
			l.emit(TokenNewline, "\n")
			l.line++
			l.pos++

		case ch == ';':
			// Comment runs to end of line
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}

		case ch == ',':
			l.emit(TokenComma, ",")
			l.pos++

		case ch == '"':
			l.scanString()

		case ch == '.':
			l.scanDirective()

		case ch == '-' || ch == '+' || isDigit(ch):
			l.scanNumber()

		case unicode.IsLetter(rune(ch)) || ch == '_':
			l.scanIdentOrRegister()

		default:
			l.emit(TokenIllegal, string(ch))
			l.pos++
		}
	}

	l.emit(TokenEOF, "")
	return l.tokens
}

func (l *Lexer) emit(t TokenType, value string) {
	l.tokens = append(l.tokens, Token{Type: t, Value: value, Line: l.line})
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) scanString() {
	l.pos++ // Skip opening quote
	line := l.line
	var sb strings.Builder

	for l.pos < len(l.input) && l.input[l.pos] != '"' {
		ch := l.input[l.pos]
		if ch == '\n' {
			// Unterminated; the newline still ends the statement.
			l.tokens = append(l.tokens, Token{Type: TokenIllegal, Value: `"` + sb.String(), Line: line})
			return
		}
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			switch esc := l.input[l.pos]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			default:
				sb.WriteByte(esc)
			}
			l.pos++
			continue
		}
		sb.WriteByte(ch)
		l.pos++
	}

	if l.pos >= len(l.input) {
		l.tokens = append(l.tokens, Token{Type: TokenIllegal, Value: `"` + sb.String(), Line: line})
		return
	}
	l.pos++ // Skip closing quote
	l.tokens = append(l.tokens, Token{Type: TokenString, Value: sb.String(), Line: line})
}

func (l *Lexer) scanDirective() {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	l.emit(TokenDirective, strings.ToLower(l.input[start:l.pos]))
}

func (l *Lexer) scanNumber() {
	start := l.pos

	if l.input[l.pos] == '-' || l.input[l.pos] == '+' {
		l.pos++
	}

	// Hex literals may contain letters, so consume the whole word and let
	// the parser reject malformed values.
	for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || unicode.IsLetter(rune(l.input[l.pos])) || l.input[l.pos] == '_') {
		l.pos++
	}

	l.emit(TokenInt, l.input[start:l.pos])
}

func (l *Lexer) scanIdentOrRegister() {
	start := l.pos
	l.pos++

	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}

	// Mode names are written SIL-8 ... SIL-128.
	if strings.EqualFold(l.input[start:l.pos], "SIL") && l.pos+1 < len(l.input) &&
		l.input[l.pos] == '-' && isDigit(l.input[l.pos+1]) {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}

	value := l.input[start:l.pos]

	if l.pos < len(l.input) && l.input[l.pos] == ':' {
		l.pos++
		l.emit(TokenLabel, value)
		return
	}

	l.emit(classifyIdentOrRegister(value), value)
}

// classifyIdentOrRegister recognises R0-RF and the decimal aliases R10-R15.
func classifyIdentOrRegister(value string) TokenType {
	if _, ok := registerNumber(value); ok {
		return TokenReg
	}
	return TokenIdent
}

func registerNumber(value string) (uint8, bool) {
	upper := strings.ToUpper(value)
	if len(upper) < 2 || upper[0] != 'R' {
		return 0, false
	}
	digits := upper[1:]
	if len(digits) == 1 {
		switch c := digits[0]; {
		case c >= '0' && c <= '9':
			return c - '0', true
		case c >= 'A' && c <= 'F':
			return c - 'A' + 10, true
		}
		return 0, false
	}
	if len(digits) == 2 && digits[0] == '1' && digits[1] >= '0' && digits[1] <= '5' {
		return 10 + digits[1] - '0', true
	}
	return 0, false
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentChar(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || isDigit(ch) || ch == '_' || ch == '.'
}
