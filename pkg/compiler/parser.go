package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// OperandType represents the type of an operand.
type OperandType uint8

const (
	OperandReg OperandType = iota
	OperandInt
	OperandIdent // label, symbol, mode or syscall name
	OperandString
)

// String returns the operand type name used in diagnostics.
func (t OperandType) String() string {
	switch t {
	case OperandReg:
		return "register"
	case OperandInt:
		return "integer"
	case OperandIdent:
		return "name"
	case OperandString:
		return "string"
	default:
		return "operand"
	}
}

// Operand represents an instruction or directive operand.
type Operand struct {
	Type   OperandType
	RegNum uint8  // For registers
	IntVal int64  // For integer literals
	StrVal string // For names and string literals
}

// StatementKind distinguishes the three kinds of source statement.
type StatementKind uint8

const (
	StmtLabel StatementKind = iota
	StmtDirective
	StmtInstruction
)

// Statement is one parsed unit of source. Name holds the label, the
// lower-case directive (with its leading dot) or the upper-case mnemonic.
type Statement struct {
	Kind     StatementKind
	Name     string
	Operands []Operand
	Line     int
}

// AsmProgram represents a parsed assembly program.
type AsmProgram struct {
	Statements []Statement
}

// SyntaxError reports a problem at a source line.
type SyntaxError struct {
	Line int
	Msg  string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

func syntaxErr(line int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Parser parses VSP assembly source code.
type Parser struct {
	tokens  []Token
	pos     int
	program *AsmProgram
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	lexer := NewLexer(input)
	tokens := lexer.Tokenize()
	return &Parser{
		tokens:  tokens,
		pos:     0,
		program: &AsmProgram{},
	}
}

// Parse parses the entire input and returns the program.
func (p *Parser) Parse() (*AsmProgram, error) {
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]

		switch tok.Type {
		case TokenEOF:
			return p.program, nil

		case TokenNewline:
			p.pos++

		case TokenLabel:
			p.program.Statements = append(p.program.Statements, Statement{
				Kind: StmtLabel,
				Name: tok.Value,
				Line: tok.Line,
			})
			p.pos++

		case TokenDirective:
			stmt, err := p.parseStatement(StmtDirective, tok.Value)
			if err != nil {
				return nil, err
			}
			p.program.Statements = append(p.program.Statements, stmt)

		case TokenIdent:
			stmt, err := p.parseStatement(StmtInstruction, strings.ToUpper(tok.Value))
			if err != nil {
				return nil, err
			}
			p.program.Statements = append(p.program.Statements, stmt)

		default:
			return nil, syntaxErr(tok.Line, "unexpected %s %q", tok.Type, tok.Value)
		}
	}

	return p.program, nil
}

// parseStatement consumes a directive or mnemonic and its comma-separated
// operands up to the end of the line.
func (p *Parser) parseStatement(kind StatementKind, name string) (Statement, error) {
	stmt := Statement{
		Kind: kind,
		Name: name,
		Line: p.tokens[p.pos].Line,
	}
	p.pos++

	expectOperand := false
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]

		if tok.Type == TokenNewline || tok.Type == TokenEOF {
			if expectOperand {
				return stmt, syntaxErr(tok.Line, "expected operand after ','")
			}
			break
		}

		if len(stmt.Operands) > 0 && !expectOperand {
			if tok.Type != TokenComma {
				return stmt, syntaxErr(tok.Line, "expected ',' before %q", tok.Value)
			}
			p.pos++
			expectOperand = true
			continue
		}

		operand, err := p.parseOperand()
		if err != nil {
			return stmt, err
		}
		stmt.Operands = append(stmt.Operands, operand)
		expectOperand = false
	}

	return stmt, nil
}

func (p *Parser) parseOperand() (Operand, error) {
	tok := p.tokens[p.pos]

	switch tok.Type {
	case TokenReg:
		regNum, _ := registerNumber(tok.Value)
		p.pos++
		return Operand{Type: OperandReg, RegNum: regNum}, nil

	case TokenInt:
		intVal, err := parseInt(tok.Value)
		if err != nil {
			return Operand{}, syntaxErr(tok.Line, "invalid integer: %s", tok.Value)
		}
		p.pos++
		return Operand{Type: OperandInt, IntVal: intVal}, nil

	case TokenIdent:
		p.pos++
		return Operand{Type: OperandIdent, StrVal: tok.Value}, nil

	case TokenString:
		p.pos++
		return Operand{Type: OperandString, StrVal: tok.Value}, nil

	default:
		return Operand{}, syntaxErr(tok.Line, "unexpected token: %q", tok.Value)
	}
}

// parseInt accepts decimal and 0x/0b prefixed literals with an optional
// sign. Leading zeros are decimal, not octal.
func parseInt(s string) (int64, error) {
	s = strings.ReplaceAll(s, "_", "")
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 1 && digits[0] == '0' && strings.ContainsAny(digits[1:2], "xXbB") {
		return strconv.ParseInt(s, 0, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}
