package compiler

import (
	"errors"
	"testing"
)

func TestParser_SimpleInstruction(t *testing.T) {
	input := `mul R0, R1`

	parser := NewParser(input)
	program, err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(program.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(program.Statements))
	}

	stmt := program.Statements[0]
	if stmt.Kind != StmtInstruction || stmt.Name != "MUL" {
		t.Errorf("expected instruction MUL, got %v %s", stmt.Kind, stmt.Name)
	}
	if len(stmt.Operands) != 2 {
		t.Fatalf("expected 2 operands, got %d", len(stmt.Operands))
	}
	if stmt.Operands[1].Type != OperandReg || stmt.Operands[1].RegNum != 1 {
		t.Errorf("expected R1, got %+v", stmt.Operands[1])
	}
}

func TestParser_Statements(t *testing.T) {
	input := `.mode SIL-64
.data
vec: .state neutral
.code
main:
    LOAD R0, vec
loop: JMP loop`

	program, err := NewParser(input).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	expected := []struct {
		kind StatementKind
		name string
		line int
	}{
		{StmtDirective, ".mode", 1},
		{StmtDirective, ".data", 2},
		{StmtLabel, "vec", 3},
		{StmtDirective, ".state", 3},
		{StmtDirective, ".code", 4},
		{StmtLabel, "main", 5},
		{StmtInstruction, "LOAD", 6},
		{StmtLabel, "loop", 7},
		{StmtInstruction, "JMP", 7},
	}
	if len(program.Statements) != len(expected) {
		t.Fatalf("expected %d statements, got %d", len(expected), len(program.Statements))
	}
	for i, want := range expected {
		got := program.Statements[i]
		if got.Kind != want.kind || got.Name != want.name || got.Line != want.line {
			t.Errorf("statement %d: expected %v %s@%d, got %v %s@%d", i, want.kind, want.name, want.line, got.Kind, got.Name, got.Line)
		}
	}
}

func TestParser_OperandTypes(t *testing.T) {
	input := `SYSCALL print_string, 0x10
.string "text"
MOVI R2, -3`

	program, err := NewParser(input).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ops := program.Statements[0].Operands
	if ops[0].Type != OperandIdent || ops[0].StrVal != "print_string" {
		t.Errorf("expected name operand, got %+v", ops[0])
	}
	if ops[1].Type != OperandInt || ops[1].IntVal != 16 {
		t.Errorf("expected integer 16, got %+v", ops[1])
	}

	str := program.Statements[1].Operands[0]
	if str.Type != OperandString || str.StrVal != "text" {
		t.Errorf("expected string operand, got %+v", str)
	}

	neg := program.Statements[2].Operands[1]
	if neg.IntVal != -3 {
		t.Errorf("expected -3, got %d", neg.IntVal)
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"10", 10},
		{"010", 10},
		{"0x10", 16},
		{"-0x10", -16},
		{"0b101", 5},
		{"+7", 7},
		{"1_000", 1000},
	}
	for _, tt := range tests {
		got, err := parseInt(tt.input)
		if err != nil || got != tt.want {
			t.Errorf("parseInt(%q): expected %d, got %d (%v)", tt.input, tt.want, got, err)
		}
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"missing comma", "MUL R0 R1", 1},
		{"trailing comma", "NOP\nMUL R0,", 2},
		{"bad integer", "MOVI R0, 0xZZ", 1},
		{"illegal character", "MOVI R0, @", 1},
		{"operand without mnemonic", "\n\n42", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(tt.input).Parse()
			if err == nil {
				t.Fatal("expected error")
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SyntaxError, got %T", err)
			}
			if se.Line != tt.line {
				t.Errorf("expected line %d, got %d (%v)", tt.line, se.Line, err)
			}
		})
	}
}

func TestParser_EmptyInput(t *testing.T) {
	program, err := NewParser(``).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(program.Statements) != 0 {
		t.Errorf("expected 0 statements, got %d", len(program.Statements))
	}
}

func TestParser_CommentsOnly(t *testing.T) {
	input := `; Just a comment
; Another comment`

	program, err := NewParser(input).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(program.Statements) != 0 {
		t.Errorf("expected 0 statements, got %d", len(program.Statements))
	}
}
