package compiler

import (
	"testing"
)

func TestLexer_BasicTokens(t *testing.T) {
	input := `MOVI R0, 0x02`

	lexer := NewLexer(input)
	tokens := lexer.Tokenize()

	expected := []TokenType{TokenIdent, TokenReg, TokenComma, TokenInt, TokenEOF}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d", len(expected), len(tokens))
	}

	for i, tok := range tokens {
		if tok.Type != expected[i] {
			t.Errorf("token %d: expected %v, got %v", i, expected[i], tok.Type)
		}
	}
}

func TestLexer_Registers(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"R0", TokenReg},
		{"r9", TokenReg},
		{"RA", TokenReg},
		{"RF", TokenReg},
		{"R15", TokenReg},
		{"R16", TokenIdent},
		{"RG", TokenIdent},
		{"R", TokenIdent},
		{"ROTATE", TokenIdent},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			tokens := lexer.Tokenize()

			if len(tokens) < 1 {
				t.Fatal("expected at least one token")
			}
			if tokens[0].Type != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, tokens[0].Type)
			}
		})
	}
}

func TestRegisterNumber(t *testing.T) {
	tests := []struct {
		input string
		want  uint8
	}{
		{"R0", 0}, {"R9", 9}, {"RA", 10}, {"rc", 12}, {"RF", 15}, {"R10", 10}, {"R15", 15},
	}
	for _, tt := range tests {
		got, ok := registerNumber(tt.input)
		if !ok || got != tt.want {
			t.Errorf("registerNumber(%q): expected %d, got %d (%v)", tt.input, tt.want, got, ok)
		}
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"42", TokenInt},
		{"-42", TokenInt},
		{"0x1F", TokenInt},
		{"+3", TokenInt},
		{"0", TokenInt},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			tokens := lexer.Tokenize()

			if len(tokens) < 1 {
				t.Fatal("expected at least one token")
			}
			if tokens[0].Type != tt.expected {
				t.Errorf("expected %v, got %v (value: %q)", tt.expected, tokens[0].Type, tokens[0].Value)
			}
			if tokens[0].Value != tt.input {
				t.Errorf("expected value %q, got %q", tt.input, tokens[0].Value)
			}
		})
	}
}

func TestLexer_Strings(t *testing.T) {
	input := `"hello\tworld\n"`

	lexer := NewLexer(input)
	tokens := lexer.Tokenize()

	if tokens[0].Type != TokenString {
		t.Fatalf("expected TokenString, got %v", tokens[0].Type)
	}
	if tokens[0].Value != "hello\tworld\n" {
		t.Errorf("expected escapes to be resolved, got %q", tokens[0].Value)
	}

	unterminated := NewLexer("\"abc\nHLT").Tokenize()
	if unterminated[0].Type != TokenIllegal {
		t.Errorf("expected TokenIllegal for unterminated string, got %v", unterminated[0].Type)
	}
}

func TestLexer_LabelsAndDirectives(t *testing.T) {
	input := `.data
msg: .string "hi"
.code
main: JMP main`

	tokens := NewLexer(input).Tokenize()

	expected := []struct {
		typ   TokenType
		value string
	}{
		{TokenDirective, ".data"},
		{TokenNewline, "\n"},
		{TokenLabel, "msg"},
		{TokenDirective, ".string"},
		{TokenString, "hi"},
		{TokenNewline, "\n"},
		{TokenDirective, ".code"},
		{TokenNewline, "\n"},
		{TokenLabel, "main"},
		{TokenIdent, "JMP"},
		{TokenIdent, "main"},
		{TokenEOF, ""},
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, want := range expected {
		if tokens[i].Type != want.typ || tokens[i].Value != want.value {
			t.Errorf("token %d: expected %v %q, got %v %q", i, want.typ, want.value, tokens[i].Type, tokens[i].Value)
		}
	}
}

func TestLexer_DottedMnemonicsAndModes(t *testing.T) {
	tokens := NewLexer("BIT.H R1\n.mode SIL-64\nHINT.GPU").Tokenize()

	if tokens[0].Type != TokenIdent || tokens[0].Value != "BIT.H" {
		t.Errorf("expected BIT.H identifier, got %v %q", tokens[0].Type, tokens[0].Value)
	}
	if tokens[4].Type != TokenIdent || tokens[4].Value != "SIL-64" {
		t.Errorf("expected SIL-64 identifier, got %v %q", tokens[4].Type, tokens[4].Value)
	}
	if tokens[6].Value != "HINT.GPU" {
		t.Errorf("expected HINT.GPU, got %q", tokens[6].Value)
	}
}

func TestLexer_Comments(t *testing.T) {
	input := `MOVI R0, 2 ; load two
MUL R0, R1 ; multiply`

	tokens := NewLexer(input).Tokenize()

	identCount := 0
	for _, tok := range tokens {
		if tok.Type == TokenIdent {
			identCount++
		}
	}
	if identCount != 2 {
		t.Errorf("expected 2 identifiers, got %d", identCount)
	}
}

func TestLexer_Illegal(t *testing.T) {
	tokens := NewLexer("MOVI R0, @").Tokenize()
	if tokens[3].Type != TokenIllegal || tokens[3].Value != "@" {
		t.Errorf("expected illegal '@', got %v %q", tokens[3].Type, tokens[3].Value)
	}
}

func TestLexer_TokenLine(t *testing.T) {
	input := `NOP

HLT`

	tokens := NewLexer(input).Tokenize()

	if tokens[0].Line != 1 {
		t.Errorf("expected line 1, got %d", tokens[0].Line)
	}
	for _, tok := range tokens {
		if tok.Value == "HLT" && tok.Line != 3 {
			t.Errorf("expected HLT on line 3, got %d", tok.Line)
		}
	}
}
