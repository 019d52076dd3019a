package compiler

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akhildatla/vsp/pkg/sil"
	"github.com/akhildatla/vsp/pkg/vm"
)

// Options controls assembly.
type Options struct {
	// File is the source name recorded in the debug info.
	File string
	// Mode is used when the source has no .mode directive.
	Mode vm.Mode
	// Strip omits line debug info from the output.
	Strip bool
}

// DefaultOptions returns SIL-128 assembly with debug info.
func DefaultOptions() Options {
	return Options{Mode: vm.Sil128}
}

// Compile assembles VSP source into a .silc program.
func Compile(source string) (*vm.File, error) {
	return CompileWithOptions(source, DefaultOptions())
}

// CompileFile assembles the source file at path.
func CompileFile(path string) (*vm.File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	opts := DefaultOptions()
	opts.File = filepath.Base(path)
	return CompileWithOptions(string(src), opts)
}

// CompileWithOptions assembles source with explicit options.
func CompileWithOptions(source string, opts Options) (*vm.File, error) {
	parser := NewParser(source)
	program, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	compiler := &Compiler{
		opts:    opts,
		mode:    opts.Mode,
		symbols: make(map[string]symbol),
		globals: make(map[string]int),
	}

	return compiler.compile(program)
}

type section uint8

const (
	sectionCode section = iota
	sectionData
)

type symbol struct {
	addr uint32
	kind vm.SymbolKind
	line int
}

// Compiler lays out and encodes a parsed program. The first pass assigns
// addresses to every label so the second pass can resolve forward
// references directly.
type Compiler struct {
	opts      Options
	mode      vm.Mode
	entry     string
	entryLine int
	symbols   map[string]symbol
	globals   map[string]int // name -> line of the .global
	section   section
	codeLen   uint32
	dataLen   uint32
}

func (c *Compiler) compile(program *AsmProgram) (*vm.File, error) {
	if err := c.layout(program); err != nil {
		return nil, err
	}

	b := vm.NewBuilder(c.mode)
	if !c.opts.Strip {
		b.Debug(c.opts.File)
	}
	if c.entry != "" {
		b.Entry(c.entry)
	}

	c.section = sectionCode
	for _, stmt := range program.Statements {
		switch stmt.Kind {
		case StmtLabel:
			sym := c.symbols[stmt.Name]
			b.Symbol(stmt.Name, sym.addr, sym.kind)

		case StmtDirective:
			if err := c.emitDirective(b, stmt); err != nil {
				return nil, err
			}

		case StmtInstruction:
			inst, err := c.compileInstruction(stmt)
			if err != nil {
				return nil, err
			}
			b.Line(uint32(stmt.Line))
			b.Emit(inst)
		}
	}

	return b.Build()
}

// layout is the first pass: it records the mode, entry point and the
// address of every symbol.
func (c *Compiler) layout(program *AsmProgram) error {
	c.section = sectionCode
	for _, stmt := range program.Statements {
		switch stmt.Kind {
		case StmtLabel:
			sym := symbol{addr: c.codeLen, kind: vm.SymLabel, line: stmt.Line}
			if c.section == sectionData {
				sym = symbol{addr: c.dataLen, kind: vm.SymData, line: stmt.Line}
			}
			if err := c.define(stmt.Name, sym); err != nil {
				return err
			}

		case StmtDirective:
			if err := c.layoutDirective(stmt); err != nil {
				return err
			}

		case StmtInstruction:
			op, ok := vm.OpcodeFromString(stmt.Name)
			if !ok {
				return syntaxErr(stmt.Line, "unknown opcode: %s", stmt.Name)
			}
			if c.section != sectionCode {
				return syntaxErr(stmt.Line, "instruction %s outside .code section", stmt.Name)
			}
			c.codeLen += uint32(op.Format().Size())
		}
	}

	for name, line := range c.globals {
		sym, ok := c.symbols[name]
		if !ok {
			return &SyntaxError{Line: line, Msg: fmt.Sprintf("undefined global %q", name), Err: vm.ErrUndefinedSymbol}
		}
		if sym.kind == vm.SymLabel {
			sym.kind = vm.SymFunction
			c.symbols[name] = sym
		}
	}
	if c.entry != "" {
		sym, ok := c.symbols[c.entry]
		if !ok {
			return &SyntaxError{Line: c.entryLine, Msg: fmt.Sprintf("undefined entry %q", c.entry), Err: vm.ErrUndefinedSymbol}
		}
		if sym.kind != vm.SymLabel && sym.kind != vm.SymFunction {
			return syntaxErr(c.entryLine, "entry %q is not a code label", c.entry)
		}
	}
	return nil
}

func (c *Compiler) define(name string, sym symbol) error {
	if prev, ok := c.symbols[name]; ok {
		return syntaxErr(sym.line, "symbol %q already defined on line %d", name, prev.line)
	}
	c.symbols[name] = sym
	return nil
}

func (c *Compiler) layoutDirective(stmt Statement) error {
	switch stmt.Name {
	case ".mode":
		if len(stmt.Operands) != 1 {
			return syntaxErr(stmt.Line, ".mode expects one operand")
		}
		m, err := parseMode(stmt.Operands[0])
		if err != nil {
			return syntaxErr(stmt.Line, "%v", err)
		}
		c.mode = m
		return nil

	case ".global", ".globl":
		if len(stmt.Operands) == 0 {
			return syntaxErr(stmt.Line, "%s expects at least one symbol name", stmt.Name)
		}
		for _, op := range stmt.Operands {
			if op.Type != OperandIdent {
				return syntaxErr(stmt.Line, "%s expects symbol names, found %s", stmt.Name, op.Type)
			}
			c.globals[op.StrVal] = stmt.Line
		}
		return nil

	case ".extern":
		if len(stmt.Operands) < 1 || len(stmt.Operands) > 2 || stmt.Operands[0].Type != OperandIdent {
			return syntaxErr(stmt.Line, ".extern expects a name and an optional transform id")
		}
		var id uint32
		if len(stmt.Operands) == 2 {
			v, err := intOperand(stmt.Operands[1], 0, 0xFFFFFF)
			if err != nil {
				return syntaxErr(stmt.Line, ".extern: %v", err)
			}
			id = uint32(v)
		}
		return c.define(stmt.Operands[0].StrVal, symbol{addr: id, kind: vm.SymTransform, line: stmt.Line})

	case ".entry":
		if len(stmt.Operands) != 1 || stmt.Operands[0].Type != OperandIdent {
			return syntaxErr(stmt.Line, ".entry expects a label")
		}
		c.entry, c.entryLine = stmt.Operands[0].StrVal, stmt.Line
		return nil
	}

	// Everything else occupies space in the current section.
	if err := c.sectionDirective(stmt); err != nil {
		return err
	}
	bytes, err := c.directiveBytes(stmt)
	if err != nil {
		return err
	}
	if c.section == sectionData {
		c.dataLen += uint32(len(bytes))
	} else {
		c.codeLen += uint32(len(bytes))
	}
	return nil
}

// sectionDirective handles .code/.text/.data and rejects data-only
// directives in the code section.
func (c *Compiler) sectionDirective(stmt Statement) error {
	switch stmt.Name {
	case ".code", ".text":
		c.section = sectionCode
	case ".data":
		c.section = sectionData
	case ".state", ".string":
		if c.section != sectionData {
			return syntaxErr(stmt.Line, "%s outside .data section", stmt.Name)
		}
	}
	return nil
}

// directiveBytes returns what a space-occupying directive contributes to
// the current section. Both passes call it so sizes always agree.
func (c *Compiler) directiveBytes(stmt Statement) ([]byte, error) {
	switch stmt.Name {
	case ".code", ".text", ".data":
		if len(stmt.Operands) != 0 {
			return nil, syntaxErr(stmt.Line, "%s takes no operands", stmt.Name)
		}
		return nil, nil

	case ".align":
		n := int64(4)
		if len(stmt.Operands) > 1 {
			return nil, syntaxErr(stmt.Line, ".align expects at most one operand")
		}
		if len(stmt.Operands) == 1 {
			v, err := intOperand(stmt.Operands[0], 1, 1<<16)
			if err != nil {
				return nil, syntaxErr(stmt.Line, ".align: %v", err)
			}
			n = v
		}
		off := int64(c.codeLen)
		if c.section == sectionData {
			off = int64(c.dataLen)
		}
		return make([]byte, (n-off%n)%n), nil

	case ".byte":
		if len(stmt.Operands) == 0 {
			return nil, syntaxErr(stmt.Line, ".byte expects at least one value")
		}
		out := make([]byte, 0, len(stmt.Operands))
		for _, op := range stmt.Operands {
			v, err := intOperand(op, -128, 255)
			if err != nil {
				return nil, syntaxErr(stmt.Line, ".byte: %v", err)
			}
			out = append(out, byte(v))
		}
		return out, nil

	case ".state":
		packed, err := stateOperands(stmt.Operands)
		if err != nil {
			return nil, syntaxErr(stmt.Line, ".state: %v", err)
		}
		return packed[:], nil

	case ".string":
		if len(stmt.Operands) != 1 || stmt.Operands[0].Type != OperandString {
			return nil, syntaxErr(stmt.Line, ".string expects a string literal")
		}
		return append([]byte(stmt.Operands[0].StrVal), 0), nil
	}

	return nil, syntaxErr(stmt.Line, "unknown directive %s", stmt.Name)
}

// emitDirective is the second-pass counterpart of layoutDirective.
func (c *Compiler) emitDirective(b *vm.Builder, stmt Statement) error {
	switch stmt.Name {
	case ".mode", ".global", ".globl", ".entry":
		return nil
	case ".extern":
		name := stmt.Operands[0].StrVal
		b.Symbol(name, c.symbols[name].addr, vm.SymTransform)
		return nil
	}

	if err := c.sectionDirective(stmt); err != nil {
		return err
	}
	c.codeLen, c.dataLen = b.Addr(), b.DataLen()
	bytes, err := c.directiveBytes(stmt)
	if err != nil {
		return err
	}
	if c.section == sectionData {
		b.Data(bytes)
	} else {
		b.Code(bytes)
	}
	return nil
}

func (c *Compiler) compileInstruction(stmt Statement) (vm.Instruction, error) {
	opcode, ok := vm.OpcodeFromString(stmt.Name)
	if !ok {
		return vm.Instruction{}, syntaxErr(stmt.Line, "unknown opcode: %s", stmt.Name)
	}

	inst, err := c.encode(opcode, stmt.Operands)
	if err != nil {
		if se, ok := err.(*SyntaxError); ok {
			se.Line = stmt.Line
			return vm.Instruction{}, se
		}
		return vm.Instruction{}, &SyntaxError{Line: stmt.Line, Msg: fmt.Sprintf("%s: %v", opcode, err), Err: err}
	}
	return inst, nil
}

// operandCounts is the fixed arity of each shape. ShapeImm24 varies.
var operandCounts = map[vm.Shape]int{
	vm.ShapeNone:      0,
	vm.ShapeReg:       1,
	vm.ShapeImm:       1,
	vm.ShapeRegReg:    2,
	vm.ShapeRegImm:    2,
	vm.ShapeRegRegImm: 3,
	vm.ShapeMem:       2,
	vm.ShapeAddr:      1,
	vm.ShapeTarget:    1,
}

func (c *Compiler) encode(op vm.Opcode, ops []Operand) (vm.Instruction, error) {
	shape := op.Shape()
	if n, ok := operandCounts[shape]; ok && len(ops) != n {
		return vm.Instruction{}, fmt.Errorf("expected %d operands, found %d", n, len(ops))
	}

	switch shape {
	case vm.ShapeNone:
		return vm.EncodeA(op), nil

	case vm.ShapeReg:
		ra, err := regOperand(ops[0])
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.EncodeB(op, ra), nil

	case vm.ShapeImm:
		imm, err := imm8Operand(op, ops[0])
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.EncodeB(op, imm), nil

	case vm.ShapeRegReg:
		ra, err := regOperand(ops[0])
		if err != nil {
			return vm.Instruction{}, err
		}
		rb, err := regOperand(ops[1])
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.EncodeC(op, ra, rb, 0), nil

	case vm.ShapeRegImm:
		ra, err := regOperand(ops[0])
		if err != nil {
			return vm.Instruction{}, err
		}
		imm, err := imm8Operand(op, ops[1])
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.EncodeC(op, ra, 0, imm), nil

	case vm.ShapeRegRegImm:
		ra, err := regOperand(ops[0])
		if err != nil {
			return vm.Instruction{}, err
		}
		rb, err := regOperand(ops[1])
		if err != nil {
			return vm.Instruction{}, err
		}
		imm, err := imm8Operand(op, ops[2])
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.EncodeC(op, ra, rb, imm), nil

	case vm.ShapeMem:
		ra, err := regOperand(ops[0])
		if err != nil {
			return vm.Instruction{}, err
		}
		addr, err := c.address(ops[1])
		if err != nil {
			return vm.Instruction{}, err
		}
		if addr&0xFFFFF > 0xFFFF {
			return vm.Instruction{}, fmt.Errorf("offset 0x%05X does not fit in 16 bits", addr&0xFFFFF)
		}
		return vm.EncodeMem(op, ra, uint8(addr>>20), uint16(addr)), nil

	case vm.ShapeAddr:
		addr, err := c.address(ops[0])
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.EncodeD(op, addr), nil

	case vm.ShapeTarget:
		target, err := c.target(ops[0])
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.EncodeD(op, target), nil

	default:
		if op == vm.OpSyscall {
			return c.syscall(ops)
		}
		if len(ops) != 1 {
			return vm.Instruction{}, fmt.Errorf("expected 1 operand, found %d", len(ops))
		}
		v, err := intOperand(ops[0], 0, 0xFFFFFF)
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.EncodeD(op, uint32(v)), nil
	}
}

// syscall encodes SYSCALL id[, arg] where id may be a syscall name and arg
// a data symbol.
func (c *Compiler) syscall(ops []Operand) (vm.Instruction, error) {
	if len(ops) < 1 || len(ops) > 2 {
		return vm.Instruction{}, fmt.Errorf("expected 1 or 2 operands, found %d", len(ops))
	}

	// A lone wide integer is the raw imm24, as printed by the disassembler.
	if len(ops) == 1 && ops[0].Type == OperandInt && ops[0].IntVal > 0xFF {
		v, err := intOperand(ops[0], 0, 0xFFFFFF)
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.EncodeD(vm.OpSyscall, uint32(v)), nil
	}

	var id uint8
	if ops[0].Type == OperandIdent {
		v, ok := vm.SyscallFromString(strings.ToLower(ops[0].StrVal))
		if !ok {
			return vm.Instruction{}, fmt.Errorf("unknown syscall %q", ops[0].StrVal)
		}
		id = v
	} else {
		v, err := intOperand(ops[0], 0, 0xFF)
		if err != nil {
			return vm.Instruction{}, err
		}
		id = uint8(v)
	}

	var arg uint32
	if len(ops) == 2 {
		switch ops[1].Type {
		case OperandIdent:
			sym, err := c.lookup(ops[1].StrVal)
			if err != nil {
				return vm.Instruction{}, err
			}
			if sym.kind != vm.SymData || sym.addr > 0xFFFF {
				return vm.Instruction{}, fmt.Errorf("%q is not a data symbol in the first 64KiB", ops[1].StrVal)
			}
			arg = sym.addr
		default:
			v, err := intOperand(ops[1], 0, 0xFFFF)
			if err != nil {
				return vm.Instruction{}, err
			}
			arg = uint32(v)
		}
	}
	return vm.EncodeD(vm.OpSyscall, uint32(id)|arg<<8), nil
}

func (c *Compiler) lookup(name string) (symbol, error) {
	sym, ok := c.symbols[name]
	if !ok {
		return symbol{}, &SyntaxError{Msg: fmt.Sprintf("undefined symbol %q", name), Err: vm.ErrUndefinedSymbol}
	}
	return sym, nil
}

// address resolves a short-address operand. Data symbols resolve to their
// offset in the code segment, which reads from the data section.
func (c *Compiler) address(op Operand) (uint32, error) {
	if op.Type != OperandIdent {
		v, err := intOperand(op, 0, 0xFFFFFF)
		return uint32(v), err
	}
	sym, err := c.lookup(op.StrVal)
	if err != nil {
		return 0, err
	}
	switch sym.kind {
	case vm.SymData, vm.SymTransform:
		if sym.addr > 0xFFFFF {
			return 0, fmt.Errorf("symbol %q at 0x%X is out of short-address range", op.StrVal, sym.addr)
		}
		return sym.addr, nil
	default:
		return 0, fmt.Errorf("%q is a code label, not a data address", op.StrVal)
	}
}

// target resolves a jump or call destination.
func (c *Compiler) target(op Operand) (uint32, error) {
	if op.Type != OperandIdent {
		v, err := intOperand(op, 0, 0xFFFFFF)
		return uint32(v), err
	}
	sym, err := c.lookup(op.StrVal)
	if err != nil {
		return 0, err
	}
	if sym.kind != vm.SymLabel && sym.kind != vm.SymFunction {
		return 0, fmt.Errorf("%q is not a code label", op.StrVal)
	}
	return sym.addr, nil
}

func regOperand(op Operand) (uint8, error) {
	if op.Type != OperandReg {
		return 0, fmt.Errorf("expected register, found %s", op.Type)
	}
	return op.RegNum, nil
}

// imm8Operand accepts -128..255. Mode-selecting opcodes also take a mode
// name such as SIL-32.
func imm8Operand(opcode vm.Opcode, op Operand) (uint8, error) {
	if opcode.TakesMode() && op.Type == OperandIdent {
		m, err := parseMode(op)
		if err != nil {
			return 0, err
		}
		return uint8(m), nil
	}
	v, err := intOperand(op, -128, 255)
	return uint8(v), err
}

func intOperand(op Operand, lo, hi int64) (int64, error) {
	if op.Type != OperandInt {
		return 0, fmt.Errorf("expected integer, found %s", op.Type)
	}
	if op.IntVal < lo || op.IntVal > hi {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", op.IntVal, lo, hi)
	}
	return op.IntVal, nil
}

func parseMode(op Operand) (vm.Mode, error) {
	switch op.Type {
	case OperandIdent:
		return vm.ParseMode(op.StrVal)
	case OperandInt:
		if op.IntVal < 0 || op.IntVal > 255 {
			return 0, fmt.Errorf("%w: %d", vm.ErrInvalidMode, op.IntVal)
		}
		return vm.ModeFromBits(uint8(op.IntVal))
	default:
		return 0, fmt.Errorf("expected mode, found %s", op.Type)
	}
}

// stateOperands builds a packed state from the .state operands: nothing
// (vacuum), one of vacuum/neutral/maximum, a single wide hex literal
// stored little-endian, or up to sixteen layer bytes. Missing layers are
// Null.
func stateOperands(ops []Operand) ([sil.NumLayers]byte, error) {
	var packed [sil.NumLayers]byte
	if len(ops) == 0 {
		return sil.Vacuum().Bytes(), nil
	}
	if len(ops) == 1 && ops[0].Type == OperandIdent {
		switch strings.ToLower(ops[0].StrVal) {
		case "vacuum":
			return sil.Vacuum().Bytes(), nil
		case "neutral":
			return sil.Neutral().Bytes(), nil
		case "maximum":
			return sil.Maximum().Bytes(), nil
		}
		return packed, fmt.Errorf("unknown state %q", ops[0].StrVal)
	}
	if len(ops) == 1 && ops[0].Type == OperandInt && ops[0].IntVal > 0xFF {
		binary.LittleEndian.PutUint64(packed[:8], uint64(ops[0].IntVal))
		return packed, nil
	}
	if len(ops) > sil.NumLayers {
		return packed, fmt.Errorf("expected at most %d layers, found %d", sil.NumLayers, len(ops))
	}
	for i, op := range ops {
		v, err := intOperand(op, 0, 0xFF)
		if err != nil {
			return packed, err
		}
		packed[i] = byte(v)
	}
	return packed, nil
}
