package vm

import (
	"fmt"
)

// Instruction is a decoded variable-width instruction.
//
// Layout by format:
//
//	A  [op]
//	B  [op][ra | operand8]
//	C  [op][ra | rb<<4][imm8]
//	D  [op][imm24 little-endian]
//
// LOAD and STORE use Format D as [op][reg | seg<<4][off16 little-endian].
type Instruction struct {
	Op  Opcode
	raw [4]byte
}

// Decode decodes the instruction at the start of b.
func Decode(b []byte) (Instruction, error) {
	if len(b) == 0 {
		return Instruction{}, ErrUnexpectedEOF
	}
	f, ok := LookupFormat(b[0])
	if !ok {
		return Instruction{}, fmt.Errorf("%w: 0x%02X", ErrInvalidOpcode, b[0])
	}
	if len(b) < f.Size() {
		return Instruction{}, fmt.Errorf("%w: expected %d bytes, found %d", ErrInstructionTruncated, f.Size(), len(b))
	}
	var inst Instruction
	inst.Op = Opcode(b[0])
	copy(inst.raw[:], b[:f.Size()])
	return inst, nil
}

// EncodeA encodes a Format A instruction.
func EncodeA(op Opcode) Instruction {
	return Instruction{Op: op, raw: [4]byte{byte(op)}}
}

// EncodeB encodes a Format B instruction with a register or 8-bit operand.
func EncodeB(op Opcode, operand uint8) Instruction {
	return Instruction{Op: op, raw: [4]byte{byte(op), operand}}
}

// EncodeC encodes a Format C instruction.
func EncodeC(op Opcode, ra, rb, imm uint8) Instruction {
	return Instruction{Op: op, raw: [4]byte{byte(op), ra&0x0F | rb<<4, imm}}
}

// EncodeD encodes a Format D instruction with a 24-bit immediate.
func EncodeD(op Opcode, imm24 uint32) Instruction {
	return Instruction{Op: op, raw: [4]byte{byte(op), byte(imm24), byte(imm24 >> 8), byte(imm24 >> 16)}}
}

// EncodeMem encodes LOAD/STORE: register, segment selector and 16-bit offset.
func EncodeMem(op Opcode, reg, seg uint8, off uint16) Instruction {
	return Instruction{Op: op, raw: [4]byte{byte(op), reg&0x0F | seg<<4, byte(off), byte(off >> 8)}}
}

// Size returns the encoded width in bytes.
func (i Instruction) Size() int {
	return i.Op.Format().Size()
}

// Bytes returns the encoded form.
func (i Instruction) Bytes() []byte {
	out := make([]byte, i.Size())
	copy(out, i.raw[:])
	return out
}

// RegA returns the low nibble of the first operand byte.
func (i Instruction) RegA() uint8 { return i.raw[1] & 0x0F }

// RegB returns the high nibble of the first operand byte.
func (i Instruction) RegB() uint8 { return i.raw[1] >> 4 }

// Operand8 returns the whole first operand byte.
func (i Instruction) Operand8() uint8 { return i.raw[1] }

// Imm8 returns the second operand byte of a Format C instruction.
func (i Instruction) Imm8() uint8 { return i.raw[2] }

// Imm24 returns the little-endian 24-bit immediate of a Format D instruction.
func (i Instruction) Imm24() uint32 {
	return uint32(i.raw[1]) | uint32(i.raw[2])<<8 | uint32(i.raw[3])<<16
}

// Off16 returns the 16-bit offset of LOAD/STORE.
func (i Instruction) Off16() uint16 {
	return uint16(i.raw[2]) | uint16(i.raw[3])<<8
}

// Addr returns the 32-bit address a Format D operand refers to.
func (i Instruction) Addr() uint32 {
	if i.Op == OpLoad || i.Op == OpStore {
		return uint32(i.RegB())<<28 | uint32(i.Off16())
	}
	return ExpandAddr(i.Imm24())
}

// ExpandAddr widens a 24-bit short address: the top nibble selects the
// segment and the low 20 bits are the offset within it.
func ExpandAddr(imm24 uint32) uint32 {
	return (imm24>>20)&0x0F<<28 | imm24&0x000FFFFF
}

// ShortAddr is the inverse of ExpandAddr. It fails when the offset does not
// fit in 20 bits.
func ShortAddr(addr uint32) (uint32, bool) {
	off := addr & 0x0FFFFFFF
	if off > 0x000FFFFF {
		return 0, false
	}
	return addr>>28<<20 | off, true
}

// Shape describes the assembler operands an opcode takes.
type Shape uint8

const (
	ShapeNone      Shape = iota // no operands
	ShapeReg                    // Ra
	ShapeImm                    // imm8 in the Format B operand byte
	ShapeRegReg                 // Ra, Rb
	ShapeRegImm                 // Ra, imm8
	ShapeRegRegImm              // Ra, Rb, imm8
	ShapeMem                    // Ra, seg:off16
	ShapeAddr                   // short address
	ShapeTarget                 // code address
	ShapeImm24                  // raw 24-bit immediate
)

// Shape returns the operand shape of op.
func (op Opcode) Shape() Shape {
	switch op {
	case OpMovi, OpPow, OpRoot, OpScale, OpRotate, OpDescent,
		OpPromote, OpDemote, OpTruncate, OpXorDem, OpAvgDem, OpMaxDem, OpCompat,
		OpIn, OpOut:
		return ShapeRegImm
	case OpLerp, OpSlerp:
		return ShapeRegRegImm
	case OpSetMode, OpSync:
		return ShapeImm
	case OpLoad, OpStore:
		return ShapeMem
	case OpLState, OpSState, OpTrans, OpPipe, OpPrefetch, OpBroadcast, OpReceive:
		return ShapeAddr
	case OpBatch, OpSyscall:
		return ShapeImm24
	}
	switch op.Format() {
	case FormatB:
		return ShapeReg
	case FormatC:
		return ShapeRegReg
	case FormatD:
		return ShapeTarget
	}
	return ShapeNone
}

// TakesMode reports whether the immediate of op is a mode selector.
func (op Opcode) TakesMode() bool {
	return op == OpSetMode || (op >= OpPromote && op <= OpCompat)
}

// String returns the disassembly of the instruction.
func (i Instruction) String() string {
	name := i.Op.String()
	switch i.Op.Shape() {
	case ShapeNone:
		if !i.Op.Valid() {
			return fmt.Sprintf(".byte 0x%02X", byte(i.Op))
		}
		return name
	case ShapeImm:
		return fmt.Sprintf("%s 0x%02X", name, i.Operand8())
	case ShapeReg:
		return fmt.Sprintf("%s R%X", name, i.RegA())
	case ShapeRegImm:
		return fmt.Sprintf("%s R%X, 0x%02X", name, i.RegA(), i.Imm8())
	case ShapeRegRegImm:
		return fmt.Sprintf("%s R%X, R%X, 0x%02X", name, i.RegA(), i.RegB(), i.Imm8())
	case ShapeRegReg:
		return fmt.Sprintf("%s R%X, R%X", name, i.RegA(), i.RegB())
	case ShapeMem:
		return fmt.Sprintf("%s R%X, 0x%06X", name, i.RegA(), uint32(i.RegB())<<20|uint32(i.Off16()))
	default:
		return fmt.Sprintf("%s 0x%06X", name, i.Imm24())
	}
}

// CodeBuilder assembles instructions into a byte slice.
type CodeBuilder struct {
	buf []byte
}

// NewCodeBuilder creates an empty CodeBuilder.
func NewCodeBuilder() *CodeBuilder {
	return &CodeBuilder{}
}

// Emit appends encoded instructions.
func (b *CodeBuilder) Emit(insts ...Instruction) *CodeBuilder {
	for _, i := range insts {
		b.buf = append(b.buf, i.Bytes()...)
	}
	return b
}

// Len returns the current size in bytes.
func (b *CodeBuilder) Len() int { return len(b.buf) }

// Bytes returns the assembled code.
func (b *CodeBuilder) Bytes() []byte { return b.buf }

func (b *CodeBuilder) Nop() *CodeBuilder                { return b.Emit(EncodeA(OpNop)) }
func (b *CodeBuilder) Hlt() *CodeBuilder                { return b.Emit(EncodeA(OpHlt)) }
func (b *CodeBuilder) Ret() *CodeBuilder                { return b.Emit(EncodeA(OpRet)) }
func (b *CodeBuilder) Yield() *CodeBuilder              { return b.Emit(EncodeA(OpYield)) }
func (b *CodeBuilder) Jmp(addr uint32) *CodeBuilder     { return b.Emit(EncodeD(OpJmp, addr)) }
func (b *CodeBuilder) Jz(addr uint32) *CodeBuilder      { return b.Emit(EncodeD(OpJz, addr)) }
func (b *CodeBuilder) Call(addr uint32) *CodeBuilder    { return b.Emit(EncodeD(OpCall, addr)) }
func (b *CodeBuilder) Loop(addr uint32) *CodeBuilder    { return b.Emit(EncodeD(OpLoop, addr)) }
func (b *CodeBuilder) Mov(ra, rb uint8) *CodeBuilder    { return b.Emit(EncodeC(OpMov, ra, rb, 0)) }
func (b *CodeBuilder) Movi(ra uint8, v int8) *CodeBuilder {
	return b.Emit(EncodeC(OpMovi, ra, 0, uint8(v)))
}
func (b *CodeBuilder) Mul(ra, rb uint8) *CodeBuilder { return b.Emit(EncodeC(OpMul, ra, rb, 0)) }
func (b *CodeBuilder) Div(ra, rb uint8) *CodeBuilder { return b.Emit(EncodeC(OpDiv, ra, rb, 0)) }
func (b *CodeBuilder) Add(ra, rb uint8) *CodeBuilder { return b.Emit(EncodeC(OpAdd, ra, rb, 0)) }
func (b *CodeBuilder) Push(ra uint8) *CodeBuilder    { return b.Emit(EncodeB(OpPush, ra)) }
func (b *CodeBuilder) Pop(ra uint8) *CodeBuilder     { return b.Emit(EncodeB(OpPop, ra)) }
func (b *CodeBuilder) Sense(ra uint8) *CodeBuilder   { return b.Emit(EncodeB(OpSense, ra)) }
func (b *CodeBuilder) Act(ra uint8) *CodeBuilder     { return b.Emit(EncodeB(OpAct, ra)) }
func (b *CodeBuilder) Load(ra, seg uint8, off uint16) *CodeBuilder {
	return b.Emit(EncodeMem(OpLoad, ra, seg, off))
}
func (b *CodeBuilder) Store(ra, seg uint8, off uint16) *CodeBuilder {
	return b.Emit(EncodeMem(OpStore, ra, seg, off))
}
