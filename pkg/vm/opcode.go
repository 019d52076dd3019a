package vm

// Opcode represents a VSP instruction opcode.
type Opcode uint8

const (
	// ===== Control (0x00-0x1F) =====
	OpNop   Opcode = 0x00 // no operation
	OpHlt   Opcode = 0x01 // halt
	OpRet   Opcode = 0x02 // pop frame, restore PC/FP
	OpYield Opcode = 0x03 // return control to the driver
	OpJmp   Opcode = 0x10 // PC = addr24
	OpJz    Opcode = 0x11 // jump if zero flag
	OpJn    Opcode = 0x12 // jump if negative flag
	OpJc    Opcode = 0x13 // jump if collapse flag
	OpJo    Opcode = 0x14 // jump if overflow flag
	OpCall  Opcode = 0x15 // push frame, jump
	OpLoop  Opcode = 0x16 // if RC.ρ > -8 { RC.ρ--; jump }

	// ===== Data (0x20-0x3F) =====
	OpMov    Opcode = 0x20 // Ra = Rb
	OpMovi   Opcode = 0x21 // Ra = (imm8, 0)
	OpLoad   Opcode = 0x22 // Ra = mem[seg:off16]
	OpStore  Opcode = 0x23 // mem[seg:off16] = Ra
	OpPush   Opcode = 0x24 // push Ra
	OpPop    Opcode = 0x25 // Ra = pop
	OpXchg   Opcode = 0x26 // swap Ra, Rb
	OpLState Opcode = 0x27 // R0-RF = state at addr24
	OpSState Opcode = 0x28 // state at addr24 = R0-RF

	// ===== Arithmetic (0x40-0x5F) =====
	OpMul    Opcode = 0x40 // Ra = Ra * Rb
	OpDiv    Opcode = 0x41 // Ra = Ra / Rb
	OpPow    Opcode = 0x42 // Ra = Ra ^ imm8
	OpRoot   Opcode = 0x43 // Ra = Ra ^ (1/imm8)
	OpInv    Opcode = 0x44 // Ra = 1 / Ra
	OpConj   Opcode = 0x45 // Ra = conj(Ra)
	OpAdd    Opcode = 0x46 // Ra = Ra + Rb (cartesian)
	OpSub    Opcode = 0x47 // Ra = Ra - Rb (cartesian)
	OpMag    Opcode = 0x48 // Ra = |Ra|
	OpPhase  Opcode = 0x49 // Ra = e^(iθ)
	OpScale  Opcode = 0x4A // Ra.ρ += int8(imm8)
	OpRotate Opcode = 0x4B // Ra.θ += imm8

	// ===== Layer (0x60-0x7F) =====
	OpXorL   Opcode = 0x60 // Ra = Ra XOR Rb (packed)
	OpAndL   Opcode = 0x61 // Ra = Ra AND Rb (packed)
	OpOrL    Opcode = 0x62 // Ra = Ra OR Rb (packed)
	OpNotL   Opcode = 0x63 // Ra = NOT Ra (packed)
	OpShiftL Opcode = 0x64 // R[i+1] = R[i], R0 = Null
	OpRotatL Opcode = 0x65 // rotate register file by one
	OpFold   Opcode = 0x66 // R[i] ^= R[i+8], i < 8
	OpSpread Opcode = 0x67 // copy Ra across its group of 4
	OpGather Opcode = 0x68 // Ra = product of its group of 4

	// ===== Transform (0x80-0x9F) =====
	OpTrans    Opcode = 0x80 // apply transform id at addr24
	OpPipe     Opcode = 0x81 // apply transform pipeline at addr24
	OpLerp     Opcode = 0x82 // Ra = lerp(Ra, Rb, imm8/255)
	OpSlerp    Opcode = 0x83 // Ra = slerp(Ra, Rb, imm8/255)
	OpGrad     Opcode = 0x84 // gradient of register state
	OpDescent  Opcode = 0x85 // Ra.ρ -= lr * grad[a]
	OpEmerge   Opcode = 0x86 // reserved, currently unimplemented
	OpCollapse Opcode = 0x87 // RF = Ra, collapse flag if null

	// ===== Compatibility (0xA0-0xAF) =====
	OpSetMode  Opcode = 0xA0 // mode = operand8
	OpPromote  Opcode = 0xA1 // promote to mode imm8
	OpDemote   Opcode = 0xA2 // demote to mode imm8 (xor)
	OpTruncate Opcode = 0xA3 // demote, truncate
	OpXorDem   Opcode = 0xA4 // demote, xor fold
	OpAvgDem   Opcode = 0xA5 // demote, average
	OpMaxDem   Opcode = 0xA6 // demote, max
	OpCompat   Opcode = 0xA7 // negotiate with mode imm8

	// ===== Quantum (0xB0-0xBF) =====
	OpBitH        Opcode = 0xB0 // Hadamard
	OpBitX        Opcode = 0xB1 // Pauli-X
	OpBitY        Opcode = 0xB2 // Pauli-Y
	OpBitZ        Opcode = 0xB3 // Pauli-Z
	OpBitCollapse Opcode = 0xB4 // measure, zero flag = result 0
	OpBitMeasure  Opcode = 0xB5 // R0 = P(|0⟩)
	OpBitRotQ     Opcode = 0xB6 // Ra.θ += R1.ρ
	OpBitNorm     Opcode = 0xB7 // normalize amplitudes

	// ===== System (0xC0-0xDF) =====
	OpIn        Opcode = 0xC0 // Ra = port[imm8]
	OpOut       Opcode = 0xC1 // port[imm8] = Ra
	OpSense     Opcode = 0xC2 // Ra = sensor[a]
	OpAct       Opcode = 0xC3 // actuator[a] = Ra
	OpSync      Opcode = 0xC4 // reserved, currently unimplemented
	OpBroadcast Opcode = 0xC5 // reserved, currently unimplemented
	OpReceive   Opcode = 0xC6 // reserved, currently unimplemented
	OpEntangle  Opcode = 0xC7 // reserved, currently unimplemented

	// ===== Hint (0xE0-0xFF) =====
	OpHintCPU  Opcode = 0xE0
	OpHintGPU  Opcode = 0xE1
	OpHintNPU  Opcode = 0xE2
	OpHintAny  Opcode = 0xE3
	OpBatch    Opcode = 0xE4 // begin batch of imm24 ops
	OpUnbatch  Opcode = 0xE5
	OpPrefetch Opcode = 0xE6
	OpFence    Opcode = 0xE7
	OpHintFPGA Opcode = 0xE8
	OpHintDSP  Opcode = 0xE9
	OpSyscall  Opcode = 0xFF // id = imm24 & 0xFF, arg = imm24 >> 8
)

// Category groups opcodes by their high three bits.
type Category uint8

const (
	CatControl    Category = 0x00
	CatData       Category = 0x20
	CatArithmetic Category = 0x40
	CatLayer      Category = 0x60
	CatTransform  Category = 0x80
	CatCompat     Category = 0xA0
	CatQuantum    Category = 0xB0 // sub-range of the compatibility block
	CatSystem     Category = 0xC0
	CatHint       Category = 0xE0
)

func (c Category) String() string {
	switch c {
	case CatControl:
		return "control"
	case CatData:
		return "data"
	case CatArithmetic:
		return "arithmetic"
	case CatLayer:
		return "layer"
	case CatTransform:
		return "transform"
	case CatCompat:
		return "compat"
	case CatQuantum:
		return "quantum"
	case CatSystem:
		return "system"
	case CatHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Category returns the opcode's category.
func (op Opcode) Category() Category {
	if op >= 0xB0 && op <= 0xBF {
		return CatQuantum
	}
	return Category(op & 0xE0)
}

// Format is the encoded width class of an instruction.
type Format uint8

const (
	FormatA Format = 1 // opcode only
	FormatB Format = 2 // opcode, register
	FormatC Format = 3 // opcode, registers, imm8
	FormatD Format = 4 // opcode, imm24
)

// Size returns the encoded width in bytes.
func (f Format) Size() int {
	return int(f)
}

func (f Format) String() string {
	switch f {
	case FormatA:
		return "A"
	case FormatB:
		return "B"
	case FormatC:
		return "C"
	case FormatD:
		return "D"
	default:
		return "?"
	}
}

type opInfo struct {
	name   string
	format Format
}

// opTable is the closed opcode catalog. A zero entry means the byte is not
// an opcode.
var opTable = [256]opInfo{
	OpNop:   {"NOP", FormatA},
	OpHlt:   {"HLT", FormatA},
	OpRet:   {"RET", FormatA},
	OpYield: {"YIELD", FormatA},
	OpJmp:   {"JMP", FormatD},
	OpJz:    {"JZ", FormatD},
	OpJn:    {"JN", FormatD},
	OpJc:    {"JC", FormatD},
	OpJo:    {"JO", FormatD},
	OpCall:  {"CALL", FormatD},
	OpLoop:  {"LOOP", FormatD},

	OpMov:    {"MOV", FormatC},
	OpMovi:   {"MOVI", FormatC},
	OpLoad:   {"LOAD", FormatD},
	OpStore:  {"STORE", FormatD},
	OpPush:   {"PUSH", FormatB},
	OpPop:    {"POP", FormatB},
	OpXchg:   {"XCHG", FormatC},
	OpLState: {"LSTATE", FormatD},
	OpSState: {"SSTATE", FormatD},

	OpMul:    {"MUL", FormatC},
	OpDiv:    {"DIV", FormatC},
	OpPow:    {"POW", FormatC},
	OpRoot:   {"ROOT", FormatC},
	OpInv:    {"INV", FormatB},
	OpConj:   {"CONJ", FormatB},
	OpAdd:    {"ADD", FormatC},
	OpSub:    {"SUB", FormatC},
	OpMag:    {"MAG", FormatB},
	OpPhase:  {"PHASE", FormatB},
	OpScale:  {"SCALE", FormatC},
	OpRotate: {"ROTATE", FormatC},

	OpXorL:   {"XORL", FormatC},
	OpAndL:   {"ANDL", FormatC},
	OpOrL:    {"ORL", FormatC},
	OpNotL:   {"NOTL", FormatB},
	OpShiftL: {"SHIFTL", FormatA},
	OpRotatL: {"ROTATL", FormatA},
	OpFold:   {"FOLD", FormatA},
	OpSpread: {"SPREAD", FormatB},
	OpGather: {"GATHER", FormatB},

	OpTrans:    {"TRANS", FormatD},
	OpPipe:     {"PIPE", FormatD},
	OpLerp:     {"LERP", FormatC},
	OpSlerp:    {"SLERP", FormatC},
	OpGrad:     {"GRAD", FormatB},
	OpDescent:  {"DESCENT", FormatC},
	OpEmerge:   {"EMERGE", FormatB},
	OpCollapse: {"COLLAPSE", FormatB},

	OpSetMode:  {"SETMODE", FormatB},
	OpPromote:  {"PROMOTE", FormatC},
	OpDemote:   {"DEMOTE", FormatC},
	OpTruncate: {"TRUNCATE", FormatC},
	OpXorDem:   {"XORDEM", FormatC},
	OpAvgDem:   {"AVGDEM", FormatC},
	OpMaxDem:   {"MAXDEM", FormatC},
	OpCompat:   {"COMPAT", FormatC},

	OpBitH:        {"BIT.H", FormatB},
	OpBitX:        {"BIT.X", FormatB},
	OpBitY:        {"BIT.Y", FormatB},
	OpBitZ:        {"BIT.Z", FormatB},
	OpBitCollapse: {"BIT.COLLAPSE", FormatB},
	OpBitMeasure:  {"BIT.MEASURE", FormatB},
	OpBitRotQ:     {"BIT.ROTQ", FormatB},
	OpBitNorm:     {"BIT.NORM", FormatB},

	OpIn:        {"IN", FormatC},
	OpOut:       {"OUT", FormatC},
	OpSense:     {"SENSE", FormatB},
	OpAct:       {"ACT", FormatB},
	OpSync:      {"SYNC", FormatB},
	OpBroadcast: {"BROADCAST", FormatD},
	OpReceive:   {"RECEIVE", FormatD},
	OpEntangle:  {"ENTANGLE", FormatC},

	OpHintCPU:  {"HINT.CPU", FormatA},
	OpHintGPU:  {"HINT.GPU", FormatA},
	OpHintNPU:  {"HINT.NPU", FormatA},
	OpHintAny:  {"HINT.ANY", FormatA},
	OpBatch:    {"BATCH", FormatD},
	OpUnbatch:  {"UNBATCH", FormatA},
	OpPrefetch: {"PREFETCH", FormatD},
	OpFence:    {"FENCE", FormatA},
	OpHintFPGA: {"HINT.FPGA", FormatA},
	OpHintDSP:  {"HINT.DSP", FormatA},
	OpSyscall:  {"SYSCALL", FormatD},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode)
	for i, info := range opTable {
		if info.format != 0 {
			m[info.name] = Opcode(i)
		}
	}
	return m
}()

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	return opTable[op].format != 0
}

// Format returns the encoding format of op. It is only meaningful for valid
// opcodes; use Valid or LookupFormat for untrusted bytes.
func (op Opcode) Format() Format {
	return opTable[op].format
}

// LookupFormat returns the format for a raw opcode byte.
func LookupFormat(b byte) (Format, bool) {
	f := opTable[b].format
	return f, f != 0
}

// String returns the assembler mnemonic for op.
func (op Opcode) String() string {
	if !op.Valid() {
		return "UNKNOWN"
	}
	return opTable[op].name
}

// OpcodeFromString returns the opcode for the given mnemonic.
func OpcodeFromString(s string) (Opcode, bool) {
	op, ok := opByName[s]
	return op, ok
}

// Opcodes returns every valid opcode in ascending order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, len(opByName))
	for i := range opTable {
		if opTable[i].format != 0 {
			ops = append(ops, Opcode(i))
		}
	}
	return ops
}

// IsJump reports whether op transfers control to its imm24 operand.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJmp, OpJz, OpJn, OpJc, OpJo, OpCall, OpLoop:
		return true
	}
	return false
}

// IsTerminator reports whether execution never falls through op.
func (op Opcode) IsTerminator() bool {
	return op == OpHlt || op == OpRet || op == OpJmp
}
