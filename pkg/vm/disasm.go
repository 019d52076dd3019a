package vm

import (
	"bytes"
	"fmt"
)

// Disassemble renders a program as an annotated listing. Bytes that do not
// decode are shown as .byte directives and the walk continues after them.
func Disassemble(f *File) string {
	var buf bytes.Buffer

	buf.WriteString("; Disassembled from .silc bytecode\n")
	buf.WriteString(fmt.Sprintf("; mode %s, entry 0x%06X, %d code bytes, %d data bytes, %d symbols\n\n",
		f.Mode, f.Entry, len(f.Code), len(f.Data), len(f.Symbols)))

	for pc := 0; pc < len(f.Code); {
		if s, ok := f.SymbolAt(uint32(pc), SymFunction); ok {
			buf.WriteString(s.Name + ":\n")
		} else if s, ok := f.SymbolAt(uint32(pc), SymLabel); ok {
			buf.WriteString(s.Name + ":\n")
		}

		inst, err := Decode(f.Code[pc:])
		if err != nil {
			buf.WriteString(fmt.Sprintf("  %06X: .byte 0x%02X\n", pc, f.Code[pc]))
			pc++
			continue
		}
		buf.WriteString(fmt.Sprintf("  %06X: %s%s\n", pc, inst, annotate(f, inst)))
		pc += inst.Size()
	}

	for _, s := range f.Symbols {
		if s.Kind == SymData {
			buf.WriteString(fmt.Sprintf("; data %s @ 0x%04X\n", s.Name, s.Addr))
		}
	}
	return buf.String()
}

func annotate(f *File, inst Instruction) string {
	switch inst.Op {
	case OpJmp, OpJz, OpJn, OpJc, OpJo, OpCall, OpLoop:
		target := inst.Imm24()
		for _, kind := range []SymbolKind{SymFunction, SymLabel} {
			if s, ok := f.SymbolAt(target, kind); ok {
				return "  ; " + s.Name
			}
		}
	}
	return ""
}
