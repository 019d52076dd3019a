package vm

import (
	"fmt"
	"strings"
)

// entryPrefix marks the symbol Entry records until Build resolves it.
const entryPrefix = "__entry_"

// Builder assembles a File incrementally. Labels are recorded at the
// current code address; data symbols at the current data offset.
//
//	b := NewBuilder(Sil128)
//	b.Entry("main").Label("main")
//	b.Emit(EncodeA(OpHlt))
//	f, err := b.Build()
type Builder struct {
	mode    Mode
	code    []byte
	data    []byte
	symbols []Symbol
	debug   *DebugInfo
}

// NewBuilder returns an empty builder for the given mode.
func NewBuilder(mode Mode) *Builder {
	return &Builder{mode: mode}
}

// Mode overrides the program mode.
func (b *Builder) Mode(m Mode) *Builder {
	b.mode = m
	return b
}

// Addr returns the code address the next instruction will occupy.
func (b *Builder) Addr() uint32 { return uint32(len(b.code)) }

// DataLen returns the current size of the data section.
func (b *Builder) DataLen() uint32 { return uint32(len(b.data)) }

// Entry names the symbol execution starts at. The name is resolved by Build.
func (b *Builder) Entry(name string) *Builder {
	return b.Symbol(entryPrefix+name, 0, SymLabel)
}

// Label records a label at the current code address.
func (b *Builder) Label(name string) *Builder {
	return b.Symbol(name, b.Addr(), SymLabel)
}

// Function records a function symbol at the current code address.
func (b *Builder) Function(name string) *Builder {
	return b.Symbol(name, b.Addr(), SymFunction)
}

// Symbol adds an arbitrary symbol.
func (b *Builder) Symbol(name string, addr uint32, kind SymbolKind) *Builder {
	b.symbols = append(b.symbols, Symbol{Name: name, Addr: addr, Kind: kind})
	return b
}

// Code appends raw code bytes.
func (b *Builder) Code(code []byte) *Builder {
	b.code = append(b.code, code...)
	return b
}

// Emit appends an encoded instruction.
func (b *Builder) Emit(insts ...Instruction) *Builder {
	for _, i := range insts {
		b.code = append(b.code, i.Bytes()...)
	}
	return b
}

// Data appends raw bytes to the data section.
func (b *Builder) Data(data []byte) *Builder {
	b.data = append(b.data, data...)
	return b
}

// State appends a packed 16-layer state to the data section under name.
func (b *Builder) State(name string, packed [NumRegs]byte) *Builder {
	b.Symbol(name, b.DataLen(), SymData)
	return b.Data(packed[:])
}

// Debug attaches a source file name and starts recording line entries.
func (b *Builder) Debug(file string) *Builder {
	b.debug = &DebugInfo{File: file}
	return b
}

// Line records that source line begins at the current code address. It is
// a no-op until Debug has been called.
func (b *Builder) Line(line uint32) *Builder {
	if b.debug != nil {
		b.debug.Add(line, b.Addr())
	}
	return b
}

// Build resolves the entry symbol and returns the program. Symbols whose
// names start with "__" are internal and are not emitted.
func (b *Builder) Build() (*File, error) {
	f := &File{
		Mode: b.mode,
		Code: clone(b.code),
		Data: clone(b.data),
	}
	for _, s := range b.symbols {
		if !strings.HasPrefix(s.Name, entryPrefix) {
			continue
		}
		target := strings.TrimPrefix(s.Name, entryPrefix)
		addr, ok := b.lookup(target)
		if !ok {
			return nil, fmt.Errorf("%w: entry %q", ErrUndefinedSymbol, target)
		}
		f.Entry = addr
	}
	for _, s := range b.symbols {
		if !strings.HasPrefix(s.Name, "__") {
			f.Symbols = append(f.Symbols, s)
		}
	}
	if b.debug != nil {
		d := *b.debug
		d.Lines = append([]LineEntry(nil), b.debug.Lines...)
		f.Debug = &d
	}
	return f, nil
}

func (b *Builder) lookup(name string) (uint32, bool) {
	for _, s := range b.symbols {
		if s.Name == name && s.Kind != SymData {
			return s.Addr, true
		}
	}
	return 0, false
}
