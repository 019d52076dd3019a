package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// SymbolKind tags what a symbol names.
type SymbolKind uint8

const (
	SymLabel SymbolKind = iota
	SymData
	SymTransform
	SymFunction
)

func (k SymbolKind) Valid() bool { return k <= SymFunction }

func (k SymbolKind) String() string {
	switch k {
	case SymLabel:
		return "label"
	case SymData:
		return "data"
	case SymTransform:
		return "transform"
	case SymFunction:
		return "function"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Symbol maps a name to an address. Labels and functions are code
// offsets; data symbols are offsets into the data section.
type Symbol struct {
	Name string
	Addr uint32
	Kind SymbolKind
}

// LineEntry maps a source line to the code address of its first byte.
type LineEntry struct {
	Line uint32
	Addr uint32
}

// DebugInfo is the optional source mapping of a container.
type DebugInfo struct {
	File  string
	Lines []LineEntry
}

// Add records that line starts at addr.
func (d *DebugInfo) Add(line, addr uint32) {
	d.Lines = append(d.Lines, LineEntry{Line: line, Addr: addr})
}

// LineForAddress returns the line whose address is the largest one not
// above addr.
func (d *DebugInfo) LineForAddress(addr uint32) (uint32, bool) {
	var best LineEntry
	found := false
	for _, e := range d.Lines {
		if e.Addr <= addr && (!found || e.Addr >= best.Addr) {
			best, found = e, true
		}
	}
	return best.Line, found
}

// AddressForLine returns the address recorded for exactly line.
func (d *DebugInfo) AddressForLine(line uint32) (uint32, bool) {
	for _, e := range d.Lines {
		if e.Line == line {
			return e.Addr, true
		}
	}
	return 0, false
}

// SortedLines returns the entries ordered by address.
func (d *DebugInfo) SortedLines() []LineEntry {
	out := append([]LineEntry(nil), d.Lines...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// MarshalBinary encodes the debug block.
func (d *DebugInfo) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := writeName(buf, d.File); err != nil {
		return nil, fmt.Errorf("debug file name: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(d.Lines))); err != nil {
		return nil, fmt.Errorf("writing line count: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, d.Lines); err != nil {
		return nil, fmt.Errorf("writing line map: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a debug block, rejecting lengths that run past
// the end of data.
func (d *DebugInfo) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	name, err := readName(r)
	if err != nil {
		return fmt.Errorf("%w: reading debug file name: %v", ErrInvalidBytecode, err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("%w: reading line count: %v", ErrInvalidBytecode, err)
	}
	if uint64(count)*8 != uint64(r.Len()) {
		return badBytecode("line count %d does not match %d remaining bytes", count, r.Len())
	}
	lines := make([]LineEntry, count)
	if err := binary.Read(r, binary.LittleEndian, lines); err != nil && err != io.EOF {
		return fmt.Errorf("%w: reading line map: %v", ErrInvalidBytecode, err)
	}
	d.File = name
	d.Lines = nil
	if count > 0 {
		d.Lines = lines
	}
	return nil
}
