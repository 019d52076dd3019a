// Package symbols maps the symbol table and line table of a compiled
// program onto Language Server Protocol structures, so editors can list
// and jump to labels, functions and data in the assembly source.
package symbols

import (
	"fmt"
	"sort"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/akhildatla/vsp/pkg/vm"
)

// Index answers symbol queries for one program.
type Index struct {
	file  *vm.File
	uri   protocol.DocumentURI
	lines []string
}

// New indexes f. path names the source file; when empty the file name
// from the debug info is used. source is optional: with it, symbols are
// placed where their labels are written, without it only code symbols
// covered by debug info get a line.
func New(f *vm.File, path string, source []byte) *Index {
	if path == "" && f.Debug != nil {
		path = f.Debug.File
	}
	x := &Index{file: f}
	if path != "" {
		x.uri = protocol.DocumentURI(uri.File(path))
	}
	if source != nil {
		x.lines = strings.Split(string(source), "\n")
	}
	return x
}

// URI returns the document the index points into.
func (x *Index) URI() protocol.DocumentURI { return x.uri }

// DocumentSymbols returns the outline of the program: functions with the
// labels that follow them as children, then top-level labels, data and
// external transforms, each group ordered by address.
func (x *Index) DocumentSymbols() []protocol.DocumentSymbol {
	syms := append([]vm.Symbol(nil), x.file.Symbols...)
	sort.SliceStable(syms, func(i, j int) bool {
		ri, rj := rank(syms[i].Kind), rank(syms[j].Kind)
		if ri/2 != rj/2 {
			return ri < rj
		}
		if syms[i].Addr != syms[j].Addr {
			return syms[i].Addr < syms[j].Addr
		}
		return ri < rj
	})

	var out []protocol.DocumentSymbol
	fn := -1
	for _, s := range syms {
		ds := x.documentSymbol(s)
		switch {
		case s.Kind == vm.SymFunction:
			out = append(out, ds)
			fn = len(out) - 1
		case s.Kind == vm.SymLabel && fn >= 0:
			out[fn].Children = append(out[fn].Children, ds)
		default:
			out = append(out, ds)
		}
	}
	return out
}

// Definition returns the location of the label or data definition for
// name.
func (x *Index) Definition(name string) (protocol.Location, bool) {
	s, ok := x.file.Lookup(name)
	if !ok {
		return protocol.Location{}, false
	}
	line, col, ok := x.position(s)
	if !ok {
		return protocol.Location{}, false
	}
	return protocol.Location{
		URI:   x.uri,
		Range: span(line, col, len(s.Name)),
	}, true
}

// SymbolAt returns the code symbol covering a 0-based source line: the
// one with the highest address not above the line's address.
func (x *Index) SymbolAt(line uint32) (vm.Symbol, bool) {
	if x.file.Debug == nil {
		return vm.Symbol{}, false
	}
	addr, ok := x.file.Debug.AddressForLine(line + 1)
	if !ok {
		return vm.Symbol{}, false
	}
	var best vm.Symbol
	found := false
	for _, s := range x.file.Symbols {
		if !isCode(s) || s.Addr > addr {
			continue
		}
		if !found || s.Addr > best.Addr || (s.Addr == best.Addr && s.Kind == vm.SymFunction) {
			best, found = s, true
		}
	}
	return best, found
}

func (x *Index) documentSymbol(s vm.Symbol) protocol.DocumentSymbol {
	line, col, _ := x.position(s)
	full := span(line, 0, col+len(s.Name)+1)
	if int(line) < len(x.lines) {
		full.End.Character = uint32(len(x.lines[line]))
	}
	return protocol.DocumentSymbol{
		Name:           s.Name,
		Detail:         detail(s),
		Kind:           kind(s.Kind),
		Range:          full,
		SelectionRange: span(line, col, len(s.Name)),
	}
}

// position finds the 0-based line and column of a symbol's definition.
func (x *Index) position(s vm.Symbol) (uint32, int, bool) {
	if line, col, ok := x.findLabel(s.Name); ok {
		return line, col, true
	}
	if isCode(s) && x.file.Debug != nil {
		for _, e := range x.file.Debug.SortedLines() {
			if e.Addr == s.Addr {
				return e.Line - 1, 0, true
			}
		}
	}
	return 0, 0, false
}

// findLabel looks for "name:" at the start of a source line.
func (x *Index) findLabel(name string) (uint32, int, bool) {
	for i, text := range x.lines {
		trimmed := strings.TrimLeft(text, " \t")
		if strings.HasPrefix(trimmed, name+":") {
			return uint32(i), len(text) - len(trimmed), true
		}
	}
	return 0, 0, false
}

// rank orders symbol groups: code (functions before labels at the same
// address), then data, then transforms. rank/2 is the group.
func rank(k vm.SymbolKind) int {
	switch k {
	case vm.SymFunction:
		return 0
	case vm.SymLabel:
		return 1
	case vm.SymData:
		return 2
	default:
		return 4
	}
}

func isCode(s vm.Symbol) bool {
	return s.Kind == vm.SymLabel || s.Kind == vm.SymFunction
}

func span(line uint32, col, n int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: uint32(col)},
		End:   protocol.Position{Line: line, Character: uint32(col + n)},
	}
}

func kind(k vm.SymbolKind) protocol.SymbolKind {
	switch k {
	case vm.SymFunction:
		return protocol.SymbolKindFunction
	case vm.SymData:
		return protocol.SymbolKindVariable
	case vm.SymTransform:
		return protocol.SymbolKindInterface
	default:
		return protocol.SymbolKindKey
	}
}

func detail(s vm.Symbol) string {
	switch s.Kind {
	case vm.SymData:
		return fmt.Sprintf("data 0x%04X", s.Addr)
	case vm.SymTransform:
		return fmt.Sprintf("extern %d", s.Addr)
	default:
		return fmt.Sprintf("%s 0x%06X", s.Kind, s.Addr)
	}
}
