package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/akhildatla/vsp/pkg/compiler"
	"github.com/akhildatla/vsp/pkg/vm"
)

const source = `.global main
.extern sensor_fft, 3
.data
msg: .string "hi"
table:
    .byte 1, 2
.code
.entry main
helper:
    RET
main:
    MOVI R0, 1
loop:
    LOOP loop
    HLT`

func compile(t *testing.T) *vm.File {
	t.Helper()
	f, err := compiler.CompileWithOptions(source, compiler.Options{File: "prog.sil", Mode: vm.Sil128})
	require.NoError(t, err)
	return f
}

func names(syms []protocol.DocumentSymbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.Name
	}
	return out
}

func TestDocumentSymbols(t *testing.T) {
	x := New(compile(t), "/src/prog.sil", []byte(source))
	syms := x.DocumentSymbols()

	require.Equal(t, []string{"helper", "main", "msg", "table", "sensor_fft"}, names(syms))
	assert.Equal(t, []string{"loop"}, names(syms[1].Children))

	kinds := []protocol.SymbolKind{
		protocol.SymbolKindKey,
		protocol.SymbolKindFunction,
		protocol.SymbolKindVariable,
		protocol.SymbolKindVariable,
		protocol.SymbolKindInterface,
	}
	for i, k := range kinds {
		assert.Equal(t, k, syms[i].Kind, syms[i].Name)
	}

	assert.Equal(t, "function 0x000001", syms[1].Detail)
	assert.Equal(t, "data 0x0003", syms[3].Detail)
	assert.Equal(t, "extern 3", syms[4].Detail)

	msg := syms[2]
	assert.Equal(t, uint32(3), msg.Range.Start.Line)
	assert.Equal(t, uint32(len(`msg: .string "hi"`)), msg.Range.End.Character)
	assert.Equal(t, protocol.Position{Line: 3, Character: 3}, msg.SelectionRange.End)
}

func TestDefinition(t *testing.T) {
	x := New(compile(t), "/src/prog.sil", []byte(source))
	assert.Equal(t, protocol.DocumentURI(uri.File("/src/prog.sil")), x.URI())

	loc, ok := x.Definition("loop")
	require.True(t, ok)
	assert.Equal(t, x.URI(), loc.URI)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 12, Character: 0},
		End:   protocol.Position{Line: 12, Character: 4},
	}, loc.Range)

	_, ok = x.Definition("sensor_fft")
	assert.False(t, ok, "externs have no definition in the source")

	_, ok = x.Definition("nope")
	assert.False(t, ok)
}

func TestDefinition_DebugInfoOnly(t *testing.T) {
	x := New(compile(t), "", nil)

	tests := []struct {
		name string
		line uint32
	}{
		{"helper", 9},
		{"main", 11},
		{"loop", 13},
	}
	for _, tt := range tests {
		loc, ok := x.Definition(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.line, loc.Range.Start.Line, tt.name)
	}

	_, ok := x.Definition("msg")
	assert.False(t, ok, "data symbols need the source")
}

func TestSymbolAt(t *testing.T) {
	x := New(compile(t), "", nil)

	s, ok := x.SymbolAt(13)
	require.True(t, ok)
	assert.Equal(t, "loop", s.Name)

	s, ok = x.SymbolAt(11)
	require.True(t, ok)
	assert.Equal(t, "main", s.Name)

	_, ok = x.SymbolAt(0)
	assert.False(t, ok)

	stripped, err := compiler.CompileWithOptions(source, compiler.Options{Mode: vm.Sil128, Strip: true})
	require.NoError(t, err)
	_, ok = New(stripped, "", nil).SymbolAt(11)
	assert.False(t, ok)
}
