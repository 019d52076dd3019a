package optimizer

import (
	"fmt"

	"github.com/akhildatla/vsp/pkg/vm"
)

// Optimizer applies peephole passes to an assembled program. Every pass
// only removes or rewrites whole instructions; branch targets, code
// symbols, the entry point and debug lines are relocated afterwards.
type Optimizer struct {
	enableNopRemoval      bool
	enableDeadCode        bool
	enableConstantFolding bool
}

// Option is a functional option for the Optimizer.
type Option func(*Optimizer)

// WithNopRemoval drops NOP instructions.
func WithNopRemoval() Option {
	return func(o *Optimizer) {
		o.enableNopRemoval = true
	}
}

// WithAllOptimizations enables all optimizations.
func WithAllOptimizations() Option {
	return func(o *Optimizer) {
		o.enableNopRemoval = true
		o.enableDeadCode = true
		o.enableConstantFolding = true
	}
}

// New creates a new Optimizer with the given options.
func New(opts ...Option) *Optimizer {
	opt := &Optimizer{}
	for _, o := range opts {
		o(opt)
	}
	return opt
}

// Stats summarises one Optimize call.
type Stats struct {
	Removed     int // instructions dropped
	Folded      int // instruction pairs merged
	BytesBefore int
	BytesAfter  int
}

// Optimize returns an optimized copy of f. The input is not modified.
// Code that does not decode cleanly (raw .byte runs) is rejected.
func (o *Optimizer) Optimize(f *vm.File) (*vm.File, Stats, error) {
	p, err := decode(f)
	if err != nil {
		return nil, Stats{}, err
	}

	var st Stats
	if o.enableNopRemoval {
		st.Removed += o.nopRemoval(p)
	}
	if o.enableDeadCode {
		st.Removed += o.deadCodeElimination(p)
	}
	if o.enableConstantFolding {
		removed, folded := o.constantFolding(p)
		st.Removed += removed
		st.Folded += folded
	}

	out := p.relocate(f)
	st.BytesBefore, st.BytesAfter = len(f.Code), len(out.Code)
	return out, st, nil
}

// item is one decoded instruction and its original address.
type item struct {
	addr uint32
	inst vm.Instruction
}

// program is the decoded form the passes work on.
type program struct {
	items []item
	live  *bitmap
	// anchors are addresses control can reach other than by falling
	// through: the entry point, code symbols and jump targets.
	anchors map[uint32]bool
	size    uint32
}

func decode(f *vm.File) (*program, error) {
	p := &program{
		anchors: map[uint32]bool{f.Entry: true},
		size:    uint32(len(f.Code)),
	}
	for pc := 0; pc < len(f.Code); {
		inst, err := vm.Decode(f.Code[pc:])
		if err != nil {
			return nil, fmt.Errorf("optimizer: decode at 0x%06X: %w", pc, err)
		}
		p.items = append(p.items, item{addr: uint32(pc), inst: inst})
		if inst.Op.Shape() == vm.ShapeTarget {
			p.anchors[inst.Imm24()] = true
		}
		pc += inst.Size()
	}
	for _, s := range f.Symbols {
		if isCodeSymbol(s) {
			p.anchors[s.Addr] = true
		}
	}
	p.live = newBitmap(len(p.items), true)
	return p, nil
}

func isCodeSymbol(s vm.Symbol) bool {
	return s.Kind == vm.SymLabel || s.Kind == vm.SymFunction
}

// nopRemoval drops every NOP.
func (o *Optimizer) nopRemoval(p *program) int {
	removed := 0
	for i, it := range p.items {
		if it.inst.Op == vm.OpNop && p.live.has(i) {
			p.live.clear(i)
			removed++
		}
	}
	return removed
}

// relocate re-encodes the surviving instructions and maps every code
// address onto the new layout. A removed instruction's address maps to
// the next surviving instruction.
func (p *program) relocate(f *vm.File) *vm.File {
	newAddr := make([]uint32, p.size+1)
	starts := make(map[uint32]bool, len(p.items))
	var pc uint32
	for i, it := range p.items {
		for a := it.addr; a < it.addr+uint32(it.inst.Size()); a++ {
			newAddr[a] = pc
		}
		if p.live.has(i) {
			starts[it.addr] = true
			pc += uint32(it.inst.Size())
		}
	}
	newAddr[p.size] = pc

	mapAddr := func(a uint32) uint32 {
		if a <= p.size {
			return newAddr[a]
		}
		return a - p.size + pc
	}

	out := &vm.File{
		Mode:  f.Mode,
		Entry: mapAddr(f.Entry),
		Data:  append([]byte(nil), f.Data...),
	}
	for i, it := range p.items {
		if !p.live.has(i) {
			continue
		}
		inst := it.inst
		if inst.Op.Shape() == vm.ShapeTarget {
			inst = vm.EncodeD(inst.Op, mapAddr(inst.Imm24()))
		}
		out.Code = append(out.Code, inst.Bytes()...)
	}

	for _, s := range f.Symbols {
		if isCodeSymbol(s) {
			s.Addr = mapAddr(s.Addr)
		}
		out.Symbols = append(out.Symbols, s)
	}

	if f.Debug != nil {
		d := &vm.DebugInfo{File: f.Debug.File}
		for _, l := range f.Debug.Lines {
			if starts[l.Addr] {
				d.Add(l.Line, newAddr[l.Addr])
			}
		}
		out.Debug = d
	}
	return out
}
