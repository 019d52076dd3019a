package optimizer

import (
	"github.com/akhildatla/vsp/pkg/vm"
)

// WithConstantFolding merges adjacent immediate updates of one register.
func WithConstantFolding() Option {
	return func(o *Optimizer) {
		o.enableConstantFolding = true
	}
}

// constantFolding merges runs of immediate updates to the same register.
// For example:
//
//	ROTATE R0, 3
//	ROTATE R0, 5
//
// Becomes:
//
//	ROTATE R0, 8
//
// Rotations compose modulo 16 and a pair that cancels out is dropped
// entirely, since ROTATE leaves the flags alone. SCALE saturates, so only
// deltas of the same sign are merged. The second instruction of a pair
// must not be an anchor.
func (o *Optimizer) constantFolding(p *program) (removed, folded int) {
	prev := -1
	for i, it := range p.items {
		if !p.live.has(i) {
			continue
		}
		if prev < 0 || p.anchors[it.addr] {
			prev = i
			continue
		}

		a, b := p.items[prev].inst, it.inst
		merged, keep, ok := fold(a, b)
		if !ok {
			prev = i
			continue
		}

		folded++
		p.live.clear(i)
		removed++
		if keep {
			p.items[prev].inst = merged
			continue
		}
		p.live.clear(prev)
		removed++
		prev = -1
	}
	return removed, folded
}

// fold merges b into a. keep is false when the pair is a no-op.
func fold(a, b vm.Instruction) (merged vm.Instruction, keep, ok bool) {
	if a.Op != b.Op || a.RegA() != b.RegA() {
		return vm.Instruction{}, false, false
	}

	switch a.Op {
	case vm.OpRotate:
		sum := (a.Imm8() + b.Imm8()) & 0x0F
		if sum == 0 {
			return vm.Instruction{}, false, true
		}
		return vm.EncodeC(vm.OpRotate, a.RegA(), 0, sum), true, true

	case vm.OpScale:
		x, y := int(int8(a.Imm8())), int(int8(b.Imm8()))
		if (x < 0) != (y < 0) {
			return vm.Instruction{}, false, false
		}
		sum := max(min(x+y, 127), -128)
		return vm.EncodeC(vm.OpScale, a.RegA(), 0, uint8(int8(sum))), true, true
	}
	return vm.Instruction{}, false, false
}
