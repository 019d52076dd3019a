package optimizer

// WithDeadCodeElimination enables dead code elimination.
func WithDeadCodeElimination() Option {
	return func(o *Optimizer) {
		o.enableDeadCode = true
	}
}

// deadCodeElimination removes instructions that follow HLT, RET or JMP
// and precede the next anchor. Such a run is never entered: it is not an
// anchor and the instruction before it never falls through.
func (o *Optimizer) deadCodeElimination(p *program) int {
	removed := 0
	dead := false
	for i, it := range p.items {
		if p.anchors[it.addr] {
			dead = false
		}
		if !p.live.has(i) {
			continue
		}
		if dead {
			p.live.clear(i)
			removed++
			continue
		}
		if it.inst.Op.IsTerminator() {
			dead = true
		}
	}
	return removed
}
