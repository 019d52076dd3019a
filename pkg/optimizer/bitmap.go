package optimizer

import (
	"math/bits"
)

// bitmap is a fixed-length bit vector with one bit per decoded
// instruction. A set bit means the instruction survives optimization.
type bitmap struct {
	words  []uint64
	length int
}

// newBitmap creates a bitmap of length bits, all set when full is true.
func newBitmap(length int, full bool) *bitmap {
	b := &bitmap{words: make([]uint64, (length+63)/64), length: length}
	if full {
		for i := range b.words {
			b.words[i] = ^uint64(0)
		}
		// Bits past length stay clear so count never sees them.
		if r := length % 64; r != 0 {
			b.words[len(b.words)-1] = uint64(1)<<r - 1
		}
	}
	return b
}

func (b *bitmap) set(i int) {
	if i >= 0 && i < b.length {
		b.words[i/64] |= 1 << (i % 64)
	}
}

func (b *bitmap) clear(i int) {
	if i >= 0 && i < b.length {
		b.words[i/64] &^= 1 << (i % 64)
	}
}

func (b *bitmap) has(i int) bool {
	return i >= 0 && i < b.length && b.words[i/64]&(1<<(i%64)) != 0
}

// count returns the number of set bits.
func (b *bitmap) count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}
