package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/akhildatla/vsp/pkg/sil"
)

// NumRegs is the number of ByteSil registers (R0-RF).
const NumRegs = 16

// Register aliases used by fixed-register instructions.
const (
	RegLoop     = 0xC // LOOP counter
	RegCollapse = 0xF // COLLAPSE target
)

// Mode is the numeric-precision mode of the register file.
type Mode uint8

const (
	Sil8   Mode = 0 // 1 layer
	Sil16  Mode = 1 // 2 layers
	Sil32  Mode = 2 // 4 layers
	Sil64  Mode = 3 // 8 layers
	Sil128 Mode = 4 // 16 layers
)

// ModeFromBits accepts either an enum index (0-4) or a bit count
// (8, 16, 32, 64, 128).
func ModeFromBits(b uint8) (Mode, error) {
	switch b {
	case 0, 8:
		return Sil8, nil
	case 1, 16:
		return Sil16, nil
	case 2, 32:
		return Sil32, nil
	case 3, 64:
		return Sil64, nil
	case 4, 128:
		return Sil128, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidMode, b)
	}
}

// ParseMode parses "SIL-64", "sil64" or a value accepted by ModeFromBits.
func ParseMode(s string) (Mode, error) {
	t := strings.TrimPrefix(strings.ReplaceAll(strings.ToUpper(s), "-", ""), "SIL")
	n, err := strconv.ParseUint(t, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return ModeFromBits(uint8(n))
}

// Layers returns the number of active layers.
func (m Mode) Layers() int { return 1 << m }

// Bits returns the mode width in bits.
func (m Mode) Bits() int { return 8 << m }

// Negotiate returns the smaller of two modes.
func (m Mode) Negotiate(o Mode) Mode {
	if m <= o {
		return m
	}
	return o
}

func (m Mode) String() string {
	return fmt.Sprintf("SIL-%d", m.Bits())
}

// Status flag bits.
const (
	FlagZero       uint8 = 1 << 0 // result is Null
	FlagNegative   uint8 = 1 << 1 // ρ < 0
	FlagOverflow   uint8 = 1 << 2 // ρ saturated
	FlagCollapse   uint8 = 1 << 3 // RF collapsed
	FlagHalt       uint8 = 1 << 4
	FlagInterrupt  uint8 = 1 << 5
	FlagError      uint8 = 1 << 6
	FlagModeChange uint8 = 1 << 7
)

// Status is the status register.
type Status uint8

// Has reports whether flag is set.
func (s Status) Has(flag uint8) bool { return uint8(s)&flag != 0 }

// Set sets or clears flag.
func (s *Status) Set(flag uint8, on bool) {
	if on {
		*s |= Status(flag)
	} else {
		*s &^= Status(flag)
	}
}

func (s Status) String() string {
	names := [...]string{"Z", "N", "O", "C", "H", "I", "E", "M"}
	out := make([]byte, 0, 8)
	for i, n := range names {
		if uint8(s)&(1<<i) != 0 {
			out = append(out, n...)
		} else {
			out = append(out, '-')
		}
	}
	return string(out)
}

// DemoteStrategy selects how upper layers are folded into lower ones.
type DemoteStrategy uint8

const (
	DemoteTruncate DemoteStrategy = iota
	DemoteXor
	DemoteAverage
	DemoteMax
)

// State is the architectural register state of one VM.
type State struct {
	Regs     [NumRegs]sil.ByteSil
	PC       uint32
	SP       uint32
	FP       uint32
	SR       Status
	Mode     Mode
	Gradient *[NumRegs]float32
}

// NewState returns a register state with every register Null.
func NewState(mode Mode) State {
	return State{Regs: sil.Vacuum(), Mode: mode}
}

// Reset nulls every register and clears PC, SP, FP and flags.
func (s *State) Reset() {
	*s = NewState(s.Mode)
}

// SilState returns the register file as a State value.
func (s *State) SilState() sil.State {
	return sil.State(s.Regs)
}

// SetSilState loads the register file from a State value.
func (s *State) SetSilState(v sil.State) {
	s.Regs = v
}

// UpdateFlags recomputes Z, N and O from register ra. A Null RF also sets
// the collapse flag.
func (s *State) UpdateFlags(ra uint8) {
	r := s.Regs[ra&0x0F]
	s.SR.Set(FlagZero, r.IsNull())
	s.SR.Set(FlagNegative, r.Rho < 0)
	s.SR.Set(FlagOverflow, r.Rho == sil.RhoMax || r.Rho == sil.RhoMin)
	if ra&0x0F == RegCollapse && r.IsNull() {
		s.SR.Set(FlagCollapse, true)
	}
}

// Promote raises the mode. New layers are already Null.
func (s *State) Promote(target Mode) {
	if target <= s.Mode {
		return
	}
	s.Mode = target
	s.SR.Set(FlagModeChange, true)
}

// Demote lowers the mode, folding layers above the target width into the
// lower ones with the given strategy and nulling the rest.
func (s *State) Demote(target Mode, strategy DemoteStrategy) {
	if target >= s.Mode {
		return
	}
	tl, cl := target.Layers(), s.Mode.Layers()
	fold := cl / tl
	for i := 0; i < tl; i++ {
		switch strategy {
		case DemoteXor:
			acc := s.Regs[i]
			for f := 1; f < fold; f++ {
				acc = acc.Xor(s.Regs[i+f*tl])
			}
			s.Regs[i] = acc
		case DemoteAverage:
			rho, theta := int(s.Regs[i].Rho), int(s.Regs[i].Theta)
			for f := 1; f < fold; f++ {
				rho += int(s.Regs[i+f*tl].Rho)
				theta += int(s.Regs[i+f*tl].Theta)
			}
			s.Regs[i] = sil.New(int8(rho/fold), uint8((theta/fold)%16))
		case DemoteMax:
			best := s.Regs[i]
			for f := 1; f < fold; f++ {
				if r := s.Regs[i+f*tl]; r.Rho > best.Rho {
					best = r
				}
			}
			s.Regs[i] = best
		}
	}
	for i := tl; i < NumRegs; i++ {
		s.Regs[i] = sil.Null
	}
	s.Mode = target
	s.SR.Set(FlagModeChange, true)
}
