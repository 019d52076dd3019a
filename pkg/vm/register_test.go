package vm

import (
	"errors"
	"testing"

	"github.com/akhildatla/vsp/pkg/sil"
)

func TestModeFromBits(t *testing.T) {
	tests := []struct {
		in   uint8
		want Mode
	}{
		{0, Sil8}, {8, Sil8},
		{1, Sil16}, {16, Sil16},
		{2, Sil32}, {32, Sil32},
		{3, Sil64}, {64, Sil64},
		{4, Sil128}, {128, Sil128},
	}
	for _, tt := range tests {
		got, err := ModeFromBits(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ModeFromBits(%d): expected %s, got %s (%v)", tt.in, tt.want, got, err)
		}
	}
	if _, err := ModeFromBits(5); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestMode_Properties(t *testing.T) {
	if Sil128.Layers() != 16 || Sil8.Layers() != 1 {
		t.Errorf("unexpected layer counts %d, %d", Sil128.Layers(), Sil8.Layers())
	}
	if Sil64.String() != "SIL-64" {
		t.Errorf("expected SIL-64, got %s", Sil64)
	}
	if Sil128.Negotiate(Sil32) != Sil32 || Sil16.Negotiate(Sil64) != Sil16 {
		t.Error("Negotiate should pick the smaller mode")
	}
}

func TestStatus(t *testing.T) {
	var s Status
	s.Set(FlagZero, true)
	s.Set(FlagHalt, true)
	if !s.Has(FlagZero) || s.Has(FlagNegative) {
		t.Errorf("unexpected flags %s", s)
	}
	if s.String() != "Z---H---" {
		t.Errorf("expected Z---H---, got %s", s)
	}
	s.Set(FlagZero, false)
	if s.Has(FlagZero) {
		t.Error("expected zero flag cleared")
	}
}

func TestState_UpdateFlags(t *testing.T) {
	s := NewState(Sil128)
	s.Regs[2] = sil.New(-3, 0)
	s.UpdateFlags(2)
	if s.SR.Has(FlagZero) || !s.SR.Has(FlagNegative) || s.SR.Has(FlagOverflow) {
		t.Errorf("negative value: flags %s", s.SR)
	}

	s.Regs[RegCollapse] = sil.Null
	s.UpdateFlags(RegCollapse)
	if !s.SR.Has(FlagZero) || !s.SR.Has(FlagCollapse) || !s.SR.Has(FlagOverflow) {
		t.Errorf("null RF: flags %s", s.SR)
	}
}

func TestState_Demote(t *testing.T) {
	fill := func() State {
		s := NewState(Sil128)
		for i := range s.Regs {
			s.Regs[i] = sil.New(int8(i%8), uint8(i))
		}
		return s
	}

	tests := []struct {
		name     string
		strategy DemoteStrategy
		want0    sil.ByteSil
	}{
		// Layers 0 and 8 fold into layer 0 at SIL-64.
		{"truncate", DemoteTruncate, sil.New(0, 0)},
		{"xor", DemoteXor, sil.New(0, 0).Xor(sil.New(0, 8))},
		{"average", DemoteAverage, sil.New(0, 4)},
		{"max", DemoteMax, sil.New(0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := fill()
			s.Demote(Sil64, tt.strategy)
			if s.Mode != Sil64 {
				t.Fatalf("expected SIL-64, got %s", s.Mode)
			}
			if s.Regs[0] != tt.want0 {
				t.Errorf("layer 0: expected %v, got %v", tt.want0, s.Regs[0])
			}
			for i := 8; i < NumRegs; i++ {
				if s.Regs[i] != sil.Null {
					t.Errorf("layer %d should be Null after demotion, got %v", i, s.Regs[i])
				}
			}
			if !s.SR.Has(FlagModeChange) {
				t.Error("expected mode change flag")
			}
		})
	}
}

func TestState_PromoteDemoteNoop(t *testing.T) {
	s := NewState(Sil32)
	s.Demote(Sil64, DemoteXor)
	if s.Mode != Sil32 || s.SR.Has(FlagModeChange) {
		t.Error("demoting upwards should do nothing")
	}
	s.Promote(Sil128)
	if s.Mode != Sil128 || !s.SR.Has(FlagModeChange) {
		t.Error("expected promotion to SIL-128")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"SIL-8", Sil8}, {"sil-16", Sil16}, {"SIL32", Sil32}, {"64", Sil64}, {"4", Sil128},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q): expected %s, got %s (%v)", tt.in, tt.want, got, err)
		}
	}
	for _, bad := range []string{"", "SIL-12", "fast", "SIL-"} {
		if _, err := ParseMode(bad); !errors.Is(err, ErrInvalidMode) {
			t.Errorf("ParseMode(%q): expected ErrInvalidMode, got %v", bad, err)
		}
	}
}
