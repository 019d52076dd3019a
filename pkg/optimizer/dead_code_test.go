package optimizer

import (
	"bytes"
	"testing"

	"github.com/akhildatla/vsp/pkg/vm"
)

func TestDeadCodeElimination_AfterHalt(t *testing.T) {
	f := assemble(t, `
    MOVI R0, 1
    HLT
    MOVI R0, 2
    MOVI R1, 3
later:
    HLT
`)

	out, st := optimize(t, f, WithDeadCodeElimination())

	want := []byte{0x21, 0x00, 0x01, 0x01, 0x01}
	if !bytes.Equal(out.Code, want) {
		t.Errorf("expected % X, got % X", want, out.Code)
	}
	if st.Removed != 2 {
		t.Errorf("expected 2 instructions removed, got %d", st.Removed)
	}
	if sym, _ := out.Lookup("later"); sym.Addr != 4 {
		t.Errorf("expected later at 4, got %d", sym.Addr)
	}
}

func TestDeadCodeElimination_UnlabelledTarget(t *testing.T) {
	// The second HLT is only reachable through the numeric jump target.
	f := &vm.File{
		Mode: vm.Sil128,
		Code: vm.NewCodeBuilder().Jmp(5).Hlt().Hlt().Bytes(),
	}

	out, _ := optimize(t, f, WithDeadCodeElimination())

	want := []byte{0x10, 0x04, 0x00, 0x00, 0x01}
	if !bytes.Equal(out.Code, want) {
		t.Errorf("expected % X, got % X", want, out.Code)
	}
}

func TestDeadCodeElimination_AfterReturnAndJump(t *testing.T) {
	f := assemble(t, `
.entry main
fn:
    RET
    NOP
    RET
main:
    CALL fn
    JMP done
    MOVI R0, 3
done:
    HLT
`)

	out, st := optimize(t, f, WithDeadCodeElimination())
	if st.Removed != 3 {
		t.Errorf("expected 3 instructions removed, got %d", st.Removed)
	}

	want := vm.NewCodeBuilder().Ret().Call(0).Jmp(9).Hlt().Bytes()
	if !bytes.Equal(out.Code, want) {
		t.Errorf("expected % X, got % X", want, out.Code)
	}
	if out.Entry != 1 {
		t.Errorf("expected entry 1, got %d", out.Entry)
	}
}

func TestDeadCodeElimination_KeepsFallthrough(t *testing.T) {
	f := assemble(t, "MOVI R0, 1\nCALL next\nnext: YIELD\nHLT")
	out, st := optimize(t, f, WithDeadCodeElimination())

	if st.Removed != 0 || !bytes.Equal(out.Code, f.Code) {
		t.Errorf("expected nothing removed, got %+v and % X", st, out.Code)
	}
}

func TestDeadCodeElimination_EmptyProgram(t *testing.T) {
	out, st := optimize(t, &vm.File{Mode: vm.Sil128}, WithAllOptimizations())
	if len(out.Code) != 0 || st.Removed != 0 {
		t.Errorf("expected empty result, got % X %+v", out.Code, st)
	}
}

func TestBitmap(t *testing.T) {
	b := newBitmap(70, true)
	if b.count() != 70 {
		t.Fatalf("expected 70 set bits, got %d", b.count())
	}
	b.clear(0)
	b.clear(69)
	b.clear(70) // out of range, ignored
	if b.has(0) || b.has(69) || !b.has(68) {
		t.Error("unexpected bit state after clear")
	}
	if b.count() != 68 {
		t.Errorf("expected 68 set bits, got %d", b.count())
	}
	b.set(69)
	if !b.has(69) || b.has(-1) {
		t.Error("unexpected bit state after set")
	}

	empty := newBitmap(3, false)
	if empty.count() != 0 {
		t.Errorf("expected empty bitmap, got %d", empty.count())
	}
}
