package repl

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akhildatla/vsp/pkg/vm"
)

func newREPL() *REPL {
	return New(vm.DefaultConfig())
}

// exec feeds lines to r and returns everything written.
func exec(r *REPL, lines ...string) string {
	var out bytes.Buffer
	for _, l := range lines {
		r.Exec(l, &out)
	}
	return out.String()
}

func TestREPL_Help(t *testing.T) {
	r := newREPL()
	for _, cmd := range []string{"help", "h", "?", ":help", ":?"} {
		out := exec(r, cmd)
		if !strings.Contains(out, "Commands:") || !strings.Contains(out, ":step [count]") {
			t.Errorf("%s: expected help text, got: %s", cmd, out)
		}
	}
}

func TestREPL_Quit(t *testing.T) {
	for _, cmd := range []string{"quit", "exit", "q", ":q"} {
		r := newREPL()
		var out bytes.Buffer
		if r.Exec(cmd, &out) {
			t.Errorf("%s: expected Exec to report quit", cmd)
		}
		if !strings.Contains(out.String(), "Goodbye") {
			t.Errorf("%s: expected goodbye message, got: %s", cmd, out.String())
		}
	}
}

func TestREPL_AssembleAndRun(t *testing.T) {
	r := newREPL()
	out := exec(r, "MOVI R0, 2", "MOVI R1, 3", "MUL R0, R1", "SYSCALL print_int", "HLT", ":run")

	if !strings.Contains(out, "5halted after 5 cycles") {
		t.Errorf("expected program output and halt message, got: %q", out)
	}
	if got := r.VM().Registers()[0]; got.Rho != 5 {
		t.Errorf("expected R0.rho = 5, got %v", got)
	}

	out = exec(r, ":eval R0.rho", ":eval R1", ":eval R1.theta")
	for _, want := range []string{"R0.rho = 5 (0x5)", "R1 = 176 (0xB0)", "R1.theta = 0 (0x0)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestREPL_BadLineIsDropped(t *testing.T) {
	r := newREPL()
	out := exec(r, "MOVI R0, 1", "BOGUS R0", "MOVI R0, 300", "HLT")

	if strings.Count(out, "Error:") != 2 {
		t.Errorf("expected two errors, got: %s", out)
	}
	if got := r.Source(); got != "MOVI R0, 1\nHLT" {
		t.Errorf("unexpected buffer %q", got)
	}
	if !strings.Contains(exec(r, ":src"), "   2  HLT") {
		t.Error("expected :src to list the buffer")
	}
}

func TestREPL_Breakpoints(t *testing.T) {
	r := newREPL()
	exec(r, "MOVI R0, 1", "target: MOVI R1, 2", "HLT")

	out := exec(r, ":bp target", ":run")
	if !strings.Contains(out, "breakpoint set at 0x000003") {
		t.Errorf("expected breakpoint to be set, got: %s", out)
	}
	if !strings.Contains(out, "breakpoint at 0x000003") {
		t.Errorf("expected run to stop at breakpoint, got: %s", out)
	}
	if !r.VM().Registers()[1].IsNull() {
		t.Error("expected R1 untouched at the breakpoint")
	}

	out = exec(r, ":run", ":list")
	if !strings.Contains(out, "halted") || !strings.Contains(out, "0x000003 hits=1") {
		t.Errorf("expected halt and one hit, got: %s", out)
	}

	out = exec(r, ":del 3", ":list", ":del 3", ":bp nowhere")
	if !strings.Contains(out, "No breakpoints set") {
		t.Errorf("expected breakpoint list to be empty, got: %s", out)
	}
	if !strings.Contains(out, "no breakpoint at 0x000003") || !strings.Contains(out, "undefined symbol") {
		t.Errorf("expected delete and lookup errors, got: %s", out)
	}
}

func TestREPL_StepAndReset(t *testing.T) {
	r := newREPL()
	exec(r, "MOVI R0, 1", "MOVI R1, 2", "HLT")

	out := exec(r, ":step 2")
	if !strings.Contains(out, "stepped 2 instruction(s), pc 0x000006") {
		t.Errorf("unexpected step output: %s", out)
	}
	if out := exec(r, ":step", ":step"); !strings.Contains(out, "halted") || !strings.Contains(out, "Error:") {
		t.Errorf("expected halt then an error, got: %s", out)
	}

	out = exec(r, ":reset", ":step x")
	if !strings.Contains(out, "VM reset") || !strings.Contains(out, "usage: :step [count]") {
		t.Errorf("unexpected output: %s", out)
	}
	if r.VM().State().PC != 0 {
		t.Errorf("expected PC 0 after reset, got %d", r.VM().State().PC)
	}
}

func TestREPL_NoProgram(t *testing.T) {
	out := exec(newREPL(), ":run", ":dis")
	if strings.Count(out, "no program loaded") != 2 {
		t.Errorf("expected two no-program errors, got: %s", out)
	}
}

func TestREPL_Disassemble(t *testing.T) {
	r := newREPL()
	exec(r, "MOVI R0, 1", "HLT", ":bp 3")

	out := exec(r, ":dis")
	if !strings.Contains(out, "=> 000000: MOVI R0, 0x01") {
		t.Errorf("expected current instruction marker, got: %s", out)
	}
	if !strings.Contains(out, "*  000003: HLT") {
		t.Errorf("expected breakpoint marker, got: %s", out)
	}
}

func TestREPL_Memory(t *testing.T) {
	r := newREPL()
	exec(r, ".data", `msg: .string "hi"`, ".code", "HLT")

	out := exec(r, ":mem 0 2")
	if !strings.Contains(out, "00000000: 68 69") || !strings.Contains(out, "|hi|") {
		t.Errorf("unexpected dump: %s", out)
	}
	if out := exec(r, ":mem 0 40"); !strings.Contains(out, "Error:") {
		t.Errorf("expected an error past the data section, got: %s", out)
	}
}

func TestREPL_Mode(t *testing.T) {
	r := newREPL()
	exec(r, "MOVI R0, 1")

	out := exec(r, ":mode 64", ":mode")
	if !strings.Contains(out, "mode set to SIL-64") || !strings.Contains(out, "Current mode: SIL-64") {
		t.Errorf("unexpected output: %s", out)
	}
	if r.VM().Mode() != vm.Sil64 {
		t.Errorf("expected SIL-64 VM, got %s", r.VM().Mode())
	}
	if out := exec(r, ":mode 12"); !strings.Contains(out, "Error:") {
		t.Errorf("expected invalid mode error, got: %s", out)
	}
}

func TestREPL_Variables(t *testing.T) {
	r := newREPL()
	tests := []struct {
		input string
		want  string
	}{
		{":set x 0x10", "x = 16"},
		{":eval $x * 2 + 1", "$x * 2 + 1 = 33 (0x21)"},
		{":eval 10 - 4 / 3", "10 - 4 / 3 = 2 (0x2)"},
		{":eval 1 / 0", "division by zero"},
		{":eval $y", "unknown variable $y"},
		{":eval 1 +", "incomplete expression"},
		{":eval 1 % 2", "unknown operator"},
		{":set x", "usage: :set"},
	}
	for _, tt := range tests {
		if out := exec(r, tt.input); !strings.Contains(out, tt.want) {
			t.Errorf("%s: expected %q, got %q", tt.input, tt.want, out)
		}
	}
}

func TestREPL_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.sil")
	bin := filepath.Join(dir, "prog.silc")

	r := newREPL()
	out := exec(r, "MOVI R0, 3", "HLT", ":save "+src, ":save "+bin)
	if strings.Contains(out, "Error:") {
		t.Fatalf("save failed: %s", out)
	}

	loaded := newREPL()
	out = exec(loaded, ":load "+src, ":run")
	if !strings.Contains(out, "assembled and loaded") || loaded.Source() != r.Source() {
		t.Errorf("expected source load, got %q with buffer %q", out, loaded.Source())
	}
	if loaded.VM().Registers()[0].Rho != 3 {
		t.Error("expected loaded program to run")
	}

	binary := newREPL()
	out = exec(binary, ":load "+bin, ":run")
	if !strings.Contains(out, "loaded 4 code bytes") || binary.VM().Registers()[0].Rho != 3 {
		t.Errorf("expected container load and run, got: %s", out)
	}

	if out := exec(newREPL(), ":load "+filepath.Join(dir, "missing.sil"), ":save"); strings.Count(out, "Error:") != 2 {
		t.Errorf("expected two errors, got: %s", out)
	}
}

func TestREPL_UnknownCommand(t *testing.T) {
	if out := exec(newREPL(), ":frobnicate"); !strings.Contains(out, `unknown command "frobnicate"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestREPL_History(t *testing.T) {
	r := newREPL()
	out := exec(r, "NOP", "  ", "; comment", ":verbose", ":history")
	if !strings.Contains(out, "  1: NOP") || !strings.Contains(out, "  2: :verbose") {
		t.Errorf("unexpected history: %s", out)
	}
	if !strings.Contains(out, "Verbose: true") {
		t.Errorf("expected verbose toggle, got: %s", out)
	}
}

func TestREPL_Run(t *testing.T) {
	input := "MOVI R0, 1\nHLT\n:run\n:quit\nMOVI R0, 9\n"
	var out bytes.Buffer

	r := newREPL()
	if err := r.Run(NewLinePrompter(strings.NewReader(input), &out), &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out.String(), banner) || !strings.Contains(out.String(), promptASM) {
		t.Errorf("expected banner and prompt, got: %s", out.String())
	}
	if strings.Contains(r.Source(), "MOVI R0, 9") {
		t.Error("expected input after :quit to be ignored")
	}

	// EOF ends the loop as well.
	if err := newREPL().Run(NewLinePrompter(strings.NewReader("NOP"), &out), &out); err != nil {
		t.Errorf("Run failed at EOF: %v", err)
	}
}

func TestComplete(t *testing.T) {
	got := complete(":he")
	if len(got) != 1 || got[0] != ":help" {
		t.Errorf("expected [:help], got %v", got)
	}

	mov := complete("mov")
	found := map[string]bool{}
	for _, m := range mov {
		found[m] = true
	}
	if !found["MOV"] || !found["MOVI"] {
		t.Errorf("expected MOV and MOVI, got %v", mov)
	}
	if complete("MOVI R0") != nil {
		t.Error("expected no completion after the mnemonic")
	}
}

func TestRegisterRef(t *testing.T) {
	tests := []struct {
		input string
		reg   int
		field string
		ok    bool
	}{
		{"R0", 0, "", true},
		{"rf", 15, "", true},
		{"R12", 12, "", true},
		{"R3.rho", 3, "rho", true},
		{"RA.THETA", 10, "theta", true},
		{"R16", 0, "", false},
		{"RG", 0, "", false},
		{"x", 0, "", false},
	}
	for _, tt := range tests {
		reg, field, ok := registerRef(tt.input)
		if ok != tt.ok || (ok && (reg != tt.reg || field != tt.field)) {
			t.Errorf("registerRef(%q) = %d %q %v", tt.input, reg, field, ok)
		}
	}
}
