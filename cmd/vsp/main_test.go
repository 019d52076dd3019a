package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akhildatla/vsp/internal/testutil"
	"github.com/akhildatla/vsp/pkg/sil"
	"github.com/akhildatla/vsp/pkg/vm"
)

// vsp runs the CLI in-process and returns its standard output.
func vsp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

func mustVsp(t *testing.T, args ...string) string {
	t.Helper()
	out, err := vsp(t, args...)
	if err != nil {
		t.Fatalf("vsp %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// buildVsp builds the vsp binary for testing
func buildVsp(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping binary build in short mode")
	}
	binary := filepath.Join(t.TempDir(), "vsp")
	cmd := exec.Command("go", "build", "-o", binary, ".")
	cmd.Dir = "."
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build vsp: %v\n%s", err, output)
	}
	return binary
}

func TestCLI_Binary(t *testing.T) {
	binary := buildVsp(t)

	output, err := exec.Command(binary, "version").CombinedOutput()
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(string(output), "vsp version") {
		t.Errorf("expected version output, got: %s", output)
	}

	output, err = exec.Command(binary, "unknown").CombinedOutput()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		t.Errorf("expected exit status 1, got %v", err)
	}
	if !strings.Contains(string(output), "unknown command: unknown") {
		t.Errorf("expected 'unknown command' error, got: %s", output)
	}
}

func TestCLI_Help(t *testing.T) {
	out := mustVsp(t, "help")

	if !strings.Contains(out, "VSP") {
		t.Error("help output should contain VSP")
	}
	for _, cmd := range []string{"run", "assemble", "exec", "disasm", "symbols", "repl"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help output should contain %s command", cmd)
		}
	}

	if noArgs := mustVsp(t); noArgs != out {
		t.Error("running without arguments should print usage")
	}
}

func TestCLI_Version(t *testing.T) {
	out := mustVsp(t, "version")
	if !strings.Contains(out, "vsp version dev") {
		t.Errorf("expected version output, got: %s", out)
	}
}

func TestCLI_Run(t *testing.T) {
	src := testutil.TempSource(t, testutil.PrintProgram())

	out := mustVsp(t, "run", src)
	if strings.TrimSpace(out) != "5" {
		t.Errorf("expected 5, got: %q", out)
	}
}

func TestCLI_RunVerbose(t *testing.T) {
	src := testutil.TempSource(t, testutil.PrintProgram())

	out := mustVsp(t, "run", "-v", "-metrics", src)
	for _, want := range []string{"Running", "SIL-128", "Completed in 5 cycles (halt)", "State: SilState["} {
		if !strings.Contains(out, want) {
			t.Errorf("verbose output should contain %q, got: %s", want, out)
		}
	}
}

func TestCLI_AssembleAndExec(t *testing.T) {
	src := testutil.TempSource(t, testutil.PrintProgram())
	silc := filepath.Join(t.TempDir(), "prog.silc")

	out := mustVsp(t, "assemble", src, "-o", silc)
	if !strings.Contains(out, "Assembled: "+silc) {
		t.Errorf("unexpected assemble output: %s", out)
	}
	if _, err := os.Stat(silc); err != nil {
		t.Fatalf("container was not created: %v", err)
	}

	out = mustVsp(t, "exec", silc)
	if strings.TrimSpace(out) != "5" {
		t.Errorf("expected 5, got: %q", out)
	}
}

func TestCLI_AssembleDefaultOutput(t *testing.T) {
	src := testutil.TempSource(t, "HLT")

	mustVsp(t, "assemble", src)

	silc := strings.TrimSuffix(src, ".sil") + ".silc"
	f, err := vm.ReadFile(silc)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(f.Code, []byte{byte(vm.OpHlt)}) {
		t.Errorf("unexpected code % X", f.Code)
	}
}

func TestCLI_AssembleOptimized(t *testing.T) {
	src := testutil.TempSource(t, `
    MOVI    R0, 3
    NOP
    NOP
    SYSCALL print_int
    HLT
    MOVI    R1, 1
`)
	silc := filepath.Join(t.TempDir(), "opt.silc")

	out := mustVsp(t, "assemble", "-O", "-v", src, "-o", silc)
	if !strings.Contains(out, "Applied optimizations: 3 instructions removed") {
		t.Errorf("verbose output should report optimizations, got: %s", out)
	}

	out = mustVsp(t, "exec", silc)
	if strings.TrimSpace(out) != "3" {
		t.Errorf("expected 3, got: %q", out)
	}
}

func TestCLI_Disasm(t *testing.T) {
	silc := testutil.TempContainer(t, "MOVI R0, 6\nHLT")

	out := mustVsp(t, "disasm", silc)
	if !strings.Contains(out, "MOVI R0, 0x06") {
		t.Errorf("disasm output should contain MOVI, got: %s", out)
	}
	if !strings.Contains(out, "HLT") {
		t.Errorf("disasm output should contain HLT, got: %s", out)
	}

	listing := filepath.Join(t.TempDir(), "out.sil")
	mustVsp(t, "disasm", silc, "-o", listing)
	data, err := os.ReadFile(listing)
	if err != nil {
		t.Fatalf("listing not written: %v", err)
	}
	if string(data) != out {
		t.Error("file listing should match stdout listing")
	}
}

func TestCLI_RunWithTrace(t *testing.T) {
	src := testutil.TempSource(t, testutil.EchoProgram())
	trace := testutil.TempCSV(t, testutil.TraceCSV())

	out := mustVsp(t, "run", src, "-input", trace, "-trace-col", "level", "-raw")
	if !strings.Contains(out, "actuators (2): 80 88") {
		t.Errorf("expected replayed actuator log, got: %q", out)
	}

	actLog := filepath.Join(t.TempDir(), "act.bin")
	mustVsp(t, "run", src, "-input", trace, "-trace-col", "level", "-raw", "-o", actLog)
	data, err := os.ReadFile(actLog)
	if err != nil {
		t.Fatalf("actuator log not written: %v", err)
	}
	if !bytes.Equal(data, []byte{0x80, 0x88}) {
		t.Errorf("expected 80 88, got % X", data)
	}
}

func TestCLI_RunWithRawInput(t *testing.T) {
	src := testutil.TempSource(t, testutil.EchoProgram())
	input := testutil.TempFile(t, string([]byte{sil.NegOne.Byte(), sil.One.Byte()}), ".bin")

	out := mustVsp(t, "run", "-input", input, src)
	if !strings.Contains(out, "actuators (2): 88 80") {
		t.Errorf("expected raw replay, got: %q", out)
	}
}

func TestCLI_RunBadTraceColumn(t *testing.T) {
	src := testutil.TempSource(t, testutil.EchoProgram())
	trace := testutil.TempCSV(t, testutil.TraceCSV())

	_, err := vsp(t, "run", src, "-input", trace, "-trace-col", "missing")
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("expected missing column error, got %v", err)
	}
}

func TestCLI_Snapshot(t *testing.T) {
	src := testutil.TempSource(t, "MOVI R0, 6\nHLT")
	snapPath := filepath.Join(t.TempDir(), "final.cbor")

	mustVsp(t, "run", src, "-snapshot", snapPath)

	data, err := os.ReadFile(snapPath)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	snap, err := vm.UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot failed: %v", err)
	}
	if snap.Registers[0] != sil.New(6, 0).Byte() {
		t.Errorf("expected R0 byte 0x%02X, got 0x%02X", sil.New(6, 0).Byte(), snap.Registers[0])
	}
	if snap.Cycles != 2 {
		t.Errorf("expected 2 cycles, got %d", snap.Cycles)
	}
}

func TestCLI_MaxSteps(t *testing.T) {
	src := testutil.TempSource(t, testutil.SpinProgram())
	snapPath := filepath.Join(t.TempDir(), "fault.cbor")

	_, err := vsp(t, "run", "-max-steps", "50", "-snapshot", snapPath, src)
	if !errors.Is(err, vm.ErrInstructionLimit) {
		t.Fatalf("expected ErrInstructionLimit, got %v", err)
	}
	if _, err := os.Stat(snapPath); err != nil {
		t.Errorf("snapshot should be written on failure: %v", err)
	}
}

func TestCLI_Config(t *testing.T) {
	dir := t.TempDir()
	conf := `
[vm]
max-steps = 20

[batch]
enabled = true
max-wait = "1ms"
`
	if err := os.WriteFile(filepath.Join(dir, "vsp.toml"), []byte(conf), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	src := filepath.Join(dir, "spin.sil")
	if err := os.WriteFile(src, []byte(testutil.SpinProgram()), 0644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}

	// vsp.toml next to the source is picked up.
	_, err := vsp(t, "run", src)
	if !errors.Is(err, vm.ErrInstructionLimit) {
		t.Errorf("expected ErrInstructionLimit from config, got %v", err)
	}

	bad := testutil.TempFile(t, "[vm]\nmode = \"SIL-7\"\n", ".toml")
	if _, err := vsp(t, "run", "-config", bad, src); err == nil {
		t.Error("expected invalid config error")
	}
}

func TestCLI_Symbols(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.sil")
	source := `.data
msg: .string "hi"
.code
.global main
main:
    MOVI R0, 1
loop:
    JMP loop
`
	if err := os.WriteFile(src, []byte(source), 0644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	silc := filepath.Join(dir, "prog.silc")
	mustVsp(t, "assemble", src, "-o", silc)

	out := mustVsp(t, "symbols", silc)

	var syms []struct {
		Name     string `json:"name"`
		Kind     int    `json:"kind"`
		Children []struct {
			Name string `json:"name"`
		} `json:"children"`
	}
	if err := json.Unmarshal([]byte(out), &syms); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(syms) != 2 {
		t.Fatalf("expected 2 top-level symbols, got %d: %s", len(syms), out)
	}
	if syms[0].Name != "main" || len(syms[0].Children) != 1 || syms[0].Children[0].Name != "loop" {
		t.Errorf("unexpected function outline: %+v", syms[0])
	}
	if syms[1].Name != "msg" {
		t.Errorf("expected msg data symbol, got %+v", syms[1])
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	_, err := vsp(t, "unknown")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestCLI_MissingFile(t *testing.T) {
	if _, err := vsp(t, "run", "nonexistent.sil"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := vsp(t, "exec", "nonexistent.silc"); err == nil {
		t.Error("expected error for missing container")
	}
}

func TestCLI_Usage(t *testing.T) {
	for _, cmd := range []string{"run", "exec", "assemble", "disasm", "symbols"} {
		_, err := vsp(t, cmd)
		if err == nil || !strings.Contains(err.Error(), "usage: vsp "+cmd) {
			t.Errorf("%s: expected usage error, got %v", cmd, err)
		}
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args    []string
		wantPos []string
		wantOut string
	}{
		{[]string{"a.sil"}, []string{"a.sil"}, ""},
		{[]string{"-o", "x", "a.sil"}, []string{"a.sil"}, "x"},
		{[]string{"a.sil", "-o", "x"}, []string{"a.sil"}, "x"},
		{[]string{"a.sil", "-o", "x", "b.sil"}, []string{"a.sil", "b.sil"}, "x"},
	}
	for _, tt := range tests {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		out := fs.String("o", "", "")
		pos, err := parseArgs(fs, tt.args)
		if err != nil {
			t.Fatalf("parseArgs(%v): %v", tt.args, err)
		}
		if strings.Join(pos, ",") != strings.Join(tt.wantPos, ",") || *out != tt.wantOut {
			t.Errorf("parseArgs(%v): got %v -o %q", tt.args, pos, *out)
		}
	}
}
