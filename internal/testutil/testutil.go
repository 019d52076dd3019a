// Package testutil provides testing utilities for VSP tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/akhildatla/vsp/pkg/compiler"
	"github.com/akhildatla/vsp/pkg/sil"
	"github.com/akhildatla/vsp/pkg/vm"
)

// TempFile creates a temporary file with the given content and extension.
// The file is automatically cleaned up when the test finishes.
func TempFile(t *testing.T, content, ext string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test"+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// TempSource writes assembly source to a temporary .sil file.
func TempSource(t *testing.T, source string) string {
	t.Helper()
	return TempFile(t, source, ".sil")
}

// TempCSV creates a temporary CSV file and returns its path.
func TempCSV(t *testing.T, content string) string {
	t.Helper()
	return TempFile(t, content, ".csv")
}

// Assemble compiles source or fails the test.
func Assemble(t *testing.T, source string) *vm.File {
	t.Helper()
	f, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("failed to assemble: %v", err)
	}
	return f
}

// TempContainer assembles source and writes it to a temporary .silc file.
func TempContainer(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.silc")
	if err := vm.WriteFile(path, Assemble(t, source)); err != nil {
		t.Fatalf("failed to write container: %v", err)
	}
	return path
}

// PrintProgram multiplies 2 by 3 in the log domain and prints the
// resulting magnitude, 5.
func PrintProgram() string {
	return `; multiply and print
main:
    MOVI    R0, 2
    MOVI    R1, 3
    MUL     R0, R1
    SYSCALL print_int
    HLT`
}

// EchoProgram copies two SENSE readings to actuator 0.
func EchoProgram() string {
	return `    SENSE   R0
    ACT     R0
    SENSE   R0
    ACT     R0
    HLT`
}

// SpinProgram never halts.
func SpinProgram() string {
	return `loop:
    NOP
    JMP     loop`
}

// TraceCSV returns a sensor trace whose level column holds packed
// One and NegOne bytes.
func TraceCSV() string {
	return `t,level
0,128
1,136`
}

// AssertByteSil checks that a register holds the expected value.
func AssertByteSil(t *testing.T, expected, actual sil.ByteSil) {
	t.Helper()
	if expected != actual {
		t.Errorf("expected %v, got %v", expected, actual)
	}
}
