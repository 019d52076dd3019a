package vm

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	// Decode errors
	ErrInvalidOpcode        = errors.New("invalid opcode")
	ErrInstructionTruncated = errors.New("instruction truncated")
	ErrUnexpectedEOF        = errors.New("unexpected end of bytecode")

	// Memory errors
	ErrAddressOutOfBounds = errors.New("address out of bounds")
	ErrWriteToReadOnly    = errors.New("write to read-only segment")
	ErrInvalidSegment     = errors.New("invalid segment")
	ErrStackOverflow      = errors.New("stack overflow")
	ErrStackUnderflow     = errors.New("stack underflow")
	ErrHeapOverflow       = errors.New("heap overflow")

	// Mode errors
	ErrInvalidMode      = errors.New("invalid mode")
	ErrIncompatibleMode = errors.New("incompatible mode")

	// IO errors
	ErrInvalidPort     = errors.New("invalid port")
	ErrInvalidSensor   = errors.New("invalid sensor")
	ErrInvalidActuator = errors.New("invalid actuator")
	ErrInvalidSyscall  = errors.New("invalid syscall")

	// Container and execution errors
	ErrInvalidBytecode    = errors.New("invalid bytecode")
	ErrBackendUnavailable = errors.New("backend not available")
	ErrInstructionLimit   = errors.New("instruction limit exceeded")
	ErrHalted             = errors.New("vm halted")
	ErrNoProgram          = errors.New("no program loaded")
	ErrUndefinedSymbol    = errors.New("undefined symbol")
)

// AddressError records a memory access that failed at a specific address.
type AddressError struct {
	Op   string // "load", "store", "fetch"
	Addr uint32
	Err  error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("%s 0x%08X: %v", e.Op, e.Addr, e.Err)
}

func (e *AddressError) Unwrap() error { return e.Err }

func addrErr(op string, addr uint32, err error) error {
	return &AddressError{Op: op, Addr: addr, Err: err}
}

// ModeError describes a mode mismatch between a program and the VM.
type ModeError struct {
	Expected Mode
	Found    Mode
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("%v: expected %s, found %s", ErrIncompatibleMode, e.Expected, e.Found)
}

func (e *ModeError) Unwrap() error { return ErrIncompatibleMode }

// ExecError wraps a failure raised while executing the instruction at PC.
type ExecError struct {
	PC  uint32
	Op  Opcode
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("pc 0x%06X %s: %v", e.PC, e.Op, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }
