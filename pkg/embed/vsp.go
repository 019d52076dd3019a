// Package embed provides the Go embedding API for the Virtual Sil Processor.
//
// VSP programs are embeddable in Go applications. Pass a string, get a
// result.
//
// Basic usage:
//
//	result, err := embed.Execute(`
//	    MOVI  R0, 2
//	    MOVI  R1, 3
//	    MUL   R0, R1
//	    HLT
//	`)
//
// With sensor readings and limits:
//
//	result, err := embed.ExecuteWithOptions(src,
//	    embed.WithTimeout(time.Second),
//	    embed.WithMaxInstructions(10000),
//	    embed.WithSensors(map[int]sil.ByteSil{0: sil.One}),
//	)
package embed

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"time"

	"github.com/akhildatla/vsp/pkg/compiler"
	"github.com/akhildatla/vsp/pkg/sil"
	"github.com/akhildatla/vsp/pkg/vm"
)

// Common errors
var (
	ErrTimeout          = errors.New("execution timeout exceeded")
	ErrInstructionLimit = errors.New("instruction limit exceeded")
	ErrMemoryLimit      = errors.New("memory limit exceeded")
	ErrIncompatibleMode = errors.New("program mode exceeds the configured mode")
)

// Result is the machine state after a program stops.
type Result struct {
	// Registers holds R0-RF when the program stopped.
	Registers sil.State
	// Output is everything written by output syscalls.
	Output string
	// Actuators is the ACT log in write order.
	Actuators []sil.ByteSil
	Cycles    uint64
	Exit      vm.ExitReason
}

// Execute assembles and runs VSP source and returns the final state.
func Execute(source string) (*Result, error) {
	return ExecuteWithOptions(source)
}

// ExecuteFile reads a .sil source file or a .silc program and executes it.
func ExecuteFile(path string, opts ...Option) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == vm.Magic {
		f, err := vm.Deserialize(data)
		if err != nil {
			return nil, err
		}
		return Run(f, opts...)
	}
	return ExecuteWithOptions(string(data), opts...)
}

// Options configures execution behavior for ExecuteWithOptions.
type Options struct {
	// Timeout sets maximum execution time. Zero means no timeout.
	Timeout time.Duration

	// MaxInstructions limits the number of instructions executed.
	// Zero means unlimited.
	MaxInstructions int64

	// Mode is the machine width. Sources without a .mode directive are
	// assembled for it as well.
	Mode vm.Mode

	// HeapStates sizes the state heap. Zero keeps the VM default.
	HeapStates int

	// Input is a SENSE replay buffer, one packed ByteSil per byte.
	Input []byte

	// Sensors presets simulated sensor values by id.
	Sensors map[int]sil.ByteSil

	// Context for cancellation. If nil, context.Background() is used.
	Context context.Context
}

// Option is a functional option for configuring execution.
type Option func(*Options)

// WithTimeout sets execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithMaxInstructions sets instruction limit.
func WithMaxInstructions(n int64) Option {
	return func(o *Options) {
		o.MaxInstructions = n
	}
}

// WithContext sets the context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

// WithInput sets the SENSE replay buffer.
func WithInput(data []byte) Option {
	return func(o *Options) {
		o.Input = data
	}
}

// WithSensors presets sensor values.
func WithSensors(sensors map[int]sil.ByteSil) Option {
	return func(o *Options) {
		o.Sensors = sensors
	}
}

// WithMode sets the machine mode.
func WithMode(m vm.Mode) Option {
	return func(o *Options) {
		o.Mode = m
	}
}

// WithHeapStates sets the state heap capacity.
func WithHeapStates(n int) Option {
	return func(o *Options) {
		o.HeapStates = n
	}
}

func buildOptions(opts []Option) *Options {
	options := &Options{
		Mode:    vm.Sil128,
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Context == nil {
		options.Context = context.Background()
	}
	return options
}

// ExecuteWithOptions assembles and executes source with advanced
// configuration.
//
// Example:
//
//	result, err := embed.ExecuteWithOptions(src,
//	    embed.WithTimeout(5*time.Second),
//	    embed.WithMaxInstructions(10000),
//	    embed.WithMode(vm.Sil32),
//	)
func ExecuteWithOptions(source string, opts ...Option) (*Result, error) {
	options := buildOptions(opts)

	copts := compiler.DefaultOptions()
	copts.Mode = options.Mode
	program, err := compiler.CompileWithOptions(source, copts)
	if err != nil {
		return nil, err
	}
	return run(program, options)
}

// Run executes an already assembled program.
func Run(f *vm.File, opts ...Option) (*Result, error) {
	return run(f, buildOptions(opts))
}

func run(program *vm.File, options *Options) (*Result, error) {
	var out bytes.Buffer

	cfg := vm.DefaultConfig()
	cfg.Mode = options.Mode
	cfg.Stdout = &out
	cfg.MaxSteps = options.MaxInstructions
	if options.HeapStates > 0 {
		cfg.HeapStates = options.HeapStates
	}
	machine := vm.NewVM(cfg)

	if err := machine.Load(program); err != nil {
		return nil, mapError(err)
	}
	if options.Input != nil {
		machine.SetInput(options.Input)
	}
	for id, v := range options.Sensors {
		if err := machine.SetSensor(id, v); err != nil {
			return nil, err
		}
	}

	// Setup timeout context
	ctx := options.Context
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}
	machine.SetContext(ctx)

	// YIELD only hands control back to the host; keep going.
	exit, err := machine.Execute()
	for err == nil && exit == vm.ExitYield {
		exit, err = machine.Execute()
	}
	if err != nil {
		return nil, mapError(err)
	}

	return &Result{
		Registers: machine.Registers(),
		Output:    out.String(),
		Actuators: append([]sil.ByteSil(nil), machine.Output()...),
		Cycles:    machine.Cycles(),
		Exit:      exit,
	}, nil
}

// mapError maps VM errors to embed package errors.
func mapError(err error) error {
	var me *vm.ModeError
	switch {
	case errors.Is(err, vm.ErrInstructionLimit):
		return ErrInstructionLimit
	case errors.Is(err, vm.ErrHeapOverflow), errors.Is(err, vm.ErrStackOverflow):
		return errors.Join(ErrMemoryLimit, err)
	case errors.As(err, &me):
		return errors.Join(ErrIncompatibleMode, err)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}
	return err
}
