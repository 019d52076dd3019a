// Package repl is an interactive assembler and debugger for the VSP.
//
// Assembly lines are appended to a buffer that is re-assembled and
// reloaded after every line; a line that does not assemble is dropped.
// Lines starting with ':' are commands.
package repl

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/akhildatla/vsp/pkg/compiler"
	"github.com/akhildatla/vsp/pkg/vm"
)

const (
	promptASM = "vsp> "
	banner    = "VSP REPL - Virtual Sil Processor"
)

// REPL holds the assembly buffer and the VM it is loaded into.
type REPL struct {
	cfg  vm.Config
	vm   *vm.VM
	file *vm.File

	buffer      []string
	history     []string
	breakpoints map[uint32]int // address -> hit count
	variables   map[string]int64
	verbose     bool
	quit        bool

	errColor  *color.Color
	infoColor *color.Color
	bpColor   *color.Color
}

// New creates a REPL whose VM uses cfg. Colour output starts disabled.
func New(cfg vm.Config) *REPL {
	r := &REPL{
		cfg:         cfg,
		breakpoints: make(map[uint32]int),
		variables:   make(map[string]int64),
		errColor:    color.New(color.FgRed),
		infoColor:   color.New(color.FgCyan),
		bpColor:     color.New(color.FgYellow, color.Bold),
	}
	r.SetColor(false)
	r.vm = vm.NewVM(cfg)
	return r
}

// SetColor switches ANSI colour output on or off.
func (r *REPL) SetColor(on bool) {
	for _, c := range []*color.Color{r.errColor, r.infoColor, r.bpColor} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// VM returns the machine the buffer is loaded into.
func (r *REPL) VM() *vm.VM { return r.vm }

// Source returns the current assembly buffer.
func (r *REPL) Source() string { return strings.Join(r.buffer, "\n") }

// Run reads lines from p until EOF or a quit command.
func (r *REPL) Run(p Prompter, out io.Writer) error {
	fmt.Fprintln(out, banner)
	fmt.Fprintln(out, "Type :help for available commands, :quit to exit")
	fmt.Fprintln(out)

	for !r.quit {
		line, err := p.Prompt(promptASM)
		if err == io.EOF {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) != "" {
			p.AppendHistory(line)
		}
		r.Exec(line, out)
	}
	return nil
}

// Exec handles one line of input. It returns false once the user has
// asked to quit.
func (r *REPL) Exec(line string, out io.Writer) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ";") {
		return !r.quit
	}
	r.history = append(r.history, trimmed)

	r.vm.SetOutput(out)
	switch {
	case strings.HasPrefix(trimmed, ":"):
		r.command(strings.TrimPrefix(trimmed, ":"), out)
	case isBareCommand(trimmed):
		r.command(trimmed, out)
	default:
		r.assemble(line, out)
	}
	return !r.quit
}

// isBareCommand accepts the few commands that cannot be mnemonics
// without the ':' prefix.
func isBareCommand(line string) bool {
	switch strings.Fields(line)[0] {
	case "help", "h", "?", "quit", "exit", "q":
		return true
	}
	return false
}

// assemble appends line to the buffer and reloads the program. On failure
// the line is dropped and the previous program stays loaded.
func (r *REPL) assemble(line string, out io.Writer) {
	r.buffer = append(r.buffer, line)
	f, err := r.compile()
	if err != nil {
		r.buffer = r.buffer[:len(r.buffer)-1]
		r.errorf(out, "%v", err)
		return
	}
	if err := r.install(f); err != nil {
		r.buffer = r.buffer[:len(r.buffer)-1]
		r.errorf(out, "load: %v", err)
		return
	}
	if r.verbose {
		r.infof(out, "assembled %d code bytes, %d data bytes", len(f.Code), len(f.Data))
	}
}

func (r *REPL) compile() (*vm.File, error) {
	return compiler.CompileWithOptions(r.Source(), compiler.Options{File: "repl", Mode: r.cfg.Mode})
}

func (r *REPL) install(f *vm.File) error {
	if err := r.vm.Load(f); err != nil {
		return err
	}
	r.file = f
	return nil
}

// run executes until halt, yield, error or a breakpoint. A breakpoint at
// the starting PC does not stop the first step.
func (r *REPL) run(out io.Writer) {
	if r.file == nil {
		r.errorf(out, "%v", vm.ErrNoProgram)
		return
	}
	start := r.vm.Cycles()
	for first := true; ; first = false {
		pc := r.vm.State().PC
		if _, ok := r.breakpoints[pc]; ok && !first {
			r.breakpoints[pc]++
			r.bpColor.Fprintf(out, "breakpoint at 0x%06X\n", pc)
			return
		}
		running, err := r.vm.Step()
		if err != nil {
			r.errorf(out, "%v", err)
			return
		}
		if !running {
			r.infof(out, "halted after %d cycles", r.vm.Cycles()-start)
			return
		}
	}
}

func (r *REPL) step(n int, out io.Writer) {
	if r.file == nil {
		r.errorf(out, "%v", vm.ErrNoProgram)
		return
	}
	for i := 0; i < n; i++ {
		pc := r.vm.State().PC
		if r.verbose {
			if inst, err := vm.Decode(r.file.Code[min(int(pc), len(r.file.Code)):]); err == nil {
				fmt.Fprintf(out, "%06X: %s\n", pc, inst)
			}
		}
		running, err := r.vm.Step()
		if err != nil {
			r.errorf(out, "%v", err)
			return
		}
		if !running {
			r.infof(out, "halted")
			return
		}
	}
	r.infof(out, "stepped %d instruction(s), pc 0x%06X", n, r.vm.State().PC)
}

// reset rebuilds the VM, keeping the buffer loaded.
func (r *REPL) reset(out io.Writer) {
	r.vm = vm.NewVM(r.cfg)
	r.vm.SetOutput(out)
	if r.file != nil {
		if err := r.vm.Load(r.file); err != nil {
			r.errorf(out, "load: %v", err)
			return
		}
	}
	r.infof(out, "VM reset")
}

func (r *REPL) sortedBreakpoints() []uint32 {
	addrs := make([]uint32, 0, len(r.breakpoints))
	for a := range r.breakpoints {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func (r *REPL) errorf(out io.Writer, format string, args ...any) {
	r.errColor.Fprintf(out, "Error: "+format+"\n", args...)
}

func (r *REPL) infof(out io.Writer, format string, args ...any) {
	r.infoColor.Fprintf(out, format+"\n", args...)
}

var errUsage = errors.New("usage")
