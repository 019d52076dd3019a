package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/akhildatla/vsp/pkg/compiler"
	"github.com/akhildatla/vsp/pkg/vm"
)

type command struct {
	name    string
	aliases []string
	usage   string
	help    string
	fn      func(r *REPL, args []string, out io.Writer) error
}

var commands []command

func init() {
	commands = []command{
		{"help", []string{"h", "?"}, "", "Show this help message", (*REPL).cmdHelp},
		{"quit", []string{"q", "exit"}, "", "Exit the REPL", (*REPL).cmdQuit},
		{"regs", []string{"r"}, "", "Show registers", (*REPL).cmdRegs},
		{"state", []string{"s"}, "", "Show registers, flags, mode and scheduling hints", (*REPL).cmdState},
		{"mem", []string{"m"}, "[addr] [len]", "Dump memory (default 0, 64 bytes)", (*REPL).cmdMem},
		{"dis", []string{"disasm"}, "[addr] [len]", "Disassemble loaded code", (*REPL).cmdDis},
		{"run", []string{"go"}, "", "Run until halt or a breakpoint", (*REPL).cmdRun},
		{"step", []string{"n"}, "[count]", "Execute count instructions (default 1)", (*REPL).cmdStep},
		{"reset", nil, "", "Reset the VM and reload the program", (*REPL).cmdReset},
		{"clear", []string{"cls"}, "", "Clear the assembly buffer", (*REPL).cmdClear},
		{"src", []string{"buffer"}, "", "Show the assembly buffer", (*REPL).cmdSource},
		{"load", nil, "<file>", "Load a .sil source or .silc container", (*REPL).cmdLoad},
		{"save", nil, "<file>", "Save the buffer (.sil) or the assembled program (.silc)", (*REPL).cmdSave},
		{"bp", []string{"break"}, "<addr|label>", "Set a breakpoint", (*REPL).cmdBreak},
		{"del", []string{"delete"}, "<addr|label|all>", "Delete breakpoints", (*REPL).cmdDelete},
		{"list", []string{"l"}, "", "List breakpoints", (*REPL).cmdList},
		{"mode", nil, "[8|16|32|64|128]", "Show or set the register mode", (*REPL).cmdMode},
		{"verbose", []string{"v"}, "", "Toggle verbose output", (*REPL).cmdVerbose},
		{"history", nil, "", "Show input history", (*REPL).cmdHistory},
		{"set", nil, "<name> <value>", "Define a variable for eval", (*REPL).cmdSet},
		{"eval", []string{"e"}, "<expr>", "Evaluate Rn, Rn.rho, Rn.theta, $var and numbers with + - * /", (*REPL).cmdEval},
	}
}

func lookupCommand(name string) (*command, bool) {
	for i := range commands {
		c := &commands[i]
		if c.name == name {
			return c, true
		}
		for _, a := range c.aliases {
			if a == name {
				return c, true
			}
		}
	}
	return nil, false
}

func (r *REPL) command(line string, out io.Writer) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		r.errorf(out, "empty command")
		return
	}
	c, ok := lookupCommand(strings.ToLower(parts[0]))
	if !ok {
		r.errorf(out, "unknown command %q (try :help)", parts[0])
		return
	}
	if err := c.fn(r, parts[1:], out); err != nil {
		if errors.Is(err, errUsage) {
			r.errorf(out, "usage: :%s %s", c.name, c.usage)
			return
		}
		r.errorf(out, "%v", err)
	}
}

// mnemonics lists every opcode name, for completion.
func mnemonics() []string {
	ops := vm.Opcodes()
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

func (r *REPL) cmdHelp(_ []string, out io.Writer) error {
	fmt.Fprintln(out, "Commands:")
	for _, c := range commands {
		name := ":" + c.name
		if c.usage != "" {
			name += " " + c.usage
		}
		fmt.Fprintf(out, "  %-26s %s\n", name, c.help)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Anything else is assembly, e.g. MOVI R0, 2")
	return nil
}

func (r *REPL) cmdQuit(_ []string, out io.Writer) error {
	r.quit = true
	fmt.Fprintln(out, "Goodbye!")
	return nil
}

func (r *REPL) cmdRegs(_ []string, out io.Writer) error {
	st := r.vm.State()
	for i, v := range st.Regs {
		fmt.Fprintf(out, "  R%X = 0x%02X (ρ=%+d, θ=%d)\n", i, v.Byte(), v.Rho, v.Theta)
	}
	fmt.Fprintf(out, "PC = 0x%06X  SP = 0x%08X  FP = 0x%08X\n", st.PC, st.SP, st.FP)
	return nil
}

func (r *REPL) cmdState(args []string, out io.Writer) error {
	if err := r.cmdRegs(args, out); err != nil {
		return err
	}
	st := r.vm.State()
	sc := r.vm.Sched()
	fmt.Fprintf(out, "SR = %s  mode %s  cycles %d\n", st.SR, st.Mode, r.vm.Cycles())
	fmt.Fprintf(out, "backend %s  batch %v\n", sc.Backend, sc.InBatch)
	return nil
}

func (r *REPL) cmdMem(args []string, out io.Writer) error {
	addr, n, err := r.rangeArgs(args, 64)
	if err != nil {
		return err
	}
	mem := r.vm.Memory()
	for row := uint32(0); row < n; row += 16 {
		var hex, ascii strings.Builder
		for i := row; i < row+16 && i < n; i++ {
			b, err := mem.LoadU8(addr + i)
			if err != nil {
				if hex.Len() > 0 {
					fmt.Fprintf(out, "%08X: %-48s |%s|\n", addr+row, hex.String(), ascii.String())
				}
				return err
			}
			fmt.Fprintf(&hex, "%02X ", b)
			if b >= 0x20 && b < 0x7F {
				ascii.WriteByte(b)
			} else {
				ascii.WriteByte('.')
			}
		}
		fmt.Fprintf(out, "%08X: %-48s |%s|\n", addr+row, hex.String(), ascii.String())
	}
	return nil
}

func (r *REPL) cmdDis(args []string, out io.Writer) error {
	if r.file == nil {
		return vm.ErrNoProgram
	}
	addr, n, err := r.rangeArgs(args, uint32(len(r.file.Code)))
	if err != nil {
		return err
	}
	end := min(int(addr)+int(n), len(r.file.Code))
	pc := r.vm.State().PC
	for a := int(addr); a < end; {
		marker := "  "
		if uint32(a) == pc {
			marker = "=>"
		}
		if _, ok := r.breakpoints[uint32(a)]; ok {
			marker = r.bpColor.Sprint("*") + marker[1:]
		}
		inst, err := vm.Decode(r.file.Code[a:])
		if err != nil {
			fmt.Fprintf(out, "%s %06X: .byte 0x%02X\n", marker, a, r.file.Code[a])
			a++
			continue
		}
		fmt.Fprintf(out, "%s %06X: %s\n", marker, a, inst)
		a += inst.Size()
	}
	return nil
}

func (r *REPL) cmdRun(_ []string, out io.Writer) error {
	r.run(out)
	return nil
}

func (r *REPL) cmdStep(args []string, out io.Writer) error {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return errUsage
		}
		n = v
	}
	r.step(n, out)
	return nil
}

func (r *REPL) cmdReset(_ []string, out io.Writer) error {
	r.reset(out)
	return nil
}

func (r *REPL) cmdClear(_ []string, out io.Writer) error {
	r.buffer = nil
	r.file = nil
	r.vm = vm.NewVM(r.cfg)
	r.infof(out, "buffer cleared")
	return nil
}

func (r *REPL) cmdSource(_ []string, out io.Writer) error {
	for i, l := range r.buffer {
		fmt.Fprintf(out, "%4d  %s\n", i+1, l)
	}
	return nil
}

func (r *REPL) cmdLoad(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	path := args[0]
	if filepath.Ext(path) == ".silc" {
		f, err := vm.ReadFile(path)
		if err != nil {
			return err
		}
		if err := r.install(f); err != nil {
			return err
		}
		r.buffer = nil
		r.infof(out, "loaded %d code bytes from %s", len(f.Code), path)
		return nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := compiler.CompileWithOptions(string(src), compiler.Options{File: filepath.Base(path), Mode: r.cfg.Mode})
	if err != nil {
		return err
	}
	if err := r.install(f); err != nil {
		return err
	}
	r.buffer = strings.Split(strings.TrimRight(string(src), "\n"), "\n")
	r.infof(out, "assembled and loaded %s", path)
	return nil
}

func (r *REPL) cmdSave(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	path := args[0]
	if filepath.Ext(path) == ".silc" {
		if r.file == nil {
			return vm.ErrNoProgram
		}
		if err := vm.WriteFile(path, r.file); err != nil {
			return err
		}
	} else if err := os.WriteFile(path, []byte(r.Source()+"\n"), 0644); err != nil {
		return err
	}
	r.infof(out, "saved to %s", path)
	return nil
}

func (r *REPL) cmdBreak(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	addr, err := r.address(args[0])
	if err != nil {
		return err
	}
	if _, ok := r.breakpoints[addr]; !ok {
		r.breakpoints[addr] = 0
	}
	r.bpColor.Fprintf(out, "breakpoint set at 0x%06X\n", addr)
	return nil
}

func (r *REPL) cmdDelete(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	if args[0] == "all" {
		r.breakpoints = make(map[uint32]int)
		r.infof(out, "all breakpoints deleted")
		return nil
	}
	addr, err := r.address(args[0])
	if err != nil {
		return err
	}
	if _, ok := r.breakpoints[addr]; !ok {
		return fmt.Errorf("no breakpoint at 0x%06X", addr)
	}
	delete(r.breakpoints, addr)
	r.infof(out, "breakpoint at 0x%06X deleted", addr)
	return nil
}

func (r *REPL) cmdList(_ []string, out io.Writer) error {
	if len(r.breakpoints) == 0 {
		fmt.Fprintln(out, "No breakpoints set")
		return nil
	}
	fmt.Fprintln(out, "Breakpoints:")
	for _, a := range r.sortedBreakpoints() {
		fmt.Fprintf(out, "  0x%06X hits=%d\n", a, r.breakpoints[a])
	}
	return nil
}

func (r *REPL) cmdMode(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintf(out, "Current mode: %s\n", r.cfg.Mode)
		return nil
	}
	m, err := vm.ParseMode(args[0])
	if err != nil {
		return err
	}
	r.cfg.Mode = m
	r.vm = vm.NewVM(r.cfg)
	r.file = nil
	if len(r.buffer) > 0 {
		f, err := r.compile()
		if err != nil {
			return err
		}
		if err := r.install(f); err != nil {
			return err
		}
	}
	r.infof(out, "mode set to %s", m)
	return nil
}

func (r *REPL) cmdVerbose(_ []string, out io.Writer) error {
	r.verbose = !r.verbose
	fmt.Fprintf(out, "Verbose: %v\n", r.verbose)
	return nil
}

func (r *REPL) cmdHistory(_ []string, out io.Writer) error {
	for i, h := range r.history {
		fmt.Fprintf(out, "%3d: %s\n", i+1, h)
	}
	return nil
}

func (r *REPL) cmdSet(args []string, out io.Writer) error {
	if len(args) != 2 {
		return errUsage
	}
	v, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	r.variables[args[0]] = v
	fmt.Fprintf(out, "%s = %d\n", args[0], v)
	return nil
}

func (r *REPL) cmdEval(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	expr := strings.Join(args, " ")
	v, err := r.eval(args)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s = %d (0x%X)\n", expr, v, v)
	return nil
}

// eval folds operands left to right; there is no precedence.
func (r *REPL) eval(tokens []string) (int64, error) {
	if len(tokens)%2 == 0 {
		return 0, fmt.Errorf("incomplete expression")
	}
	acc, err := r.operand(tokens[0])
	if err != nil {
		return 0, err
	}
	for i := 1; i < len(tokens); i += 2 {
		v, err := r.operand(tokens[i+1])
		if err != nil {
			return 0, err
		}
		switch tokens[i] {
		case "+":
			acc += v
		case "-":
			acc -= v
		case "*":
			acc *= v
		case "/":
			if v == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			acc /= v
		default:
			return 0, fmt.Errorf("unknown operator %q", tokens[i])
		}
	}
	return acc, nil
}

func (r *REPL) operand(tok string) (int64, error) {
	if strings.HasPrefix(tok, "$") {
		v, ok := r.variables[tok[1:]]
		if !ok {
			return 0, fmt.Errorf("unknown variable %s", tok)
		}
		return v, nil
	}
	if reg, field, ok := registerRef(tok); ok {
		v := r.vm.State().Regs[reg]
		switch field {
		case "":
			return int64(v.Byte()), nil
		case "rho":
			return int64(v.Rho), nil
		case "theta":
			return int64(v.Theta), nil
		}
		return 0, fmt.Errorf("unknown register field %q", field)
	}
	return parseNumber(tok)
}

// registerRef parses R0-RF or R10-R15, optionally followed by .rho or
// .theta.
func registerRef(tok string) (int, string, bool) {
	name, field, _ := strings.Cut(tok, ".")
	if len(name) < 2 || (name[0] != 'R' && name[0] != 'r') {
		return 0, "", false
	}
	n, err := strconv.ParseUint(name[1:], 16, 8)
	if len(name) == 3 {
		n, err = strconv.ParseUint(name[1:], 10, 8)
	}
	if err != nil || n >= vm.NumRegs {
		return 0, "", false
	}
	return int(n), strings.ToLower(field), true
}

// address resolves a number or a code label of the loaded program.
func (r *REPL) address(s string) (uint32, error) {
	if v, err := parseNumber(s); err == nil {
		if v < 0 || v > 0xFFFFFF {
			return 0, fmt.Errorf("address %s out of range", s)
		}
		return uint32(v), nil
	}
	if r.file != nil {
		if sym, ok := r.file.Lookup(s); ok && (sym.Kind == vm.SymLabel || sym.Kind == vm.SymFunction) {
			return sym.Addr, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", vm.ErrUndefinedSymbol, s)
}

func (r *REPL) rangeArgs(args []string, defLen uint32) (uint32, uint32, error) {
	var addr uint32
	n := defLen
	if len(args) > 0 {
		v, err := parseNumber(args[0])
		if err != nil || v < 0 || v > 0xFFFFFFFF {
			return 0, 0, errUsage
		}
		addr = uint32(v)
	}
	if len(args) > 1 {
		v, err := parseNumber(args[1])
		if err != nil || v < 0 || v > 0xFFFF {
			return 0, 0, errUsage
		}
		n = uint32(v)
	}
	return addr, n, nil
}

// parseNumber accepts decimal, 0x hex and 0b binary.
func parseNumber(s string) (int64, error) {
	s = strings.ReplaceAll(s, "_", "")
	base := 10
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 2 && digits[0] == '0' && strings.ContainsRune("xXbB", rune(digits[1])) {
		base = 0
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
