// Package main provides the CLI entry point for the Virtual Sil Processor.
//
// Usage:
//
//	vsp run program.sil                 # Assemble and execute a source file
//	vsp run program.sil -input trace.csv  # Replay a recorded trace into SENSE
//	vsp assemble program.sil -O         # Assemble to a .silc container
//	vsp exec program.silc               # Execute an assembled container
//	vsp disasm program.silc             # Disassemble a container
//	vsp symbols program.silc            # Print LSP document symbols as JSON
//	vsp repl                            # Interactive assembler and debugger
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/akhildatla/vsp/internal/log"
	"github.com/akhildatla/vsp/internal/metrics"
	"github.com/akhildatla/vsp/pkg/batch"
	"github.com/akhildatla/vsp/pkg/compiler"
	"github.com/akhildatla/vsp/pkg/config"
	"github.com/akhildatla/vsp/pkg/loader"
	"github.com/akhildatla/vsp/pkg/optimizer"
	"github.com/akhildatla/vsp/pkg/repl"
	"github.com/akhildatla/vsp/pkg/symbols"
	"github.com/akhildatla/vsp/pkg/vm"
)

// Version info set by GoReleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return printUsage(stdout)
	}

	cmd := args[0]

	switch cmd {
	case "run":
		return runCommand(args[1:], stdout)
	case "assemble", "asm":
		return assembleCommand(args[1:], stdout)
	case "exec":
		return execCommand(args[1:], stdout)
	case "disasm":
		return disasmCommand(args[1:], stdout)
	case "symbols":
		return symbolsCommand(args[1:], stdout)
	case "repl":
		return replCommand(args[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "vsp version %s\n", version)
		if commit != "none" {
			fmt.Fprintf(stdout, "  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Fprintf(stdout, "  built:  %s\n", date)
		}
		return nil
	case "help", "-h", "--help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// parseArgs parses flags that may appear before or after positional
// arguments, so "vsp assemble prog.sil -o out.silc" works.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// execFlags are shared by run and exec.
type execFlags struct {
	input      *string
	traceCol   *string
	raw        *bool
	maxSteps   *int64
	configPath *string
	verbose    *bool
	snapshot   *string
	output     *string
	metrics    *bool
}

func newExecFlags(fs *flag.FlagSet) *execFlags {
	return &execFlags{
		input:      fs.String("input", "", "replay file for SENSE (.csv, .json, .parquet or raw bytes)"),
		traceCol:   fs.String("trace-col", "", "column to replay from a table input (default: first numeric)"),
		raw:        fs.Bool("raw", false, "treat integer samples as packed ByteSil bytes"),
		maxSteps:   fs.Int64("max-steps", 0, "instruction limit (0: use config)"),
		configPath: fs.String("config", "", "config file (default: nearest "+config.FileName+")"),
		verbose:    fs.Bool("v", false, "verbose output"),
		snapshot:   fs.String("snapshot", "", "write a CBOR snapshot of the final state to this file"),
		output:     fs.String("o", "", "write the actuator log to this file"),
		metrics:    fs.Bool("metrics", false, "collect and print execution metrics"),
	}
}

func runCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	ef := newExecFlags(fs)
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 1 {
		return fmt.Errorf("usage: vsp run <file.sil>")
	}
	path := pos[0]

	cfg, err := loadConfig(*ef.configPath, filepath.Dir(path))
	if err != nil {
		return err
	}
	vmCfg := cfg.VMConfig()

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	program, err := compiler.CompileWithOptions(string(source), compiler.Options{
		File: filepath.Base(path),
		Mode: vmCfg.Mode,
	})
	if err != nil {
		return fmt.Errorf("assembling: %w", err)
	}

	return execute(program, path, cfg, ef, stdout)
}

func execCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	ef := newExecFlags(fs)
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 1 {
		return fmt.Errorf("usage: vsp exec <file.silc>")
	}
	path := pos[0]

	cfg, err := loadConfig(*ef.configPath, filepath.Dir(path))
	if err != nil {
		return err
	}
	program, err := vm.ReadFile(path)
	if err != nil {
		return err
	}
	return execute(program, path, cfg, ef, stdout)
}

func loadConfig(path, dir string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func execute(program *vm.File, path string, cfg *config.Config, ef *execFlags, stdout io.Writer) error {
	level := cfg.Log.Level
	if *ef.verbose {
		level = "debug"
	}
	logger := log.New(level, cfg.Log.Format)
	defer logger.Sync() //nolint:errcheck

	metrics.Enabled = cfg.Metrics.Enabled || *ef.metrics

	vmCfg := cfg.VMConfig()
	vmCfg.Stdout = stdout
	vmCfg.Logger = logger
	if *ef.maxSteps > 0 {
		vmCfg.MaxSteps = *ef.maxSteps
	}

	if cfg.Batch.Enabled {
		bcfg := cfg.BatchConfig()
		sched := batch.New(bcfg, batch.NewParallelBackend(bcfg.ParallelThreshold), logger)
		defer sched.Close()
		vmCfg.Offloader = vm.BatchOffloader{Scheduler: sched}
	}

	machine := vm.NewVM(vmCfg)
	if err := machine.Load(program); err != nil {
		return fmt.Errorf("loading program: %w", err)
	}
	machine.SetContext(context.Background())

	if *ef.input != "" {
		data, err := loader.ReadReplay(context.Background(), *ef.input, loader.ReplayOptions{
			Column: *ef.traceCol,
			Raw:    *ef.raw,
		})
		if err != nil {
			return err
		}
		machine.SetInput(data)
		logger.Info("replay input loaded",
			zap.String("file", *ef.input),
			zap.Int("samples", len(data)))
	}

	if *ef.verbose {
		fmt.Fprintf(stdout, "Running %s (%s, %d code bytes, %d data bytes)\n",
			path, program.Mode, len(program.Code), len(program.Data))
	}

	exit, runErr := machine.Execute()
	for runErr == nil && exit == vm.ExitYield {
		exit, runErr = machine.Execute()
	}

	// The snapshot is written even when execution failed.
	if *ef.snapshot != "" {
		if err := writeSnapshot(*ef.snapshot, machine); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("executing: %w", runErr)
	}

	out := machine.Output()
	if len(out) > 0 {
		if *ef.output != "" {
			raw := make([]byte, len(out))
			for i, v := range out {
				raw[i] = v.Byte()
			}
			if err := os.WriteFile(*ef.output, raw, 0644); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
		} else {
			fmt.Fprintf(stdout, "\nactuators (%d):", len(out))
			for _, v := range out {
				fmt.Fprintf(stdout, " %02X", v.Byte())
			}
			fmt.Fprintln(stdout)
		}
	}

	if *ef.verbose {
		fmt.Fprintf(stdout, "\nCompleted in %d cycles (%s)\n", machine.Cycles(), exit)
		fmt.Fprintf(stdout, "State: %s\n", machine.Registers())
		if metrics.Enabled {
			printMetrics(stdout)
		}
	}
	return nil
}

func writeSnapshot(path string, machine *vm.VM) error {
	data, err := vm.MarshalSnapshot(machine.Snapshot())
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func printMetrics(w io.Writer) {
	snap := metrics.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s %d\n", name, snap[name])
	}
}

func assembleCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("assemble", flag.ContinueOnError)
	output := fs.String("o", "", "output file (default: input with .silc extension)")
	verbose := fs.Bool("v", false, "verbose output")
	optimize := fs.Bool("O", false, "enable optimizations (NOP removal, dead code elimination, ROTATE folding)")
	strip := fs.Bool("strip", false, "omit line debug info")
	mode := fs.String("mode", "SIL-128", "mode for sources without a .mode directive")

	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 1 {
		return fmt.Errorf("usage: vsp assemble <file.sil> [-o output.silc]")
	}

	inputPath := pos[0]
	outputPath := *output

	if outputPath == "" {
		ext := filepath.Ext(inputPath)
		outputPath = strings.TrimSuffix(inputPath, ext) + ".silc"
	}

	m, err := vm.ParseMode(*mode)
	if err != nil {
		return err
	}

	if *verbose {
		fmt.Fprintf(stdout, "Assembling: %s -> %s\n", inputPath, outputPath)
	}

	source, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	program, err := compiler.CompileWithOptions(string(source), compiler.Options{
		File:  filepath.Base(inputPath),
		Mode:  m,
		Strip: *strip,
	})
	if err != nil {
		return fmt.Errorf("assembling: %w", err)
	}

	if *optimize {
		opt := optimizer.New(optimizer.WithAllOptimizations())
		var stats optimizer.Stats
		program, stats, err = opt.Optimize(program)
		if err != nil {
			return fmt.Errorf("optimizing: %w", err)
		}
		if *verbose {
			fmt.Fprintf(stdout, "Applied optimizations: %d instructions removed, %d folded, %d -> %d code bytes\n",
				stats.Removed, stats.Folded, stats.BytesBefore, stats.BytesAfter)
		}
	}

	bytecode, err := vm.Serialize(program)
	if err != nil {
		return fmt.Errorf("serializing: %w", err)
	}

	if err := os.WriteFile(outputPath, bytecode, 0644); err != nil {
		return fmt.Errorf("writing bytecode: %w", err)
	}

	if *verbose {
		fmt.Fprintf(stdout, "Code: %d bytes, data: %d bytes, %d symbols, mode %s\n",
			len(program.Code), len(program.Data), len(program.Symbols), program.Mode)
		fmt.Fprintf(stdout, "Output: %s (%d bytes)\n", outputPath, len(bytecode))
	} else {
		fmt.Fprintf(stdout, "Assembled: %s\n", outputPath)
	}

	return nil
}

func disasmCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	output := fs.String("o", "", "output file (default: stdout)")

	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 1 {
		return fmt.Errorf("usage: vsp disasm <file.silc> [-o output.sil]")
	}

	program, err := vm.ReadFile(pos[0])
	if err != nil {
		return err
	}

	asm := vm.Disassemble(program)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(asm), 0644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Fprintf(stdout, "Disassembled to: %s\n", *output)
	} else {
		fmt.Fprint(stdout, asm)
	}

	return nil
}

func symbolsCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("symbols", flag.ContinueOnError)
	src := fs.String("src", "", "source file for symbol positions (default: the file named in the debug info)")

	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 1 {
		return fmt.Errorf("usage: vsp symbols <file.silc> [-src file.sil]")
	}

	program, err := vm.ReadFile(pos[0])
	if err != nil {
		return err
	}

	srcPath := *src
	if srcPath == "" && program.Debug != nil && program.Debug.File != "" {
		srcPath = filepath.Join(filepath.Dir(pos[0]), program.Debug.File)
	}
	var source []byte
	if srcPath != "" {
		// A missing source only loses label columns; debug lines still apply.
		source, _ = os.ReadFile(srcPath)
	}

	idx := symbols.New(program, srcPath, source)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(idx.DocumentSymbols())
}

func replCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	mode := fs.String("mode", "", "machine mode (default: from config)")
	noColor := fs.Bool("no-color", false, "disable coloured output")

	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	cfg, err := loadConfig("", ".")
	if err != nil {
		return err
	}
	vmCfg := cfg.VMConfig()
	vmCfg.Logger = log.New(cfg.Log.Level, cfg.Log.Format)
	if *mode != "" {
		m, err := vm.ParseMode(*mode)
		if err != nil {
			return err
		}
		vmCfg.Mode = m
	}

	r := repl.New(vmCfg)
	r.SetColor(!*noColor && !color.NoColor)

	p := repl.NewTerminalPrompter()
	defer p.Close()
	return r.Run(p, stdout)
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, `VSP (Virtual Sil Processor) - assembler, runtime and tools for SIL bytecode

Usage:
  vsp <command> [arguments]

Commands:
  run <file.sil>        Assemble and execute a source file
  assemble <file.sil>   Assemble source to a .silc container
  exec <file.silc>      Execute an assembled container
  disasm <file.silc>    Disassemble a container
  symbols <file.silc>   Print document symbols as LSP JSON
  repl                  Start interactive REPL
  version               Print version information
  help                  Show this help message

Run / Exec Options:
  -input <file>         Replay a trace into SENSE (.csv, .json, .parquet or raw bytes)
  -trace-col <name>     Column to replay from a table input
  -raw                  Treat integer samples as packed ByteSil bytes
  -max-steps <n>        Instruction limit
  -config <file>        Config file (default: nearest vsp.toml)
  -snapshot <file>      Write a CBOR snapshot of the final state
  -o <file>             Write the actuator log to a file
  -metrics              Collect and print execution metrics
  -v                    Verbose output

Assemble Options:
  -o <file>             Output file (default: input with .silc extension)
  -O                    Enable optimizations
  -strip                Omit line debug info
  -mode <mode>          Mode for sources without .mode (default: SIL-128)
  -v                    Verbose output

Disasm Options:
  -o <file>             Output file (default: stdout)

Symbols Options:
  -src <file>           Source file for symbol positions

REPL Options:
  -mode <mode>          Machine mode
  -no-color             Disable coloured output

Examples:
  vsp run examples/hello.sil
  vsp run filter.sil -input sensor.csv -trace-col temp
  vsp assemble program.sil -O -o program.silc
  vsp exec program.silc -snapshot final.cbor
  vsp disasm program.silc
  vsp repl -mode SIL-32`)
	return nil
}
