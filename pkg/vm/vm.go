// Package vm implements the Virtual Sil Processor.
//
// The VSP is a byte-addressable register machine with:
//   - 16 ByteSil registers (R0-RF) that together form one 16-layer sil.State
//   - a segmented 32-bit address space (code, state heap, call stack, IO)
//   - variable-width instructions in four formats (1 to 4 bytes)
//
// Basic usage:
//
//	v := vm.NewVM(vm.DefaultConfig())
//	v.Load(file)
//	exit, err := v.Execute()
//
// With resource limits:
//
//	v := vm.NewVM(vm.DefaultConfig())
//	v.SetMaxSteps(10000)
//	v.SetContext(ctx)
//	v.Load(file)
//	exit, err := v.Execute()
//
// A VM is single-threaded and owns its memory. Run separate instances on
// separate goroutines for concurrency.
package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru"
	gometrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	"github.com/akhildatla/vsp/internal/log"
	"github.com/akhildatla/vsp/internal/metrics"
	"github.com/akhildatla/vsp/pkg/batch"
	"github.com/akhildatla/vsp/pkg/sil"
)

// ExitReason reports why Execute returned without error.
type ExitReason uint8

const (
	ExitNone     ExitReason = iota
	ExitHalt                // HLT executed
	ExitCollapse            // collapse flag raised
	ExitYield               // YIELD executed; Execute again to resume
)

func (e ExitReason) String() string {
	switch e {
	case ExitHalt:
		return "halt"
	case ExitCollapse:
		return "collapse"
	case ExitYield:
		return "yield"
	default:
		return "none"
	}
}

// Config configures a VM instance.
type Config struct {
	Mode        Mode
	HeapStates  int   // state heap capacity, in 16-byte states
	StackFrames int   // call stack capacity, in frames
	MaxSteps    int64 // 0 means unlimited
	CacheSize   int   // decoded-instruction cache entries, 0 disables the cache
	Stdout      io.Writer
	Logger      *zap.Logger
	Offloader   Offloader
}

// DefaultConfig returns a SIL-128 configuration with default capacities.
func DefaultConfig() Config {
	return Config{
		Mode:        Sil128,
		HeapStates:  DefaultHeapStates,
		StackFrames: DefaultStackFrames,
		CacheSize:   1024,
		Stdout:      os.Stdout,
	}
}

// ExecutionStats contains metrics about VM execution for observability.
type ExecutionStats struct {
	StepsExecuted   int64          // Total instructions executed
	ExecutionTimeNs int64          // Execution time in nanoseconds
	Yields          int64          // YIELDs taken
	CacheHits       int64          // decoded-instruction cache hits
	OpCounts        map[string]int // Count of each opcode executed
}

// VM is one Virtual Sil Processor instance.
type VM struct {
	cfg   Config
	state State
	mem   *Memory
	sched SchedContext

	offloader Offloader
	cache     *lru.Cache

	entry  uint32
	loaded bool
	done   ExitReason // terminal exit taken (halt or collapse)
	fault  error
	cycles uint64

	// Resource limits
	maxSteps  int64
	stepCount int64

	// Context for cancellation
	ctx context.Context

	stdout io.Writer
	log    *zap.Logger

	// Observability - execution statistics
	stats        ExecutionStats
	statsEnabled bool

	cycleCounter gometrics.Counter
	runTimer     gometrics.Timer
}

// NewVM creates a VM with empty memory. Zero fields in cfg take defaults.
func NewVM(cfg Config) *VM {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	vm := &VM{
		cfg:          cfg,
		state:        NewState(cfg.Mode),
		mem:          NewMemory(cfg.HeapStates, cfg.StackFrames),
		offloader:    cfg.Offloader,
		maxSteps:     cfg.MaxSteps,
		stdout:       cfg.Stdout,
		log:          log.OrNop(cfg.Logger).Named("vm"),
		cycleCounter: metrics.NewCounter("vm/cycles"),
		runTimer:     metrics.NewTimer("vm/execute"),
	}
	if cfg.CacheSize > 0 {
		// lru.New only fails for a non-positive size.
		vm.cache, _ = lru.New(cfg.CacheSize)
	}
	return vm
}

// Load installs a container. It fails with a *ModeError when the program
// needs more layers than the VM is configured for.
func (vm *VM) Load(f *File) error {
	if f.Mode > vm.cfg.Mode {
		return &ModeError{Expected: vm.cfg.Mode, Found: f.Mode}
	}
	if err := vm.LoadBytes(f.Code, f.Data); err != nil {
		return err
	}
	vm.entry = f.Entry
	vm.state.PC = f.Entry
	return nil
}

// LoadBytes installs raw code and data with the entry point at 0.
func (vm *VM) LoadBytes(code, data []byte) error {
	vm.mem.LoadCode(code)
	if err := vm.mem.LoadData(data); err != nil {
		return err
	}
	if vm.cache != nil {
		vm.cache.Purge()
	}
	vm.entry = 0
	vm.loaded = true
	vm.resetRun()
	return nil
}

// LoadCode installs code with an empty data section.
func (vm *VM) LoadCode(code []byte) error {
	return vm.LoadBytes(code, nil)
}

func (vm *VM) resetRun() {
	vm.state = NewState(vm.cfg.Mode)
	vm.state.PC = vm.entry
	vm.sched = SchedContext{}
	vm.done = ExitNone
	vm.fault = nil
	vm.cycles = 0
	vm.stepCount = 0
}

// Reset restores the state after Load: registers and stacks cleared, heap
// rebuilt from the data section, PC at the entry point. It also clears a
// previous fault.
func (vm *VM) Reset() {
	vm.mem.Reset()
	vm.resetRun()
}

// SetMaxSteps sets the maximum number of execution steps.
func (vm *VM) SetMaxSteps(n int64) {
	vm.maxSteps = n
}

// SetContext sets the context for cancellation/timeout.
func (vm *VM) SetContext(ctx context.Context) {
	vm.ctx = ctx
}

// SetOffloader attaches the bulk-operation offloader.
func (vm *VM) SetOffloader(o Offloader) {
	vm.offloader = o
}

// SetOutput redirects SYSCALL output.
func (vm *VM) SetOutput(w io.Writer) {
	vm.stdout = w
}

// SetInput installs a replay buffer for SENSE.
func (vm *VM) SetInput(data []byte) {
	vm.mem.SetInput(data)
}

// SetSensor sets a simulated sensor value.
func (vm *VM) SetSensor(id int, v sil.ByteSil) error {
	return vm.mem.SetSensor(id, v)
}

// EnableStats enables execution statistics collection.
func (vm *VM) EnableStats() {
	vm.statsEnabled = true
	vm.stats = ExecutionStats{
		OpCounts: make(map[string]int),
	}
}

// Stats returns the execution statistics. Returns nil if stats were not
// enabled via EnableStats().
func (vm *VM) Stats() *ExecutionStats {
	if !vm.statsEnabled {
		return nil
	}
	return &vm.stats
}

// State returns a copy of the register state.
func (vm *VM) State() State { return vm.state }

// SetState replaces the register state.
func (vm *VM) SetState(s State) { vm.state = s }

// Registers returns the register file as a sil.State.
func (vm *VM) Registers() sil.State { return vm.state.SilState() }

// Memory returns the VM's memory.
func (vm *VM) Memory() *Memory { return vm.mem }

// Sched returns the scheduling context accumulated from hint opcodes.
func (vm *VM) Sched() SchedContext { return vm.sched }

// Output returns the actuator log.
func (vm *VM) Output() []sil.ByteSil { return vm.mem.Output() }

// Cycles returns the number of instructions executed since the last load
// or reset.
func (vm *VM) Cycles() uint64 { return vm.cycles }

// Mode returns the current register mode.
func (vm *VM) Mode() Mode { return vm.state.Mode }

// Fault returns the error that stopped the VM, if any.
func (vm *VM) Fault() error { return vm.fault }

// Done reports whether the VM has halted or collapsed.
func (vm *VM) Done() bool { return vm.done != ExitNone }

// Execute runs until HLT, a collapse, a YIELD or an error. After a YIELD,
// calling Execute again resumes at the following instruction. Memory and
// decode errors halt the instance; it refuses to run again until Reset.
func (vm *VM) Execute() (ExitReason, error) {
	if err := vm.runnable(); err != nil {
		return vm.done, err
	}

	// Start timing if stats enabled
	start := time.Now()
	defer func() {
		vm.runTimer.UpdateSince(start)
		if vm.statsEnabled {
			vm.stats.ExecutionTimeNs += time.Since(start).Nanoseconds()
		}
	}()

	for {
		// Context cancellation check
		if vm.ctx != nil {
			select {
			case <-vm.ctx.Done():
				return ExitNone, vm.ctx.Err()
			default:
			}
		}

		// Resource limit check
		if vm.maxSteps > 0 && vm.stepCount >= vm.maxSteps {
			return ExitNone, ErrInstructionLimit
		}

		yield, err := vm.step()
		if err != nil {
			return ExitNone, err
		}
		if vm.done != ExitNone {
			return vm.done, nil
		}
		if yield {
			if vm.statsEnabled {
				vm.stats.Yields++
			}
			return ExitYield, nil
		}
	}
}

// Step executes a single instruction. It returns false once the VM has
// halted or collapsed.
func (vm *VM) Step() (bool, error) {
	if err := vm.runnable(); err != nil {
		return false, err
	}
	if _, err := vm.step(); err != nil {
		return false, err
	}
	return vm.done == ExitNone, nil
}

func (vm *VM) runnable() error {
	switch {
	case !vm.loaded:
		return ErrNoProgram
	case vm.fault != nil:
		return fmt.Errorf("%w: %v", ErrHalted, vm.fault)
	case vm.done != ExitNone:
		return ErrHalted
	}
	return nil
}

// step fetches, decodes and executes one instruction.
func (vm *VM) step() (bool, error) {
	pc := vm.state.PC
	inst, err := vm.fetch(pc)
	if err != nil {
		return false, vm.halt(fmt.Errorf("pc 0x%06X: %w", pc, err))
	}
	vm.state.PC = pc + uint32(inst.Size())
	vm.stepCount++

	// Track opcode execution if stats enabled
	if vm.statsEnabled {
		vm.stats.StepsExecuted++
		vm.stats.OpCounts[inst.Op.String()]++
	}

	yield, err := vm.exec(inst)
	if err != nil {
		return false, vm.halt(&ExecError{PC: pc, Op: inst.Op, Err: err})
	}
	vm.cycles++
	vm.cycleCounter.Inc(1)

	switch {
	case vm.state.SR.Has(FlagHalt):
		vm.done = ExitHalt
	case vm.state.SR.Has(FlagCollapse):
		vm.done = ExitCollapse
	}
	return yield, nil
}

// halt records a fatal fault. The instance stays stopped until Reset.
func (vm *VM) halt(err error) error {
	vm.state.SR.Set(FlagError, true)
	vm.fault = err
	vm.log.Debug("execution fault", zap.Error(err))
	return err
}

func (vm *VM) fetch(pc uint32) (Instruction, error) {
	if vm.cache != nil {
		if v, ok := vm.cache.Get(pc); ok {
			if vm.statsEnabled {
				vm.stats.CacheHits++
			}
			return v.(Instruction), nil
		}
	}
	raw, err := vm.mem.Fetch(pc)
	if err != nil {
		return Instruction{}, err
	}
	inst, err := Decode(raw)
	if err != nil {
		return Instruction{}, err
	}
	if vm.cache != nil {
		vm.cache.Add(pc, inst)
	}
	return inst, nil
}

// exec executes one decoded instruction. PC already points past it.
func (vm *VM) exec(inst Instruction) (bool, error) {
	s := &vm.state
	r := &s.Regs
	ra, rb := inst.RegA(), inst.RegB()

	switch inst.Op {
	// ===== Control =====
	case OpNop:

	case OpHlt:
		s.SR.Set(FlagHalt, true)

	case OpRet:
		f, err := vm.mem.PopFrame()
		if err != nil {
			return false, err
		}
		s.PC, s.FP = f.ReturnAddr, f.PrevFP

	case OpYield:
		return true, nil

	case OpJmp:
		s.PC = inst.Imm24()

	case OpJz:
		vm.branch(inst, s.SR.Has(FlagZero))

	case OpJn:
		vm.branch(inst, s.SR.Has(FlagNegative))

	case OpJc:
		vm.branch(inst, s.SR.Has(FlagCollapse))

	case OpJo:
		vm.branch(inst, s.SR.Has(FlagOverflow))

	case OpCall:
		if err := vm.mem.PushFrame(Frame{ReturnAddr: s.PC, PrevFP: s.FP}); err != nil {
			return false, err
		}
		s.FP = s.SP
		s.PC = inst.Imm24()

	case OpLoop:
		if r[RegLoop].Rho > sil.RhoMin {
			r[RegLoop].Rho--
			s.PC = inst.Imm24()
		}

	// ===== Data =====
	case OpMov:
		r[ra] = r[rb]

	case OpMovi:
		r[ra] = sil.New(int8(inst.Imm8()), 0)

	case OpLoad:
		v, err := vm.mem.LoadByteSil(inst.Addr())
		if err != nil {
			return false, err
		}
		r[ra] = v

	case OpStore:
		if err := vm.mem.StoreByteSil(inst.Addr(), r[ra]); err != nil {
			return false, err
		}

	case OpPush:
		if err := vm.mem.PushValue(r[ra]); err != nil {
			return false, err
		}
		s.SP++

	case OpPop:
		v, err := vm.mem.PopValue()
		if err != nil {
			return false, err
		}
		r[ra] = v
		s.SP--

	case OpXchg:
		r[ra], r[rb] = r[rb], r[ra]

	case OpLState:
		st, err := vm.mem.LoadState(inst.Addr())
		if err != nil {
			return false, err
		}
		s.SetSilState(st)

	case OpSState:
		if err := vm.mem.StoreState(inst.Addr(), s.SilState()); err != nil {
			return false, err
		}

	// ===== Arithmetic =====
	case OpMul:
		r[ra] = r[ra].Mul(r[rb])
		s.UpdateFlags(ra)

	case OpDiv:
		r[ra] = r[ra].Div(r[rb])
		s.UpdateFlags(ra)

	case OpPow:
		r[ra] = r[ra].Pow(int(inst.Imm8()))
		s.UpdateFlags(ra)

	case OpRoot:
		r[ra] = r[ra].Root(int(inst.Imm8()))
		s.UpdateFlags(ra)

	case OpInv:
		r[ra] = r[ra].Inv()
		s.UpdateFlags(ra)

	case OpConj:
		r[ra] = r[ra].Conj()

	case OpAdd:
		r[ra] = r[ra].Add(r[rb])
		s.UpdateFlags(ra)

	case OpSub:
		r[ra] = r[ra].Sub(r[rb])
		s.UpdateFlags(ra)

	case OpMag:
		r[ra] = r[ra].Mag()

	case OpPhase:
		r[ra] = r[ra].PhaseOnly()

	case OpScale:
		r[ra] = r[ra].Scale(int8(inst.Imm8()))
		s.UpdateFlags(ra)

	case OpRotate:
		r[ra] = r[ra].Rotate(inst.Imm8())

	// ===== Layer =====
	case OpXorL:
		r[ra] = sil.FromByte(r[ra].Byte() ^ r[rb].Byte())

	case OpAndL:
		r[ra] = sil.FromByte(r[ra].Byte() & r[rb].Byte())

	case OpOrL:
		r[ra] = sil.FromByte(r[ra].Byte() | r[rb].Byte())

	case OpNotL:
		r[ra] = sil.FromByte(^r[ra].Byte())

	case OpShiftL:
		overflow := !r[NumRegs-1].IsNull()
		shifted := s.SilState().RotateLayers(1)
		shifted[0] = sil.Null
		s.SetSilState(shifted)
		if overflow {
			s.SR.Set(FlagOverflow, true)
		}

	case OpRotatL:
		s.SetSilState(s.SilState().RotateLayers(1))

	case OpFold:
		st := s.SilState()
		folded := st.Fold(sil.FoldXor)
		copy(r[:len(folded)], folded[:])

	case OpSpread:
		base := int(ra) / 4 * 4
		s.SetSilState(s.SilState().Spread(r[ra], base, 4))

	case OpGather:
		base := int(ra) / 4 * 4
		r[ra] = s.SilState().Gather(base, 4)

	// ===== Transform =====
	case OpTrans:
		id, err := vm.mem.LoadU32(inst.Addr())
		if err != nil {
			return false, err
		}
		vm.applyTransform(id)

	case OpPipe:
		ids, err := vm.mem.LoadPipeline(inst.Addr())
		if err != nil {
			return false, err
		}
		for _, id := range ids {
			vm.applyTransform(id)
		}

	case OpLerp:
		t := float64(inst.Imm8()) / 255
		za, zb := r[ra].Complex(), r[rb].Complex()
		r[ra] = sil.FromComplex(za*complex(1-t, 0) + zb*complex(t, 0))

	case OpSlerp:
		t := float32(inst.Imm8()) / 255
		a, b := sil.State{r[ra]}, sil.State{r[rb]}
		r[ra] = batch.LerpStates(a, b, t)[0]

	case OpGrad:
		g, err := vm.gradient()
		if err != nil {
			return false, err
		}
		s.Gradient = &g

	case OpDescent:
		if s.Gradient != nil {
			lr := float32(inst.Imm8()) / 255
			rho := float32(r[ra].Rho) - lr*s.Gradient[ra]
			rho = max(float32(sil.RhoMin), min(float32(sil.RhoMax), rho))
			r[ra].Rho = int8(rho)
		}

	case OpEmerge:
		// reserved, currently unimplemented

	case OpCollapse:
		r[RegCollapse] = r[ra]
		if r[RegCollapse].IsNull() {
			s.SR.Set(FlagCollapse, true)
		}

	// ===== Compatibility =====
	case OpSetMode:
		m, err := ModeFromBits(inst.Operand8())
		if err != nil {
			return false, err
		}
		s.Mode = m
		s.SR.Set(FlagModeChange, true)

	case OpPromote:
		m, err := ModeFromBits(inst.Imm8())
		if err != nil {
			return false, err
		}
		s.Promote(m)

	case OpDemote, OpXorDem:
		return false, vm.demote(inst, DemoteXor)

	case OpTruncate:
		return false, vm.demote(inst, DemoteTruncate)

	case OpAvgDem:
		return false, vm.demote(inst, DemoteAverage)

	case OpMaxDem:
		return false, vm.demote(inst, DemoteMax)

	case OpCompat:
		m, err := ModeFromBits(inst.Imm8())
		if err != nil {
			return false, err
		}
		s.Mode = s.Mode.Negotiate(m)

	// ===== Quantum =====
	case OpBitH:
		r[ra] = sil.QubitFrom(r[ra]).Hadamard().ByteSil()
		s.UpdateFlags(ra)

	case OpBitX:
		r[ra] = sil.QubitFrom(r[ra]).PauliX().ByteSil()
		s.UpdateFlags(ra)

	case OpBitY:
		r[ra] = sil.QubitFrom(r[ra]).PauliY().ByteSil()
		s.UpdateFlags(ra)

	case OpBitZ:
		r[ra] = sil.QubitFrom(r[ra]).PauliZ().ByteSil()
		s.UpdateFlags(ra)

	case OpBitCollapse:
		random := float32(r[ra].Theta) / float32(sil.ThetaSteps)
		one, q := sil.QubitFrom(r[ra]).Collapse(random)
		r[ra] = q.ByteSil()
		s.UpdateFlags(ra)
		s.SR.Set(FlagZero, !one)

	case OpBitMeasure:
		p := sil.QubitFrom(r[ra]).ProbZero()
		r[0] = sil.New(int8(p*15+0.5)+sil.RhoMin, 0)

	case OpBitRotQ:
		r[ra] = sil.QubitFrom(r[ra]).Rotate(int(r[1].Rho)).ByteSil()
		s.UpdateFlags(ra)

	case OpBitNorm:
		r[ra] = sil.QubitFrom(r[ra]).Normalize().ByteSil()
		s.UpdateFlags(ra)

	// ===== System =====
	case OpIn:
		v, err := vm.mem.IORead(uint32(inst.Imm8()))
		if err != nil {
			return false, err
		}
		r[ra] = v

	case OpOut:
		if err := vm.mem.IOWrite(uint32(inst.Imm8()), r[ra]); err != nil {
			return false, err
		}

	case OpSense:
		v, eof, err := vm.mem.Sense(int(ra))
		if err != nil {
			return false, err
		}
		r[ra] = v
		s.SR.Set(FlagZero, eof)

	case OpAct:
		if err := vm.mem.Actuate(int(ra), r[ra]); err != nil {
			return false, err
		}

	case OpSync:
		// reserved, currently unimplemented

	case OpBroadcast:
		if err := vm.mem.Broadcast(inst.Addr(), s.SilState()); err != nil {
			return false, err
		}

	case OpReceive:
		st, ok, err := vm.mem.Receive(inst.Addr())
		if err != nil {
			return false, err
		}
		if ok {
			s.SetSilState(st)
		}

	case OpEntangle:
		if err := vm.mem.Entangle(ra, uint32(rb), r[ra]); err != nil {
			return false, err
		}

	// ===== Hint =====
	case OpHintCPU, OpHintDSP:
		vm.sched.Backend = BackendCPU

	case OpHintGPU:
		vm.sched.Backend = BackendGPU

	case OpHintNPU:
		vm.sched.Backend = BackendNPU

	case OpHintFPGA:
		vm.sched.Backend = BackendFPGA

	case OpHintAny:
		vm.sched.Backend = BackendAny

	case OpBatch:
		vm.sched.InBatch = true
		vm.sched.BatchCount = inst.Imm24()

	case OpUnbatch:
		vm.sched.InBatch = false
		vm.sched.BatchCount = 0

	case OpPrefetch:
		if err := vm.mem.Prefetch(inst.Addr()); err != nil {
			return false, err
		}

	case OpFence:
		vm.sched.Fences++

	case OpSyscall:
		return false, vm.syscall(uint8(inst.Imm24()), uint16(inst.Imm24()>>8))

	default:
		return false, fmt.Errorf("%w: 0x%02X", ErrInvalidOpcode, byte(inst.Op))
	}
	return false, nil
}

// branch jumps to the instruction's address when cond holds.
func (vm *VM) branch(inst Instruction, cond bool) {
	if cond {
		vm.state.PC = inst.Imm24()
	}
}

func (vm *VM) demote(inst Instruction, strategy DemoteStrategy) error {
	m, err := ModeFromBits(inst.Imm8())
	if err != nil {
		return err
	}
	vm.state.Demote(m, strategy)
	return nil
}

// applyTransform runs a named transform. No transforms are registered in
// the core; unknown ids are ignored.
func (vm *VM) applyTransform(id uint32) {
	vm.log.Debug("transform ignored", zap.Uint32("id", id))
}

// gradient differentiates the register file, through the offloader when
// a batch region with a non-CPU hint is open.
func (vm *VM) gradient() ([NumRegs]float32, error) {
	if vm.offloader != nil && vm.sched.Offloaded() {
		ctx := vm.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		g, err := vm.offloader.Gradient(ctx, vm.sched, vm.state.SilState())
		if err == nil {
			return g, nil
		}
		vm.log.Warn("offload failed, computing inline", zap.Stringer("backend", vm.sched.Backend), zap.Error(err))
	}
	return batch.ComputeGradient(vm.state.SilState()).Rho(), nil
}
