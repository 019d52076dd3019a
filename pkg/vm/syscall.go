package vm

import (
	"fmt"

	"github.com/akhildatla/vsp/pkg/sil"
)

// Syscall ids. Output goes to the VM's configured writer.
const (
	SysPrintln     uint8 = 0x00
	SysPrintString uint8 = 0x01 // NUL-terminated string at data offset arg
	SysPrintInt    uint8 = 0x02 // R0.ρ
	SysPrintBool   uint8 = 0x04 // R0 != Null
	SysPrintSil    uint8 = 0x05 // R0
	SysPrintState  uint8 = 0x06 // R0-RF
	SysNull        uint8 = 0x13 // R0 = Null
	SysOne         uint8 = 0x14 // R0 = One
	SysI           uint8 = 0x15 // R0 = i
	SysNegOne      uint8 = 0x16 // R0 = -1
	SysNegI        uint8 = 0x17 // R0 = -i
	SysMax         uint8 = 0x18 // R0 = Max
)

var syscallConsts = map[uint8]sil.ByteSil{
	SysNull:   sil.Null,
	SysOne:    sil.One,
	SysI:      sil.I,
	SysNegOne: sil.NegOne,
	SysNegI:   sil.NegI,
	SysMax:    sil.Max,
}

var syscallNames = map[uint8]string{
	SysPrintln:     "println",
	SysPrintString: "print_string",
	SysPrintInt:    "print_int",
	SysPrintBool:   "print_bool",
	SysPrintSil:    "print_sil",
	SysPrintState:  "print_state",
	SysNull:        "null",
	SysOne:         "one",
	SysI:           "i",
	SysNegOne:      "neg_one",
	SysNegI:        "neg_i",
	SysMax:         "max",
}

// SyscallName returns the assembler name of a syscall id.
func SyscallName(id uint8) (string, bool) {
	name, ok := syscallNames[id]
	return name, ok
}

// SyscallFromString looks up a syscall id by its lower-case name.
func SyscallFromString(name string) (uint8, bool) {
	for id, n := range syscallNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

func (vm *VM) syscall(id uint8, arg uint16) error {
	r := &vm.state.Regs
	var err error
	switch id {
	case SysPrintln:
		_, err = fmt.Fprintln(vm.stdout)
	case SysPrintString:
		var str string
		if str, err = vm.cString(uint32(arg)); err == nil {
			_, err = fmt.Fprint(vm.stdout, str)
		}
	case SysPrintInt:
		_, err = fmt.Fprint(vm.stdout, r[0].Rho)
	case SysPrintBool:
		_, err = fmt.Fprint(vm.stdout, !r[0].IsNull())
	case SysPrintSil:
		_, err = fmt.Fprint(vm.stdout, r[0])
	case SysPrintState:
		_, err = fmt.Fprint(vm.stdout, vm.state.SilState())
	default:
		v, ok := syscallConsts[id]
		if !ok {
			return fmt.Errorf("%w: 0x%02X", ErrInvalidSyscall, id)
		}
		r[0] = v
	}
	return err
}

// cString reads a NUL-terminated string from the data section.
func (vm *VM) cString(off uint32) (string, error) {
	data := vm.mem.Data()
	if uint64(off) >= uint64(len(data)) {
		return "", addrErr("load", off, ErrAddressOutOfBounds)
	}
	end := off
	for end < uint32(len(data)) && data[end] != 0 {
		end++
	}
	return string(data[off:end]), nil
}
