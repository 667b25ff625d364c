// Package interrupt implements the kernel's interrupt plane: the IDT/GDT/TSS
// setup, the remapped 8259 PIC, the PIT timer tick, the PS/2 keyboard
// driver, and the vector dispatch table that routes a trapped CPU exception,
// a hardware IRQ, or the syscall trap (vector 0x80) to a registered Go
// handler. Modeled on gopher-os's kernel/irq package (Regs/Frame shape and
// the HandleException/HandleExceptionWithCode registration style), extended
// with IRQ and syscall routing since gopher-os's kmain never went past
// exception handling.
package interrupt

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"gokernel/kernel/config"
	"gokernel/kernel/klog"
)

// Regs is a snapshot of the general-purpose registers at the moment a trap
// was taken, pushed by the vector's assembly stub (trap_amd64.s) before it
// calls Dispatch.
type Regs struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
}

// Frame is the exception frame the CPU itself pushes on every trap.
type Frame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// ExceptionHandler handles one of the 32 CPU-defined exception vectors.
// errCode is 0 for exceptions that do not push one.
type ExceptionHandler func(errCode uint64, f *Frame, r *Regs)

// IRQHandler handles one remapped hardware interrupt line (0-15). It
// receives the CPU-pushed trap frame as well as the saved general
// registers so a handler that must replace the running context outright
// (the scheduler's timer tick, spec.md §4.5) can overwrite RIP/RSP/RFlags/
// CS/SS in place before the assembly trampoline's iret.
type IRQHandler func(f *Frame, r *Regs)

// SyscallHandler handles the vector 0x80 software trap. The syscall number
// and arguments travel in Regs exactly as a user-mode `int 0x80` left them.
type SyscallHandler func(r *Regs)

const numExceptions = 32
const numIRQs = 16

var (
	exceptionHandlers [numExceptions]ExceptionHandler
	irqHandlers       [numIRQs]IRQHandler
	syscallHandler    SyscallHandler
)

// HandleException registers the handler invoked whenever CPU exception
// vector num (0-31) is taken.
func HandleException(num uint8, h ExceptionHandler) {
	exceptionHandlers[num] = h
}

// HandleIRQ registers the handler invoked whenever hardware line irq (0-15)
// fires, after PIC remapping has placed it at vector PICMasterVector+irq.
func HandleIRQ(irq uint8, h IRQHandler) {
	irqHandlers[irq] = h
}

// HandleSyscall registers the kernel's single syscall gateway entry point.
func HandleSyscall(h SyscallHandler) {
	syscallHandler = h
}

// Dispatch is the sole entry point the assembly trampoline calls for every
// trapped vector. It is exported only so trap_amd64.s can reach it; kernel
// code never calls Dispatch directly.
func Dispatch(vector uint8, errCode uint64, f *Frame, r *Regs) {
	switch {
	case vector < numExceptions:
		if h := exceptionHandlers[vector]; h != nil {
			h(errCode, f, r)
		} else {
			FatalException(vector, errCode, f)
		}
	case vector == config.SyscallVector:
		if syscallHandler != nil {
			syscallHandler(r)
		}
	case vector >= config.PICMasterVector && vector < config.PICMasterVector+numIRQs:
		irq := vector - config.PICMasterVector
		if h := irqHandlers[irq]; h != nil {
			h(f, r)
		}
		SendEOI(irq)
	}
}

// CodeReader returns up to 15 bytes (the longest possible x86-64
// instruction) starting at the given RIP, or nil if rip isn't currently
// readable. Set by the boot sequence once the direct-map window exists;
// FatalException works without one, it just loses the decoded mnemonic.
type CodeReader func(rip uint64) []byte

var codeReader CodeReader

// SetCodeReader installs the fault dump's instruction-fetch hook.
func SetCodeReader(r CodeReader) { codeReader = r }

// decodeFaultingInstruction disassembles the instruction at f.RIP, the way
// a hosted debugger's crash dump would annotate a backtrace, rather than
// leaving the operator to read raw opcode bytes by hand.
func decodeFaultingInstruction(f *Frame) string {
	if codeReader == nil {
		return ""
	}
	code := codeReader(f.RIP)
	if len(code) == 0 {
		return ""
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return ""
	}
	return " instr=" + x86asm.GNUSyntax(inst, f.RIP, nil)
}

// FatalException renders the diagnostic dump and halts the machine. Dispatch
// calls it for any exception vector with no registered handler; a registered
// handler (kernel/kmain's page-fault and general-protection handlers, for
// instance) calls it directly once it has determined a fault did not
// originate in ring 3 and so cannot be resolved by terminating a task.
func FatalException(vector uint8, errCode uint64, f *Frame) {
	klog.Fatal("interrupt", fmt.Sprintf("unhandled exception %d error=%#x rip=%#x%s",
		vector, errCode, f.RIP, decodeFaultingInstruction(f)))
}
