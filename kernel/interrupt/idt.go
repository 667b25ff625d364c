package interrupt

import (
	"unsafe"

	"gokernel/kernel/config"
	"gokernel/kernel/cpu"
)

// gateType selects an IDT entry's descriptor type, per the x86_64 IDT
// gate-descriptor layout (Intel SDM Vol. 3A §6.14.1), translated from the
// original KAOS idt.c's interrupt/trap gate split.
type gateType uint8

const (
	gateInterrupt gateType = 0xE // interrupts remain disabled on entry
	gateTrap      gateType = 0xF // interrupts stay enabled on entry
)

const (
	kernelCodeSelector = 0x08
	numVectors         = 256
)

// gate is one 16-byte x86_64 IDT gate descriptor.
type gate struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

func makeGate(handler uintptr, dpl uint8, typ gateType) gate {
	return gate{
		offsetLow:  uint16(handler),
		selector:   kernelCodeSelector,
		ist:        0,
		typeAttr:   0x80 | (dpl&0x3)<<5 | uint8(typ),
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(handler >> 32),
	}
}

var idt [numVectors]gate

// lidt is indirected so Init's IDT-building logic can be tested without
// executing the privileged LIDT instruction.
var lidt = cpu.Lidt

// vectorHandlers is filled in by trap_amd64.s's stub table: vectorHandlers[i]
// is the entry address of the assembly trampoline for vector i, which
// saves registers, pushes the vector number, and calls Dispatch.
var vectorHandlers [numVectors]uintptr

// Init builds the IDT (every CPU exception vector as a trap gate so a
// double fault during an exception handler is still delivered, every IRQ
// and the syscall vector as interrupt gates) and loads it with LIDT. The
// syscall gate additionally gets DPL=3 so user code may reach it via
// `int 0x80` (spec.md §4.4).
func Init() {
	installVectors()
	for v := 0; v < numExceptions; v++ {
		idt[v] = makeGate(vectorHandlers[v], 0, gateTrap)
	}
	for v := numExceptions; v < numVectors; v++ {
		idt[v] = makeGate(vectorHandlers[v], 0, gateInterrupt)
	}
	idt[config.SyscallVector] = makeGate(vectorHandlers[config.SyscallVector], 3, gateInterrupt)

	lidt(uintptr(unsafe.Pointer(&idt[0])), uint16(len(idt)*16-1))
}
