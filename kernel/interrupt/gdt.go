package interrupt

import (
	"unsafe"

	"gokernel/kernel/cpu"
)

// segDescriptor is one 8-byte x86_64 GDT entry. The long-mode code/data
// segments the kernel needs carry no base/limit semantics (the CPU ignores
// them outside compatibility mode) but the access and flag bytes still
// select ring, type, and the 64-bit code flag.
type segDescriptor uint64

func codeSeg(dpl uint8) segDescriptor {
	const accessPresent = 1 << 7
	const accessCode = 1 << 3
	const accessRW = 1 << 1 // readable
	const flagLongMode = 1 << 5
	access := uint64(accessPresent | accessCode | accessRW | (dpl&0x3)<<5 | 1<<4)
	return segDescriptor(access<<40 | flagLongMode<<48)
}

func dataSeg(dpl uint8) segDescriptor {
	const accessPresent = 1 << 7
	const accessRW = 1 << 1 // writable
	access := uint64(accessPresent | accessRW | (dpl&0x3)<<5 | 1<<4)
	return segDescriptor(access << 40)
}

// tssDescriptor is a 16-byte GDT entry (occupies two 8-byte slots) pointing
// at the TSS, since its base address needs the full 64 bits.
type tssDescriptor struct {
	low  uint64
	high uint64
}

func makeTSSDescriptor(base uintptr, limit uint32) tssDescriptor {
	const accessPresent = 1 << 7
	const accessTSSType = 0x9 // 64-bit TSS (available)
	access := uint64(accessPresent | accessTSSType)
	low := uint64(limit&0xFFFF) |
		(uint64(base)&0xFFFFFF)<<16 |
		access<<40 |
		(uint64(limit>>16)&0xF)<<48 |
		(uint64(base)>>24&0xFF)<<56
	high := uint64(base) >> 32
	return tssDescriptor{low: low, high: high}
}

// Selector indices into the GDT, fixed by convention (spec.md §4.4): code
// and data segments are flat, ring 0 for the kernel and ring 3 for user
// tasks, with the TSS trailing them.
const (
	SelNull     = 0x00
	SelKernCode = 0x08
	SelKernData = 0x10
	SelUserData = 0x18 | 3
	SelUserCode = 0x20 | 3
	SelTSS      = 0x28
)

// TaskStateSegment holds, for our purposes, only RSP0: the kernel stack
// pointer the CPU loads on any privilege-level change into ring 0 (an
// interrupt or syscall trap from user mode). Every other TSS field is
// left zero since this kernel does not use hardware task switching or
// I/O permission bitmaps.
type TaskStateSegment struct {
	reserved0 uint32
	RSP0      uint64
	rsp1      uint64
	rsp2      uint64
	reserved1 uint64
	ist       [7]uint64
	reserved2 uint64
	reserved3 uint16
	iomapBase uint16
}

var (
	gdt [7]uint64 // null, kern code, kern data, user data, user code, tss(2 slots)
	tss TaskStateSegment
)

// InitGDT builds the flat GDT plus the TSS descriptor and loads GDTR/TR.
func InitGDT() {
	gdt[0] = 0
	gdt[1] = uint64(codeSeg(0))
	gdt[2] = uint64(dataSeg(0))
	gdt[3] = uint64(dataSeg(3))
	gdt[4] = uint64(codeSeg(3))

	tssDesc := makeTSSDescriptor(uintptr(unsafe.Pointer(&tss)), uint32(unsafe.Sizeof(tss))-1)
	gdt[5] = tssDesc.low
	gdt[6] = tssDesc.high

	lgdt(uintptr(unsafe.Pointer(&gdt[0])), uint16(len(gdt)*8-1))
	ltr(SelTSS)
}

// SetKernelStack updates RSP0 so the next trap from user mode lands on
// the given kernel stack top. The scheduler calls this on every context
// switch into a user task (spec.md §5 task switch contract).
func SetKernelStack(rsp0 uintptr) {
	tss.RSP0 = uint64(rsp0)
}

var (
	lgdt = cpu.Lgdt
	ltr  = cpu.Ltr
)
