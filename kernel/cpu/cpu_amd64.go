// Package cpu declares the architecture primitives the rest of the kernel
// needs that cannot be expressed in Go: port I/O, control-register access,
// descriptor-table loads, and the interrupt-enable flag. Each function is
// implemented in cpu_amd64.s, following the split gopher-os uses for
// kernel/cpu (Go declarations with assembly bodies, one function per
// instruction or tight instruction group).
package cpu

// EnableInterrupts sets the interrupt flag (sti).
func EnableInterrupts()

// DisableInterrupts clears the interrupt flag (cli).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (hlt).
func Halt()

// Outb writes a byte to an I/O port.
func Outb(port uint16, val uint8)

// Inb reads a byte from an I/O port.
func Inb(port uint16) uint8

// Outw writes a 16-bit word to an I/O port.
func Outw(port uint16, val uint16)

// Inw reads a 16-bit word from an I/O port.
func Inw(port uint16) uint16

// ReadCR2 returns the faulting address recorded by the last page fault.
func ReadCR2() uintptr

// ReadCR3 returns the physical address of the active PML4.
func ReadCR3() uintptr

// WriteCR3 loads a new PML4 physical address, flushing the TLB.
func WriteCR3(pml4phys uintptr)

// FlushTLBEntry invalidates the TLB entry for a single virtual address.
func FlushTLBEntry(virtAddr uintptr)

// Lidt loads the interrupt descriptor table register.
func Lidt(base uintptr, limit uint16)

// Lgdt loads the global descriptor table register.
func Lgdt(base uintptr, limit uint16)

// Ltr loads the task register with the given GDT selector.
func Ltr(selector uint16)

// Rdtsc returns the CPU timestamp counter, used only for diagnostics.
func Rdtsc() uint64
