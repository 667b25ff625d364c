package interrupt

import "gokernel/kernel/cpu"

// outb/inb are indirected through package variables, mirroring gopher-os's
// cpuHaltFn pattern (kfmt.Panic), so the PIC/PIT/keyboard drivers' logic
// can be exercised by tests on the host without executing privileged port
// I/O instructions that only make sense against real hardware.
var (
	outb = cpu.Outb
	inb  = cpu.Inb
)
