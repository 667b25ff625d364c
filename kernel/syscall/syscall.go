// Package syscall implements the numbered system-call gateway spec.md
// §4.6 describes: a dispatcher keyed on the number a user task left in the
// argument convention's first register, fanning out to the sixteen fixed
// calls in spec.md's table. It is the one place kernel services (the
// scheduler, the console, the FAT12 volume, the keyboard) are exposed to
// ring 3.
//
// Structurally grounded on gopher-os's HandleException/HandleIRQ
// registration style (kernel/interrupt carries the same shape for its own
// vector table) generalized to a single syscall-number switch, since
// neither biscuit's nor gopher-os's syscall dispatcher itself was
// retrieved into the pack — the number table and argument convention come
// directly from spec.md §4.6/§6.
package syscall

import (
	"gokernel/kernel/errs"
	"gokernel/kernel/fat12"
	"gokernel/kernel/interrupt"
	"gokernel/kernel/sched"
	"gokernel/kernel/vga"
)

// Numbers, exactly as enumerated in spec.md §4.6.
const (
	Printf       = 1
	Getpid       = 2
	Terminate    = 3
	Getchar      = 4
	Getcursor    = 5
	Setcursor    = 6
	Execute      = 7
	PrintRootDir = 8
	ClearScreen  = 9
	Open         = 10
	Read         = 11
	Write        = 12
	Seek         = 13
	Eof          = 14
	Close        = 15
	Delete       = 16
)

// maxCString bounds how many bytes Gateway will walk looking for a NUL
// terminator in user memory, so a task that never terminates a string
// cannot make the kernel read forever (spec.md §7: user errors never
// panic the kernel).
const maxCString = 256

// Clock reports the FAT12 write-date/write-time pair to stamp on a Write,
// in the packed format fat12.PackDate/PackTime produce. Supplied by the
// boot sequence (kernel/bootinfo.BIB.Clock, see SPEC_FULL §12); the zero
// Clock returns zero stamps, which is enough for tests.
type Clock func() (date, time uint16)

// Gateway holds every kernel service a syscall can reach. Built once at
// boot (kernel/kmain) and installed via Install.
type Gateway struct {
	Tasks    *sched.Scheduler
	Console  *vga.Console
	Volume   *fat12.Volume
	Mem      UserMemory
	Exec     *ExecService
	Now      Clock
}

// Install registers g.Dispatch as the kernel's sole syscall entry point
// (spec.md §4.4: "vector 0x80... calls the dispatcher").
func (g *Gateway) Install() {
	interrupt.HandleSyscall(g.Dispatch)
}

func (g *Gateway) now() (uint16, uint16) {
	if g.Now == nil {
		return 0, 0
	}
	return g.Now()
}

func (g *Gateway) currentPID() uint64 {
	t := g.Tasks.Current()
	if t == nil {
		return 0
	}
	return uint64(t.PID)
}

// setReturn stores v (already accounting for errs.Err_t's negative
// encoding if v came from one) into the syscall's return register.
func setReturn(r *interrupt.Regs, v uint64) {
	r.RAX = v
}

func errReturn(e errs.Err_t) uint64 {
	return uint64(int64(e))
}
