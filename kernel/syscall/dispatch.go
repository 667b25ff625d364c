package syscall

import (
	"encoding/binary"
	"fmt"

	"gokernel/kernel/errs"
	"gokernel/kernel/fat12"
	"gokernel/kernel/interrupt"
	"gokernel/kernel/sched"
)

// Dispatch is the kernel's sole syscall entry point (spec.md §4.4/§4.6):
// the number travels in RAX, up to five payload arguments in RBX, RCX,
// RDX, RSI, RDI (spec.md §6 "numbered in first argument register,
// arguments 1..5 follow in the standard argument registers"), and the
// result — a non-negative value or one of errs's negative sentinels — is
// written back into RAX before the assembly trampoline's iret.
func (g *Gateway) Dispatch(r *interrupt.Regs) {
	switch r.RAX {
	case Printf:
		g.sysPrintf(r)
	case Getpid:
		setReturn(r, g.currentPID())
	case Terminate:
		g.sysTerminate(r)
	case Getchar:
		g.sysGetchar(r)
	case Getcursor:
		g.sysGetcursor(r)
	case Setcursor:
		g.Console.SetCursor(int(r.RBX), int(r.RCX))
		setReturn(r, 0)
	case Execute:
		g.sysExecute(r)
	case PrintRootDir:
		g.sysPrintRootDir(r)
	case ClearScreen:
		g.Console.Clear()
		setReturn(r, 0)
	case Open:
		g.sysOpen(r)
	case Read:
		g.sysRead(r)
	case Write:
		g.sysWrite(r)
	case Seek:
		g.sysSeek(r)
	case Eof:
		g.sysEof(r)
	case Close:
		g.sysClose(r)
	case Delete:
		g.sysDelete(r)
	default:
		// Unknown syscall number: a user error, never fatal (spec.md §7).
		setReturn(r, errReturn(errs.EINVAL))
	}
}

// sysPrintf implements syscall #1: write a NUL-terminated user string to
// the console.
func (g *Gateway) sysPrintf(r *interrupt.Regs) {
	s, ok := g.Mem.ReadCString(uintptr(r.RBX))
	if !ok {
		setReturn(r, errReturn(errs.EFAULT))
		return
	}
	fmt.Fprint(g.Console, s)
	setReturn(r, uint64(len(s)))
}

// sysTerminate implements syscall #3: remove the calling task from the
// scheduler. Control never returns to the caller's own instruction stream
// — the next iret lands in whatever task the termination made current.
func (g *Gateway) sysTerminate(r *interrupt.Regs) {
	g.Tasks.Terminate(sched.PID(g.currentPID()))
	setReturn(r, 0)
}

// sysGetchar implements syscall #4: the last buffered keyboard character,
// or 0 if none is pending (spec.md §4.6 table).
func (g *Gateway) sysGetchar(r *interrupt.Regs) {
	ch, ok := interrupt.GetChar()
	if !ok {
		setReturn(r, 0)
		return
	}
	setReturn(r, uint64(ch))
}

// sysGetcursor implements syscall #5: write the cursor's row and column
// through two caller-supplied pointers.
func (g *Gateway) sysGetcursor(r *interrupt.Regs) {
	row, col := g.Console.Cursor()
	var rowBuf, colBuf [8]byte
	binary.LittleEndian.PutUint64(rowBuf[:], uint64(row))
	binary.LittleEndian.PutUint64(colBuf[:], uint64(col))
	okRow := g.Mem.WriteAt(uintptr(r.RBX), rowBuf[:])
	okCol := g.Mem.WriteAt(uintptr(r.RCX), colBuf[:])
	if !okRow || !okCol {
		setReturn(r, errReturn(errs.EFAULT))
		return
	}
	setReturn(r, 0)
}

// sysExecute implements syscall #7's two-phase contract (spec.md §4.6,
// SPEC_FULL §13): validate and enqueue the filename, never load inline.
func (g *Gateway) sysExecute(r *interrupt.Regs) {
	name, ok := g.Mem.ReadCString(uintptr(r.RBX))
	if !ok {
		setReturn(r, errReturn(errs.EFAULT))
		return
	}
	setReturn(r, errReturn(g.Exec.Request(name)))
}

// sysPrintRootDir implements syscall #8: render every live root directory
// entry to the console, one per line (spec.md §4.6 table; name format per
// SPEC_FULL §12's DisplayName).
func (g *Gateway) sysPrintRootDir(r *interrupt.Regs) {
	entries := g.Volume.ListRoot()
	for _, e := range entries {
		fmt.Fprintf(g.Console, "%-12s %d\n", e.DisplayName(), e.Size)
	}
	setReturn(r, uint64(len(entries)))
}

// sysOpen implements syscall #10: resolve a filename to a file handle
// scoped to the calling task's PID (spec.md §3 File Descriptor).
func (g *Gateway) sysOpen(r *interrupt.Regs) {
	name, ok := g.Mem.ReadCString(uintptr(r.RBX))
	if !ok {
		setReturn(r, errReturn(errs.EFAULT))
		return
	}
	h, err := g.Volume.Open(name, g.currentPID())
	if err != 0 {
		setReturn(r, errReturn(err))
		return
	}
	setReturn(r, uint64(h))
}

// sysRead implements syscall #11: read into a user buffer through the
// handle's current offset.
func (g *Gateway) sysRead(r *interrupt.Regs) {
	h := fat12.Handle(r.RBX)
	n := int(r.RDX)
	buf := make([]byte, n)
	got, err := g.Volume.Read(h, buf)
	if err != 0 {
		setReturn(r, errReturn(err))
		return
	}
	if got > 0 && !g.Mem.WriteAt(uintptr(r.RCX), buf[:got]) {
		setReturn(r, errReturn(errs.EFAULT))
		return
	}
	setReturn(r, uint64(got))
}

// sysWrite implements syscall #12: write a user buffer through the
// handle's current offset.
func (g *Gateway) sysWrite(r *interrupt.Regs) {
	h := fat12.Handle(r.RBX)
	n := int(r.RDX)
	buf := make([]byte, n)
	if n > 0 && !g.Mem.ReadAt(uintptr(r.RCX), buf) {
		setReturn(r, errReturn(errs.EFAULT))
		return
	}
	date, time := g.now()
	written, err := g.Volume.Write(h, buf, date, time)
	if err != 0 {
		setReturn(r, errReturn(err))
		return
	}
	setReturn(r, uint64(written))
}

// sysSeek implements syscall #13.
func (g *Gateway) sysSeek(r *interrupt.Regs) {
	h := fat12.Handle(r.RBX)
	err := g.Volume.Seek(h, uint32(r.RCX))
	setReturn(r, errReturn(err))
}

// sysEof implements syscall #14: 1 if offset == size, else 0.
func (g *Gateway) sysEof(r *interrupt.Regs) {
	h := fat12.Handle(r.RBX)
	if g.Volume.Eof(h) {
		setReturn(r, 1)
	} else {
		setReturn(r, 0)
	}
}

// sysClose implements syscall #15.
func (g *Gateway) sysClose(r *interrupt.Regs) {
	g.Volume.Close(fat12.Handle(r.RBX))
	setReturn(r, 0)
}

// sysDelete implements syscall #16.
func (g *Gateway) sysDelete(r *interrupt.Regs) {
	name, ok := g.Mem.ReadCString(uintptr(r.RBX))
	if !ok {
		setReturn(r, errReturn(errs.EFAULT))
		return
	}
	err := g.Volume.Delete(name)
	setReturn(r, errReturn(err))
}

