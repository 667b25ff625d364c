// Package klog centralizes kernel text output.
//
// Every subsystem's init-time trace lines, recoverable-condition notices,
// and fatal diagnostic dumps are written through here instead of calling
// fmt.Printf directly, so the destination (a boot-time ring buffer before
// the VGA console exists, the VGA console after) is swappable in one
// place. Modeled on gopher-os's kernel/kfmt/early package and on how
// biscuit's subsystems funnel output through fmt against a kernel-resident
// writer.
package klog

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"gokernel/kernel/cpu"
)

var (
	mu  sync.Mutex
	out io.Writer = &ringBuffer{}

	// HaltFunc is overridden by tests (in this package and others, e.g.
	// kernel/interrupt's fatal-exception path) so Fatal's halt loop is
	// observable without actually executing the privileged CLI/HLT
	// instructions on the host. Mirrors gopher-os's cpuHaltFn indirection
	// in kfmt.Panic.
	HaltFunc = haltCPU
)

// haltCPU is HaltFunc's production value: clear the interrupt flag, then
// hlt.
func haltCPU() {
	cpu.DisableInterrupts()
	cpu.Halt()
}

// ringBuffer is the default pre-console sink: a small fixed buffer so boot
// text survives until SetOutput installs the real console, without ever
// touching the kernel heap (which does not exist yet at this point).
type ringBuffer struct {
	buf [4096]byte
	len int
}

func (r *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		r.buf[r.len%len(r.buf)] = b
		r.len++
	}
	return len(p), nil
}

// SetOutput redirects subsequent output to w (typically the VGA console,
// once kernel/vga.Init has run).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Printf writes a formatted trace line.
func Printf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, format, args...)
}

// Print writes args with a trailing newline, matching fmt.Println semantics.
func Print(args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out, args...)
}

// dumpCallers prints the Go call stack above its own caller, the way
// biscuit's caller.Callerdump dumps the chain of callers that led to a
// suspicious condition. On hardware there is no Go scheduler backing this
// binary's goroutines at ring 0, so this only produces useful output when
// Fatal runs under `go test` on the host; it is still safe to call on
// hardware (runtime.Callers degrades to an empty trace), just not useful
// there — the register image FatalException already prints carries the
// on-hardware equivalent.
func dumpCallers() {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	if n == 0 {
		return
	}
	frames := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := frames.Next()
		Printf("\t%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
}

// Fatal prints a banner around msg and halts the CPU. It never returns:
// a hlt can be woken by an interrupt, so Fatal calls HaltFunc (cli then
// hlt on real hardware) in a loop rather than trusting a single hlt to
// stick. Modeled on gopher-os's kernel.Panic /
// kfmt.Panic, which funnel every unrecoverable condition through a single
// halt point instead of letting a bare runtime panic unwind into undefined
// kernel state.
func Fatal(module, msg string) {
	Printf("\n-----------------------------------\n")
	Printf("[%s] unrecoverable error: %s\n", module, msg)
	dumpCallers()
	Printf("*** kernel halted ***\n")
	Printf("-----------------------------------\n")
	for {
		HaltFunc()
	}
}
