package interrupt

import (
	"sync/atomic"

	"gokernel/kernel/config"
)

// PIT ports and the 8254's fixed input frequency, translated from the
// original KAOS timer.c (command 0x36 on port 0x43 selects channel 0,
// square-wave mode, lobyte/hibyte access).
const (
	pitCommand   = 0x43
	pitChannel0  = 0x40
	pitFrequency = 1193182
	pitCommandSetup = 0x36
)

const timerIRQ = 0

var ticks uint64

// InitTimer programs the PIT to fire at hz ticks per second and wires its
// IRQ line to the scheduler's tick handler.
func InitTimer(hz int) {
	divisor := uint16(pitFrequency / hz)
	outb(pitCommand, pitCommandSetup)
	outb(pitChannel0, byte(divisor&0xFF))
	outb(pitChannel0, byte(divisor>>8))

	HandleIRQ(timerIRQ, func(f *Frame, r *Regs) {
		atomic.AddUint64(&ticks, 1)
		if tickHandler != nil {
			tickHandler(f, r)
		}
	})
}

// TickHandler is invoked on every timer interrupt, after the internal tick
// counter has been advanced. The scheduler installs its context-switch
// decision here (kernel/sched): f is the mutable CPU trap frame the
// assembly trampoline will iret with, and r the mutable saved general
// registers, so a context switch is just overwriting both in place.
type TickHandler func(f *Frame, r *Regs)

var tickHandler TickHandler

// OnTick registers the scheduler's per-tick callback.
func OnTick(h TickHandler) {
	tickHandler = h
}

// Ticks returns the number of timer interrupts serviced since boot, used
// for both the round-robin scheduler's bookkeeping and the wall clock.
func Ticks() uint64 {
	return atomic.LoadUint64(&ticks)
}

// Seconds converts a tick count to elapsed seconds at the configured
// timer frequency.
func Seconds(t uint64) uint64 {
	return t / uint64(config.TicksPerSecond)
}
