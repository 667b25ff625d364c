// Package accnt accumulates per-task accounting data: context-switch
// counts and run-time nanoseconds, feeding both spec.md §3 Task's
// "context-switch counter" field and the pprof sample buffer kernel/sched
// hands to cmd/profdump.
//
// Grounded on biscuit's accnt.Accnt_t (biscuit/src/accnt/accnt.go): the
// mutex-guarded nanosecond counters and Add/Fetch shape are carried over;
// the user/system time split is not kept: it is collapsed to a single
// Runns counter plus the switch count spec.md asks for.
package accnt

import "sync"

// Accnt_t accumulates one task's scheduling statistics.
type Accnt_t struct {
	mu sync.Mutex

	// Switches is the number of times the scheduler has dispatched this
	// task (spec.md §3 Task "context-switch counter").
	Switches uint64

	// Runns is the total nanoseconds this task has held the CPU,
	// measured between consecutive context switches.
	Runns int64
}

// Switch records one dispatch of this task, adding ranNs nanoseconds of
// run time accumulated since the previous dispatch.
func (a *Accnt_t) Switch(ranNs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Switches++
	a.Runns += ranNs
}

// Snapshot returns a consistent copy of the counters.
func (a *Accnt_t) Snapshot() (switches uint64, runns int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Switches, a.Runns
}

// Sample is one {PID, RIP} pair appended on every timer tick (spec.md §4.5
// context switch). The kernel binary only ever appends to a Buffer; turning
// a Buffer into a pprof profile happens host-side, in cmd/profdump, so the
// kernel itself carries no pprof dependency.
type Sample struct {
	PID uint64
	RIP uint64
}

// Buffer is a fixed-capacity, allocation-free ring of Samples. Once full,
// further appends silently drop the oldest sample — acceptable for a
// diagnostic sampling buffer, never for correctness-relevant state.
type Buffer struct {
	mu     sync.Mutex
	data   []Sample
	cap    int
	next   int
	filled bool
}

// NewBuffer builds a Buffer that holds at most capacity samples.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]Sample, capacity), cap: capacity}
}

// Append records one sample, overwriting the oldest entry once the buffer
// has wrapped.
func (b *Buffer) Append(s Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cap == 0 {
		return
	}
	b.data[b.next] = s
	b.next = (b.next + 1) % b.cap
	if b.next == 0 {
		b.filled = true
	}
}

// Samples returns a copy of every sample currently held, oldest first.
func (b *Buffer) Samples() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.filled {
		out := make([]Sample, b.next)
		copy(out, b.data[:b.next])
		return out
	}
	out := make([]Sample, b.cap)
	copy(out, b.data[b.next:])
	copy(out[b.cap-b.next:], b.data[:b.next])
	return out
}
