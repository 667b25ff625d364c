package sched

import (
	"sync"

	"gokernel/kernel/mem/pfa"
	"gokernel/kernel/mem/vmm"
)

// Arena is the central owner of every resource a task holds outside its
// Task record: the frames backing its kernel (and, for a user task, user)
// stack, and — for a user task — the top-level PML4 frame of its cloned
// address space. Concentrating ownership here, rather than letting each
// task free its own resources piecemeal, is the REDESIGN FLAG spec.md §9
// calls for in place of the baseline's documented "Terminate leaks the
// dead task's stack and PML4" behavior.
//
// Arena deliberately never releases the shared lower page-table levels a
// clone inherited from the kernel address space (slot 0 identity map,
// slot 256 higher half) — only the frames a task's own entry explicitly
// lists as owned, which Load/CreateUserTask populate with exactly the
// frames it allocated itself.
type Arena struct {
	mu     sync.Mutex
	frames vmm.FrameSource
	owned  map[PID][]pfa.PFN
}

// NewArena builds an Arena releasing frames back to frames on Release.
func NewArena(frames vmm.FrameSource) *Arena {
	return &Arena{frames: frames, owned: make(map[PID][]pfa.PFN)}
}

// Track records that pid exclusively owns the given frames: its kernel
// stack, its user stack if any, its cloned PML4 frame, and every
// intermediate page-table frame that clone allocated fresh rather than
// inheriting from the kernel's shared tree.
func (a *Arena) Track(pid PID, frames []pfa.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.owned[pid] = append(a.owned[pid], frames...)
}

// Release returns every frame tracked for pid to the frame allocator and
// forgets pid. Releasing a pid that was never tracked is a no-op.
func (a *Arena) Release(pid PID) {
	a.mu.Lock()
	owned := a.owned[pid]
	delete(a.owned, pid)
	a.mu.Unlock()

	for _, pfn := range owned {
		a.frames.Release(pfn)
	}
}

// Owned returns a copy of the frames currently tracked for pid, for tests
// and diagnostics.
func (a *Arena) Owned(pid PID) []pfa.PFN {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]pfa.PFN, len(a.owned[pid]))
	copy(out, a.owned[pid])
	return out
}
