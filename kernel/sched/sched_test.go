package sched

import (
	"testing"

	"gokernel/kernel/interrupt"
	"gokernel/kernel/mem/pfa"
)

// fakeFrames is a trivial FrameSource for Arena tests: it never actually
// runs out, and records every Release call so tests can assert on it.
type fakeFrames struct {
	released []pfa.PFN
}

func (f *fakeFrames) Allocate() pfa.PFN { return pfa.NoFrame }
func (f *fakeFrames) Release(p pfa.PFN) { f.released = append(f.released, p) }

func newTestScheduler() (*Scheduler, *fakeFrames) {
	frames := &fakeFrames{}
	arena := NewArena(frames)
	return New(arena), frames
}

// TestRoundRobinFairness mirrors spec.md §8 property 1: over many ticks,
// every runnable task is dispatched within one of the others of its turn.
func TestRoundRobinFairness(t *testing.T) {
	s, _ := newTestScheduler()
	const n = 4
	tasks := make([]*Task, n)
	for i := 0; i < n; i++ {
		tasks[i] = s.CreateKernelTask(0x1000, 0x2000, 0)
	}

	const ticks = 400
	f := &interrupt.Frame{}
	r := &interrupt.Regs{}
	for i := 0; i < ticks; i++ {
		s.Tick(f, r)
	}

	for _, task := range tasks {
		switches, _ := task.Acct.Snapshot()
		want := ticks / n
		if switches < uint64(want-1) || switches > uint64(want+1) {
			t.Fatalf("pid %d got %d switches, want close to %d", task.PID, switches, want)
		}
	}
}

// TestTickSavesAndRestoresImage checks that one tick copies the CPU frame
// into the outgoing task and the incoming task's saved image back into
// the frame (spec.md §4.5 context switch).
func TestTickSavesAndRestoresImage(t *testing.T) {
	s, _ := newTestScheduler()
	a := s.CreateKernelTask(0x1000, 0x5000, 0x10)
	b := s.CreateKernelTask(0x2000, 0x6000, 0x20)
	_ = a

	f := &interrupt.Frame{RIP: 0xDEAD, RSP: 0x7000}
	r := &interrupt.Regs{RAX: 42}
	s.Tick(f, r)

	if a.Image.RIP != 0xDEAD || a.Image.RSP != 0x7000 {
		t.Fatalf("outgoing task's image not saved: %+v", a.Image)
	}
	if a.Image.GP.RAX != 42 {
		t.Fatalf("outgoing task's general registers not saved: %+v", a.Image.GP)
	}
	if f.RIP != 0x2000 || f.RSP != 0x6000 {
		t.Fatalf("frame not restored from incoming task b's image: frame=%+v", f)
	}
	if s.Current().PID != b.PID {
		t.Fatalf("Current() = %d, want %d", s.Current().PID, b.PID)
	}
}

// TestSingleTaskNeverSwitchesAway ensures a lone task keeps running itself
// rather than the rotation losing track of it (spec.md §7 edge case: a
// one-task system).
func TestSingleTaskNeverSwitchesAway(t *testing.T) {
	s, _ := newTestScheduler()
	only := s.CreateKernelTask(0x1000, 0x2000, 0)

	f := &interrupt.Frame{}
	r := &interrupt.Regs{}
	for i := 0; i < 10; i++ {
		s.Tick(f, r)
	}
	if s.Current().PID != only.PID {
		t.Fatalf("Current() = %d, want the only task %d", s.Current().PID, only.PID)
	}
	if only.State != StateRunning {
		t.Fatalf("only task's state = %v, want running", only.State)
	}
}

// TestTerminateReleasesArenaFrames mirrors spec.md §9's REDESIGN FLAG: a
// terminated task's tracked frames come back to the frame allocator.
func TestTerminateReleasesArenaFrames(t *testing.T) {
	s, frames := newTestScheduler()
	owned := []pfa.PFN{10, 11, 12}
	task := s.CreateUserTask(0x400000, 0x7FFFF000, 0x3000, 0x4000, owned)

	s.Terminate(task.PID)

	if len(frames.released) != len(owned) {
		t.Fatalf("released %d frames, want %d", len(frames.released), len(owned))
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d after terminating the only task, want 0", s.Len())
	}
	if s.Current() != nil {
		t.Fatalf("Current() should be nil after terminating the last task")
	}
}

// TestTerminateCurrentHandsOffToNext checks terminating the running task
// does not stall the rotation when others remain runnable.
func TestTerminateCurrentHandsOffToNext(t *testing.T) {
	s, _ := newTestScheduler()
	a := s.CreateKernelTask(0x1000, 0x2000, 0)
	b := s.CreateKernelTask(0x3000, 0x4000, 0)

	s.Terminate(a.PID)

	if s.Current() == nil || s.Current().PID != b.PID {
		t.Fatalf("Current() after terminating a = %v, want %d", s.Current(), b.PID)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

// TestTerminateFaultingResumesNextTask mirrors spec.md §8 property 7 and
// scenario E5: a fault handler that cannot recover kills only the faulting
// task and the trap frame it hands back must already be the next runnable
// task's image, so the trampoline's iret resumes that task instead of
// reviving the one just killed.
func TestTerminateFaultingResumesNextTask(t *testing.T) {
	s, frames := newTestScheduler()
	owned := []pfa.PFN{7, 8}
	bad := s.CreateUserTask(0x400000, 0x7FFFF000, 0x3000, 0x4000, owned)
	good := s.CreateKernelTask(0x1000, 0x2000, 0x10)
	_ = bad

	f := &interrupt.Frame{RIP: 0xBADF00D}
	r := &interrupt.Regs{}
	s.TerminateFaulting(f, r)

	if s.Current() == nil || s.Current().PID != good.PID {
		t.Fatalf("Current() after TerminateFaulting = %v, want %d", s.Current(), good.PID)
	}
	if f.RIP != good.Image.RIP {
		t.Fatalf("frame not restored to the surviving task's image: f.RIP=%#x, want %#x", f.RIP, good.Image.RIP)
	}
	if len(frames.released) != len(owned) {
		t.Fatalf("released %d frames, want %d", len(frames.released), len(owned))
	}
}

// TestTerminateFaultingLastTaskLeavesNoCurrent checks the single-task edge
// case: nothing remains to resume, so Current() must go back to nil rather
// than leaving stale state behind.
func TestTerminateFaultingLastTaskLeavesNoCurrent(t *testing.T) {
	s, _ := newTestScheduler()
	s.CreateKernelTask(0x1000, 0x2000, 0)

	f := &interrupt.Frame{RIP: 0xBADF00D}
	r := &interrupt.Regs{}
	s.TerminateFaulting(f, r)

	if s.Current() != nil {
		t.Fatalf("Current() should be nil after faulting out the only task")
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}
