package sched

import (
	"container/list"
	"sync"

	"gokernel/kernel/accnt"
	"gokernel/kernel/cpu"
	"gokernel/kernel/interrupt"
	"gokernel/kernel/klog"
	"gokernel/kernel/mem/pfa"
)

// nsPerTick is the wall-clock duration of one scheduling quantum at the
// configured timer rate (spec.md §4.4 TimerHz), used only for the
// accounting counters in kernel/accnt.
const nsPerTick = 1_000_000_000 / 250

// Scheduler is the preemptive round-robin scheduler (spec.md §4.5): a
// circular task list rotated by one position on every timer tick, with
// the head always the task the CPU is about to run next. Grounded
// structurally on biscuit's circular Task list pattern described in
// spec.md §3 Task List; gopher-os never implemented a scheduler, so the
// timer-driven rotation itself follows spec.md §4.5 directly, wired
// through the kernel/interrupt.OnTick seam the interrupt plane exposes.
type Scheduler struct {
	mu      sync.Mutex
	tasks   *list.List // *Task, in round-robin order
	byPID   map[PID]*list.Element
	current *list.Element
	nextPID PID
	arena   *Arena

	// Samples, if non-nil, receives one {PID, RIP} pair per tick (the
	// outgoing task's program counter at the moment it was preempted) —
	// cmd/profdump's raw material. Nil by default so tests and tools
	// that never call Install aren't forced to carry a buffer.
	Samples *accnt.Buffer
}

// New builds an empty Scheduler. The caller is responsible for calling
// Install to wire it to the timer tick once interrupts are set up.
func New(arena *Arena) *Scheduler {
	return &Scheduler{
		tasks: list.New(),
		byPID: make(map[PID]*list.Element),
		arena: arena,
	}
}

// Install registers s.Tick as the timer's per-interrupt callback
// (spec.md §4.5: "the timer tick drives preemption").
func (s *Scheduler) Install() {
	interrupt.OnTick(s.Tick)
}

func (s *Scheduler) allocPID() PID {
	s.nextPID++
	return s.nextPID
}

// CreateKernelTask adds a kernel-mode task whose first instruction is
// entryRIP, running on the kernel's shared address space and the given
// kernel stack (spec.md §4.5 "kernel task creation"). It starts Runnable
// and is inserted just behind the current task so an already-running
// rotation finishes its lap before the newcomer is scheduled.
func (s *Scheduler) CreateKernelTask(entryRIP, kernelStackTop uintptr, kernelCR3 uintptr) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{
		PID:            s.allocPID(),
		State:          StateRunnable,
		KernelStackTop: kernelStackTop,
		IsUser:         false,
	}
	t.Image.RIP = uint64(entryRIP)
	t.Image.RSP = uint64(kernelStackTop)
	t.Image.CR3 = kernelCR3
	t.Image.RFlags = 0x202 // IF set, reserved bit 1 set, matching a fresh iret frame

	s.insert(t)
	return t
}

// CreateUserTask adds a user-mode task whose first instruction is
// entryRIP (always config.ExecutableBase in practice) atop its own cloned
// address space cr3, with separate kernel and user stacks (spec.md §4.5
// "user task creation": clone kernel PML4, load the program into the
// clone, fill in the task record). ownedFrames lists every frame this
// task exclusively owns — its two stacks, its cloned PML4, and any
// page-table frames the loader allocated placing the program — which the
// Scheduler hands to its Arena so Terminate can reclaim them.
func (s *Scheduler) CreateUserTask(entryRIP, userStackTop, kernelStackTop uintptr, cr3 uintptr, ownedFrames []pfa.PFN) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{
		PID:            s.allocPID(),
		State:          StateRunnable,
		KernelStackTop: kernelStackTop,
		UserStackTop:   userStackTop,
		IsUser:         true,
	}
	t.Image.RIP = uint64(entryRIP)
	t.Image.RSP = uint64(userStackTop)
	t.Image.CR3 = cr3
	t.Image.RFlags = 0x202
	t.Image.CS = interrupt.SelUserCode
	t.Image.SS = interrupt.SelUserData

	s.insert(t)
	if len(ownedFrames) > 0 {
		s.arena.Track(t.PID, ownedFrames)
	}
	return t
}

func (s *Scheduler) insert(t *Task) {
	var elem *list.Element
	if s.current != nil {
		elem = s.tasks.InsertBefore(t, s.current)
	} else {
		elem = s.tasks.PushBack(t)
	}
	s.byPID[t.PID] = elem
	if s.current == nil {
		s.current = elem
		t.State = StateRunning
	}
}

// Current returns the task presently at the head of the rotation, or nil
// if no task exists.
func (s *Scheduler) Current() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.Value.(*Task)
}

// Len reports how many tasks are currently schedulable.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Len()
}

// Tick performs one round-robin rotation (spec.md §4.5 context switch): it
// saves the outgoing task's register image from the CPU-pushed frame and
// saved general registers, advances to the next Runnable task, restores
// that task's image into f and r in place, and records accounting for
// both tasks. Installed as the timer's TickHandler via Install; the
// caller (trap_amd64.s, through interrupt.Dispatch) is responsible for
// the actual iret that resumes execution at the now-overwritten frame.
func (s *Scheduler) Tick(f *interrupt.Frame, r *interrupt.Regs) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}
	out := s.current.Value.(*Task)
	out.Image.RIP = f.RIP
	out.Image.CS = f.CS
	out.Image.RFlags = f.RFlags
	out.Image.RSP = f.RSP
	out.Image.SS = f.SS
	out.Image.GP = *r
	out.State = StateRunnable
	out.Acct.Switch(nsPerTick)
	if s.Samples != nil {
		s.Samples.Append(accnt.Sample{PID: uint64(out.PID), RIP: f.RIP})
	}

	next := s.nextRunnable(s.current)
	if next == nil {
		// only one runnable task (possibly the same one): keep running it.
		out.State = StateRunning
		return
	}

	s.current = next
	in := next.Value.(*Task)
	in.State = StateRunning

	f.RIP = in.Image.RIP
	f.CS = in.Image.CS
	f.RFlags = in.Image.RFlags
	f.RSP = in.Image.RSP
	f.SS = in.Image.SS
	*r = in.Image.GP

	if in.Image.CR3 != 0 {
		cpu.WriteCR3(uintptr(in.Image.CR3))
	}
	interrupt.SetKernelStack(in.KernelStackTop)
}

// TerminateFaulting removes the currently running task from rotation
// exactly as Terminate does, then — unlike Terminate, which is invoked from
// a syscall context that is about to return into the caller's own restored
// image — loads the next runnable task's saved image into f and r in place,
// the way Tick hands off between tasks. It is the exception plane's entry
// point (kernel/kmain's page-fault and general-protection handlers) for
// killing a task whose fault cannot be resolved: the assembly trampoline's
// iret must resume into some other task, not back into the one just
// terminated (spec.md §8 testable property 7, scenario E5).
func (s *Scheduler) TerminateFaulting(f *interrupt.Frame, r *interrupt.Regs) {
	s.mu.Lock()
	elem := s.current
	if elem == nil {
		s.mu.Unlock()
		return
	}
	t := elem.Value.(*Task)
	pid := t.PID

	delete(s.byPID, pid)
	next := s.nextRunnable(elem)
	s.current = next
	s.tasks.Remove(elem)
	if s.tasks.Len() == 0 {
		s.current = nil
	}

	if next == nil {
		s.mu.Unlock()
		s.arena.Release(pid)
		klog.Printf("sched: terminated faulting pid %d, no runnable task remains\n", pid)
		return
	}

	in := next.Value.(*Task)
	in.State = StateRunning

	f.RIP = in.Image.RIP
	f.CS = in.Image.CS
	f.RFlags = in.Image.RFlags
	f.RSP = in.Image.RSP
	f.SS = in.Image.SS
	*r = in.Image.GP

	if in.Image.CR3 != 0 {
		cpu.WriteCR3(uintptr(in.Image.CR3))
	}
	interrupt.SetKernelStack(in.KernelStackTop)
	s.mu.Unlock()

	s.arena.Release(pid)
	klog.Printf("sched: terminated faulting pid %d\n", pid)
}

// nextRunnable walks forward from start, wrapping around, for the first
// element in StateRunnable or StateRunning. A task left in StateWaiting
// (blocked on something outside the scheduler's view) is skipped over,
// never selected. Returns nil if start is the only candidate.
func (s *Scheduler) nextRunnable(start *list.Element) *list.Element {
	e := start.Next()
	if e == nil {
		e = s.tasks.Front()
	}
	for e != start {
		t := e.Value.(*Task)
		if t.State == StateRunnable || t.State == StateRunning {
			return e
		}
		n := e.Next()
		if n == nil {
			n = s.tasks.Front()
		}
		e = n
	}
	return nil
}

// Terminate removes pid from rotation and releases every resource its
// Arena entry tracked: its stacks, its cloned PML4, and any page tables
// the loader allocated for it (spec.md §9 REDESIGN FLAG; see arena.go).
// Terminating the currently running task hands control to the next
// Runnable task exactly as Tick would.
func (s *Scheduler) Terminate(pid PID) {
	s.mu.Lock()
	elem, ok := s.byPID[pid]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.byPID, pid)

	wasCurrent := elem == s.current
	if wasCurrent {
		next := s.nextRunnable(elem)
		s.current = next
		if next != nil {
			t := next.Value.(*Task)
			t.State = StateRunning
		}
	}
	s.tasks.Remove(elem)
	if s.tasks.Len() == 0 {
		s.current = nil
	}
	s.mu.Unlock()

	s.arena.Release(pid)
	klog.Printf("sched: terminated pid %d\n", pid)
}
