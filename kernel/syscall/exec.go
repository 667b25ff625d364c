package syscall

import "gokernel/kernel/errs"

// execQueueDepth bounds how many pending execute requests the syscall
// gateway will buffer before a caller sees EAGAIN. One in flight is
// already generous for a single-CPU teaching kernel; a handful absorbs a
// shell script launching several programs back to back.
const execQueueDepth = 4

// LoadAndSpawn performs the actual two-phase work a pending execute
// request triggers: clone the kernel address space, read the named
// program off the FAT12 volume, map it in, and hand the result to the
// scheduler as a fresh user task (spec.md §4.5/§4.6). Implemented by
// kernel/kmain, which has the concrete vmm/fat12/sched wiring; ExecService
// only owns the queue.
type LoadAndSpawn func(name string) errs.Err_t

// ExecService implements spec.md §4.6's "execute" two-phase contract and
// SPEC_FULL §13's redesign of it: the syscall body cannot itself build a
// new address space (that takes page faults, and the syscall runs with
// interrupts disabled), so it only posts the filename on a buffered
// channel and returns; a dedicated kernel task drains the channel with
// interrupts enabled and does the actual load.
type ExecService struct {
	pending chan string
	load    LoadAndSpawn
}

// NewExecService builds an ExecService that hands every accepted request
// to load once a consumer calls Run or TryStep.
func NewExecService(load LoadAndSpawn) *ExecService {
	return &ExecService{
		pending: make(chan string, execQueueDepth),
		load:    load,
	}
}

// Request validates name's shape (8.3: at most 8 name bytes, a dot, and at
// most 3 extension bytes — spec.md §4.6 "11-byte 8.3 filename") and posts
// it to the queue without blocking, exactly as the syscall body must:
// EAGAIN if the loader task has fallen behind and the queue is full.
func (es *ExecService) Request(name string) errs.Err_t {
	if !valid8_3(name) {
		return errs.ENAMETOOLONG
	}
	select {
	case es.pending <- name:
		return 0
	default:
		return errs.EAGAIN
	}
}

func valid8_3(name string) bool {
	dot := -1
	for i, c := range name {
		if c == '.' {
			dot = i
			break
		}
	}
	base := name
	ext := ""
	if dot >= 0 {
		base = name[:dot]
		ext = name[dot+1:]
	}
	return len(base) >= 1 && len(base) <= 8 && len(ext) <= 3
}

// Run is the dedicated loader task's body (spec.md §4.6): it blocks
// receiving from the queue and performs the load for each request,
// forever. kernel/kmain schedules this as its own kernel task via
// sched.CreateKernelTask, running with interrupts enabled the whole call
// can take page faults.
func (es *ExecService) Run() {
	for name := range es.pending {
		es.load(name)
	}
}

// TryStep drains and processes at most one pending request without
// blocking, for host tests that cannot run Run as a separate goroutine
// against deterministic fakes. Returns false if the queue was empty.
func (es *ExecService) TryStep() bool {
	select {
	case name := <-es.pending:
		es.load(name)
		return true
	default:
		return false
	}
}
