// Package sched implements the round-robin preemptive scheduler and task
// model (spec.md §4.5): per-task saved register images, a circular task
// list rotated on every timer tick, kernel- and user-mode task creation,
// and termination — including the central arena that reclaims a
// terminated task's stacks and cloned address space, per the REDESIGN
// FLAG spec.md §9 calls for instead of the baseline's documented leak.
//
// Structurally grounded on gopher-os's absence of a scheduler (gopher-os
// never got past a single kmain loop) and biscuit's proc package shape
// (go.mod only in the pack — proc.go itself was not retrieved — so this
// package's ring-buffer task list and accounting fields are grounded on
// spec.md §3 Task/Task List directly, with accnt.Accnt_t borrowed from
// biscuit/src/accnt for the per-task counters).
package sched

import (
	"gokernel/kernel/accnt"
	"gokernel/kernel/interrupt"
)

// PID uniquely identifies a task (spec.md §3 Task).
type PID uint64

// State is a task's lifecycle stage (spec.md §3 Task).
type State int

const (
	StateCreated State = iota
	StateRunnable
	StateRunning
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// RegImage is a task's saved register state (spec.md §3 Task): the
// CPU-pushed trap frame fields plus the general registers the assembly
// trampoline saved, and the address space's CR3. While a task is
// Running, its RegImage is stale — the CPU holds the live copy — and
// only becomes authoritative again once the task is preempted.
type RegImage struct {
	RIP    uint64
	RFlags uint64
	RSP    uint64
	CS     uint64
	SS     uint64
	GP     interrupt.Regs
	CR3    uintptr
}

// Task is one schedulable unit of execution, kernel- or user-mode
// (spec.md §3 Task).
type Task struct {
	PID   PID
	State State
	Image RegImage

	// KernelStackTop is always set: every task, kernel or user, runs
	// syscalls and interrupt handling on its own kernel stack.
	KernelStackTop uintptr
	// UserStackTop is nonzero only for user-mode tasks.
	UserStackTop uintptr
	IsUser       bool

	Acct accnt.Accnt_t
}
