package interrupt

import (
	"testing"
	"time"

	"gokernel/kernel/klog"
)

func resetHandlers() {
	exceptionHandlers = [numExceptions]ExceptionHandler{}
	irqHandlers = [numIRQs]IRQHandler{}
	syscallHandler = nil
}

func TestDispatchRoutesExceptionByVector(t *testing.T) {
	resetHandlers()
	var gotCode uint64
	HandleException(14, func(errCode uint64, f *Frame, r *Regs) { gotCode = errCode })
	Dispatch(14, 0xABC, &Frame{}, &Regs{})
	if gotCode != 0xABC {
		t.Fatalf("exception handler got errCode %#x, want 0xABC", gotCode)
	}
}

func TestDispatchRoutesIRQAndSendsEOI(t *testing.T) {
	resetHandlers()
	writes := withFakePorts(t)
	fired := false
	HandleIRQ(1, func(f *Frame, r *Regs) { fired = true })
	Dispatch(33, 0, &Frame{}, &Regs{}) // PICMasterVector(32)+IRQ1

	if !fired {
		t.Fatalf("IRQ handler for line 1 was not invoked")
	}
	if len(*writes) != 1 || (*writes)[0].port != pic1Command {
		t.Fatalf("expected one EOI to master, got %v", *writes)
	}
}

func TestDispatchRoutesSyscallVector(t *testing.T) {
	resetHandlers()
	var gotRAX uint64
	HandleSyscall(func(r *Regs) { gotRAX = r.RAX })
	Dispatch(0x80, 0, &Frame{}, &Regs{RAX: 7})
	if gotRAX != 7 {
		t.Fatalf("syscall handler got RAX=%d, want 7", gotRAX)
	}
}

func TestDispatchUnhandledExceptionIsFatal(t *testing.T) {
	resetHandlers()

	// klog.Fatal never returns, so Dispatch doesn't either here; run it on
	// its own goroutine and only wait for the first halt call.
	halted := make(chan struct{}, 1)
	prevHalt := klog.HaltFunc
	klog.HaltFunc = func() {
		select {
		case halted <- struct{}{}:
		default:
		}
	}
	defer func() { klog.HaltFunc = prevHalt }()

	go Dispatch(13, 0, &Frame{RIP: 0x1000}, &Regs{})

	select {
	case <-halted:
	case <-time.After(time.Second):
		t.Fatalf("unhandled exception should have called klog.Fatal's halt path")
	}
}
