// Package kmain wires every subsystem package into the boot sequence
// spec.md §6 describes: parse the firmware hand-off block, stand up the
// frame allocator and paging, grow a kernel heap on top of them, bring up
// the interrupt plane, start the scheduler, mount the FAT12 volume, and
// install the syscall gateway before handing control to the first user
// task. Structurally grounded on gopher-os's kernel/kmain.Kmain
// (multibootInfoPtr, kernelStart, kernelEnd uintptr) — a single ordered
// sequence of subsystem Init calls, panicking through kernel/klog.Fatal on
// the first failure rather than returning, since there is nothing for
// Kmain to return to.
package kmain

import (
	"unsafe"

	"gokernel/kernel/accnt"
	"gokernel/kernel/ata"
	"gokernel/kernel/bootinfo"
	"gokernel/kernel/config"
	"gokernel/kernel/cpu"
	"gokernel/kernel/errs"
	"gokernel/kernel/fat12"
	"gokernel/kernel/interrupt"
	"gokernel/kernel/klog"
	"gokernel/kernel/loader"
	"gokernel/kernel/mem/kheap"
	"gokernel/kernel/mem/pfa"
	"gokernel/kernel/mem/vmm"
	"gokernel/kernel/sched"
	"gokernel/kernel/syscall"
	"gokernel/kernel/vga"
)

// bibMaxBytes bounds how much of the firmware's fixed BIB payload Kmain
// will ever read: the 28-byte header plus a generous memory-map entry
// count. The real figure comes from the loader stage that writes the BIB
// (see original_source/main64/kernel/date.c), not from anything computable
// here.
const bibMaxBytes = 28 + 64*24

// initProgram is the first user program the boot sequence executes once
// every subsystem is up, mirroring the original KaOS loader's habit of
// handing control to a shell (original_source/main64/programs/shell)
// rather than leaving the machine idle.
const initProgram = "SHELL.BIN"

// vgaBufferPhys is the fixed physical address of the VGA text-mode cell
// buffer (spec.md §6 External Collaborators), identity-mapped by slot 0.
const vgaBufferPhys = 0xB8000

// metadataBudget is how much physical memory past the raw kernel image is
// set aside for the frame allocator's own region/bitmap bookkeeping before
// BuildRegions is told frames are available — generous enough for the
// bitmap sizes BuildRegions computes over a typical few-hundred-megabyte
// memory map, without needing the two-phase "build once to size the
// bitmaps, then rebuild" bootstrap gopher-os's BitmapAllocator.init uses.
const metadataBudget = 1 << 20

// kernelTaskStackPages is how many pages the loader task's own kernel
// stack gets, pre-faulted in during setup rather than demand-paged on
// first use — the same "pre-fault" discipline spec.md §4.5 requires for a
// user task's stack, applied here because the loader task's first
// instruction runs with interrupts already enabled.
const kernelTaskStackPages = 2

// pageFaultVector and gpFaultVector are the CPU exception numbers Kmain
// installs handlers for (spec.md §4.2, §7, §8 property 7).
const (
	pageFaultVector = 14
	gpFaultVector   = 13
)

// pageFaultPresentBit is bit 0 of the hardware page-fault error code: clear
// when the fault was a not-present access (the kind demand-paging resolves
// by installing a fresh frame), set when the page was already present and
// the access simply violated its permission bits. HandleFault's own
// "already present" branch exists only to absorb a benign race between two
// concurrent not-present faults on the same page, so a handler must check
// this bit itself before calling HandleFault — routing a present-but-
// violated fault into HandleFault would read back "already resolved" and
// retry forever against a mapping that will never become accessible.
const pageFaultPresentBit = 1 << 0

// Kmain is the only Go symbol the rt0 assembly stub calls, after it has
// built a minimal stack and pushed the firmware's boot-info pointer and the
// kernel image's physical bounds. It never returns.
//
//go:noinline
func Kmain(bibPtr, kernelStart, kernelEnd uintptr) {
	console := vga.New(rawSlice[vga.Cell](vgaBufferPhys, vga.Rows*vga.Cols))
	klog.SetOutput(console)
	console.Clear()

	bib := bootinfo.Parse(rawSlice[byte](bibPtr, bibMaxBytes))

	reservedEnd := uint64(kernelEnd) + metadataBudget
	regions := pfa.BuildRegions(bib.BiosRegions(), config.LowMemCutoff, reservedEnd)
	if len(regions) == 0 {
		klog.Fatal("kmain", "no usable memory regions in the BIOS map")
	}
	frames := pfa.NewAllocator(regions)

	mem, as, tempWindow := bootstrapPaging(frames)
	interrupt.SetCodeReader(func(rip uint64) []byte {
		return dmapBytes(as, mem, tempWindow, uintptr(rip), 15)
	})

	heap := kheap.New(config.HeapEnd0-config.HeapStart, func(newLen int) bool {
		pageStart := uintptr(config.HeapStart) + uintptr(newLen) - config.PageSize
		return as.HandleFault(mem, frames, pageStart)
	})
	frames.EnableTracking()

	interrupt.InitGDT()
	interrupt.Init()
	interrupt.InitPIC()
	interrupt.InitTimer(config.TimerHz)
	interrupt.InitKeyboard()

	samples := accnt.NewBuffer(1024)
	arena := sched.NewArena(frames)
	tasks := sched.New(arena)
	tasks.Samples = samples
	tasks.Install()

	interrupt.HandleException(pageFaultVector, func(errCode uint64, f *interrupt.Frame, r *interrupt.Regs) {
		faultAddr := cpu.ReadCR2()
		curAS := currentAddressSpace(tasks, as)
		if errCode&pageFaultPresentBit == 0 && curAS.HandleFault(mem, frames, faultAddr) {
			// resolved: leave f untouched so the trampoline's iret
			// retries the faulting instruction against the mapping
			// HandleFault just installed.
			return
		}
		terminateOrFatal(tasks, pageFaultVector, errCode, f, r)
	})
	interrupt.HandleException(gpFaultVector, func(errCode uint64, f *interrupt.Frame, r *interrupt.Regs) {
		terminateOrFatal(tasks, gpFaultVector, errCode, f, r)
	})

	disk := ata.NewPIODisk()
	vol, err := fat12.Mount(disk)
	if err != 0 {
		klog.Fatal("kmain", "FAT12 mount failed")
	}

	physMem := &windowPhysMem{tempWindow: tempWindow}
	userMem := &syscall.PagedUserMemory{
		Mem:  mem,
		As:   func() *vmm.AddressSpace { return currentAddressSpace(tasks, as) },
		Phys: physMem,
	}

	exec := syscall.NewExecService(func(name string) errs.Err_t {
		return spawnUserTask(vol, mem, frames, as, tasks, physMem, heap, name)
	})

	gw := &syscall.Gateway{
		Tasks:   tasks,
		Console: console,
		Volume:  vol,
		Mem:     userMem,
		Exec:    exec,
		Now: func() (uint16, uint16) {
			return fat12.PackDate(bib.BootYear, bib.BootMonth, bib.BootDay),
				fat12.PackTime(bib.BootHour, bib.BootMinute, bib.BootSecond)
		},
	}
	gw.Install()

	loaderStack := newKernelStack(heap, kernelTaskStackPages)
	tasks.CreateKernelTask(funcAddr(exec.Run), loaderStack, uintptr(as.Pml4))

	if err := exec.Request(initProgram); err != 0 {
		klog.Printf("kmain: could not queue %s: %v\n", initProgram, err)
	}

	cpu.EnableInterrupts()
	for {
		cpu.Halt()
	}
}

// bootstrapPaging builds the kernel's own AddressSpace and the Memory seam
// every paging operation afterward goes through. dmap has two regimes: a
// frame below IdentityExtent is read straight through the identity window
// (slot 0 / slot 256 share the same lower tables per vmm.New, and PFA hands
// out frames lowest-first from a region starting at LowMemCutoff, so the
// page-table frames this very bootstrap allocates land inside the identity
// band); a frame at or above it goes through tempWindow, a single
// retargetable mapping installed once paging exists (vmm.NewTempWindow,
// grounded on gopher-os's vmm.MapTemporary). tempWindow's own installation
// happens through the first regime, since its own page-table frames are
// themselves low, closing the bootstrap loop without needing two
// allocators.
func bootstrapPaging(frames vmm.FrameSource) (vmm.Memory, *vmm.AddressSpace, *vmm.TempWindow) {
	var tempWindow *vmm.TempWindow

	var mem vmm.Memory
	dmap := func(p vmm.Pa) *vmm.PageTable {
		if uintptr(p) < config.IdentityExtent {
			return (*vmm.PageTable)(unsafe.Pointer(uintptr(p)))
		}
		if tempWindow == nil {
			klog.Fatal("kmain", "direct-map window needed before it was installed")
		}
		va := tempWindow.Map(p)
		return (*vmm.PageTable)(unsafe.Pointer(va))
	}
	mem = vmm.NewPFAMemory(frames, dmap)

	as, ok := vmm.New(mem, frames)
	if !ok {
		klog.Fatal("kmain", "failed to build the initial address space")
	}

	tempWindow, ok = vmm.NewTempWindow(mem, as, config.TempMapAddr)
	if !ok {
		klog.Fatal("kmain", "failed to install the direct-map window")
	}

	return mem, as, tempWindow
}

// dmapBytes reads up to n bytes starting at virtual address v out of as,
// one page at a time, for the fault dump's instruction decode. Returns nil
// if any page in the span is unmapped.
func dmapBytes(as *vmm.AddressSpace, mem vmm.Memory, tempWindow *vmm.TempWindow, v uintptr, n int) []byte {
	out := make([]byte, 0, n)
	for len(out) < n {
		pa, ok := as.Translate(mem, v+uintptr(len(out)))
		if !ok {
			return nil
		}
		page := physBytes(pa, tempWindow)
		off := int((v + uintptr(len(out))) % config.PageSize)
		take := config.PageSize - off
		if take > n-len(out) {
			take = n - len(out)
		}
		out = append(out, page[off:off+take]...)
	}
	return out
}

// windowPhysMem implements syscall.PhysMem over the same tempWindow/identity
// addressing scheme bootstrapPaging's dmap uses, since a data frame and a
// page-table frame are both just physical memory viewed differently.
type windowPhysMem struct {
	tempWindow *vmm.TempWindow
}

func (w *windowPhysMem) ReadFrame(p vmm.Pa, dst []byte) {
	copy(dst, physBytes(p, w.tempWindow))
}

func (w *windowPhysMem) WriteFrame(p vmm.Pa, src []byte) {
	page := physBytes(p, w.tempWindow)
	n := copy(page, src)
	clear(page[n:])
}

func physBytes(p vmm.Pa, tempWindow *vmm.TempWindow) []byte {
	var va uintptr
	if uintptr(p) < config.IdentityExtent {
		va = uintptr(p)
	} else {
		va = tempWindow.Map(p)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(va)), config.PageSize)
}

// terminateOrFatal decides how an exception that demand-paging could not (or
// would not) resolve is handled (spec.md §7 error kinds, §8 property 7, E5):
// a fault trapped from ring 3 kills only the offending task and hands the
// CPU to the next runnable one, exactly as a bad syscall argument or an
// `outb` from user code should never bring down the whole machine; a fault
// trapped from ring 0 is a genuine kernel bug and still halts, since there
// is no other context to fall back to.
func terminateOrFatal(tasks *sched.Scheduler, vector uint8, errCode uint64, f *interrupt.Frame, r *interrupt.Regs) {
	if f.CS == interrupt.SelUserCode {
		pid := sched.PID(0)
		if t := tasks.Current(); t != nil {
			pid = t.PID
		}
		klog.Printf("kmain: exception %d error=%#x rip=%#x terminated pid %d\n",
			vector, errCode, f.RIP, pid)
		tasks.TerminateFaulting(f, r)
		return
	}
	interrupt.FatalException(vector, errCode, f)
}

// currentAddressSpace resolves the calling task's own address space: a
// kernel task shares the boot address space outright, a user task's CR3
// names its cloned PML4 directly.
func currentAddressSpace(tasks *sched.Scheduler, kernelAS *vmm.AddressSpace) *vmm.AddressSpace {
	t := tasks.Current()
	if t == nil || !t.IsUser {
		return kernelAS
	}
	return &vmm.AddressSpace{Pml4: vmm.Pa(t.Image.CR3)}
}

// userStackTop is the fixed top of every user task's stack, placed at the
// top of the low canonical half, well above config.ExecutableBase.
const userStackTop = 0x0000_7FFF_FFFF_F000

// userKernelStackPages is how many heap-backed pages each user task's own
// kernel stack gets — the stack syscalls and interrupt handling run on
// while that task is current (spec.md §3 Task "kernel-mode stack top").
const userKernelStackPages = 2

// spawnUserTask implements the execute syscall's second phase (spec.md
// §4.5/§4.6): clone the kernel address space, load the named program into
// the clone at config.ExecutableBase, pre-fault the user stack (spec.md
// §4.5 "stack pre-fault"), and hand the whole thing to the scheduler as a
// new user task. Every frame this allocates beyond what the loader already
// tracked — the cloned PML4 and the user stack's data frame — is appended
// to the ownedFrames list so Terminate's Arena reclaims it too.
func spawnUserTask(vol *fat12.Volume, mem vmm.Memory, frames vmm.FrameSource, kernelAS *vmm.AddressSpace, tasks *sched.Scheduler, pw loader.FrameWriter, heap *kheap.Heap, name string) errs.Err_t {
	cloneAS, ok := kernelAS.Clone(mem)
	if !ok {
		return errs.ENOMEM
	}

	result, err := loader.Load(vol, mem, frames, pw, cloneAS, name, 0)
	if err != 0 {
		return err
	}
	owned := append([]pfa.PFN{vmm.PaToPFN(cloneAS.Pml4)}, result.OwnedFrames...)

	stackPFN := frames.Allocate()
	if stackPFN == pfa.NoFrame {
		return errs.ENOMEM
	}
	owned = append(owned, stackPFN)
	stackPerms := vmm.FlagPresent | vmm.FlagWrite | vmm.FlagUser
	if !cloneAS.Map(mem, userStackTop-config.PageSize, vmm.PFNToPa(stackPFN), stackPerms) {
		return errs.ENOMEM
	}
	// zero the stack's frame through the physical window; the page is
	// mapped explicitly above, so the task's first push never faults.
	pw.WriteFrame(vmm.PFNToPa(stackPFN), nil)

	kernelStackTop := newKernelStack(heap, userKernelStackPages)

	tasks.CreateUserTask(result.EntryRIP, userStackTop, kernelStackTop, uintptr(cloneAS.Pml4), owned)
	return 0
}

// newKernelStack reserves stackPages pages of kernel-heap-backed storage
// for a kernel task's stack and returns its top (the stack grows down from
// the high end of the range kheap.Alloc hands back).
func newKernelStack(heap *kheap.Heap, stackPages int) uintptr {
	off := heap.Alloc(stackPages * config.PageSize)
	if off < 0 {
		klog.Fatal("kmain", "out of kernel heap building the loader task's stack")
	}
	return config.HeapStart + uintptr(off) + uintptr(stackPages*config.PageSize)
}

// rawSlice builds a slice of T directly over physical memory at addr,
// valid only while addr lies in a currently mapped window — true for every
// address this package passes through it, since each is either below
// IdentityExtent or is the VGA buffer, also covered by slot 0.
func rawSlice[T any](addr uintptr, count int) []T {
	return unsafe.Slice((*T)(unsafe.Pointer(addr)), count)
}

// funcAddr recovers a Go function value's entry address, the form
// sched.CreateKernelTask's entryRIP parameter needs. Go guarantees a
// non-method func value's first word is its code pointer.
func funcAddr(f func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&f))
}
