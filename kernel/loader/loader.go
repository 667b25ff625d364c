// Package loader places a FAT12 file's contents into a fresh user address
// space at the fixed executable base (spec.md §4.5 user task creation /
// §4.6 execute syscall). It bridges kernel/fat12 (reading the program's
// bytes) and kernel/mem/vmm (mapping them in), the two halves biscuit's
// own loader keeps separate; neither example repo in the pack retrieved
// a loader of its own (gopher-os never got past printing to the console,
// biscuit's mkfs/elf packages were not retrieved), so this package's
// shape is grounded directly on spec.md §4.5/§4.6 and built from the
// vmm/fat12 primitives those packages already expose.
package loader

import (
	"gokernel/kernel/config"
	"gokernel/kernel/errs"
	"gokernel/kernel/fat12"
	"gokernel/kernel/mem/pfa"
	"gokernel/kernel/mem/vmm"
)

// FrameWriter copies up to one page of data into the physical frame p,
// zero-padding anything beyond len(data). On real hardware this goes
// through the same direct-mapped window vmm.NewPFAMemory's dmap callback
// uses; in tests it is backed by a plain map (see loader_test.go).
type FrameWriter interface {
	WriteFrame(p vmm.Pa, data []byte)
}

// Result reports what Load placed and, crucially, which frames it
// allocated — the caller (kernel/sched, via CreateUserTask) must pass
// these to the Arena so Terminate can reclaim them later.
type Result struct {
	EntryRIP     uintptr
	OwnedFrames  []pfa.PFN
	ProgramBytes int
}

// Load reads name from the FAT12 volume v and maps its bytes, one page at
// a time, into as starting at config.ExecutableBase, each page backed by
// a freshly allocated data frame and explicitly Map()'d rather than left
// to page-fault in (spec.md §4.5: "the loader places the program before
// the task ever runs, not on first touch"). It returns ENOENT if name is
// not found, ENOMEM if either the frame allocator or the mapping itself
// is exhausted midway — in which case every frame Load itself allocated
// during this call is released before returning, since a half-mapped
// program is never handed to the scheduler.
func Load(v *fat12.Volume, mem vmm.Memory, frames vmm.FrameSource, pw FrameWriter, as *vmm.AddressSpace, name string, pid uint64) (Result, errs.Err_t) {
	h, err := v.Open(name, pid)
	if err != 0 {
		return Result{}, err
	}
	defer v.Close(h)

	var program []byte
	buf := make([]byte, fat12.BytesPerSector)
	for {
		n, err := v.Read(h, buf)
		if err != 0 {
			return Result{}, err
		}
		if n == 0 {
			break
		}
		program = append(program, buf[:n]...)
		if n < len(buf) {
			break
		}
	}

	owned, err := mapProgram(mem, frames, pw, as, program)
	if err != 0 {
		for _, pfn := range owned {
			frames.Release(pfn)
		}
		return Result{}, err
	}

	return Result{
		EntryRIP:     config.ExecutableBase,
		OwnedFrames:  owned,
		ProgramBytes: len(program),
	}, 0
}

func mapProgram(mem vmm.Memory, frames vmm.FrameSource, pw FrameWriter, as *vmm.AddressSpace, program []byte) ([]pfa.PFN, errs.Err_t) {
	var owned []pfa.PFN
	base := uintptr(config.ExecutableBase)

	pageCount := (len(program) + config.PageSize - 1) / config.PageSize
	if pageCount == 0 {
		pageCount = 1 // always map at least one page, even for an empty program
	}

	for i := 0; i < pageCount; i++ {
		pfn := frames.Allocate()
		if pfn == pfa.NoFrame {
			return owned, errs.ENOMEM
		}
		owned = append(owned, pfn)

		start := i * config.PageSize
		end := start + config.PageSize
		if end > len(program) {
			end = len(program)
		}
		var chunk []byte
		if start < len(program) {
			chunk = program[start:end]
		}
		pw.WriteFrame(vmm.PFNToPa(pfn), chunk)

		v := base + uintptr(start)
		perms := vmm.FlagPresent | vmm.FlagWrite | vmm.FlagUser
		if !as.Map(mem, v, vmm.PFNToPa(pfn), perms) {
			return owned, errs.ENOMEM
		}
	}
	return owned, 0
}
