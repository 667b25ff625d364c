package vmm

import "gokernel/kernel/mem/pfa"

// Memory abstracts "touch a page table that lives at physical address p".
// On real hardware this is implemented by pfaMemory (NewPFAMemory) over a
// direct-map function: tables inside the identity-mapped low window are
// touched through it, and any other table through a one-off temporary
// mapping. In tests Memory is backed by a plain Go
// map so the paging logic can be exercised without an MMU — mirroring how
// gopher-os's vmm tests substitute activePDTFn/mapTemporaryFn seams.
type Memory interface {
	// AllocTable allocates and zeroes a fresh page table, returning its
	// physical address.
	AllocTable() (Pa, bool)
	// FreeTable releases a page table frame.
	FreeTable(Pa)
	// Table returns a pointer to the live contents of the table at p.
	Table(p Pa) *PageTable
}

// FrameSource is the subset of the physical frame allocator the VMM needs:
// one frame at a time, for both page tables and demand-paged data pages.
type FrameSource interface {
	Allocate() pfa.PFN
	Release(pfa.PFN)
}

// pfaMemory implements Memory over a real frame allocator plus a
// direct-mapped window, used once paging is live (kernel/mem/vmm's
// consumer wires this at boot). Constructed via NewPFAMemory.
type pfaMemory struct {
	frames  FrameSource
	dmap    func(Pa) *PageTable
	tracked map[Pa]bool
}

// NewPFAMemory builds a Memory backed by the physical frame allocator and
// a caller-supplied direct-map function translating a physical address of
// a page table into a live pointer to its contents (on real hardware, the
// identity-mapped low 2MiB window, or a temporary mapping for tables
// outside it).
func NewPFAMemory(frames FrameSource, dmap func(Pa) *PageTable) Memory {
	return &pfaMemory{frames: frames, dmap: dmap, tracked: make(map[Pa]bool)}
}

func (m *pfaMemory) AllocTable() (Pa, bool) {
	pfn := m.frames.Allocate()
	if pfn == pfa.NoFrame {
		return 0, false
	}
	p := PFNToPa(pfn)
	*m.dmap(p) = PageTable{}
	m.tracked[p] = true
	return p, true
}

func (m *pfaMemory) FreeTable(p Pa) {
	delete(m.tracked, p)
	m.frames.Release(PaToPFN(p))
}

func (m *pfaMemory) Table(p Pa) *PageTable {
	return m.dmap(p)
}
