package vmm

import (
	"testing"

	"gokernel/kernel/config"
	"gokernel/kernel/mem/pfa"
)

// fakeFrames is a bump-allocating FrameSource for tests: real physical
// frame reuse is exercised in kernel/mem/pfa, not here.
type fakeFrames struct {
	next pfa.PFN
}

func (f *fakeFrames) Allocate() pfa.PFN {
	f.next++
	return f.next
}
func (f *fakeFrames) Release(pfa.PFN) {}

// fakeMemoryBacking holds page tables keyed by physical address, standing
// in for the recursive-mapping/temporary-mapping access path a real
// hardware implementation would use.
type fakeMemoryBacking struct {
	frames  *fakeFrames
	tables  map[Pa]*PageTable
}

func newFakeMemory() (Memory, *fakeFrames) {
	f := &fakeFrames{next: 1 << 20} // keep table frames away from data frame addresses used in tests
	b := &fakeMemoryBacking{frames: f, tables: make(map[Pa]*PageTable)}
	return b, f
}

func (b *fakeMemoryBacking) AllocTable() (Pa, bool) {
	pfn := b.frames.Allocate()
	p := PFNToPa(pfn)
	b.tables[p] = &PageTable{}
	return p, true
}

func (b *fakeMemoryBacking) FreeTable(p Pa) {
	delete(b.tables, p)
}

func (b *fakeMemoryBacking) Table(p Pa) *PageTable {
	t, ok := b.tables[p]
	if !ok {
		panic("fakeMemory: no such table")
	}
	return t
}

func TestInitialLayoutIdentityMap(t *testing.T) {
	mem, frames := newFakeMemory()
	as, ok := New(mem, frames)
	if !ok {
		t.Fatalf("New failed")
	}

	// first page of physical RAM must be identity mapped in slot 0.
	p, ok := as.Translate(mem, 0)
	if !ok || p != 0 {
		t.Fatalf("identity map missing at va 0: %#x ok=%v", p, ok)
	}
	// and reachable through the higher-half window at the same physical offset.
	hi, ok := as.Translate(mem, 0xFFFF_8000_0000_0000)
	if !ok || hi != 0 {
		t.Fatalf("higher-half map missing: %#x ok=%v", hi, ok)
	}
}

func TestPageFaultDemandAllocates(t *testing.T) {
	mem, frames := newFakeMemory()
	as, _ := New(mem, frames)

	const uva = 0x0000_7000_0000_0000
	if _, ok := as.Translate(mem, uva); ok {
		t.Fatalf("page should not be mapped yet")
	}
	if !as.HandleFault(mem, frames, uva) {
		t.Fatalf("fault handling failed")
	}
	if _, ok := as.Translate(mem, uva); !ok {
		t.Fatalf("page should be mapped after fault")
	}
}

func TestPageFaultRejectsNonCanonical(t *testing.T) {
	mem, frames := newFakeMemory()
	as, _ := New(mem, frames)
	// bit 47 set but bits 48-63 not sign extended: non-canonical.
	const bad = uintptr(1) << 47
	if as.HandleFault(mem, frames, bad) {
		t.Fatalf("expected non-canonical fault to be fatal")
	}
}

func TestCloneIsolatesUserMappings(t *testing.T) {
	mem, frames := newFakeMemory()
	parent, _ := New(mem, frames)

	const uva = 0x0000_0000_0040_0000
	parent.HandleFault(mem, frames, uva)
	parentPhys, _ := parent.Translate(mem, uva)

	child, ok := parent.Clone(mem)
	if !ok {
		t.Fatalf("clone failed")
	}
	// child still sees the kernel's identity map...
	if p, ok := child.Translate(mem, 0); !ok || p != 0 {
		t.Fatalf("clone lost identity map")
	}
	// ...but a fresh fault in the child for the same VA lands on a
	// different physical frame than the parent's (spec.md §8 E6).
	child.HandleFault(mem, frames, uva)
	childPhys, _ := child.Translate(mem, uva)
	if childPhys == parentPhys {
		t.Fatalf("child and parent share a physical frame for %#x", uva)
	}
}

func TestUnmapClearsTerminalEntryOnly(t *testing.T) {
	mem, frames := newFakeMemory()
	as, _ := New(mem, frames)
	const va = 0x0000_7000_0000_1000
	as.HandleFault(mem, frames, va)
	as.Unmap(mem, va)
	if _, ok := as.Translate(mem, va); ok {
		t.Fatalf("expected unmapped page")
	}
}

func TestRecursiveMappingSelfConsistency(t *testing.T) {
	// spec.md §8 property 5: the PT entry reachable via the recursive
	// macros must be the same entry reached by descending through
	// physical addresses. We verify this by checking that the recursive
	// address for the PT covering v decodes, level by level, to the
	// recursive slot once and then to v's own PML4, PDPT and PD indices —
	// exactly the property that makes PTTableAddr(v) land on the PT
	// that maps v's own page.
	vs := []uintptr{0, 0x0000_0000_0040_0000, 0x0000_7FFF_FFFF_F000, config.KernelHigherHalf}
	for _, v := range vs {
		addr := PTTableAddr(v)
		if PML4Index(addr) != RecursiveSlot {
			t.Fatalf("PTTableAddr(%#x): PML4 index = %d, want recursive slot", v, PML4Index(addr))
		}
		if PDPTIndex(addr) != PML4Index(v) {
			t.Fatalf("PTTableAddr(%#x): PDPT index = %d, want PML4 index of v (%d)", v, PDPTIndex(addr), PML4Index(v))
		}
		if PDIndex(addr) != PDPTIndex(v) {
			t.Fatalf("PTTableAddr(%#x): PD index = %d, want PDPT index of v (%d)", v, PDIndex(addr), PDPTIndex(v))
		}
		if PTIndex(addr) != PDIndex(v) {
			t.Fatalf("PTTableAddr(%#x): PT index = %d, want PD index of v (%d)", v, PTIndex(addr), PDIndex(v))
		}
	}
}
