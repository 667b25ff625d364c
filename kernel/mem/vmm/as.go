package vmm

import "gokernel/kernel/config"

// kernelFlags are the permission bits used for intermediate (non-terminal)
// page-table entries: present, writable, and user so that a lower,
// user-owned terminal entry is actually reachable (the U bit must be set
// at every level on the path to a user page, not just the final PTE).
const kernelFlags = FlagPresent | FlagWrite | FlagUser

// AddressSpace is identified by the physical address of its PML4
// (spec.md §3 Address Space).
type AddressSpace struct {
	Pml4 Pa
}

// New builds the initial page-table layout described in spec.md §4.2:
// slot 0 identity-maps the first IdentityExtent bytes of physical RAM,
// slot 256 maps the same physical range into the higher-half kernel
// window by sharing the identical lower tables, and slot 511 recursively
// maps the PML4 to itself.
func New(mem Memory, frames FrameSource) (*AddressSpace, bool) {
	pml4Phys, ok := mem.AllocTable()
	if !ok {
		return nil, false
	}

	pdptPhys, ok := buildIdentityChain(mem, frames, config.IdentityExtent/config.PageSize)
	if !ok {
		mem.FreeTable(pml4Phys)
		return nil, false
	}

	pml4 := mem.Table(pml4Phys)
	pml4[0] = PTE(pdptPhys) | kernelFlags
	pml4[256] = PTE(pdptPhys) | kernelFlags
	pml4[RecursiveSlot] = PTE(pml4Phys) | FlagPresent | FlagWrite

	return &AddressSpace{Pml4: pml4Phys}, true
}

// buildIdentityChain allocates a PT/PD/PDPT chain identity-mapping the
// first frameCount physical frames (frameCount must fit in a single PT:
// at most 512 frames, i.e. 2MiB, matching spec.md's IdentityExtent).
func buildIdentityChain(mem Memory, frames FrameSource, frameCount uint32) (Pa, bool) {
	if frameCount > 512 {
		panic("vmm: identity extent exceeds a single page table's reach")
	}

	ptPhys, ok := mem.AllocTable()
	if !ok {
		return 0, false
	}
	pt := mem.Table(ptPhys)
	for i := uint32(0); i < frameCount; i++ {
		pt[i] = PTE(i<<12) | FlagPresent | FlagWrite
	}

	pdPhys, ok := mem.AllocTable()
	if !ok {
		return 0, false
	}
	pd := mem.Table(pdPhys)
	pd[0] = PTE(ptPhys) | FlagPresent | FlagWrite

	pdptPhys, ok := mem.AllocTable()
	if !ok {
		return 0, false
	}
	pdpt := mem.Table(pdptPhys)
	pdpt[0] = PTE(pdPhys) | FlagPresent | FlagWrite

	_ = frames
	return pdptPhys, true
}

// ensureNext returns the physical address of the next-level table reached
// through entry idx of table, allocating and installing a fresh one if
// absent.
func ensureNext(mem Memory, table *PageTable, idx uintptr) (Pa, bool) {
	e := table[idx]
	if e.HasFlags(FlagPresent) {
		return e.Addr(), true
	}
	p, ok := mem.AllocTable()
	if !ok {
		return 0, false
	}
	table[idx] = PTE(p) | kernelFlags
	return p, true
}

// lookupNext is like ensureNext but never creates a missing table.
func lookupNext(mem Memory, table *PageTable, idx uintptr) (Pa, bool) {
	e := table[idx]
	if !e.HasFlags(FlagPresent) {
		return 0, false
	}
	return e.Addr(), true
}

// HandleFault resolves a page fault at faultAddr by demand-allocating
// whatever page-table levels and terminal data frame are missing
// (spec.md §4.2 page-fault handler contract). It returns false when the
// fault is fatal: a non-canonical address or allocator exhaustion. The
// terminal PT entry, once installed, is always writable — the kernel
// backs both user anonymous memory and kernel heap growth identically.
func (as *AddressSpace) HandleFault(mem Memory, frames FrameSource, faultAddr uintptr) bool {
	if canonicalize(faultAddr) != faultAddr {
		return false
	}

	pml4 := mem.Table(as.Pml4)
	pdptPhys, ok := ensureNext(mem, pml4, PML4Index(faultAddr))
	if !ok {
		return false
	}
	pdpt := mem.Table(pdptPhys)
	pdPhys, ok := ensureNext(mem, pdpt, PDPTIndex(faultAddr))
	if !ok {
		return false
	}
	pd := mem.Table(pdPhys)
	ptPhys, ok := ensureNext(mem, pd, PDIndex(faultAddr))
	if !ok {
		return false
	}
	pt := mem.Table(ptPhys)
	idx := PTIndex(faultAddr)
	if pt[idx].HasFlags(FlagPresent) {
		// two concurrent faults on the same page; already resolved.
		return true
	}
	pfn := frames.Allocate()
	if pfn == 0xFFFFFFFF {
		return false
	}
	pt[idx] = PTE(PFNToPa(pfn)) | FlagPresent | FlagWrite | FlagUser
	return true
}

// Map installs an explicit mapping from v to physical address p with the
// given permission bits (spec.md §4.2 explicit mapping). Intermediate
// tables are created on demand, the same as a page fault would.
func (as *AddressSpace) Map(mem Memory, v uintptr, p Pa, perms PTE) bool {
	pml4 := mem.Table(as.Pml4)
	pdptPhys, ok := ensureNext(mem, pml4, PML4Index(v))
	if !ok {
		return false
	}
	pdpt := mem.Table(pdptPhys)
	pdPhys, ok := ensureNext(mem, pdpt, PDPTIndex(v))
	if !ok {
		return false
	}
	pd := mem.Table(pdPhys)
	ptPhys, ok := ensureNext(mem, pd, PDIndex(v))
	if !ok {
		return false
	}
	pt := mem.Table(ptPhys)
	pt[PTIndex(v)] = PTE(p) | perms | FlagPresent
	return true
}

// Unmap clears the terminal PT entry for v, if any is present. The
// intermediate tables are left in place (spec.md §4.2: "Unmap clears the
// terminal entry only").
func (as *AddressSpace) Unmap(mem Memory, v uintptr) {
	pml4 := mem.Table(as.Pml4)
	pdptPhys, ok := lookupNext(mem, pml4, PML4Index(v))
	if !ok {
		return
	}
	pdpt := mem.Table(pdptPhys)
	pdPhys, ok := lookupNext(mem, pdpt, PDPTIndex(v))
	if !ok {
		return
	}
	pd := mem.Table(pdPhys)
	ptPhys, ok := lookupNext(mem, pd, PDIndex(v))
	if !ok {
		return
	}
	pt := mem.Table(ptPhys)
	pt[PTIndex(v)] = 0
}

// Translate returns the physical address v currently maps to, and whether
// the mapping is present. Used by tests asserting recursive-mapping
// self-consistency (spec.md §8 property 5).
func (as *AddressSpace) Translate(mem Memory, v uintptr) (Pa, bool) {
	pml4 := mem.Table(as.Pml4)
	pdptPhys, ok := lookupNext(mem, pml4, PML4Index(v))
	if !ok {
		return 0, false
	}
	pdpt := mem.Table(pdptPhys)
	pdPhys, ok := lookupNext(mem, pdpt, PDPTIndex(v))
	if !ok {
		return 0, false
	}
	pd := mem.Table(pdPhys)
	ptPhys, ok := lookupNext(mem, pd, PDIndex(v))
	if !ok {
		return 0, false
	}
	pt := mem.Table(ptPhys)
	e := pt[PTIndex(v)]
	if !e.HasFlags(FlagPresent) {
		return 0, false
	}
	return e.Addr(), true
}

// TerminalEntry returns a pointer directly into the live leaf page table
// backing v, creating any missing intermediate tables along the way (like
// Map would, but without writing the terminal entry itself). Repeated
// calls for the same v hand back the same address, so a caller can retarget
// the mapping by writing through the pointer instead of re-walking the
// tree each time — the mechanism a boot-time direct-map/temporary-mapping
// window (spec.md §4.2; gopher-os's MapTemporary) needs to reach whatever
// physical frame mem.Table is asked to read next.
func (as *AddressSpace) TerminalEntry(mem Memory, v uintptr) (*PTE, bool) {
	pml4 := mem.Table(as.Pml4)
	pdptPhys, ok := ensureNext(mem, pml4, PML4Index(v))
	if !ok {
		return nil, false
	}
	pdpt := mem.Table(pdptPhys)
	pdPhys, ok := ensureNext(mem, pdpt, PDPTIndex(v))
	if !ok {
		return nil, false
	}
	pd := mem.Table(pdPhys)
	ptPhys, ok := ensureNext(mem, pd, PDIndex(v))
	if !ok {
		return nil, false
	}
	pt := mem.Table(ptPhys)
	return &pt[PTIndex(v)], true
}

// Clone allocates a fresh PML4, copies the current one's entries, and
// rewrites the new PML4's recursive slot to point at itself (spec.md
// §4.2 address-space clone). The clone shares the kernel's higher-half
// (slot 256) and identity (slot 0) mappings by sharing the same
// lower-table physical addresses — the kernel image is deliberately
// shared across all address spaces.
func (as *AddressSpace) Clone(mem Memory) (*AddressSpace, bool) {
	newPml4Phys, ok := mem.AllocTable()
	if !ok {
		return nil, false
	}
	src := mem.Table(as.Pml4)
	dst := mem.Table(newPml4Phys)
	*dst = *src
	dst[RecursiveSlot] = PTE(newPml4Phys) | FlagPresent | FlagWrite
	return &AddressSpace{Pml4: newPml4Phys}, true
}
