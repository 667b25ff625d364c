// Package pfa implements the physical frame allocator (spec.md §4.1): a
// first-fit allocator over the BIOS memory map's available regions, laid
// out as a bitmap per region.
//
// The allocator's own metadata (region descriptors + bitmaps) is expected
// to live in memory the caller has already carved out contiguously after
// the kernel image, frame-aligned (spec.md §4.1) — NewAllocator takes
// ownership of pre-allocated bitmap slices rather than allocating them
// itself, mirroring how gopher-os's BitmapAllocator.setupPoolBitmaps
// reserves its own backing pages through the early bootmem allocator
// before any region bitmap can be touched.
package pfa

import (
	"sync"

	"gokernel/kernel/klog"
)

// PFN is a physical page-frame number: a physical address divided by the
// page size.
type PFN uint32

// Sentinel PFN returned by Allocate on exhaustion. PFN 0 is a legitimate
// frame number in general, but never one this allocator hands out because
// region.Start is always above config.LowMemCutoff.
const NoFrame PFN = 0xFFFFFFFF

// Region is a contiguous span of available physical memory above the
// low-memory cutoff (spec.md §3 Memory Region). Bit i of Bitmap is set iff
// frame Start+i is allocated.
type Region struct {
	Start  PFN
	Total  uint32
	Bitmap []uint64
	Free   uint32
}

func (r *Region) contains(pfn PFN) bool {
	return pfn >= r.Start && uint32(pfn-r.Start) < r.Total
}

func (r *Region) bitSet(idx uint32) bool {
	return r.Bitmap[idx/64]&(1<<(idx%64)) != 0
}

func (r *Region) setBit(idx uint32) {
	r.Bitmap[idx/64] |= 1 << (idx % 64)
}

func (r *Region) clearBit(idx uint32) {
	r.Bitmap[idx/64] &^= 1 << (idx % 64)
}

// trackEntry records which region a currently-allocated frame belongs to,
// so Release can find its bitmap in O(1). The tracking list only exists
// once the kernel heap is up (spec.md §4.1): frames allocated during the
// paging bootstrap, before the heap exists, are permanently accounted and
// are never candidates for the tracking list or release.
type trackEntry struct {
	pfn    PFN
	region int
}

// Allocator is the physical frame allocator. The zero value is not usable;
// construct with NewAllocator.
type Allocator struct {
	mu      sync.Mutex
	regions []Region
	track   map[PFN]int // pfn -> region index, only populated once heapUp
	heapUp  bool
}

// NewAllocator builds an Allocator over the given regions. Callers must
// have already marked frames covering the kernel image and the allocator's
// own metadata as allocated in the supplied bitmaps (spec.md §4.1).
func NewAllocator(regions []Region) *Allocator {
	return &Allocator{regions: regions}
}

// EnableTracking turns on the allocation tracking list once the kernel
// heap exists. Frames allocated before this call was made are not
// retroactively tracked and can never be released — this matches spec.md
// §4.1's documented bootstrap accounting behavior.
func (a *Allocator) EnableTracking() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.heapUp = true
	a.track = make(map[PFN]int)
}

// Regions returns the allocator's region table, for diagnostics and tests.
func (a *Allocator) Regions() []Region {
	return a.regions
}

// Allocate finds one free frame via first-fit: regions in order, then
// 64-bit words within a region, then individual bits within a word. It
// returns NoFrame if every region is exhausted.
func (a *Allocator) Allocate() PFN {
	a.mu.Lock()
	defer a.mu.Unlock()

	for ri := range a.regions {
		r := &a.regions[ri]
		if r.Free == 0 {
			continue
		}
		nwords := (int(r.Total) + 63) / 64
		for w := 0; w < nwords; w++ {
			word := r.Bitmap[w]
			if word == ^uint64(0) {
				continue
			}
			for b := 0; b < 64; b++ {
				idx := uint32(w*64 + b)
				if idx >= r.Total {
					break
				}
				if word&(1<<uint(b)) != 0 {
					continue
				}
				r.setBit(idx)
				r.Free--
				pfn := PFN(uint32(r.Start) + idx)
				if a.heapUp {
					a.track[pfn] = ri
				}
				return pfn
			}
		}
	}
	return NoFrame
}

// Release returns a previously allocated frame to its region's free set.
// Releasing a frame that was never tracked (allocated before
// EnableTracking) is a logged no-op rather than an error; releasing a
// frame whose bit is already clear (a double free) panics — spec.md §4.1
// treats untracked release as benign but a double free as fatal.
func (a *Allocator) Release(pfn PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ri, ok := a.track[pfn]
	if !ok {
		for i := range a.regions {
			r := &a.regions[i]
			if r.contains(pfn) && !r.bitSet(uint32(pfn-r.Start)) {
				panic("pfa: double free of frame")
			}
		}
		klog.Printf("pfa: release of untracked frame %#x ignored\n", pfn)
		return
	}
	r := &a.regions[ri]
	idx := uint32(pfn - r.Start)
	if !r.bitSet(idx) {
		panic("pfa: double free of frame")
	}
	r.clearBit(idx)
	r.Free++
	delete(a.track, pfn)
}

// FreeCount sums the free frame count across all regions.
func (a *Allocator) FreeCount() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n uint32
	for i := range a.regions {
		n += a.regions[i].Free
	}
	return n
}
