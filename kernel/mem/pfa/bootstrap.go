package pfa

import "gokernel/kernel/config"

// BiosRegion is one raw BIOS memory-map entry (spec.md §6): a physical
// span tagged with a BIOS-defined type. Defined here (rather than
// importing kernel/bootinfo) so pfa has no dependency on the boot-hand-off
// parsing package — kernel/bootinfo converts its own parsed entries into
// this type instead.
type BiosRegion struct {
	Start uint64
	Size  uint64
	Type  uint32
}

// BuildRegions turns the firmware-supplied memory map into the Region
// table NewAllocator expects (spec.md §4.1): only BiosRegion.Type ==
// TypeAvailable spans are considered, each is clipped to lowCutoff, and
// every frame below reservedEnd (the kernel image plus the allocator's
// own metadata, laid out immediately after it) is pre-marked allocated —
// grounded on gopher-os's BitmapAllocator.init, which likewise builds pool
// bitmaps from the multiboot memory map and then calls
// reserveKernelFrames/reserveEarlyAllocatorFrames before the allocator is
// usable.
func BuildRegions(mm []BiosRegion, lowCutoff, reservedEnd uint64) []Region {
	const TypeAvailable = 1

	var regions []Region
	for _, m := range mm {
		if m.Type != TypeAvailable {
			continue
		}
		start := m.Start
		if start < lowCutoff {
			start = lowCutoff
		}
		end := m.Start + m.Size
		if start >= end {
			continue
		}
		startPFN := roundUpDiv(start, config.PageSize)
		endPFN := end / config.PageSize
		if endPFN <= startPFN {
			continue
		}
		total := uint32(endPFN - startPFN)
		words := (int(total) + 63) / 64
		r := Region{
			Start:  PFN(startPFN),
			Total:  total,
			Bitmap: make([]uint64, words),
			Free:   total,
		}
		reserveBelow(&r, reservedEnd)
		regions = append(regions, r)
	}
	return regions
}

func roundUpDiv(v, d uint64) uint64 { return (v + d - 1) / d }

// reserveBelow pre-marks every frame of r that lies below physical address
// reservedEnd as allocated, decrementing Free accordingly. Regions are
// built from an ascending, contiguous BIOS map, so once a frame is at or
// above reservedEnd every later frame in the region is too.
func reserveBelow(r *Region, reservedEnd uint64) {
	for i := uint32(0); i < r.Total; i++ {
		pfn := uint64(r.Start) + uint64(i)
		if pfn*config.PageSize >= reservedEnd {
			break
		}
		r.setBit(i)
		r.Free--
	}
}
