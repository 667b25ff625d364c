// Package bootinfo parses the Bios Information Block (BIB) the firmware
// stage places at a fixed low physical address before handing off to the
// kernel (spec.md §6 "Boot hand-off"): boot date/time fields plus the BIOS
// memory-map entry count and array.
//
// Grounded on the original KaOS loader's date.c (see original_source/),
// which is where the BIB's wall-clock fields and g_date_time global this
// package's Clock replaces come from; spec.md §12 SUPPLEMENTED FEATURES
// adds this read-only accessor since the distillation dropped it.
package bootinfo

import (
	"encoding/binary"
	"time"

	"gokernel/kernel/mem/pfa"
)

// MemRegion mirrors one raw BIOS memory-map entry (spec.md §6): a
// contiguous physical span with a BIOS-defined type. TypeAvailable is the
// only type the PFA ever carves frames from (spec.md §4.1).
type MemRegion struct {
	Start    uint64
	Size     uint64
	Type     uint32
	Reserved uint32
}

// TypeAvailable is the standard BIOS/E820 "usable RAM" region type.
const TypeAvailable = 1

const memRegionBytes = 24 // 8 + 8 + 4 + 4

// BIB is the parsed Bios Information Block.
type BIB struct {
	BootSecond, BootMinute, BootHour int
	BootDay, BootMonth, BootYear     int
	Regions                          []MemRegion
}

// Parse decodes a BIB from raw bytes laid out as: 6 little-endian uint32
// date/time fields (second, minute, hour, day, month, year), a uint32
// memory-map entry count, then that many 24-byte MemRegion records —
// mirroring the original loader's fixed BIB layout.
func Parse(raw []byte) BIB {
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(raw[off : off+4]) }

	b := BIB{
		BootSecond: int(u32(0)),
		BootMinute: int(u32(4)),
		BootHour:   int(u32(8)),
		BootDay:    int(u32(12)),
		BootMonth:  int(u32(16)),
		BootYear:   int(u32(20)),
	}
	count := int(u32(24))
	base := 28
	b.Regions = make([]MemRegion, count)
	for i := 0; i < count; i++ {
		off := base + i*memRegionBytes
		b.Regions[i] = MemRegion{
			Start: binary.LittleEndian.Uint64(raw[off : off+8]),
			Size:  binary.LittleEndian.Uint64(raw[off+8 : off+16]),
			Type:  binary.LittleEndian.Uint32(raw[off+16 : off+20]),
		}
	}
	return b
}

// BiosRegions converts the parsed memory map into the input type
// kernel/mem/pfa's bootstrap consumes. Every entry is passed through
// unfiltered; pfa.BuildRegions itself skips non-available types and
// spans below the low-memory cutoff.
func (b BIB) BiosRegions() []pfa.BiosRegion {
	out := make([]pfa.BiosRegion, 0, len(b.Regions))
	for _, r := range b.Regions {
		out = append(out, pfa.BiosRegion{Start: r.Start, Size: r.Size, Type: r.Type})
	}
	return out
}

// Clock returns the current wall-clock time, computed by adding ticks'
// worth of elapsed seconds (spec.md §4.4: "1 second per 250 ticks") to the
// BIB's boot timestamp. Calendar carries (minute/hour/day/month/year
// rollover) are handled by the standard library's calendar arithmetic
// rather than hand-rolled carry chains.
func (b BIB) Clock(ticksPerSecond, ticks uint64) time.Time {
	boot := time.Date(b.BootYear, time.Month(b.BootMonth), b.BootDay,
		b.BootHour, b.BootMinute, b.BootSecond, 0, time.UTC)
	elapsed := time.Duration(ticks/ticksPerSecond) * time.Second
	return boot.Add(elapsed)
}
