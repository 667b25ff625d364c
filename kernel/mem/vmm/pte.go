// Package vmm implements 4-level x86_64 paging: the initial layout,
// recursive self-mapping address/index algebra, demand-paging page-fault
// resolution, explicit map/unmap, and address-space cloning (spec.md §4.2).
//
// Structurally grounded on gopher-os's kernel/mem/vmm package (PDT type,
// pageTableEntry flags, temporary-mapping idiom for touching inactive
// tables) with the hardware MMU descent replaced by an abstract Memory
// seam so the paging logic is unit-testable on the host (see memory.go).
package vmm

import "gokernel/kernel/mem/pfa"

// Pa is a physical address.
type Pa uint64

// PTE is a single 64-bit page-table entry, shared by all four levels
// (PML4, PDPT, PD, PT) per spec.md §3.
type PTE uint64

// Page-table entry flag bits (spec.md §3 Page-Table Entry).
const (
	FlagPresent PTE = 1 << 0
	FlagWrite   PTE = 1 << 1
	FlagUser    PTE = 1 << 2
	FlagWT      PTE = 1 << 3
	FlagCD      PTE = 1 << 4
	FlagAccess  PTE = 1 << 5
	FlagDirty   PTE = 1 << 6
)

// addrMask extracts the 36-bit frame field (bits 12..47) per spec.md §3.
const addrMask PTE = ((1 << 36) - 1) << 12

// Addr returns the physical frame address encoded in the entry.
func (e PTE) Addr() Pa { return Pa(e & addrMask) }

// HasFlags reports whether every bit in flags is set.
func (e PTE) HasFlags(flags PTE) bool { return e&flags == flags }

// WithAddr returns a copy of e with its frame field replaced by p.
func (e PTE) WithAddr(p Pa) PTE { return (e &^ addrMask) | PTE(p)&addrMask }

// PageTable is one level of the paging hierarchy: 512 eight-byte entries.
type PageTable [512]PTE

// PFNToPa converts a physical frame number to a physical address.
func PFNToPa(pfn pfa.PFN) Pa { return Pa(pfn) << 12 }

// PaToPFN converts a physical address to its frame number.
func PaToPFN(p Pa) pfa.PFN { return pfa.PFN(p >> 12) }
