// Package kheap implements the kernel's single-threaded first-fit byte
// allocator (spec.md §4.3): one free block spans the whole heap range at
// boot, allocate splits a block when the remainder is worth keeping, and
// free coalesces every adjacent free run.
//
// The heap's backing storage is a growable byte arena. On real hardware
// growth is backed by the VMM's demand paging (kernel/mem/vmm): extending
// HeapEnd by one page and touching it faults it in. Here growth is
// modeled by a caller-supplied GrowFn so the block-chain arithmetic can be
// tested on the host without a VMM — the production wiring (kernel/kmain)
// supplies a GrowFn that calls vmm.AddressSpace.HandleFault.
package kheap

import (
	"encoding/binary"

	"gokernel/kernel/config"
	"gokernel/kernel/util"
)

const headerSize = 4

// inUseBit marks a block as allocated within the 32-bit header; the
// remaining 31 bits hold the block's total size (header + payload),
// per spec.md §3 Heap Block.
const inUseBit uint32 = 1 << 31

// GrowFn is asked to back the heap up to newLen bytes (one page more than
// before) and reports whether it could; false means no more memory is
// available.
type GrowFn func(newLen int) bool

// Heap is a first-fit byte allocator over a single growable virtual range.
type Heap struct {
	mem  []byte
	grow GrowFn
}

// New creates a heap of the given initial size with one free block
// spanning the whole range.
func New(initialSize int, grow GrowFn) *Heap {
	if initialSize < headerSize {
		panic("kheap: initial size too small")
	}
	h := &Heap{mem: make([]byte, initialSize), grow: grow}
	h.writeHeader(0, uint32(initialSize), false)
	return h
}

func (h *Heap) readHeader(off int) (size uint32, inUse bool) {
	v := binary.LittleEndian.Uint32(h.mem[off : off+headerSize])
	return v &^ inUseBit, v&inUseBit != 0
}

func (h *Heap) writeHeader(off int, size uint32, inUse bool) {
	v := size &^ inUseBit
	if inUse {
		v |= inUseBit
	}
	binary.LittleEndian.PutUint32(h.mem[off:off+headerSize], v)
}

// Len returns the current size of the heap's virtual range.
func (h *Heap) Len() int { return len(h.mem) }

// Alloc reserves n bytes of payload and returns the offset of the first
// payload byte, or -1 if the heap could not grow enough to satisfy it.
func (h *Heap) Alloc(n int) int {
	size := util.Roundup(n+headerSize, 4)
	for {
		if off, ok := h.firstFit(uint32(size)); ok {
			return off + headerSize
		}
		if !h.growOnePage() {
			return -1
		}
	}
}

func (h *Heap) firstFit(want uint32) (int, bool) {
	off := 0
	for off < len(h.mem) {
		size, inUse := h.readHeader(off)
		if !inUse && size >= want {
			h.split(off, size, want)
			h.writeHeader(off, h.blockSizeAt(off), true)
			return off, true
		}
		off += int(size)
	}
	return 0, false
}

// blockSizeAt re-reads the (possibly just-split) size at off, ignoring
// in-use state.
func (h *Heap) blockSizeAt(off int) uint32 {
	size, _ := h.readHeader(off)
	return size
}

// split carves a free block at off of size `have` into a used block of
// exactly `want` bytes followed by a new free block, provided the
// remainder is large enough to hold at least a header and one payload
// byte (spec.md §4.3). Otherwise the whole block is handed out, accepting
// internal fragmentation.
func (h *Heap) split(off int, have, want uint32) {
	remainder := have - want
	if remainder < headerSize+1 {
		return
	}
	h.writeHeader(off, want, false)
	h.writeHeader(off+int(want), remainder, false)
}

// growOnePage extends the heap by one page, appending a new trailing free
// block and coalescing it with whatever free block currently ends the
// chain.
func (h *Heap) growOnePage() bool {
	oldLen := len(h.mem)
	newLen := oldLen + config.PageSize
	if h.grow == nil || !h.grow(newLen) {
		return false
	}
	h.mem = append(h.mem, make([]byte, config.PageSize)...)
	h.writeHeader(oldLen, uint32(config.PageSize), false)
	h.coalesceAll()
	return true
}

// Free marks the block whose payload starts at addr as free and coalesces
// every run of adjacent free blocks across the whole chain.
func (h *Heap) Free(addr int) {
	off := addr - headerSize
	size, _ := h.readHeader(off)
	h.writeHeader(off, size, false)
	h.coalesceAll()
}

// coalesceAll walks the entire block chain and merges every run of
// consecutive free blocks into one, restoring the invariant that no two
// adjacent blocks are both free (spec.md §8 property 4).
func (h *Heap) coalesceAll() {
	off := 0
	for off < len(h.mem) {
		size, inUse := h.readHeader(off)
		if inUse {
			off += int(size)
			continue
		}
		total := size
		next := off + int(size)
		for next < len(h.mem) {
			nsize, ninUse := h.readHeader(next)
			if ninUse {
				break
			}
			total += nsize
			next += int(nsize)
		}
		h.writeHeader(off, total, false)
		off += int(total)
	}
}

// Blocks returns the sizes and in-use flags of every block in the chain,
// in order, for testing heap-coverage and coalesce invariants.
func (h *Heap) Blocks() []struct {
	Size  uint32
	InUse bool
} {
	var out []struct {
		Size  uint32
		InUse bool
	}
	off := 0
	for off < len(h.mem) {
		size, inUse := h.readHeader(off)
		out = append(out, struct {
			Size  uint32
			InUse bool
		}{size, inUse})
		off += int(size)
	}
	return out
}
