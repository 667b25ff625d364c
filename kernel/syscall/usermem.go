package syscall

import (
	"gokernel/kernel/config"
	"gokernel/kernel/mem/vmm"
)

// UserMemory lets a syscall handler move bytes between the kernel and the
// calling task's address space. Modeled on kernel/loader's FrameWriter
// seam (loader.go): real hardware reaches user pages through the same
// direct-mapped/temporary-mapping window a page-table walk would use,
// while tests substitute a flat byte slice.
type UserMemory interface {
	// ReadAt copies len(buf) bytes starting at virtual address v into buf.
	// Returns false if any page in the span is unmapped.
	ReadAt(v uintptr, buf []byte) bool
	// WriteAt copies buf into the task's address space starting at v.
	// Returns false if any page in the span is unmapped.
	WriteAt(v uintptr, buf []byte) bool
	// ReadCString reads a NUL-terminated string starting at v, stopping
	// at maxCString bytes even if no NUL is found. Returns false if v's
	// page is unmapped.
	ReadCString(v uintptr) (string, bool)
}

// PhysMem moves bytes to and from a single physical frame, the
// bidirectional counterpart of loader.FrameWriter.
type PhysMem interface {
	ReadFrame(p vmm.Pa, dst []byte)
	WriteFrame(p vmm.Pa, src []byte)
}

// PagedUserMemory implements UserMemory by walking the calling task's
// address space's page tables one page at a time (spec.md §4.2
// Translate), the production wiring kernel/kmain installs on the Gateway.
// As is a function rather than a fixed pointer because the address space a
// syscall must translate against changes on every context switch — it
// always resolves to whichever task is current at the moment the syscall
// fires, never a space fixed at construction time.
type PagedUserMemory struct {
	Mem  vmm.Memory
	As   func() *vmm.AddressSpace
	Phys PhysMem
}

func pageOffset(v uintptr) (base uintptr, off int) {
	off = int(v % config.PageSize)
	base = v - uintptr(off)
	return
}

func (u *PagedUserMemory) withEachPage(v uintptr, n int, fn func(pa vmm.Pa, pageOff, n int) bool) bool {
	as := u.As()
	if as == nil {
		return false
	}
	for n > 0 {
		base, off := pageOffset(v)
		pa, ok := as.Translate(u.Mem, base)
		if !ok {
			return false
		}
		chunk := config.PageSize - off
		if chunk > n {
			chunk = n
		}
		if !fn(pa, off, chunk) {
			return false
		}
		v += uintptr(chunk)
		n -= chunk
	}
	return true
}

// ReadAt implements UserMemory.
func (u *PagedUserMemory) ReadAt(v uintptr, buf []byte) bool {
	copied := 0
	ok := u.withEachPage(v, len(buf), func(pa vmm.Pa, pageOff, n int) bool {
		page := make([]byte, config.PageSize)
		u.Phys.ReadFrame(pa, page)
		copy(buf[copied:copied+n], page[pageOff:pageOff+n])
		copied += n
		return true
	})
	return ok
}

// WriteAt implements UserMemory.
func (u *PagedUserMemory) WriteAt(v uintptr, buf []byte) bool {
	copied := 0
	ok := u.withEachPage(v, len(buf), func(pa vmm.Pa, pageOff, n int) bool {
		page := make([]byte, config.PageSize)
		u.Phys.ReadFrame(pa, page)
		copy(page[pageOff:pageOff+n], buf[copied:copied+n])
		u.Phys.WriteFrame(pa, page)
		copied += n
		return true
	})
	return ok
}

// ReadCString implements UserMemory.
func (u *PagedUserMemory) ReadCString(v uintptr) (string, bool) {
	var out []byte
	for len(out) < maxCString {
		var b [1]byte
		if !u.ReadAt(v, b[:]) {
			return "", false
		}
		if b[0] == 0 {
			return string(out), true
		}
		out = append(out, b[0])
		v++
	}
	return string(out), true
}
