package vmm

import "gokernel/kernel/cpu"

// TempWindow owns one scratch virtual address whose terminal page-table
// entry it rewrites on every call to Map, letting the kernel touch an
// arbitrary physical frame that isn't reachable through the active
// recursive mapping yet — a table just allocated for an address space that
// isn't installed in CR3, say. Grounded on gopher-os's
// vmm.MapTemporary(frame, allocFn), which serves the identical purpose
// with a one-page reusable window; TempWindow fixes the window's address
// at construction instead of calling an allocator each time, since the
// single window install happens once, early in boot.
type TempWindow struct {
	va    uintptr
	entry *PTE
}

// NewTempWindow installs the one-page mapping for the window at va
// (normally config.TempMapAddr, a fixed address in the kernel's shared
// higher-half range so every address space's clone sees the same window)
// and returns a handle to it. The window starts unmapped; the first Map
// call gives it a real target.
func NewTempWindow(mem Memory, as *AddressSpace, va uintptr) (*TempWindow, bool) {
	entry, ok := as.TerminalEntry(mem, va)
	if !ok {
		return nil, false
	}
	return &TempWindow{va: va, entry: entry}, true
}

// Map retargets the window at physical frame p and returns the virtual
// address it is now reachable at. The caller must not keep using a
// previous Map's address afterward — there is only one window.
func (w *TempWindow) Map(p Pa) uintptr {
	*w.entry = PTE(p) | FlagPresent | FlagWrite
	cpu.FlushTLBEntry(w.va)
	return w.va
}
