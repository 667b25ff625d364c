package interrupt

import "testing"

func TestCodeSegSetsLongModeAndDPL(t *testing.T) {
	d := codeSeg(3)
	access := (uint64(d) >> 40) & 0xFF
	if (uint64(d)>>53)&1 == 0 {
		t.Fatalf("long-mode flag bit not set in %#x", d)
	}
	if dpl := (access >> 5) & 0x3; dpl != 3 {
		t.Fatalf("DPL = %d, want 3", dpl)
	}
	if access&(1<<3) == 0 {
		t.Fatalf("code-segment bit not set: %#x", access)
	}
}

func TestDataSegDPLZeroForKernel(t *testing.T) {
	d := dataSeg(0)
	access := (uint64(d) >> 40) & 0xFF
	if dpl := (access >> 5) & 0x3; dpl != 0 {
		t.Fatalf("DPL = %d, want 0", dpl)
	}
	if access&(1<<3) != 0 {
		t.Fatalf("data segment must not set the code-segment bit: %#x", access)
	}
}

func TestMakeTSSDescriptorEncodesFullBase(t *testing.T) {
	const base = uintptr(0x1234_5678_9ABC)
	d := makeTSSDescriptor(base, 0x67)

	low24 := (d.low >> 16) & 0xFFFFFF
	high8 := (d.low >> 56) & 0xFF
	reassembled := low24 | high8<<24 | (d.high&0xFFFFFFFF)<<32
	if uintptr(reassembled) != base {
		t.Fatalf("reassembled base = %#x, want %#x", reassembled, base)
	}
}

func TestInitGDTLoadsAndSetsTaskRegister(t *testing.T) {
	var gotGDTBase uintptr
	var gotTR uint16
	prevLgdt, prevLtr := lgdt, ltr
	lgdt = func(base uintptr, limit uint16) { gotGDTBase = base }
	ltr = func(sel uint16) { gotTR = sel }
	defer func() { lgdt, ltr = prevLgdt, prevLtr }()

	InitGDT()

	if gotGDTBase == 0 {
		t.Fatalf("LGDT was not called with a GDT base address")
	}
	if gotTR != SelTSS {
		t.Fatalf("LTR selector = %#x, want %#x", gotTR, SelTSS)
	}
}

func TestSetKernelStackUpdatesTSS(t *testing.T) {
	SetKernelStack(0xFFFF_9000_0000_1000)
	if tss.RSP0 != 0xFFFF_9000_0000_1000 {
		t.Fatalf("tss.RSP0 = %#x, want 0xFFFF900000001000", tss.RSP0)
	}
}
