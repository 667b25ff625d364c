package loader

import (
	"testing"

	"gokernel/kernel/config"
	"gokernel/kernel/errs"
	"gokernel/kernel/fat12"
	"gokernel/kernel/mem/pfa"
	"gokernel/kernel/mem/vmm"
)

// memDisk is the same []byte-backed ata.Disk fake kernel/fat12's own
// tests use, reimplemented here since it is unexported there.
type memDisk struct {
	sectors [][]byte
}

func newMemDisk(n int) *memDisk {
	d := &memDisk{sectors: make([][]byte, n)}
	for i := range d.sectors {
		d.sectors[i] = make([]byte, fat12.BytesPerSector)
	}
	return d
}

func (d *memDisk) ReadSectors(lba uint32, count uint8, dst []byte) errs.Err_t {
	for i := 0; i < int(count); i++ {
		copy(dst[i*fat12.BytesPerSector:(i+1)*fat12.BytesPerSector], d.sectors[int(lba)+i])
	}
	return 0
}

func (d *memDisk) WriteSectors(src []byte, lba uint32, count uint8) errs.Err_t {
	for i := 0; i < int(count); i++ {
		copy(d.sectors[int(lba)+i], src[i*fat12.BytesPerSector:(i+1)*fat12.BytesPerSector])
	}
	return 0
}

// hostMemory and hostFrames are a host-testable vmm.Memory/FrameSource
// pair, the tables backed by a plain Go map, the same seam vmm's own tests
// use.
type hostMemory struct {
	tables map[vmm.Pa]*vmm.PageTable
	next   vmm.Pa
}

func newHostMemory() *hostMemory {
	return &hostMemory{tables: make(map[vmm.Pa]*vmm.PageTable), next: 0x1000}
}

func (m *hostMemory) AllocTable() (vmm.Pa, bool) {
	p := m.next
	m.next += 0x1000
	m.tables[p] = &vmm.PageTable{}
	return p, true
}
func (m *hostMemory) FreeTable(p vmm.Pa)  { delete(m.tables, p) }
func (m *hostMemory) Table(p vmm.Pa) *vmm.PageTable { return m.tables[p] }

type hostFrames struct {
	next     pfa.PFN
	released []pfa.PFN
}

func newHostFrames() *hostFrames { return &hostFrames{next: 100} }

func (f *hostFrames) Allocate() pfa.PFN {
	p := f.next
	f.next++
	return p
}
func (f *hostFrames) Release(p pfa.PFN) { f.released = append(f.released, p) }

// hostWriter records the bytes written to each physical frame, standing
// in for the real direct-mapped window.
type hostWriter struct {
	frames map[vmm.Pa][]byte
}

func newHostWriter() *hostWriter { return &hostWriter{frames: make(map[vmm.Pa][]byte)} }

func (w *hostWriter) WriteFrame(p vmm.Pa, data []byte) {
	buf := make([]byte, config.PageSize)
	copy(buf, data)
	w.frames[p] = buf
}

func TestLoadMapsProgramAtExecutableBase(t *testing.T) {
	disk := newMemDisk(2000)
	v, err := fat12.Mount(disk)
	if err != 0 {
		t.Fatalf("Mount: %v", err)
	}
	program := make([]byte, 10)
	copy(program, []byte("\x7fELFhello!!"))
	if err := v.Create("INIT.BIN", program, 0, 0); err != 0 {
		t.Fatalf("Create: %v", err)
	}

	mem := newHostMemory()
	frames := newHostFrames()
	writer := newHostWriter()
	as, ok := vmm.New(mem, frames)
	if !ok {
		t.Fatalf("vmm.New failed")
	}

	res, lerr := Load(v, mem, frames, writer, as, "INIT.BIN", 1)
	if lerr != 0 {
		t.Fatalf("Load: %v", lerr)
	}
	if res.EntryRIP != uintptr(config.ExecutableBase) {
		t.Fatalf("EntryRIP = %#x, want %#x", res.EntryRIP, config.ExecutableBase)
	}
	if res.ProgramBytes != len(program) {
		t.Fatalf("ProgramBytes = %d, want %d", res.ProgramBytes, len(program))
	}
	if len(res.OwnedFrames) != 1 {
		t.Fatalf("OwnedFrames = %d, want 1 for a sub-page program", len(res.OwnedFrames))
	}

	pa, ok := as.Translate(mem, uintptr(config.ExecutableBase))
	if !ok {
		t.Fatalf("ExecutableBase not mapped after Load")
	}
	got := writer.frames[pa][:len(program)]
	if string(got) != string(program) {
		t.Fatalf("mapped frame content = %q, want %q", got, program)
	}
}

func TestLoadUnknownFileReturnsENOENT(t *testing.T) {
	disk := newMemDisk(2000)
	v, err := fat12.Mount(disk)
	if err != 0 {
		t.Fatalf("Mount: %v", err)
	}
	mem := newHostMemory()
	frames := newHostFrames()
	writer := newHostWriter()
	as, _ := vmm.New(mem, frames)

	_, lerr := Load(v, mem, frames, writer, as, "NOPE.BIN", 1)
	if lerr != errs.ENOENT {
		t.Fatalf("Load of missing file = %v, want ENOENT", lerr)
	}
}

func TestLoadMultiPageProgramAllocatesOneFramePerPage(t *testing.T) {
	disk := newMemDisk(2000)
	v, err := fat12.Mount(disk)
	if err != 0 {
		t.Fatalf("Mount: %v", err)
	}
	program := make([]byte, config.PageSize+100)
	for i := range program {
		program[i] = byte(i)
	}
	// Create stores at most one cluster, so the rest goes in through Write.
	if err := v.Create("BIG.BIN", nil, 0, 0); err != 0 {
		t.Fatalf("Create: %v", err)
	}
	h, err := v.Open("BIG.BIN", 2)
	if err != 0 {
		t.Fatalf("Open: %v", err)
	}
	if n, err := v.Write(h, program, 0, 0); err != 0 || n != len(program) {
		t.Fatalf("Write = %d, %v, want %d", n, err, len(program))
	}
	v.Close(h)

	mem := newHostMemory()
	frames := newHostFrames()
	writer := newHostWriter()
	as, _ := vmm.New(mem, frames)

	res, lerr := Load(v, mem, frames, writer, as, "BIG.BIN", 1)
	if lerr != 0 {
		t.Fatalf("Load: %v", lerr)
	}
	if len(res.OwnedFrames) != 2 {
		t.Fatalf("OwnedFrames = %d, want 2 for a program spanning two pages", len(res.OwnedFrames))
	}

	secondPagePA, ok := as.Translate(mem, uintptr(config.ExecutableBase)+config.PageSize)
	if !ok {
		t.Fatalf("second page not mapped")
	}
	tail := writer.frames[secondPagePA][:100]
	if string(tail) != string(program[config.PageSize:]) {
		t.Fatalf("second page content mismatch")
	}
}
