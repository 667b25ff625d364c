package fat12

import (
	"testing"

	"gokernel/kernel/errs"
)

// memDisk is a []byte-backed ata.Disk fake (SPEC_FULL §10.4), standing in
// for the PIO disk so volume logic can be exercised on the host.
type memDisk struct {
	sectors [][]byte
}

func newMemDisk(numSectors int) *memDisk {
	d := &memDisk{sectors: make([][]byte, numSectors)}
	for i := range d.sectors {
		d.sectors[i] = make([]byte, BytesPerSector)
	}
	return d
}

func (d *memDisk) ReadSectors(lba uint32, count uint8, dst []byte) errs.Err_t {
	for i := 0; i < int(count); i++ {
		copy(dst[i*BytesPerSector:(i+1)*BytesPerSector], d.sectors[int(lba)+i])
	}
	return 0
}

func (d *memDisk) WriteSectors(src []byte, lba uint32, count uint8) errs.Err_t {
	for i := 0; i < int(count); i++ {
		copy(d.sectors[int(lba)+i], src[i*BytesPerSector:(i+1)*BytesPerSector])
	}
	return 0
}

func mustMount(t *testing.T) (*Volume, *memDisk) {
	t.Helper()
	d := newMemDisk(2000)
	v, err := Mount(d)
	if err != 0 {
		t.Fatalf("Mount: %v", err)
	}
	return v, d
}

func TestClusterRefRoundTrip(t *testing.T) {
	f := FAT{raw: make([]byte, SectorsPerFAT*BytesPerSector)}
	cases := []ClusterRef{
		{Kind: ClusterFree},
		{Kind: ClusterUsed, Next: 5},
		{Kind: ClusterEndOfChain},
		{Kind: ClusterBad},
	}
	for _, c := range cases {
		f.Write(10, c)
		got := f.Read(10)
		if got.Kind != c.Kind || (c.Kind == ClusterUsed && got.Next != c.Next) {
			t.Fatalf("Write(%+v) then Read = %+v", c, got)
		}
	}
}

func TestClusterRefOddEvenNibbles(t *testing.T) {
	f := FAT{raw: make([]byte, SectorsPerFAT*BytesPerSector)}
	f.Write(2, ClusterRef{Kind: ClusterUsed, Next: 0xABC})
	f.Write(3, ClusterRef{Kind: ClusterUsed, Next: 0xDEF})
	if got := f.Read(2); got.Next != 0xABC {
		t.Fatalf("even cluster: got %#x, want 0xABC", got.Next)
	}
	if got := f.Read(3); got.Next != 0xDEF {
		t.Fatalf("odd cluster: got %#x, want 0xDEF", got.Next)
	}
}

// TestFileRoundTrip is spec.md §8 property 8 / scenario-style: create,
// open, read with a full-cluster buffer, expect exactly the content back:
// Read stops at the file size, not at the zero-padded end of the cluster.
func TestFileRoundTrip(t *testing.T) {
	v, _ := mustMount(t)
	content := []byte("hello world")
	if err := v.Create("GREET.TXT", content, 0, 0); err != 0 {
		t.Fatalf("Create: %v", err)
	}

	h, err := v.Open("GREET.TXT", 1)
	if err != 0 {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, BytesPerSector)
	n, err := v.Read(h, buf)
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}
	if n != len(content) {
		t.Fatalf("Read returned %d bytes, want %d (file size, not cluster size)", n, len(content))
	}
	if string(buf[:n]) != string(content) {
		t.Fatalf("Read content = %q, want %q", buf[:n], content)
	}
}

// TestWriteGrowsMultiClusterChain mirrors spec.md §8 scenario E4: writing
// past the end of a small file at a large offset should grow the cluster
// chain across multiple clusters, and bytes in the gap should read back
// as zero.
func TestWriteGrowsMultiClusterChain(t *testing.T) {
	v, _ := mustMount(t)
	if err := v.Create("BIG.TXT", []byte("0123456789012345678901234567"), 0, 0); err != 0 { // 26+ bytes
		t.Fatalf("Create: %v", err)
	}
	h, err := v.Open("BIG.TXT", 1)
	if err != 0 {
		t.Fatalf("Open: %v", err)
	}
	if err := v.Seek(h, 2000); err != 0 {
		t.Fatalf("Seek: %v", err)
	}
	payload := []byte("Aschenbrenner")
	n, err := v.Write(h, payload, 0, 0)
	if err != 0 {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("Write returned %d, want %d", n, len(payload))
	}

	if err := v.Seek(h, 0); err != 0 {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 2000+len(payload))
	n, err = v.Read(h, buf)
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Read returned %d, want %d", n, len(buf))
	}
	for i := 28; i < 2000; i++ {
		if buf[i] != 0 {
			t.Fatalf("byte %d = %d, want 0 (unwritten gap)", i, buf[i])
		}
	}
	if string(buf[2000:]) != string(payload) {
		t.Fatalf("tail = %q, want %q", buf[2000:], payload)
	}
}

func TestDeleteFreesChainAndRootEntry(t *testing.T) {
	v, _ := mustMount(t)
	if err := v.Create("TEMP.TXT", []byte("x"), 0, 0); err != 0 {
		t.Fatalf("Create: %v", err)
	}
	if err := v.Delete("TEMP.TXT"); err != 0 {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Open("TEMP.TXT", 1); err != errs.ENOENT {
		t.Fatalf("Open after delete = %v, want ENOENT", err)
	}
}

func TestOpenByDifferentPIDsYieldsIndependentDescriptors(t *testing.T) {
	v, _ := mustMount(t)
	if err := v.Create("F.TXT", []byte("abc"), 0, 0); err != 0 {
		t.Fatalf("Create: %v", err)
	}
	h1, _ := v.Open("F.TXT", 1)
	h2, _ := v.Open("F.TXT", 2)
	if h1 == h2 {
		t.Fatalf("different PIDs collided on the same handle")
	}
	v.Seek(h1, 3)
	buf := make([]byte, 1)
	if n, _ := v.Read(h1, buf); n != 0 {
		t.Fatalf("h1 should be at EOF after seeking to its size 3")
	}
	if n, _ := v.Read(h2, buf); n != 1 {
		t.Fatalf("h2's own offset should be unaffected by h1's seek")
	}
}

func TestDisplayNameTrimsAndReinsertsDot(t *testing.T) {
	e := Entry{Name: [8]byte{'H', 'E', 'L', 'L', 'O', ' ', ' ', ' '}, Ext: [3]byte{'T', 'X', 'T'}}
	if got := e.DisplayName(); got != "HELLO.TXT" {
		t.Fatalf("DisplayName() = %q, want %q", got, "HELLO.TXT")
	}
}

func TestEncodeName8_3RoundTripsThroughDisplayName(t *testing.T) {
	name, ext := EncodeName8_3("README.MD")
	e := Entry{Name: name, Ext: ext}
	if got := e.DisplayName(); got != "README.MD" {
		t.Fatalf("round trip = %q, want README.MD", got)
	}
}
