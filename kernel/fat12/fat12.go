// Package fat12 implements the FAT12 volume format spec.md §4.6/§6
// describes: a fixed layout (1 reserved sector, 2 FATs of 9 sectors each,
// a 224-entry root directory, cluster N stored at sector 31+N), consumed
// through Open/Read/Write/Delete/Create and a process-scoped file
// descriptor table.
//
// Structurally grounded on biscuit's synchronous block-device contract
// (biscuit/src/fs/blk.go, simplified to the spec's direct read/write path
// with no block cache or queueing) and on the REDESIGN FLAGS in spec.md
// §9/SPEC_FULL §13: FAT entries are never touched via raw nibble
// arithmetic in business logic — only through the typed ClusterRef view in
// fat.go — and directory-entry fields are encoded/decoded explicitly
// rather than relying on Go struct layout matching the on-disk record.
package fat12

import (
	"gokernel/kernel/ata"
	"gokernel/kernel/errs"
)

// Volume layout constants (spec.md §4.6, §6). The root directory fills
// sectors 19-32 (224 entries of 32 bytes = 14 sectors), so the first data
// cluster, cluster 2, sits at sector 33. DataAreaStart is the offset added
// to a cluster number to get its sector: 31 + 2 = 33.
const (
	BytesPerSector  = 512
	ReservedSectors = 1
	NumFATs         = 2
	SectorsPerFAT   = 9
	RootDirEntries  = 224
	DataAreaStart   = 31

	RootDirStart = ReservedSectors + NumFATs*SectorsPerFAT // sector 19
	FAT1Start    = ReservedSectors
	FAT2Start    = ReservedSectors + SectorsPerFAT

	// EOFMark is the smallest 12-bit value FAT12 treats as end-of-chain
	// (spec.md §4.6: "EOF mark = any value ≥ 0xFF0").
	EOFMark = 0xFF0
	// BadCluster marks a cluster the driver must never allocate.
	BadCluster = 0xFF7
)

const entryBytes = 32
const rootDirSectors = (RootDirEntries*entryBytes + BytesPerSector - 1) / BytesPerSector

// Volume is an open FAT12 filesystem backed by a synchronous block
// device.
type Volume struct {
	disk ata.Disk
	fat1 FAT
	fat2 FAT
	root [RootDirEntries]Entry

	fds    *fdTable
	nextID uint64
}

// Mount reads the FAT and root directory sectors off disk and returns a
// ready-to-use Volume.
func Mount(disk ata.Disk) (*Volume, errs.Err_t) {
	v := &Volume{disk: disk, fds: newFDTable()}
	if err := v.loadFATs(); err != 0 {
		return nil, err
	}
	if err := v.loadRoot(); err != 0 {
		return nil, err
	}
	return v, 0
}

func (v *Volume) loadFATs() errs.Err_t {
	buf := make([]byte, SectorsPerFAT*BytesPerSector)
	if err := v.disk.ReadSectors(FAT1Start, SectorsPerFAT, buf); err != 0 {
		return err
	}
	v.fat1 = FAT{raw: append([]byte(nil), buf...)}

	if err := v.disk.ReadSectors(FAT2Start, SectorsPerFAT, buf); err != 0 {
		return err
	}
	v.fat2 = FAT{raw: append([]byte(nil), buf...)}
	return 0
}

func (v *Volume) loadRoot() errs.Err_t {
	buf := make([]byte, rootDirSectors*BytesPerSector)
	if err := v.disk.ReadSectors(RootDirStart, uint8(rootDirSectors), buf); err != 0 {
		return err
	}
	for i := 0; i < RootDirEntries; i++ {
		var raw [entryBytes]byte
		copy(raw[:], buf[i*entryBytes:(i+1)*entryBytes])
		v.root[i] = unmarshalEntry(raw)
	}
	return 0
}

func (v *Volume) flushFATs() errs.Err_t {
	if err := v.disk.WriteSectors(v.fat1.raw, FAT1Start, SectorsPerFAT); err != 0 {
		return err
	}
	if err := v.disk.WriteSectors(v.fat2.raw, FAT2Start, SectorsPerFAT); err != 0 {
		return err
	}
	return 0
}

func (v *Volume) flushRoot() errs.Err_t {
	buf := make([]byte, rootDirSectors*BytesPerSector)
	for i := range v.root {
		raw := marshalEntry(v.root[i])
		copy(buf[i*entryBytes:(i+1)*entryBytes], raw[:])
	}
	return v.disk.WriteSectors(buf, RootDirStart, uint8(rootDirSectors))
}

// clusterSector returns the absolute sector a data cluster lives at.
// Cluster numbering starts at 2, per the FAT convention, and cluster 2 is
// the first sector after the root directory; cluster size is one sector
// (spec.md §4.6).
func clusterSector(cluster uint16) uint32 {
	return DataAreaStart + uint32(cluster)
}

func (v *Volume) readCluster(cluster uint16, dst []byte) errs.Err_t {
	return v.disk.ReadSectors(clusterSector(cluster), 1, dst)
}

func (v *Volume) writeCluster(cluster uint16, src []byte) errs.Err_t {
	return v.disk.WriteSectors(src, clusterSector(cluster), 1)
}

// findFreeRootEntry returns the index of an unused root directory slot,
// or -1 if the root directory is full.
func (v *Volume) findFreeRootEntry() int {
	for i := range v.root {
		if v.root[i].IsFree() {
			return i
		}
	}
	return -1
}

// findFreeCluster scans the FAT for the first Free cluster, starting at 2
// (clusters 0 and 1 are reserved by convention).
func (v *Volume) findFreeCluster() (uint16, bool) {
	max := uint16(len(v.fat1.raw) * 2 / 3)
	for c := uint16(2); c < max; c++ {
		if v.fat1.Read(c).Kind == ClusterFree {
			return c, true
		}
	}
	return 0, false
}

func (v *Volume) setCluster(cluster uint16, ref ClusterRef) {
	v.fat1.Write(cluster, ref)
	v.fat2.Write(cluster, ref)
}
