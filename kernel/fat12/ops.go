package fat12

import "gokernel/kernel/errs"

// clusterAt returns the cluster number holding byte offset `at` within a
// file whose first cluster is first, walking the FAT chain. Reads/writes
// spanning more than two clusters are fully supported (SPEC_FULL §14
// resolves spec.md §9's ambiguity on this point) — the walk simply
// continues until it reaches the requested cluster index.
func (v *Volume) clusterAt(first uint16, at uint32) (uint16, bool) {
	idx := at / BytesPerSector
	c := first
	for i := uint32(0); i < idx; i++ {
		ref := v.fat1.Read(c)
		if ref.Kind != ClusterUsed {
			return 0, false
		}
		c = ref.Next
	}
	return c, true
}

// Read copies up to len(buf) bytes starting at handle's current offset,
// walking the cluster chain across as many clusters as the request spans,
// and advances the offset by however many bytes were actually copied
// (spec.md §4.6 Read).
func (v *Volume) Read(h Handle, buf []byte) (int, errs.Err_t) {
	fd, ok := v.fds.t.Get(h)
	if !ok {
		return 0, errs.EINVAL
	}
	entry := v.root[fd.rootIdx]
	remaining := int(entry.Size) - int(fd.Offset)
	if remaining <= 0 {
		return 0, 0
	}
	want := len(buf)
	if want > remaining {
		want = remaining
	}

	sector := make([]byte, BytesPerSector)
	copied := 0
	for copied < want {
		cluster, ok := v.clusterAt(entry.FirstCluster, fd.Offset)
		if !ok {
			return copied, errs.EFAULT
		}
		if err := v.readCluster(cluster, sector); err != 0 {
			return copied, err
		}
		inClusterOff := int(fd.Offset) % BytesPerSector
		n := BytesPerSector - inClusterOff
		if n > want-copied {
			n = want - copied
		}
		copy(buf[copied:copied+n], sector[inClusterOff:inClusterOff+n])
		copied += n
		fd.Offset += uint32(n)
	}
	return copied, 0
}

// Write copies buf into handle's file starting at its current offset,
// allocating new clusters as the chain runs out, and grows the on-disk
// size (and stamps mtime from writeDate/writeTime) when the write
// extends past the current end of file. Root directory and both FATs are
// flushed after every write (spec.md §4.6 Write).
func (v *Volume) Write(h Handle, buf []byte, writeDate, writeTime uint16) (int, errs.Err_t) {
	fd, ok := v.fds.t.Get(h)
	if !ok {
		return 0, errs.EINVAL
	}
	entry := &v.root[fd.rootIdx]
	if entry.FirstCluster == 0 {
		c, ok := v.findFreeCluster()
		if !ok {
			return 0, errs.ENOMEM
		}
		v.setCluster(c, EndOfChain)
		entry.FirstCluster = c
	}

	sector := make([]byte, BytesPerSector)
	written := 0
	grew := false
	for written < len(buf) {
		cluster, ok := v.clusterAt(entry.FirstCluster, fd.Offset)
		if !ok {
			last := v.lastClusterOf(entry.FirstCluster)
			next, ok := v.findFreeCluster()
			if !ok {
				return written, errs.ENOMEM
			}
			v.setCluster(last, ClusterRef{Kind: ClusterUsed, Next: next})
			v.setCluster(next, EndOfChain)
			continue
		}
		if err := v.readCluster(cluster, sector); err != 0 {
			return written, err
		}
		inClusterOff := int(fd.Offset) % BytesPerSector
		n := BytesPerSector - inClusterOff
		if n > len(buf)-written {
			n = len(buf) - written
		}
		copy(sector[inClusterOff:inClusterOff+n], buf[written:written+n])
		if err := v.writeCluster(cluster, sector); err != 0 {
			return written, err
		}
		written += n
		fd.Offset += uint32(n)
		if fd.Offset > entry.Size {
			entry.Size = fd.Offset
			grew = true
		}
	}
	if grew {
		entry.WriteDate = writeDate
		entry.WriteTime = writeTime
	}

	if err := v.flushFATs(); err != 0 {
		return written, err
	}
	if err := v.flushRoot(); err != 0 {
		return written, err
	}
	return written, 0
}

func (v *Volume) lastClusterOf(first uint16) uint16 {
	c := first
	for {
		ref := v.fat1.Read(c)
		if ref.Kind != ClusterUsed {
			return c
		}
		c = ref.Next
	}
}

// Create allocates a root directory slot and one data cluster for a new
// file, writes its initial content (zero-padded to a full cluster), and
// flushes the root directory and both FATs (spec.md §4.6 Create).
func (v *Volume) Create(name string, content []byte, createDate, createTime uint16) errs.Err_t {
	nameBytes, extBytes := EncodeName8_3(name)

	idx := v.findFreeRootEntry()
	if idx < 0 {
		return errs.ENOMEM
	}
	cluster, ok := v.findFreeCluster()
	if !ok {
		return errs.ENOMEM
	}
	v.setCluster(cluster, EndOfChain)

	sector := make([]byte, BytesPerSector)
	n := copy(sector, content)
	if err := v.writeCluster(cluster, sector); err != 0 {
		return err
	}

	v.root[idx] = Entry{
		Name:         nameBytes,
		Ext:          extBytes,
		Attr:         0,
		CreateDate:   createDate,
		CreateTime:   createTime,
		WriteDate:    createDate,
		WriteTime:    createTime,
		FirstCluster: cluster,
		Size:         uint32(n),
	}

	if err := v.flushFATs(); err != 0 {
		return err
	}
	return v.flushRoot()
}

// Delete walks the named file's cluster chain, clearing every FAT entry
// and zeroing each cluster's data sector, then zeroes the root directory
// entry (spec.md §4.6 Delete).
func (v *Volume) Delete(name string) errs.Err_t {
	nameBytes, extBytes := EncodeName8_3(name)
	idx := -1
	for i := range v.root {
		e := v.root[i]
		if !e.IsFree() && e.Name == nameBytes && e.Ext == extBytes {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errs.ENOENT
	}

	zero := make([]byte, BytesPerSector)
	for _, c := range v.fat1.Chain(v.root[idx].FirstCluster) {
		if err := v.writeCluster(c, zero); err != 0 {
			return err
		}
		v.setCluster(c, ClusterRef{Kind: ClusterFree})
	}

	v.root[idx] = Entry{Name: [8]byte{0xE5}}

	if err := v.flushFATs(); err != 0 {
		return err
	}
	return v.flushRoot()
}

// ListRoot returns every occupied, non-volume-label entry in the root
// directory, for the print-root-dir syscall (spec.md §4.6 table, #8).
func (v *Volume) ListRoot() []Entry {
	var out []Entry
	for _, e := range v.root {
		if e.IsFree() || e.Attr&attrVolumeLabel != 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}
