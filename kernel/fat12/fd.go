package fat12

import (
	"encoding/binary"
	"hash/fnv"

	"gokernel/kernel/errs"
	"gokernel/kernel/hashtable"
)

// FD is the open-file descriptor spec.md §3 File Descriptor describes:
// name/extension bytes, file size, and a current read/write offset.
// Created by Open, mutated by Read/Write/Seek, destroyed by Close.
type FD struct {
	Name   [8]byte
	Ext    [3]byte
	Offset uint32

	rootIdx int // index into Volume.root, so reads/writes see live size/mtime
}

// Handle is the 64-bit value returned to user mode by the open syscall
// (spec.md §4.6 table, #10). It satisfies hashtable.Key so the descriptor
// table can be indexed by it directly.
type Handle uint64

// Bytes implements hashtable.Key.
func (h Handle) Bytes() []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(h))
	return b[:]
}

// handleFor computes the file handle spec.md §4.6 specifies: a hash of
// filename+extension+pid, so the same file opened by two different tasks
// yields independent descriptors, while the same task opening the same
// file twice collides onto the same slot (spec.md §3 File Descriptor:
// "keyed on hash(filename || pid) to keep independent opens... disjoint").
func handleFor(name [8]byte, ext [3]byte, pid uint64) Handle {
	h := fnv.New64a()
	h.Write(name[:])
	h.Write(ext[:])
	var pidBytes [8]byte
	binary.LittleEndian.PutUint64(pidBytes[:], pid)
	h.Write(pidBytes[:])
	return Handle(h.Sum64())
}

type fdTable struct {
	t *hashtable.Table[Handle, *FD]
}

func newFDTable() *fdTable {
	return &fdTable{t: hashtable.New[Handle, *FD](64)}
}

// Open finds name.ext in the root directory and installs a fresh FD for
// it under (name, ext, pid)'s handle, returning the handle. Opening a
// name that does not exist returns ENOENT.
func (v *Volume) Open(name string, pid uint64) (Handle, errs.Err_t) {
	nameBytes, extBytes := EncodeName8_3(name)
	idx := -1
	for i := range v.root {
		e := v.root[i]
		if e.IsFree() || e.Attr&attrVolumeLabel != 0 {
			continue
		}
		if e.Name == nameBytes && e.Ext == extBytes {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, errs.ENOENT
	}
	h := handleFor(nameBytes, extBytes, pid)
	v.fds.t.Set(h, &FD{Name: nameBytes, Ext: extBytes, rootIdx: idx})
	return h, 0
}

// Close destroys the descriptor for handle. Closing an unknown handle is
// a no-op (spec.md §7: lookup misses return a sentinel, caller decides).
func (v *Volume) Close(h Handle) {
	v.fds.t.Del(h)
}

// Seek sets handle's current offset.
func (v *Volume) Seek(h Handle, offset uint32) errs.Err_t {
	fd, ok := v.fds.t.Get(h)
	if !ok {
		return errs.EINVAL
	}
	fd.Offset = offset
	return 0
}

// Eof reports whether handle's offset has reached its file's size.
func (v *Volume) Eof(h Handle) bool {
	fd, ok := v.fds.t.Get(h)
	if !ok {
		return true
	}
	return fd.Offset >= v.root[fd.rootIdx].Size
}
