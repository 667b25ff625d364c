package fat12

import (
	"encoding/binary"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// attrAttribute bits used by the classic short directory entry. Only the
// ones this driver cares about are named; the rest (hidden, system,
// archive) are preserved verbatim but never inspected.
const (
	attrVolumeLabel = 1 << 3
	attrDirectory   = 1 << 4
)

// Entry is the classic 32-byte FAT12 root directory record (spec.md §6):
// 8.3 short name, attributes, packed create/write timestamps, starting
// cluster, and file size. Fields are encoded/decoded through Marshal-
// /unmarshalEntry rather than relying on Go struct layout to match the
// on-disk bytes (spec.md §9 "packed bit-field records").
type Entry struct {
	Name           [8]byte
	Ext            [3]byte
	Attr           byte
	CreateTimeTenth byte
	CreateTime     uint16
	CreateDate     uint16
	LastAccessDate uint16
	WriteTime      uint16
	WriteDate      uint16
	FirstCluster   uint16
	Size           uint32
}

// IsFree reports whether this root directory slot is unused: either never
// written (name's first byte is 0x00) or a deleted entry (0xE5, per the
// classic FAT convention).
func (e Entry) IsFree() bool {
	return e.Name[0] == 0x00 || e.Name[0] == 0xE5
}

// unmarshalEntry decodes a 32-byte on-disk record.
func unmarshalEntry(raw [32]byte) Entry {
	var e Entry
	copy(e.Name[:], raw[0:8])
	copy(e.Ext[:], raw[8:11])
	e.Attr = raw[11]
	e.CreateTimeTenth = raw[13]
	e.CreateTime = binary.LittleEndian.Uint16(raw[14:16])
	e.CreateDate = binary.LittleEndian.Uint16(raw[16:18])
	e.LastAccessDate = binary.LittleEndian.Uint16(raw[18:20])
	// raw[20:22] is FirstClusterHi, always 0 for FAT12.
	e.WriteTime = binary.LittleEndian.Uint16(raw[22:24])
	e.WriteDate = binary.LittleEndian.Uint16(raw[24:26])
	e.FirstCluster = binary.LittleEndian.Uint16(raw[26:28])
	e.Size = binary.LittleEndian.Uint32(raw[28:32])
	return e
}

// marshalEntry encodes e into its 32-byte on-disk form.
func marshalEntry(e Entry) [32]byte {
	var raw [32]byte
	copy(raw[0:8], e.Name[:])
	copy(raw[8:11], e.Ext[:])
	raw[11] = e.Attr
	raw[13] = e.CreateTimeTenth
	binary.LittleEndian.PutUint16(raw[14:16], e.CreateTime)
	binary.LittleEndian.PutUint16(raw[16:18], e.CreateDate)
	binary.LittleEndian.PutUint16(raw[18:20], e.LastAccessDate)
	binary.LittleEndian.PutUint16(raw[22:24], e.WriteTime)
	binary.LittleEndian.PutUint16(raw[24:26], e.WriteDate)
	binary.LittleEndian.PutUint16(raw[26:28], e.FirstCluster)
	binary.LittleEndian.PutUint32(raw[28:32], e.Size)
	return raw
}

// PackTime encodes hour:minute:second into the FAT12 5/6/5-bit packed
// time field (seconds are stored at 2-second resolution).
func PackTime(hour, min, sec int) uint16 {
	return uint16(hour&0x1F)<<11 | uint16(min&0x3F)<<5 | uint16((sec/2)&0x1F)
}

// PackDate encodes year/month/day into the FAT12 7/4/5-bit packed date
// field (year is stored as an offset from 1980).
func PackDate(year, month, day int) uint16 {
	return uint16((year-1980)&0x7F)<<9 | uint16(month&0xF)<<5 | uint16(day&0x1F)
}

// DisplayName renders the entry's 8.3 name the way the original KaOS
// FAT12 driver's print-root-dir did (spec.md §12 SUPPLEMENTED FEATURES):
// the dot reinserted, trailing padding spaces trimmed, and the raw bytes
// decoded through IBM PC code page 437 rather than assumed to be ASCII
// (spec.md §11 DOMAIN STACK: golang.org/x/text/encoding/charmap).
func (e Entry) DisplayName() string {
	name := decodeCP437(trimSpaces(e.Name[:]))
	ext := decodeCP437(trimSpaces(e.Ext[:]))
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// EncodeName8_3 splits a "NAME.EXT"-shaped string into FAT12's
// space-padded 8-byte name and 3-byte extension fields, encoding through
// code page 437 to match what DisplayName decodes.
func EncodeName8_3(s string) (name [8]byte, ext [3]byte) {
	base, extension, _ := strings.Cut(strings.ToUpper(s), ".")
	encoded := encodeCP437(base)
	for i := range name {
		name[i] = ' '
	}
	copy(name[:], encoded)

	encodedExt := encodeCP437(extension)
	for i := range ext {
		ext[i] = ' '
	}
	copy(ext[:], encodedExt)
	return name, ext
}

func trimSpaces(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == ' ' {
		i--
	}
	return b[:i]
}

func decodeCP437(b []byte) string {
	out, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func encodeCP437(s string) []byte {
	out, err := charmap.CodePage437.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
