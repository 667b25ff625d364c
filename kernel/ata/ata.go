// Package ata implements the synchronous ATA PIO block-device contract
// spec.md §6 treats as an external collaborator: read_sectors(lba, count,
// dst) / write_sectors(src, lba, count), 512-byte sectors, busy/DRQ
// polling before each transfer, 16-bit word moves on read and 32-bit long
// moves on write.
//
// Structurally grounded on biscuit's Disk_i/Bdev_req_t request plumbing
// (biscuit/src/fs/blk.go) but collapsed to a synchronous call per spec.md
// §6 — the spec's ATA contract has no queueing or async ack channel, so
// the request/response indirection biscuit uses for its cache-backed,
// multi-outstanding-request disk has no role here.
package ata

import (
	"gokernel/kernel/cpu"
	"gokernel/kernel/errs"
)

// SectorSize is the fixed block size of the volume this driver serves
// (spec.md §6).
const SectorSize = 512

// Primary ATA bus I/O ports (PIO mode, no DMA), primary channel, master
// drive — the only configuration spec.md's external ATA collaborator
// needs to support.
const (
	portData       = 0x1F0
	portErr        = 0x1F1
	portSectorCnt  = 0x1F2
	portLBALow     = 0x1F3
	portLBAMid     = 0x1F4
	portLBAHigh    = 0x1F5
	portDriveHead  = 0x1F6
	portCommand    = 0x1F7
	portStatus     = 0x1F7

	cmdReadSectors  = 0x20
	cmdWriteSectors = 0x30

	statusBusy = 1 << 7
	statusDRQ  = 1 << 3
	statusErr  = 1 << 0
)

// Disk is the synchronous block device spec.md §6 names: ReadSectors and
// WriteSectors move whole 512-byte sectors by LBA.
type Disk interface {
	ReadSectors(lba uint32, count uint8, dst []byte) errs.Err_t
	WriteSectors(src []byte, lba uint32, count uint8) errs.Err_t
}

// PIODisk drives the primary ATA channel's master drive directly via port
// I/O, the way the spec's external collaborator is documented to behave.
type PIODisk struct{}

// NewPIODisk returns a Disk backed by real port I/O.
func NewPIODisk() *PIODisk { return &PIODisk{} }

func waitReady() errs.Err_t {
	for i := 0; i < 1_000_000; i++ {
		st := cpu.Inb(portStatus)
		if st&statusErr != 0 {
			return errs.EFAULT
		}
		if st&statusBusy == 0 && st&statusDRQ != 0 {
			return 0
		}
	}
	return errs.EFAULT
}

func selectLBA(lba uint32, count uint8) {
	cpu.Outb(portDriveHead, 0xE0|uint8((lba>>24)&0x0F))
	cpu.Outb(portSectorCnt, count)
	cpu.Outb(portLBALow, uint8(lba))
	cpu.Outb(portLBAMid, uint8(lba>>8))
	cpu.Outb(portLBAHigh, uint8(lba>>16))
}

// ReadSectors reads count sectors starting at lba into dst, which must be
// at least count*SectorSize bytes. Transfers move 16-bit words, per the
// ATA PIO read convention spec.md §6 specifies.
func (d *PIODisk) ReadSectors(lba uint32, count uint8, dst []byte) errs.Err_t {
	if len(dst) < int(count)*SectorSize {
		return errs.EINVAL
	}
	selectLBA(lba, count)
	cpu.Outb(portCommand, cmdReadSectors)

	for s := 0; s < int(count); s++ {
		if err := waitReady(); err != 0 {
			return err
		}
		base := s * SectorSize
		for i := 0; i < SectorSize; i += 2 {
			w := cpu.Inw(portData)
			dst[base+i] = byte(w)
			dst[base+i+1] = byte(w >> 8)
		}
	}
	return 0
}

// WriteSectors writes count sectors from src, which must hold at least
// count*SectorSize bytes, starting at lba. Transfers move 32-bit longs,
// per the ATA PIO write convention spec.md §6 specifies — PIODisk issues
// them as two 16-bit word writes since cpu.Outb/Outw are the only port
// primitives kernel/cpu exposes.
func (d *PIODisk) WriteSectors(src []byte, lba uint32, count uint8) errs.Err_t {
	if len(src) < int(count)*SectorSize {
		return errs.EINVAL
	}
	selectLBA(lba, count)
	cpu.Outb(portCommand, cmdWriteSectors)

	for s := 0; s < int(count); s++ {
		if err := waitReady(); err != 0 {
			return err
		}
		base := s * SectorSize
		for i := 0; i < SectorSize; i += 4 {
			lo := uint16(src[base+i]) | uint16(src[base+i+1])<<8
			hi := uint16(src[base+i+2]) | uint16(src[base+i+3])<<8
			cpu.Outw(portData, lo)
			cpu.Outw(portData, hi)
		}
	}
	return 0
}
