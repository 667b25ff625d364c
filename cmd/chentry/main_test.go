package main

import (
	"debug/elf"
	"testing"
)

func validHeader() elf.FileHeader {
	var h elf.FileHeader
	h.Ident[0] = 0x7f
	h.Ident[1], h.Ident[2], h.Ident[3] = 'E', 'L', 'F'
	h.Ident[elf.EI_DATA] = elf.ELFDATA2LSB
	h.Type = elf.ET_EXEC
	h.Machine = elf.EM_X86_64
	return h
}

func TestCheckHeaderAcceptsValidExecutable(t *testing.T) {
	h := validHeader()
	if err := checkHeader(&h); err != nil {
		t.Fatalf("checkHeader rejected a valid header: %v", err)
	}
}

func TestCheckHeaderRejectsBadMagic(t *testing.T) {
	h := validHeader()
	h.Ident[1] = 'X'
	if err := checkHeader(&h); err == nil {
		t.Fatalf("checkHeader accepted a bad magic number")
	}
}

func TestCheckHeaderRejectsBigEndian(t *testing.T) {
	h := validHeader()
	h.Ident[elf.EI_DATA] = elf.ELFDATA2MSB
	if err := checkHeader(&h); err == nil {
		t.Fatalf("checkHeader accepted a big-endian file")
	}
}

func TestCheckHeaderRejectsNonExecutable(t *testing.T) {
	h := validHeader()
	h.Type = elf.ET_DYN
	if err := checkHeader(&h); err == nil {
		t.Fatalf("checkHeader accepted a non-executable ELF type")
	}
}

func TestCheckHeaderRejectsWrongMachine(t *testing.T) {
	h := validHeader()
	h.Machine = elf.EM_AARCH64
	if err := checkHeader(&h); err == nil {
		t.Fatalf("checkHeader accepted a non-x86-64 machine")
	}
}
