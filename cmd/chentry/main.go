// Command chentry rewrites the e_entry field of an ELF executable in
// place. User programs for this kernel are built with a normal host
// toolchain (which picks whatever entry address its own linker default
// happens to be) and then dropped onto the FAT12 image as a flat text
// blob at kernel/config.ExecutableBase (kernel/loader.Load never looks at
// the ELF header at all — it just maps bytes starting at that fixed
// address). chentry's job sits between those two steps: it patches the
// ELF's reported entry point to match ExecutableBase before whatever
// extracts the flat blob (objcopy -O binary, typically) runs, so a linker
// map or debugger fed the original ELF agrees with where the kernel
// actually starts the program.
//
// Grounded on biscuit's build-time chentry tool, which solves the
// identical problem for biscuit's own ELF-booted kernel image.
package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strconv"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <elf-file> [entry-addr]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       entry-addr defaults to 0x%x (kernel/config.ExecutableBase)\n", defaultEntry)
	os.Exit(2)
}

// defaultEntry mirrors kernel/config.ExecutableBase. It is a literal
// rather than an import because cmd/chentry is a host build tool — it
// must not pull kernel/config's amd64-only assumptions into a binary
// meant to run on the build machine's own architecture.
const defaultEntry = 0x0000_0000_0040_0000

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		usage()
	}

	entry := uint64(defaultEntry)
	if len(os.Args) == 3 {
		var err error
		entry, err = strconv.ParseUint(os.Args[2], 0, 64)
		if err != nil {
			log.Fatalf("invalid entry address %q: %v", os.Args[2], err)
		}
	}
	if entry>>32 != 0 {
		log.Fatalf("entry 0x%x does not fit the 32-bit e_entry this loader expects", entry)
	}

	if err := patchEntry(os.Args[1], entry); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("chentry: %s entry set to 0x%x\n", os.Args[1], entry)
}

// patchEntry validates fn as a little-endian x86-64 executable ELF and
// rewrites its entry point to addr, leaving every other header field and
// all section data untouched.
func patchEntry(fn string, addr uint64) error {
	f, err := os.OpenFile(fn, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	if err := checkHeader(&ef.FileHeader); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}

	var entry [8]byte
	binary.LittleEndian.PutUint64(entry[:], addr)
	_, err = f.WriteAt(entry[:], 24) // e_entry's offset in the ELF64 header
	return err
}

func checkHeader(h *elf.FileHeader) error {
	if h.Ident[0] != 0x7f || string(h.Ident[1:4]) != "ELF" {
		return fmt.Errorf("not an ELF file")
	}
	if h.Ident[elf.EI_DATA] != elf.ELFDATA2LSB {
		return fmt.Errorf("not little-endian")
	}
	if h.Type != elf.ET_EXEC {
		return fmt.Errorf("not a static executable (got %s)", h.Type)
	}
	if h.Machine != elf.EM_X86_64 {
		return fmt.Errorf("not x86-64 (got %s)", h.Machine)
	}
	return nil
}
