package interrupt

import "gokernel/kernel/config"

// 8259 PIC ports and initialization-control-word bits, translated from the
// original KAOS pic.c/pic.h (itself based on brokenthorn.com's PIC guide).
const (
	pic1Command = 0x20
	pic1Data    = 0x21
	pic2Command = 0xA0
	pic2Data    = 0xA1

	icw1Init  = 0x10
	icw1IC4   = 0x01
	icw4_8086 = 0x01

	ocwEOI = 0x20
)

// Remap reprograms the master and slave PICs so that IRQ lines land at
// masterBase and slaveBase instead of their power-on default of vectors
// 0x08 and 0x70, which collide with CPU exception vectors.
func Remap(masterBase, slaveBase uint8) {
	// ICW1: begin initialization, expect ICW4.
	outb(pic1Command, icw1Init|icw1IC4)
	outb(pic2Command, icw1Init|icw1IC4)

	// ICW2: vector offsets.
	outb(pic1Data, masterBase)
	outb(pic2Data, slaveBase)

	// ICW3: master has a slave on IRQ2 (bit 2); slave's cascade identity is 2.
	outb(pic1Data, 0x04)
	outb(pic2Data, 0x02)

	// ICW4: 8086 mode.
	outb(pic1Data, icw4_8086)
	outb(pic2Data, icw4_8086)

	// Unmask every line; individual drivers mask the ones they don't use.
	outb(pic1Data, 0x00)
	outb(pic2Data, 0x00)
}

// SendEOI acknowledges a serviced hardware interrupt so the PIC will
// deliver further interrupts on that line (and, for line >= 8, on the
// master's cascade line too).
func SendEOI(irq uint8) {
	if irq >= 8 {
		outb(pic2Command, ocwEOI)
	}
	outb(pic1Command, ocwEOI)
}

// InitPIC remaps the PIC to the kernel's chosen vector bases.
func InitPIC() {
	Remap(config.PICMasterVector, config.PICSlaveVector)
}
