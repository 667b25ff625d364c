package interrupt

// PS/2 controller ports, per the original KAOS keyboard driver this is
// translated from: the status and command registers share port 0x64, the
// encoder's input buffer and command register share port 0x60.
const (
	kbdStatusPort = 0x64
	kbdDataPort   = 0x60

	statusOutputFull = 1 << 0
)

// scanCodeIRQ is IRQ line 1 (keyboard), landing at vector PICMasterVector+1
// once the PIC has been remapped.
const scanCodeIRQ = 1

const (
	scLeftShift  = 0x2A
	scRightShift = 0x36
	scCapsLock   = 0x3A
	scLeftCtrl   = 0x1D
	breakBit     = 0x80
)

// lowerCase is the XT scan-code-set-1 make-code table for a US QWERTY
// layout, indexed by scan code. A zero entry means the code carries no
// printable character on its own (function/arrow/modifier keys).
var lowerCase = [0x59]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x0C: '-', 0x0D: '=', 0x0E: '\b', 0x0F: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1A: '[', 0x1B: ']', 0x1C: '\r',
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l', 0x27: ';',
	0x28: '\'', 0x29: '`',
	0x2B: '\\',
	0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm', 0x33: ',', 0x34: '.', 0x35: '/',
	0x37: '*', 0x39: ' ',
}

// shifted mirrors lowerCase's printable slots with Shift/CapsLock applied.
var shifted = [0x59]byte{
	0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%',
	0x07: '^', 0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')',
	0x0C: '_', 0x0D: '+', 0x0E: '\b', 0x0F: '\t',
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T',
	0x15: 'Y', 0x16: 'U', 0x17: 'I', 0x18: 'O', 0x19: 'P',
	0x1A: '{', 0x1B: '}', 0x1C: '\r',
	0x1E: 'A', 0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G',
	0x23: 'H', 0x24: 'J', 0x25: 'K', 0x26: 'L', 0x27: ':',
	0x28: '"', 0x29: '~',
	0x2B: '|',
	0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V', 0x30: 'B',
	0x31: 'N', 0x32: 'M', 0x33: '<', 0x34: '>', 0x35: '?',
	0x37: '*', 0x39: ' ',
}

// Keyboard is the PS/2 driver: modifier state plus a single pending
// character slot, matching spec.md's "single-slot buffer" contract — a
// second key pressed before the first is consumed overwrites it, exactly
// as the original KAOS driver's _lastReceivedScanCode does.
type Keyboard struct {
	shift    bool
	capsLock bool
	leftCtrl bool

	pending byte
	hasKey  bool
}

var kbd Keyboard

// InitKeyboard wires the PS/2 IRQ line to the keyboard driver. Called once
// from the kernel's boot sequence after the PIC has been remapped.
func InitKeyboard() {
	kbd = Keyboard{}
	HandleIRQ(scanCodeIRQ, func(*Frame, *Regs) {
		if readStatus()&statusOutputFull == 0 {
			return
		}
		kbd.onScanCode(readBuffer())
	})
}

func readStatus() byte { return inb(kbdStatusPort) }
func readBuffer() byte { return inb(kbdDataPort) }

// onScanCode processes one scan code exactly as KeyboardCallback does:
// break codes (bit 7 set) update modifier state on release, make codes
// update modifier state on press or else buffer the translated character.
func (k *Keyboard) onScanCode(code byte) {
	if code&breakBit != 0 {
		switch code &^ breakBit {
		case scLeftCtrl:
			k.leftCtrl = false
		case scLeftShift, scRightShift:
			k.shift = false
		}
		return
	}

	switch code {
	case scLeftCtrl:
		k.leftCtrl = true
	case scCapsLock:
		k.capsLock = !k.capsLock
	case scLeftShift, scRightShift:
		k.shift = true
	default:
		if ch := k.translate(code); ch != 0 {
			k.pending = ch
			k.hasKey = true
		}
	}
}

// translate converts a make code to its ASCII character under the current
// modifier state, mirroring KeyboardKeyToASCII's shift/caps-lock/ctrl
// handling.
func (k *Keyboard) translate(code byte) byte {
	if int(code) >= len(lowerCase) {
		return 0
	}
	var ch byte
	if k.shift != k.capsLock {
		ch = shifted[code]
	} else {
		ch = lowerCase[code]
	}
	if ch == 0 {
		return 0
	}
	if k.leftCtrl {
		return ch &^ 0x60 // control character: clears bits 5-6, as on a real terminal
	}
	return ch
}

// GetChar returns the pending character and clears the slot, or reports
// false if no key has been pressed since the last call (spec.md's getchar
// syscall polls this in a loop until it sees true).
func GetChar() (byte, bool) {
	if !kbd.hasKey {
		return 0, false
	}
	ch := kbd.pending
	kbd.hasKey = false
	return ch, true
}
