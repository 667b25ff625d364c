// Package vga drives the memory-mapped 80x25 VGA text console (spec.md
// §6 External Collaborators: "memory-mapped 80×25 cell buffer... cursor
// register pair (0x3D4 index, 0x3D5 data)"). Although the spec treats the
// console's existence as external, the byte-level protocol for moving the
// hardware cursor and the cell layout are concrete enough that the kernel
// needs its own small driver for them — this is the "VGA glue" spec.md
// §2's size budget names alongside the filesystem.
//
// Grounded on gopher-os's kernel/hal/console package (the {char, attribute}
// cell pair and the index/data cursor-port write sequence) and on
// kernel/interrupt/ioport.go's outb indirection, used here for the same
// reason: so Console's cursor and scrolling logic is exercised by tests
// without real port I/O.
package vga

import "gokernel/kernel/cpu"

const (
	Rows = 25
	Cols = 80

	cursorPortIndex = 0x3D4
	cursorPortData  = 0x3D5

	defaultAttr = 0x07 // light grey on black
)

// Cell is one character position in the VGA text buffer: a byte for the
// glyph and a byte for its color attribute.
type Cell struct {
	Char byte
	Attr byte
}

// outb is indirected so Console's logic can run on the host (see
// kernel/interrupt/ioport.go for the same pattern).
var outb = cpu.Outb

// Console renders text into a memory-mapped cell buffer and tracks a
// cursor position, implementing io.Writer so klog.SetOutput(console) can
// replace the pre-console ring buffer once paging has mapped 0xB8000.
type Console struct {
	cells    []Cell
	row, col int
	attr     byte
}

// New wraps cells — which must have exactly Rows*Cols elements, typically
// a slice over the VGA buffer's mapped virtual address — in a Console.
func New(cells []Cell) *Console {
	if len(cells) != Rows*Cols {
		panic("vga: cell buffer must be Rows*Cols cells")
	}
	return &Console{cells: cells, attr: defaultAttr}
}

// Write implements io.Writer: every byte is rendered as one character,
// '\n' and '\b' handled specially, scrolling the buffer up one row
// whenever output reaches the bottom (spec.md §6 VGA text console).
func (c *Console) Write(p []byte) (int, error) {
	for _, b := range p {
		c.putc(b)
	}
	return len(p), nil
}

func (c *Console) putc(b byte) {
	switch b {
	case '\n':
		c.row++
		c.col = 0
	case '\b':
		if c.col > 0 {
			c.col--
			c.cells[c.row*Cols+c.col] = Cell{' ', c.attr}
		}
	default:
		c.cells[c.row*Cols+c.col] = Cell{b, c.attr}
		c.col++
	}
	if c.col >= Cols {
		c.col = 0
		c.row++
	}
	if c.row >= Rows {
		c.scroll()
		c.row = Rows - 1
	}
	c.syncCursor()
}

// scroll shifts every row up by one, blanking the new bottom row.
func (c *Console) scroll() {
	copy(c.cells, c.cells[Cols:])
	for i := (Rows - 1) * Cols; i < Rows*Cols; i++ {
		c.cells[i] = Cell{' ', c.attr}
	}
}

// Clear blanks the entire buffer and homes the cursor (spec.md §4.6
// syscall 9, clear-screen).
func (c *Console) Clear() {
	for i := range c.cells {
		c.cells[i] = Cell{' ', c.attr}
	}
	c.row, c.col = 0, 0
	c.syncCursor()
}

// Cursor returns the current row/column (spec.md §4.6 syscall 5, getcursor).
func (c *Console) Cursor() (row, col int) {
	return c.row, c.col
}

// SetCursor moves the cursor to an arbitrary row/column, clamped to the
// buffer's bounds (spec.md §4.6 syscall 6, setcursor).
func (c *Console) SetCursor(row, col int) {
	if row < 0 {
		row = 0
	} else if row >= Rows {
		row = Rows - 1
	}
	if col < 0 {
		col = 0
	} else if col >= Cols {
		col = Cols - 1
	}
	c.row, c.col = row, col
	c.syncCursor()
}

// syncCursor writes the linear cell offset of the current position to the
// CRT controller's cursor location register, split high/low byte across
// two indexed writes, per the standard VGA cursor-move sequence.
func (c *Console) syncCursor() {
	pos := uint16(c.row*Cols + c.col)
	outb(cursorPortIndex, 0x0F)
	outb(cursorPortData, byte(pos&0xFF))
	outb(cursorPortIndex, 0x0E)
	outb(cursorPortData, byte(pos>>8))
}
