// Package console implements a framebuffer-backed text console driven by a
// PSF1 bitmap font: it renders ASCII bytes written to it as glyphs onto the
// linear framebuffer the bootloader reported, scrolling by one glyph row
// once the bottom is reached. It implements hal.Terminal so kfmt/early (and
// kfmt, once the heap exists) can target it directly in place of the serial
// fallback (driver/uart) once attached.
package console

import "github.com/lumenkernel/lumen/kernel/hal/bootproto"

// pixel colors used for text: light grey on black, the standard VGA text
// console default.
var (
	fgPixel = [4]uint8{0xAA, 0xAA, 0xAA, 0xFF}
	bgPixel = [4]uint8{0x00, 0x00, 0x00, 0xFF}
)

// Console is a single framebuffer text console.
type Console struct {
	fb     []byte
	width  uint32
	height uint32
	pitch  uint32
	format bootproto.PixelFormat
	bpp    uint32

	font *Font

	widthChars, heightChars uint32
	cursorX, cursorY        uint32
}

// New builds a Console over fb, a slice mapping the bootloader-reported
// linear framebuffer, using font to render glyphs. fb must be at least
// pitch*height bytes.
func New(info bootproto.FramebufferInfo, fb []byte, font *Font) *Console {
	c := &Console{
		fb:     fb,
		width:  info.Width,
		height: info.Height,
		pitch:  info.Pitch,
		format: info.Format,
		bpp:    uint32(info.BytesPerPixel),
		font:   font,
	}
	c.widthChars = c.width / GlyphWidth
	c.heightChars = c.height / font.GlyphHeight
	return c
}

// Dimensions returns the console size in character cells.
func (c *Console) Dimensions() (width, height uint32) {
	return c.widthChars, c.heightChars
}

// Clear fills the entire framebuffer with the background color and resets
// the cursor to the top-left cell. Implements hal.Terminal.
func (c *Console) Clear() {
	for row := uint32(0); row < c.height; row++ {
		rowOff := row * c.pitch
		for col := uint32(0); col < c.width; col++ {
			c.putPixel(rowOff+col*c.bpp, bgPixel)
		}
	}
	c.cursorX, c.cursorY = 0, 0
}

func (c *Console) putPixel(off uint32, px [4]uint8) {
	switch c.format {
	case bootproto.Rgba8888:
		copy(c.fb[off:off+4], px[:])
	case bootproto.Bgra8888:
		c.fb[off], c.fb[off+1], c.fb[off+2], c.fb[off+3] = px[2], px[1], px[0], px[3]
	case bootproto.Rgb888:
		c.fb[off], c.fb[off+1], c.fb[off+2] = px[0], px[1], px[2]
	case bootproto.Bgr888:
		c.fb[off], c.fb[off+1], c.fb[off+2] = px[2], px[1], px[0]
	}
}

// putGlyph renders the 8xGlyphHeight bitmap for ch at the pixel position
// corresponding to character cell (cellX, cellY).
func (c *Console) putGlyph(ch byte, cellX, cellY uint32) {
	rows := c.font.glyphRows(ch)
	pxTop := cellY * c.font.GlyphHeight
	pxLeft := cellX * GlyphWidth

	for row, bits := range rows {
		rowOff := (pxTop+uint32(row))*c.pitch + pxLeft*c.bpp
		mask := uint8(1 << 7)
		off := rowOff
		for col := uint32(0); col < GlyphWidth; col, off = col+1, off+c.bpp {
			if bits&mask != 0 {
				c.putPixel(off, fgPixel)
			} else {
				c.putPixel(off, bgPixel)
			}
			mask >>= 1
		}
	}
}

// scroll moves every glyph row up by one row, discarding the top row, and
// clears the newly exposed bottom row.
func (c *Console) scroll() {
	rowBytes := c.font.GlyphHeight * c.pitch
	copy(c.fb, c.fb[rowBytes:])

	lastRowStart := uint32(len(c.fb)) - rowBytes
	for i := lastRowStart; i < uint32(len(c.fb)); i++ {
		c.fb[i] = 0
	}
}

// advance moves the cursor to the next cell, wrapping lines and scrolling
// when the console is full.
func (c *Console) advance() {
	c.cursorX++
	if c.cursorX >= c.widthChars {
		c.newline()
	}
}

func (c *Console) newline() {
	c.cursorX = 0
	c.cursorY++
	if c.cursorY >= c.heightChars {
		c.scroll()
		c.cursorY = c.heightChars - 1
	}
}

// WriteByte renders one byte at the current cursor position and advances
// the cursor, interpreting '\n' as a line feed and '\r' as a no-op (the
// cursor is always column-tracked, never physically repositioned by a bare
// carriage return from this driver's caller). Implements hal.Terminal.
func (c *Console) WriteByte(b byte) error {
	switch b {
	case '\n':
		c.newline()
		return nil
	case '\r':
		return nil
	}

	c.putGlyph(b, c.cursorX, c.cursorY)
	c.advance()
	return nil
}

// Write renders every byte of p in order. Implements hal.Terminal (via
// io.Writer).
func (c *Console) Write(p []byte) (int, error) {
	for _, b := range p {
		c.WriteByte(b)
	}
	return len(p), nil
}
