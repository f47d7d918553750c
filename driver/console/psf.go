package console

import "github.com/lumenkernel/lumen/kernel"

// PSF1 magic bytes, fixed by the format.
const (
	psf1Magic0 = 0x36
	psf1Magic1 = 0x04
	headerLen  = 4

	// GlyphWidth is fixed by PSF1: every glyph is 8 pixels wide, one byte
	// per row.
	GlyphWidth = 8

	numGlyphs = 256
)

// ErrShortFont is returned by LoadPSF1 when data is too short to hold its
// own declared glyph table.
var ErrShortFont = kernel.New("console", "PSF1 font file shorter than header + 256 glyphs", kernel.KindInvalidArgument)

// ErrBadMagic is returned by LoadPSF1 when data does not start with the
// PSF1 magic bytes.
var ErrBadMagic = kernel.New("console", "not a PSF1 font file", kernel.KindInvalidArgument)

// Font is a parsed PSF1 bitmap font: 256 fixed-width glyphs, 8 pixels wide
// and GlyphHeight pixels tall, one byte per row.
type Font struct {
	GlyphHeight uint32
	glyphs      []byte // numGlyphs * GlyphHeight bytes
}

// LoadPSF1 parses a PSF1 font image: a 4-byte header (0x36, 0x04, mode,
// char_size) followed by 256 glyphs of char_size bytes each. mode is
// ignored — this console never uses the 512-glyph or Unicode-table PSF1
// variants.
func LoadPSF1(data []byte) (*Font, *kernel.Error) {
	if len(data) < headerLen {
		return nil, ErrShortFont
	}
	if data[0] != psf1Magic0 || data[1] != psf1Magic1 {
		return nil, ErrBadMagic
	}

	charSize := uint32(data[3])
	want := headerLen + numGlyphs*int(charSize)
	if len(data) < want {
		return nil, ErrShortFont
	}

	return &Font{
		GlyphHeight: charSize,
		glyphs:      data[headerLen:want],
	}, nil
}

// glyphRows returns the charSize raw row bytes for ch, one bit per pixel
// (MSB first, 8 pixels wide).
func (f *Font) glyphRows(ch byte) []byte {
	off := uint32(ch) * f.GlyphHeight
	return f.glyphs[off : off+f.GlyphHeight]
}
