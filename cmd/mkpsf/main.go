// Command mkpsf rasterizes a TrueType font's first 256 glyphs into a PSF1
// console font (see driver/console's loader) and writes a glyph-sheet PNG
// preview alongside it for visual QA.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// PSF1 layout constants, matching driver/console/psf.go's loader.
const (
	psf1Magic0 = 0x36
	psf1Magic1 = 0x04
	glyphWidth = 8
	glyphCount = 256

	// threshold is the coverage value (0-255) above which a sampled pixel
	// counts as "on" in the 1-bit glyph bitmap.
	threshold = 128
)

func main() {
	var (
		fontPath   = flag.String("font", "", "path to a TrueType (.ttf) font")
		outPath    = flag.String("out", "console.psf", "output PSF1 font path")
		previewPath = flag.String("preview", "", "optional glyph-sheet PNG preview path")
		charSize   = flag.Int("size", 16, "glyph height in pixels (PSF1 char_size)")
		fontSizePt = flag.Float64("pt", 14, "rasterization point size passed to freetype")
	)
	flag.Parse()

	if *fontPath == "" {
		fmt.Fprintln(os.Stderr, "usage: mkpsf -font <path.ttf> -out <console.psf> [-preview sheet.png] [-size 16] [-pt 14]")
		os.Exit(1)
	}

	fontBytes, err := os.ReadFile(*fontPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkpsf: reading font: %v\n", err)
		os.Exit(1)
	}

	ttf, err := truetype.Parse(fontBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkpsf: parsing TrueType font: %v\n", err)
		os.Exit(1)
	}

	face := truetype.NewFace(ttf, &truetype.Options{
		Size:    *fontSizePt,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	defer face.Close()

	glyphs := make([][]byte, glyphCount)
	for ch := 0; ch < glyphCount; ch++ {
		glyphs[ch] = rasterizeGlyph(face, rune(ch), *charSize)
	}

	if err := writePSF1(*outPath, glyphs, *charSize); err != nil {
		fmt.Fprintf(os.Stderr, "mkpsf: writing PSF1 font: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("mkpsf: wrote %s (%d glyphs, %dx%d)\n", *outPath, glyphCount, glyphWidth, *charSize)

	if *previewPath != "" {
		if err := writePreview(*previewPath, glyphs, *charSize); err != nil {
			fmt.Fprintf(os.Stderr, "mkpsf: writing preview PNG: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("mkpsf: wrote preview %s\n", *previewPath)
	}
}

// rasterizeGlyph renders ch at the face's configured size into a
// glyphWidth x charSize cell and returns it packed MSB-first, one byte per
// row, PSF1's on-disk glyph representation.
func rasterizeGlyph(face font.Face, ch rune, charSize int) []byte {
	dst := image.NewGray(image.Rect(0, 0, glyphWidth, charSize))
	for i := range dst.Pix {
		dst.Pix[i] = 0
	}

	dr, mask, maskp, _, ok := face.Glyph(fixed.P(0, charSize-charSize/4), ch)
	if ok {
		for y := dr.Min.Y; y < dr.Max.Y && y < charSize; y++ {
			for x := dr.Min.X; x < dr.Max.X && x < glyphWidth; x++ {
				if x < 0 || y < 0 {
					continue
				}
				_, _, _, a := mask.At(maskp.X+(x-dr.Min.X), maskp.Y+(y-dr.Min.Y)).RGBA()
				if a>>8 >= threshold {
					dst.SetGray(x, y, color.Gray{Y: 0xFF})
				}
			}
		}
	}

	row := make([]byte, charSize)
	for y := 0; y < charSize; y++ {
		var b byte
		for x := 0; x < glyphWidth; x++ {
			if dst.GrayAt(x, y).Y != 0 {
				b |= 1 << uint(7-x)
			}
		}
		row[y] = b
	}
	return row
}

// writePSF1 writes the 4-byte PSF1 header followed by glyphCount glyphs of
// charSize bytes each, exactly the layout driver/console.LoadPSF1 parses.
func writePSF1(path string, glyphs [][]byte, charSize int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := []byte{psf1Magic0, psf1Magic1, 0x00, byte(charSize)}
	if _, err := f.Write(header); err != nil {
		return err
	}
	for _, g := range glyphs {
		if _, err := f.Write(g); err != nil {
			return err
		}
	}
	return nil
}

// writePreview lays every glyph out on a 16x16 grid and renders it as a
// PNG via gg, for a human to eyeball before flashing the font into a boot
// image.
func writePreview(path string, glyphs [][]byte, charSize int) error {
	const cols, rows = 16, 16
	const cellScale = 2

	dc := gg.NewContext(cols*glyphWidth*cellScale, rows*charSize*cellScale)
	dc.SetColor(color.Black)
	dc.Clear()
	dc.SetColor(color.White)

	for ch, rowsBytes := range glyphs {
		cellX := (ch % cols) * glyphWidth * cellScale
		cellY := (ch / cols) * charSize * cellScale
		for y, b := range rowsBytes {
			for x := 0; x < glyphWidth; x++ {
				if b&(1<<uint(7-x)) == 0 {
					continue
				}
				dc.DrawRectangle(
					float64(cellX+x*cellScale), float64(cellY+y*cellScale),
					cellScale, cellScale,
				)
			}
		}
	}
	dc.Fill()

	return dc.SavePNG(path)
}
