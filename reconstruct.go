package png

import (
	"github.com/XC-Zero/pngdecode/deflate"
	"github.com/pkg/errors"
)

// passGeometry describes one reconstruction pass in full-image coordinate
// space: its starting (col, row), its (col, row) stride, and its reduced
// (width, height) — the number of pixels it actually carries.
type passGeometry struct {
	startCol, startRow   int
	strideCol, strideRow int
	width, height        int
}

// reconstructor implements component F: it drives the DEFLATE
// decompressor one scanline at a time, reverses the filter, unpacks
// samples to the canonical pixel format, expands palette indices, and
// assembles Adam7 passes into a cumulative full-image buffer.
type reconstructor struct {
	ihdr    IHDR
	palette Palette
	infl    *deflate.Decompressor

	channels     int
	bytesPerPix  int // in the final, emitted pixel buffer
	format       PixelFormat
	passes       []passGeometry
	passIdx      int
	buf          []byte // cumulative full-image buffer, width*height*bytesPerPix
	filterBuf    [1]byte
}

func newReconstructor(ihdr IHDR, palette Palette, infl *deflate.Decompressor) *reconstructor {
	channels := ihdr.ColorType.channels()
	w, h := int(ihdr.Width), int(ihdr.Height)

	format := outputFormat(ihdr.ColorType, ihdr.BitDepth)
	bytesPerPix := format.BitsPerPixel / 8

	var passes []passGeometry
	if ihdr.Interlaced() {
		passes = make([]passGeometry, 7)
		for i, p := range adam7Passes {
			pw, ph := p.reducedDims(w, h)
			passes[i] = passGeometry{
				startCol: p.startCol, startRow: p.startRow,
				strideCol: p.strideCol, strideRow: p.strideRow,
				width: pw, height: ph,
			}
		}
	} else {
		passes = []passGeometry{{0, 0, 1, 1, w, h}}
	}

	return &reconstructor{
		ihdr:        ihdr,
		palette:     palette,
		infl:        infl,
		channels:    channels,
		bytesPerPix: bytesPerPix,
		format:      format,
		passes:      passes,
		buf:         make([]byte, w*h*bytesPerPix),
	}
}

// outputFormat computes the canonical PixelFormat emitted for a given
// (color type, bit depth) pair (§3's Canonical pixel format).
func outputFormat(ct ColorType, bitDepth uint8) PixelFormat {
	if ct == ColorIndexed {
		return PixelFormat{BitsPerPixel: 24, Layout: LayoutRGB, SampleBits: 8}
	}
	sampleBits := int(bitDepth)
	if sampleBits < 8 {
		sampleBits = 8 // sub-byte grayscale is widened to one byte per sample
	}
	var layout ChannelLayout
	channels := ct.channels()
	switch ct {
	case ColorGreyscale:
		layout = LayoutGray
	case ColorGreyscaleAlpha:
		layout = LayoutGrayAlpha
	case ColorTruecolor:
		layout = LayoutRGB
	case ColorTruecolorAlpha:
		layout = LayoutRGBA
	}
	return PixelFormat{BitsPerPixel: channels * sampleBits, Layout: layout, SampleBits: sampleBits}
}

// totalPasses is 1 for non-interlaced images, 7 for Adam7.
func (r *reconstructor) totalPasses() int { return len(r.passes) }

// done reports whether every pass has been produced.
func (r *reconstructor) done() bool { return r.passIdx >= len(r.passes) }

// Step decodes exactly the next pass (which may be empty) and returns a
// copy of the cumulative full-image buffer after incorporating it, along
// with whether this was the final pass. Empty passes (§4.F, §8 scenario
// 6) simply carry the previous cumulative buffer forward.
func (r *reconstructor) Step() ([]byte, bool, error) {
	if r.done() {
		return nil, true, nil
	}
	p := r.passes[r.passIdx]
	if p.width > 0 && p.height > 0 {
		if err := r.decodePass(p); err != nil {
			return nil, false, err
		}
	}
	final := r.passIdx == len(r.passes)-1
	r.passIdx++

	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out, final, nil
}

func (r *reconstructor) decodePass(p passGeometry) error {
	bpp := bytesPerPixelStride(int(r.ihdr.BitDepth), r.channels)
	rowBytes := bytesPerScanline(p.width, int(r.ihdr.BitDepth), r.channels)

	fullW := int(r.ihdr.Width)
	prevRow := make([]byte, rowBytes)
	cur := make([]byte, rowBytes)

	for row := 0; row < p.height; row++ {
		if n, err := r.infl.Read(r.filterBuf[:]); err != nil || n != 1 {
			return wrapInsufficientData(err)
		}
		filter := FilterType(r.filterBuf[0])

		if n, err := r.infl.Read(cur); err != nil || n != len(cur) {
			return wrapInsufficientData(err)
		}

		var prevArg []byte
		if row > 0 {
			prevArg = prevRow
		}
		if err := unfilterRow(filter, cur, prevArg, bpp); err != nil {
			return err
		}

		pixelBytes, err := r.expandRow(cur, p.width)
		if err != nil {
			return err
		}

		fullRow := p.startRow + row*p.strideRow
		for col := 0; col < p.width; col++ {
			fullCol := p.startCol + col*p.strideCol
			dstOff := (fullRow*fullW + fullCol) * r.bytesPerPix
			srcOff := col * r.bytesPerPix
			copy(r.buf[dstOff:dstOff+r.bytesPerPix], pixelBytes[srcOff:srcOff+r.bytesPerPix])
		}

		prevRow, cur = cur, prevRow
	}
	return nil
}

// expandRow turns one unfiltered, still-packed scanline into width
// pixels' worth of canonical-format bytes: sub-byte unpack with bit
// replication, 16-bit byte swap, and palette expansion (§4.F steps 3-5).
func (r *reconstructor) expandRow(row []byte, width int) ([]byte, error) {
	sampleCount := width * r.channels
	bitDepth := int(r.ihdr.BitDepth)

	var samples []byte
	switch {
	case bitDepth == 16:
		samples = unpack16(row, sampleCount)
	case bitDepth == 8:
		samples = unpackSamples(row, sampleCount, 8, false)
	default:
		samples = unpackSamples(row, sampleCount, bitDepth, r.ihdr.ColorType != ColorIndexed)
	}

	if r.ihdr.ColorType == ColorIndexed {
		return expandIndexed(samples, r.palette)
	}
	return samples, nil
}

// wrapInsufficientData is called after a short read from the DEFLATE
// decompressor. A genuine decode error (corrupted header, bad symbol,
// reserved block type, ...) is returned unchanged so its identity
// survives for errors.Is at the public API boundary; a short read with no
// error means the compressed stream ended before the reconstructor
// received as many scanline bytes as the image dimensions promised.
func wrapInsufficientData(err error) error {
	if err != nil {
		return err
	}
	return errors.WithStack(ErrInsufficientImageData)
}
