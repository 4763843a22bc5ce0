package png

import "github.com/pkg/errors"

// FilterType is a scanline's reconstruction filter (§4.F).
type FilterType uint8

const (
	FilterNone FilterType = iota
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
)

func (f FilterType) valid() bool { return f <= FilterPaeth }

// paeth is the Paeth predictor (§4.F step 2): of a (left), b (above), and
// c (upper-left), it picks whichever minimizes |p-k| where p = a+b-c,
// breaking ties in order a, b, c.
func paeth(a, b, c byte) byte {
	pa := abs(int(b) - int(c))
	pb := abs(int(a) - int(c))
	pc := abs(int(a) + int(b) - 2*int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// unfilterRow reverses the per-scanline filter in place. cur holds the
// raw (still-filtered) scanline bytes on entry and the reconstructed
// bytes on return; prev is the previous scanline's already-reconstructed
// bytes (or nil for the first scanline of a pass); bpp is the number of
// bytes per pixel used to locate the "left" neighbor (ceil(bits-per-pixel
// / 8), per §4.F — sub-byte pixels still use bpp=1 since a "pixel" there
// is less than a byte).
func unfilterRow(filter FilterType, cur, prev []byte, bpp int) error {
	if !filter.valid() {
		return errors.WithStack(ErrInvalidFilterType)
	}
	for i := range cur {
		var a, b, c byte
		if i >= bpp {
			a = cur[i-bpp]
		}
		if prev != nil {
			b = prev[i]
			if i >= bpp {
				c = prev[i-bpp]
			}
		}
		switch filter {
		case FilterNone:
		case FilterSub:
			cur[i] += a
		case FilterUp:
			cur[i] += b
		case FilterAverage:
			cur[i] += byte((int(a) + int(b)) / 2)
		case FilterPaeth:
			cur[i] += paeth(a, b, c)
		}
	}
	return nil
}

// bytesPerScanline computes the number of encoded bytes in one scanline
// of width pixels at the given bit depth and channel count (§4.F step 2:
// bpp_in = ceil(actual_bits_per_pixel / 8), applied per full row here
// rather than per pixel since PNG packs sub-byte samples across byte
// boundaries).
func bytesPerScanline(width, bitDepth, channels int) int {
	bitsPerPixel := bitDepth * channels
	return ceilDiv(width*bitsPerPixel, 8)
}

// bytesPerPixelStride is bpp_in from §4.F step 2: the Sub/Paeth neighbor
// distance in encoded bytes. Sub-byte single-channel pixels are still one
// byte apart at minimum since filtering operates on encoded bytes, not
// individual samples.
func bytesPerPixelStride(bitDepth, channels int) int {
	bpp := (bitDepth*channels + 7) / 8
	if bpp < 1 {
		return 1
	}
	return bpp
}

// replicate8 widens a sub-byte grayscale sample to a full byte by
// left-shifting then repeating the high-order bits into the low-order
// bits, e.g. a 1-bit v=1 becomes 0xFF (§3, §4.F step 3).
func replicate8(v uint8, bitDepth int) uint8 {
	out := v << uint(8-bitDepth)
	for shift := bitDepth; shift < 8; shift *= 2 {
		out |= out >> uint(shift)
	}
	return out
}

// unpackSamples extracts `count` MSB-first samples of `bitDepth` bits each
// from an encoded scanline into one byte per sample (§4.F step 3). When
// widen is true (non-palette grayscale), each sample is bit-replicated up
// to a full byte; palette indices are left as-is (widen=false).
func unpackSamples(row []byte, count, bitDepth int, widen bool) []byte {
	if bitDepth == 8 {
		out := make([]byte, count)
		copy(out, row[:count])
		return out
	}
	out := make([]byte, count)
	perByte := 8 / bitDepth
	mask := byte(1<<uint(bitDepth)) - 1
	for i := 0; i < count; i++ {
		byteIdx := i / perByte
		sampleIdxInByte := i % perByte
		shift := uint(8 - bitDepth - sampleIdxInByte*bitDepth)
		v := (row[byteIdx] >> shift) & mask
		if widen {
			out[i] = replicate8(v, bitDepth)
		} else {
			out[i] = v
		}
	}
	return out
}

// unpack16 swaps each 2-byte sample's byte order. PNG stores samples
// MSB-first on the wire; this decoder emits LSB-first (little-endian)
// internally and applies that consistently everywhere a 16-bit sample is
// produced (§4.F step 4, DESIGN NOTES' open question resolved here).
func unpack16(row []byte, sampleCount int) []byte {
	out := make([]byte, sampleCount*2)
	for i := 0; i < sampleCount; i++ {
		hi := row[i*2]
		lo := row[i*2+1]
		out[i*2] = lo
		out[i*2+1] = hi
	}
	return out
}

// expandIndexed substitutes each palette index with its RGB triple,
// rejecting any index at or beyond the palette size (§3, §4.F step 5).
func expandIndexed(indices []byte, pal Palette) ([]byte, error) {
	out := make([]byte, len(indices)*3)
	for i, idx := range indices {
		if int(idx) >= len(pal) {
			return nil, errors.WithStack(ErrPaletteIndexOutOfRange)
		}
		c := pal[idx]
		out[i*3] = c.R
		out[i*3+1] = c.G
		out[i*3+2] = c.B
	}
	return out, nil
}
