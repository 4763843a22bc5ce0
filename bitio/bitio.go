// Package bitio implements component B: an LSB-first bit reader layered
// over a bytesource.Source, matching DEFLATE's bit packing (RFC 1951
// §3.1.1 — packets are packed starting with the least-significant bit of
// each byte).
package bitio

import (
	"github.com/XC-Zero/pngdecode/bytesource"
)

// Reader consumes bits LSB-first from an underlying byte source. It holds
// at most one partially-consumed byte between calls.
type Reader struct {
	src    bytesource.Source
	held   uint8 // holding register: bits not yet consumed from the last byte read
	cursor uint8 // 0..8: how many bits of held have already been consumed (8: none held)
}

// NewReader wraps src for bit-level reading.
func NewReader(src bytesource.Source) *Reader {
	return &Reader{src: src, cursor: 8}
}

// ReadBits extracts n bits (0 <= n <= 32) from the source, LSB-first, and
// returns them right-aligned in the low-order bits of the result. It may
// straddle byte boundaries and will read as many additional source bytes
// as required.
func (r *Reader) ReadBits(n int) (uint32, error) {
	var result uint32
	var filled int
	for filled < n {
		if r.cursor == 8 {
			r.cursor = 0
		}
		if r.cursor == 0 {
			var b [1]byte
			if err := r.src.Read(b[:]); err != nil {
				return 0, err
			}
			r.held = b[0]
		}
		avail := 8 - r.cursor
		take := n - filled
		if take > avail {
			take = avail
		}
		bits := (uint32(r.held) >> r.cursor) & ((1 << take) - 1)
		result |= bits << filled
		r.cursor += uint8(take)
		filled += take
	}
	return result, nil
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() (uint32, error) {
	return r.ReadBits(1)
}

// Reset discards any partially-consumed byte, forcing the next ReadBits
// call to start from a fresh byte boundary. DEFLATE calls this after
// reading a stored block's length field, and whenever control passes
// between a bit-aligned region and a byte-aligned one.
func (r *Reader) Reset() {
	r.held = 0
	r.cursor = 8
}

// Source returns the underlying byte source, for byte-aligned reads (e.g.
// a stored block's literal payload) that bypass the bit-level machinery.
func (r *Reader) Source() bytesource.Source {
	return r.src
}
