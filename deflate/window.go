package deflate

import "github.com/pkg/errors"

// windowSize is DEFLATE's fixed 32 KiB sliding window (RFC 1951 §2.2).
const windowSize = 32768

// ErrDistanceOutOfRange is returned when a back-reference distance exceeds
// the number of bytes produced so far (or, trivially, the window size).
var ErrDistanceOutOfRange = errors.New("deflate: back-reference distance out of range")

// window is the 32 KiB ring buffer DEFLATE back-references address. It is
// owned exclusively by the Decompressor. write is the next position to be
// written; readable counts bytes written since the external reader last
// caught up; total counts every byte ever written, used to bound
// back-reference distances (§3: readable <= windowSize, distance in
// [1, min(windowSize, total)]).
type window struct {
	buf      [windowSize]byte
	write    int
	readPos  int
	readable int
	total    int
}

// Free reports how many bytes can be written before the window must be
// drained by the external reader.
func (w *window) Free() int {
	return windowSize - w.readable
}

// PutByte writes a single literal byte into the window. Caller must
// ensure Free() > 0.
func (w *window) PutByte(b byte) {
	w.buf[w.write] = b
	w.write = (w.write + 1) % windowSize
	w.readable++
	w.total++
}

// Copy reproduces a back-reference of the given length at the given
// distance behind the current write position, byte-by-byte so that
// distances shorter than length correctly produce run-length expansion
// (e.g. distance=1 repeats the last byte). Caller must ensure distance is
// valid and Free() >= the portion being copied this call.
func (w *window) Copy(distance, length int) error {
	if distance < 1 || distance > windowSize || distance > w.total {
		return errors.WithStack(ErrDistanceOutOfRange)
	}
	srcPos := (w.write - distance + windowSize) % windowSize
	for i := 0; i < length; i++ {
		w.buf[w.write] = w.buf[srcPos]
		w.write = (w.write + 1) % windowSize
		srcPos = (srcPos + 1) % windowSize
		w.readable++
		w.total++
	}
	return nil
}

// Drain copies up to len(out) readable bytes into out, advancing the
// external read cursor, and returns the number of bytes copied.
func (w *window) Drain(out []byte) int {
	n := len(out)
	if n > w.readable {
		n = w.readable
	}
	for i := 0; i < n; i++ {
		out[i] = w.buf[w.readPos]
		w.readPos = (w.readPos + 1) % windowSize
	}
	w.readable -= n
	return n
}
