// Package bytesource implements component A of the decoder: a small
// sequential byte-source abstraction with peek and relative-seek, layered
// over an underlying io.Reader or in-memory buffer. The decoder borrows a
// Source for its entire lifetime; it performs no buffering of its own
// beyond what Source provides.
package bytesource

import (
	"io"

	"github.com/pkg/errors"
)

// ErrUnexpectedEOF is returned by Read when the underlying stream has
// fewer bytes than requested.
var ErrUnexpectedEOF = errors.New("bytesource: unexpected EOF")

// ErrSeekOutOfRange is returned by Seek when the requested displacement
// would move the cursor outside the buffer's extents.
var ErrSeekOutOfRange = errors.New("bytesource: seek out of range")

// Source is the sequential-read contract every decoder layer is built on.
// Implementations are not required to be safe for concurrent use; the
// decoder drives a Source from a single goroutine.
type Source interface {
	// Read blocks until len(out) bytes have been copied in, or returns
	// ErrUnexpectedEOF.
	Read(out []byte) error

	// TryRead behaves like Read but returns false instead of an error
	// when fewer than len(out) bytes remain.
	TryRead(out []byte) (bool, error)

	// Peek returns the next byte without advancing the cursor.
	Peek() (byte, error)

	// Seek displaces the cursor by amount bytes; positive moves forward,
	// negative moves back. Bounded by the buffer's extents.
	Seek(amount int) error

	// ReadCount reports the number of bytes produced by the most recent
	// Read or TryRead call.
	ReadCount() int
}

// BufferSource is an in-memory Source backed by a byte slice, suited to
// decoding a PNG already held in memory and to constructing fixtures in
// tests.
type BufferSource struct {
	buf       []byte
	pos       int
	lastCount int
}

// NewBufferSource wraps buf for sequential reading. The returned Source
// does not copy buf.
func NewBufferSource(buf []byte) *BufferSource {
	return &BufferSource{buf: buf}
}

func (s *BufferSource) Read(out []byte) error {
	ok, err := s.TryRead(out)
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithStack(ErrUnexpectedEOF)
	}
	return nil
}

func (s *BufferSource) TryRead(out []byte) (bool, error) {
	avail := len(s.buf) - s.pos
	n := len(out)
	if n > avail {
		n = avail
	}
	copy(out, s.buf[s.pos:s.pos+n])
	s.pos += n
	s.lastCount = n
	return n == len(out), nil
}

func (s *BufferSource) Peek() (byte, error) {
	if s.pos >= len(s.buf) {
		return 0, errors.WithStack(ErrUnexpectedEOF)
	}
	return s.buf[s.pos], nil
}

func (s *BufferSource) Seek(amount int) error {
	target := s.pos + amount
	if target < 0 || target > len(s.buf) {
		return errors.WithStack(ErrSeekOutOfRange)
	}
	s.pos = target
	return nil
}

func (s *BufferSource) ReadCount() int {
	return s.lastCount
}

// ReaderSource adapts an io.Reader to Source. Forward seeks are satisfied
// by discarding bytes; backward seeks require the reader to also implement
// io.Seeker (e.g. *os.File) and fail otherwise, matching the spec's
// "bounded by buffer extents" contract for seekable backings only.
type ReaderSource struct {
	r         io.Reader
	lastCount int
}

// NewReaderSource wraps r for sequential reading.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

func (s *ReaderSource) Read(out []byte) error {
	ok, err := s.TryRead(out)
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithStack(ErrUnexpectedEOF)
	}
	return nil
}

func (s *ReaderSource) TryRead(out []byte) (bool, error) {
	n, err := io.ReadFull(s.r, out)
	s.lastCount = n
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, errors.WithStack(err)
	}
	return true, nil
}

func (s *ReaderSource) Peek() (byte, error) {
	seeker, ok := s.r.(io.Seeker)
	if !ok {
		return 0, errors.Wrap(ErrSeekOutOfRange, "Peek requires a seekable reader")
	}
	var b [1]byte
	if err := s.Read(b[:]); err != nil {
		return 0, err
	}
	if _, err := seeker.Seek(-1, io.SeekCurrent); err != nil {
		return 0, errors.WithStack(err)
	}
	return b[0], nil
}

func (s *ReaderSource) Seek(amount int) error {
	if amount >= 0 {
		_, err := io.CopyN(io.Discard, s.r, int64(amount))
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	}
	seeker, ok := s.r.(io.Seeker)
	if !ok {
		return errors.Wrap(ErrSeekOutOfRange, "backward seek requires a seekable reader")
	}
	if _, err := seeker.Seek(int64(amount), io.SeekCurrent); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (s *ReaderSource) ReadCount() int {
	return s.lastCount
}
