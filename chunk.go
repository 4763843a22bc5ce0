package png

import (
	"encoding/binary"

	"github.com/XC-Zero/pngdecode/bytesource"
	"github.com/pkg/errors"
	"github.com/snksoft/crc"
)

var pngSignature = [8]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// rawChunk is one parsed PNG chunk: type tag, payload, and whether its
// trailing CRC matched (when verification is enabled).
type rawChunk struct {
	typ   string
	data  []byte
	crcOK bool
}

func (c *rawChunk) critical() bool {
	return len(c.typ) == 4 && c.typ[0]&0x20 == 0
}

// chunkReader implements component E: signature verification, chunk
// framing, and presenting the concatenation of all IDAT payloads as a
// linear byte source to the DEFLATE decompressor. It keeps the
// bookkeeping (flags for IHDR, PLTE, IEND and the IDAT run) that the
// driver's stepReadChunks uses to enforce the ordering invariants from
// §3/§4.E (IHDR first, IEND last and unique, no duplicate critical
// chunks, contiguous IDATs) as chunks are consumed.
type chunkReader struct {
	src  bytesource.Source
	opts DecoderOptions

	processedChunks ChunkFlag
	chunkErrors     ChunkFlag
	recoverable     []string

	sawIHDR, sawPLTE, sawIEND bool
	idatOpened, idatClosed    bool

	// pending holds a chunk read ahead while draining the IDAT stream
	// that turned out not to be IDAT — the chunk that closes the IDAT
	// sequence. The main driver consumes it as the next chunk instead of
	// re-reading from src.
	pending *rawChunk
}

func newChunkReader(src bytesource.Source, opts DecoderOptions) *chunkReader {
	return &chunkReader{src: src, opts: opts}
}

// verifySignature checks the 8-byte PNG magic (§4.E, §6).
func (cr *chunkReader) verifySignature() error {
	var sig [8]byte
	if err := cr.src.Read(sig[:]); err != nil {
		return fatal("", errors.WithStack(ErrInvalidSignature))
	}
	if sig != pngSignature {
		return fatal("", errors.WithStack(ErrInvalidSignature))
	}
	return nil
}

// readRawChunk reads one length-prefixed, CRC-protected chunk record from
// src (§3's Chunk record, §4.E's framing).
func (cr *chunkReader) readRawChunk() (*rawChunk, error) {
	var lenBuf, typeBuf, crcBuf [4]byte
	if err := cr.src.Read(lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])

	if err := cr.src.Read(typeBuf[:]); err != nil {
		return nil, err
	}

	data := make([]byte, length)
	if length > 0 {
		if err := cr.src.Read(data); err != nil {
			return nil, err
		}
	}

	if err := cr.src.Read(crcBuf[:]); err != nil {
		return nil, err
	}

	rc := &rawChunk{typ: string(typeBuf[:]), data: data, crcOK: true}
	if cr.opts.VerifyCRC {
		body := make([]byte, 4+length)
		copy(body, typeBuf[:])
		copy(body[4:], data)
		computed := crc.CalculateCRC(crc.CRC32, body)
		stored := binary.BigEndian.Uint32(crcBuf[:])
		rc.crcOK = uint32(computed) == stored
	}
	return rc, nil
}

// next returns the next chunk to be processed by the driver: the pending
// chunk left over from closing the IDAT stream, if any, otherwise the
// next chunk read directly from src. Used outside of IDAT decoding.
func (cr *chunkReader) next() (*rawChunk, error) {
	if cr.pending != nil {
		rc := cr.pending
		cr.pending = nil
		return rc, nil
	}
	return cr.readRawChunk()
}

// recordRecoverable marks an ancillary chunk's error, per §7's policy:
// errors in ancillary chunks are recorded, the chunk is skipped, and
// processing continues.
func (cr *chunkReader) recordRecoverable(flag ChunkFlag, msg string) {
	cr.chunkErrors |= flag
	cr.recoverable = append(cr.recoverable, msg)
}

// idatSource adapts the chunk reader's IDAT concatenation into a
// bytesource.Source the DEFLATE decompressor can pull from byte-by-byte,
// fetching subsequent IDAT chunks transparently and oblivious to chunk
// boundaries, per §4.E's "DEFLATE sees only compressed bytes" contract.
type idatSource struct {
	cr        *chunkReader
	cur       []byte
	pos       int
	lastCount int
	ended     bool
}

func (cr *chunkReader) openIDATSource(first *rawChunk) *idatSource {
	cr.idatOpened = true
	return &idatSource{cr: cr, cur: first.data}
}

// fillMore attempts to fetch the next IDAT chunk once the current one is
// drained. It returns false once the IDAT sequence has closed (the next
// chunk in the stream is not IDAT), stashing that chunk on the chunk
// reader as pending.
func (s *idatSource) fillMore() (bool, error) {
	for s.pos >= len(s.cur) && !s.ended {
		rc, err := s.cr.readRawChunk()
		if err != nil {
			return false, err
		}
		if rc.typ != "IDAT" {
			s.cr.pending = rc
			s.ended = true
			s.cr.idatClosed = true
			return false, nil
		}
		if !rc.crcOK {
			return false, errors.WithStack(ErrCrcMismatch)
		}
		s.cur = rc.data
		s.pos = 0
	}
	return s.pos < len(s.cur), nil
}

func (s *idatSource) TryRead(out []byte) (bool, error) {
	n := 0
	for n < len(out) {
		if s.pos >= len(s.cur) {
			ok, err := s.fillMore()
			if err != nil {
				return false, err
			}
			if !ok {
				s.lastCount = n
				return false, nil
			}
		}
		avail := len(s.cur) - s.pos
		want := len(out) - n
		if want > avail {
			want = avail
		}
		copy(out[n:], s.cur[s.pos:s.pos+want])
		s.pos += want
		n += want
	}
	s.lastCount = n
	return true, nil
}

func (s *idatSource) Read(out []byte) error {
	ok, err := s.TryRead(out)
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithStack(bytesource.ErrUnexpectedEOF)
	}
	return nil
}

func (s *idatSource) Peek() (byte, error) {
	if s.pos >= len(s.cur) {
		ok, err := s.fillMore()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errors.WithStack(bytesource.ErrUnexpectedEOF)
		}
	}
	return s.cur[s.pos], nil
}

func (s *idatSource) Seek(amount int) error {
	if amount < 0 {
		return errors.WithStack(bytesource.ErrSeekOutOfRange)
	}
	buf := make([]byte, amount)
	return s.Read(buf)
}

func (s *idatSource) ReadCount() int { return s.lastCount }
