// Package deflate implements component D: a DEFLATE (RFC 1951) decompressor
// wrapped in zlib framing (RFC 1950), driven incrementally by Read so it
// can be interleaved with a consumer (the PNG scanline reconstructor) that
// pulls bytes on its own schedule rather than all at once.
package deflate

import (
	"github.com/XC-Zero/pngdecode/bitio"
	"github.com/XC-Zero/pngdecode/bytesource"
	"github.com/XC-Zero/pngdecode/huffman"
	"github.com/pkg/errors"
)

// Error kinds surfaced by the decompressor; see spec §7.
var (
	ErrHeader             = errors.New("deflate: invalid zlib header")
	ErrBlockType          = errors.New("deflate: reserved block type 3")
	ErrStoredLenMismatch  = errors.New("deflate: stored block length/complement mismatch")
	ErrInvalidSymbol      = errors.New("deflate: invalid huffman symbol")
	ErrDynamicHeaderRange = errors.New("deflate: dynamic block header out of range")
	ErrNoEndOfBlockCode   = errors.New("deflate: dynamic literal table has no end-of-block code")
	ErrBadRepeat          = errors.New("deflate: code-length repeat out of range")
)

// State names the decompressor's position in its state machine, exposed
// for introspection (ExtQueryState-style callers).
type State int

const (
	StateInit State = iota
	StateNewBlock
	StateStoredCopy
	StateDecoding
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateNewBlock:
		return "NewBlock"
	case StateStoredCopy:
		return "Stored"
	case StateDecoding:
		return "Decoding"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

type pendingCopy struct {
	distance  int
	remaining int
}

// Decompressor owns the sliding window and Huffman tables, and exposes the
// decompressed byte stream through Read. It consumes compressed bytes
// lazily from the supplied bytesource.Source (the PNG chunk reader's
// concatenated IDAT view), never reading ahead of what a block actually
// needs.
type Decompressor struct {
	br    *bitio.Reader
	win   window
	state State
	final bool

	litTable, distTable *huffman.Table

	storedRemaining int
	pending         pendingCopy
}

// New wraps src (the chunk reader's byte-oriented IDAT stream) in a
// DEFLATE decompressor.
func New(src bytesource.Source) *Decompressor {
	return &Decompressor{
		br:    bitio.NewReader(src),
		state: StateInit,
	}
}

// State reports the decompressor's current position. When the window has
// no free space and a back-reference copy is still pending, this reports
// StateDecoding even though no forward progress can be made until the
// caller drains via Read — the spec's "WaitingForRead" is this condition,
// visible to callers as Free()==0 && a pending copy remains, rather than a
// distinct state value.
func (d *Decompressor) State() State {
	return d.state
}

// Read fills out with decompressed bytes, draining the sliding window and
// decoding further whenever the window runs dry; each such decoding step
// refills the window until it is full or the stream finishes. It returns
// the number of bytes written, which is less than len(out) only once the
// stream has reached Finished or an error occurred.
func (d *Decompressor) Read(out []byte) (int, error) {
	total := 0
	for total < len(out) {
		n := d.win.Drain(out[total:])
		total += n
		if total == len(out) {
			break
		}
		if d.state == StateFinished {
			break
		}
		if err := d.fill(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// fill advances the state machine, producing bytes into the sliding
// window until either the window is full or the stream finishes. Each
// call makes bounded progress; callers loop it from Read.
func (d *Decompressor) fill() error {
	for d.win.Free() > 0 && d.state != StateFinished {
		if d.pending.remaining > 0 {
			n := d.pending.remaining
			if free := d.win.Free(); n > free {
				n = free
			}
			if err := d.win.Copy(d.pending.distance, n); err != nil {
				return err
			}
			d.pending.remaining -= n
			continue
		}

		switch d.state {
		case StateInit:
			if err := d.readZlibHeader(); err != nil {
				return err
			}
			d.state = StateNewBlock

		case StateNewBlock:
			if err := d.startBlock(); err != nil {
				return err
			}

		case StateStoredCopy:
			if err := d.copyStoredByte(); err != nil {
				return err
			}

		case StateDecoding:
			if err := d.decodeSymbol(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Decompressor) readZlibHeader() error {
	var hdr [2]byte
	if err := d.br.Source().Read(hdr[:]); err != nil {
		return err
	}
	cmf, flg := hdr[0], hdr[1]
	if cmf&0x0F != 8 {
		return errors.WithStack(ErrHeader)
	}
	if (int(cmf)*256+int(flg))%31 != 0 {
		return errors.WithStack(ErrHeader)
	}
	if flg&0x20 != 0 {
		var dict [4]byte
		if err := d.br.Source().Read(dict[:]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decompressor) startBlock() error {
	finalBit, err := d.br.ReadBit()
	if err != nil {
		return err
	}
	d.final = finalBit != 0

	blockType, err := d.br.ReadBits(2)
	if err != nil {
		return err
	}

	switch blockType {
	case 0: // stored
		d.br.Reset()
		var lenBuf [4]byte
		if err := d.br.Source().Read(lenBuf[:]); err != nil {
			return err
		}
		length := int(lenBuf[0]) | int(lenBuf[1])<<8
		nlen := int(lenBuf[2]) | int(lenBuf[3])<<8
		if length^nlen != 0xFFFF {
			return errors.WithStack(ErrStoredLenMismatch)
		}
		d.storedRemaining = length
		d.state = StateStoredCopy

	case 1: // static
		d.litTable = staticLiteralTable
		d.distTable = staticDistanceTable
		d.state = StateDecoding

	case 2: // dynamic
		if err := d.readDynamicTables(); err != nil {
			return err
		}
		d.state = StateDecoding

	default: // 3: reserved
		return errors.WithStack(ErrBlockType)
	}
	return nil
}

func (d *Decompressor) copyStoredByte() error {
	if d.storedRemaining == 0 {
		d.advanceAfterBlock()
		return nil
	}
	n := d.storedRemaining
	if free := d.win.Free(); n > free {
		n = free
	}
	buf := make([]byte, n)
	if err := d.br.Source().Read(buf); err != nil {
		return err
	}
	for _, b := range buf {
		d.win.PutByte(b)
	}
	d.storedRemaining -= n
	if d.storedRemaining == 0 {
		d.advanceAfterBlock()
	}
	return nil
}

func (d *Decompressor) advanceAfterBlock() {
	if d.final {
		d.state = StateFinished
	} else {
		d.state = StateNewBlock
	}
}

func (d *Decompressor) decodeSymbol() error {
	symbol, err := d.litTable.Decode(d.br)
	if err != nil {
		return err
	}
	switch {
	case symbol == huffman.InvalidSymbol:
		return errors.WithStack(ErrInvalidSymbol)
	case symbol < 256:
		d.win.PutByte(byte(symbol))
		return nil
	case symbol == 256:
		d.advanceAfterBlock()
		return nil
	default:
		idx := symbol - 257
		if idx < 0 || idx >= len(lengthBase) {
			return errors.WithStack(ErrInvalidSymbol)
		}
		length := lengthBase[idx]
		if lengthExtra[idx] > 0 {
			extra, err := d.br.ReadBits(lengthExtra[idx])
			if err != nil {
				return err
			}
			length += int(extra)
		}

		distSym, err := d.distTable.Decode(d.br)
		if err != nil {
			return err
		}
		if distSym == huffman.InvalidSymbol || distSym < 0 || distSym >= len(distBase) {
			return errors.WithStack(ErrInvalidSymbol)
		}
		distance := distBase[distSym]
		if distExtra[distSym] > 0 {
			extra, err := d.br.ReadBits(distExtra[distSym])
			if err != nil {
				return err
			}
			distance += int(extra)
		}

		d.pending = pendingCopy{distance: distance, remaining: length}
		return nil
	}
}

// readDynamicTables parses a dynamic block's header (RFC 1951 §3.2.7):
// HLIT+257 literal/length codes, HDIST+1 distance codes, described by a
// 19-symbol code-length alphabet whose own lengths are read first.
func (d *Decompressor) readDynamicTables() error {
	hlitBits, err := d.br.ReadBits(5)
	if err != nil {
		return err
	}
	hdistBits, err := d.br.ReadBits(5)
	if err != nil {
		return err
	}
	hclenBits, err := d.br.ReadBits(4)
	if err != nil {
		return err
	}
	hlit := int(hlitBits) + 257
	hdist := int(hdistBits) + 1
	hclen := int(hclenBits) + 4

	if hlit > maxLCodes || hdist > maxDCodes {
		return errors.WithStack(ErrDynamicHeaderRange)
	}

	clLengths := make([]int, maxCodeLength)
	for i := 0; i < hclen; i++ {
		v, err := d.br.ReadBits(3)
		if err != nil {
			return err
		}
		clLengths[codeLengthOrder[i]] = int(v)
	}
	clTable, err := huffman.NewTable(clLengths, 7)
	if err != nil {
		return err
	}

	total := hlit + hdist
	lengths := make([]int, total)
	i := 0
	for i < total {
		sym, err := clTable.Decode(d.br)
		if err != nil {
			return err
		}
		switch {
		case sym < 0:
			return errors.WithStack(ErrInvalidSymbol)
		case sym < 16:
			lengths[i] = sym
			i++
		case sym == 16:
			if i == 0 {
				return errors.WithStack(ErrBadRepeat)
			}
			extra, err := d.br.ReadBits(2)
			if err != nil {
				return err
			}
			repeat := int(extra) + 3
			if i+repeat > total {
				return errors.WithStack(ErrBadRepeat)
			}
			prev := lengths[i-1]
			for r := 0; r < repeat; r++ {
				lengths[i] = prev
				i++
			}
		case sym == 17:
			extra, err := d.br.ReadBits(3)
			if err != nil {
				return err
			}
			repeat := int(extra) + 3
			if i+repeat > total {
				return errors.WithStack(ErrBadRepeat)
			}
			i += repeat
		case sym == 18:
			extra, err := d.br.ReadBits(7)
			if err != nil {
				return err
			}
			repeat := int(extra) + 11
			if i+repeat > total {
				return errors.WithStack(ErrBadRepeat)
			}
			i += repeat
		default:
			return errors.WithStack(ErrInvalidSymbol)
		}
	}

	if lengths[256] == 0 {
		return errors.WithStack(ErrNoEndOfBlockCode)
	}

	litLengths := lengths[:hlit]
	distLengths := lengths[hlit:]

	litTable, err := huffman.NewTable(litLengths, maxBits)
	if err != nil {
		return err
	}
	distTable, err := huffman.NewTable(distLengths, maxBits)
	if err != nil {
		return err
	}
	d.litTable = litTable
	d.distTable = distTable
	return nil
}
