package png

import (
	"github.com/XC-Zero/pngdecode/bytesource"
	"github.com/XC-Zero/pngdecode/deflate"
	"github.com/XC-Zero/pngdecode/huffman"
	"github.com/pkg/errors"
)

// translateDeflateError maps the deflate and huffman packages' internal
// sentinels onto this package's public error taxonomy (§7), so a caller
// doing errors.Is(err, png.ErrDeflateBlockType) sees a stable public
// error regardless of which collaborator package detected it. Errors
// with no taxonomy entry (e.g. a malformed dynamic-block header range)
// are passed through unwrapped-of-identity, still matchable via
// errors.Is against their originating package's own sentinel.
func translateDeflateError(err error) error {
	switch {
	case errors.Is(err, deflate.ErrHeader):
		return errors.Wrap(ErrDeflateHeader, err.Error())
	case errors.Is(err, deflate.ErrBlockType):
		return errors.Wrap(ErrDeflateBlockType, err.Error())
	case errors.Is(err, deflate.ErrStoredLenMismatch):
		return errors.Wrap(ErrDeflateStoredLengthMismatch, err.Error())
	case errors.Is(err, deflate.ErrInvalidSymbol):
		return errors.Wrap(ErrDeflateInvalidSymbol, err.Error())
	case errors.Is(err, huffman.ErrOverSubscribed):
		return errors.Wrap(ErrDeflateOverSubscribed, err.Error())
	case errors.Is(err, huffman.ErrIncompleteCodes):
		return errors.Wrap(ErrDeflateIncompleteCodes, err.Error())
	case errors.Is(err, deflate.ErrDistanceOutOfRange):
		return errors.Wrap(ErrDeflateDistanceOutOfRange, err.Error())
	case errors.Is(err, ErrInsufficientImageData), errors.Is(err, ErrPaletteIndexOutOfRange), errors.Is(err, ErrInvalidFilterType):
		return err
	default:
		return err
	}
}

// driverState is component G's top-level state variable (§4.G).
type driverState int

const (
	stateReadSignature driverState = iota
	stateReadChunks
	stateReadFromDeflate
	stateResumeDeflate
	stateFinished
	stateFatalError
)

// Decoder is the top-level driver (component G): a single-threaded,
// cooperatively-suspending state machine that turns a PNG byte stream into
// one or more ImageData emissions. A Decoder instance is driven by
// exactly one caller and is not safe for concurrent use (§5).
type Decoder struct {
	cr    *chunkReader
	opts  DecoderOptions
	state driverState

	ihdr    *IHDR
	palette Palette

	infl    *deflate.Decompressor
	recon   *reconstructor
	idatSrc *idatSource

	fatalErr error

	lastInfo          ImageReturnInfo
	pendingFinalImage *ImageData
}

// NewDecoder constructs a driver over src with the given options. src is
// borrowed for the Decoder's entire lifetime.
func NewDecoder(src bytesource.Source, opts DecoderOptions) *Decoder {
	return &Decoder{
		cr:    newChunkReader(src, opts),
		opts:  opts,
		state: stateReadSignature,
	}
}

// ReadData drives the state machine until it reaches Finished, a fatal
// error, or — for interlaced images with ReceiveInterlaced set — an
// Adam7 pass boundary. Re-entering after Final=true again reports
// Final=true with no further state change (§8's idempotence property);
// the final image itself is returned only once, later calls return nil.
func (d *Decoder) ReadData() (*ImageData, ImageReturnInfo, error) {
	for {
		switch d.state {
		case stateReadSignature:
			if err := d.cr.verifySignature(); err != nil {
				return d.fail(err)
			}
			d.state = stateReadChunks

		case stateReadChunks:
			if err := d.stepReadChunks(); err != nil {
				return d.fail(err)
			}

		case stateReadFromDeflate:
			img, info, suspend, err := d.stepReadFromDeflate()
			if err != nil {
				return d.fail(err)
			}
			if suspend {
				d.lastInfo = info
				return img, info, nil
			}
			// Non-suspending completion: the reconstructor has produced
			// its final pass. Continue the loop to drain the remaining
			// chunk stream (IEND) within this same call.
			if info.Final {
				d.lastInfo = info
				d.pendingFinalImage = img
				d.state = stateReadChunks
			}

		case stateResumeDeflate:
			d.state = stateReadFromDeflate

		case stateFinished:
			img := d.pendingFinalImage
			d.pendingFinalImage = nil
			return img, ImageReturnInfo{Valid: true, IsInterlaced: d.lastInfo.IsInterlaced, Final: true}, nil

		case stateFatalError:
			return nil, ImageReturnInfo{Valid: false}, d.fatalErr
		}
	}
}

func (d *Decoder) fail(err error) (*ImageData, ImageReturnInfo, error) {
	d.state = stateFatalError
	d.fatalErr = err
	return nil, ImageReturnInfo{Valid: false}, err
}

// stepReadChunks executes one ReadChunks transition: parse one chunk
// header, dispatch it by type, and enforce the ordering invariants of
// §3/§4.E/§4.G.
func (d *Decoder) stepReadChunks() error {
	rc, err := d.cr.next()
	if err != nil {
		return err
	}
	if d.ihdr == nil && rc.typ != "IHDR" {
		return fatal(rc.typ, errors.WithStack(ErrChunkOrderViolation))
	}
	if rc.critical() && !rc.crcOK {
		return fatal(rc.typ, errors.WithStack(ErrCrcMismatch))
	}

	switch rc.typ {
	case "IHDR":
		if d.ihdr != nil {
			return fatal("IHDR", errors.WithStack(ErrDuplicateCriticalChunk))
		}
		h, perr := parseIHDR(rc.data)
		if perr != nil {
			return fatal("IHDR", perr)
		}
		d.ihdr = &h
		d.cr.sawIHDR = true
		d.cr.processedChunks |= FlagIHDR

	case "PLTE":
		if d.ihdr == nil {
			return fatal("PLTE", errors.WithStack(ErrChunkOrderViolation))
		}
		if d.cr.sawPLTE {
			return fatal("PLTE", errors.WithStack(ErrDuplicateCriticalChunk))
		}
		pal, perr := parsePLTE(rc.data)
		if perr != nil {
			return fatal("PLTE", perr)
		}
		d.palette = pal
		d.cr.sawPLTE = true
		d.cr.processedChunks |= FlagPLTE

	case "IDAT":
		if d.ihdr == nil {
			return fatal("IDAT", errors.WithStack(ErrChunkOrderViolation))
		}
		if d.cr.idatClosed {
			// IDAT chunks must be contiguous (§3/§4.E): the driver only
			// ever sees "IDAT" here for the run's first chunk (fillMore
			// silently absorbs the rest), so reaching this case again
			// means a later chunk closed the first run already.
			return fatal("IDAT", errors.WithStack(ErrChunkOrderViolation))
		}
		if d.ihdr.ColorType == ColorIndexed && d.palette == nil {
			return fatal("IDAT", errors.WithStack(ErrInvalidPLTE))
		}
		idatSrc := d.cr.openIDATSource(rc)
		d.idatSrc = idatSrc
		d.infl = deflate.New(idatSrc)
		d.recon = newReconstructor(*d.ihdr, d.palette, d.infl)
		d.cr.processedChunks |= FlagIDAT
		d.state = stateReadFromDeflate

	case "IEND":
		d.cr.sawIEND = true
		d.cr.processedChunks |= FlagIEND
		d.state = stateFinished

	default:
		d.processAncillary(rc)
	}
	return nil
}

// processAncillary handles a non-critical chunk per §7's recoverable-
// error policy: malformed payloads and unrecognized types are recorded
// and skipped rather than failing the whole decode.
func (d *Decoder) processAncillary(rc *rawChunk) {
	if rc.critical() {
		d.cr.processedChunks |= FlagUnknownCritical
		d.fatalErr = fatal(rc.typ, errors.WithStack(ErrUnknownCriticalChunk))
		d.state = stateFatalError
		return
	}
	if !rc.crcOK {
		d.cr.recordRecoverable(ancillaryFlag(rc.typ), rc.typ+": CRC mismatch")
	}
	switch rc.typ {
	case "tEXt":
		if _, err := parseTEXT(rc.data); err != nil {
			d.cr.recordRecoverable(FlagTEXT, "tEXt: "+err.Error())
		}
		d.cr.processedChunks |= FlagTEXT
	case "zTXt":
		if _, err := parseZTXT(rc.data); err != nil {
			d.cr.recordRecoverable(FlagZTXT, "zTXt: "+err.Error())
		}
		d.cr.processedChunks |= FlagZTXT
	case "tIME":
		if _, err := parseTIME(rc.data); err != nil {
			d.cr.recordRecoverable(FlagTIME, "tIME: "+err.Error())
		}
		d.cr.processedChunks |= FlagTIME
	case "pHYs":
		if _, err := parsePHYS(rc.data); err != nil {
			d.cr.recordRecoverable(FlagPHYS, "pHYs: "+err.Error())
		}
		d.cr.processedChunks |= FlagPHYS
	case "gAMA":
		if _, err := parseGAMA(rc.data); err != nil {
			d.cr.recordRecoverable(FlagGAMA, "gAMA: "+err.Error())
		}
		d.cr.processedChunks |= FlagGAMA
	case "cHRM":
		if _, err := parseCHRM(rc.data); err != nil {
			d.cr.recordRecoverable(FlagCHRM, "cHRM: "+err.Error())
		}
		d.cr.processedChunks |= FlagCHRM
	case "tRNS", "bKGD", "hIST", "sBIT", "iCCP", "sRGB", "iTXt", "sPLT":
		// Recognized but not semantically decoded: these never change the
		// canonical pixel output this core emits (§1's ancillary scope).
		d.cr.processedChunks |= ancillaryFlag(rc.typ)
	default:
		d.cr.processedChunks |= FlagUnknownAncillary
	}
}

func ancillaryFlag(typ string) ChunkFlag {
	switch typ {
	case "tRNS":
		return FlagTRNS
	case "cHRM":
		return FlagCHRM
	case "gAMA":
		return FlagGAMA
	case "sBIT":
		return FlagSBIT
	case "bKGD":
		return FlagBKGD
	case "hIST":
		return FlagHIST
	case "pHYs":
		return FlagPHYS
	case "tEXt":
		return FlagTEXT
	case "zTXt":
		return FlagZTXT
	case "tIME":
		return FlagTIME
	default:
		return FlagUnknownAncillary
	}
}

// stepReadFromDeflate drives the reconstructor through one pass (or, when
// interlaced delivery is disabled, through every remaining pass) and
// reports whether the driver should suspend back to the caller. The final
// pass always falls through to the non-suspending return, even under
// ReceiveInterlaced: there is no more compressed data left to resume from,
// so the driver proceeds straight on to draining the zlib trailer and the
// remaining chunk stream (IEND) within this same call instead of parking
// in ResumeDeflate waiting for a resume that would never see sawIEND set.
func (d *Decoder) stepReadFromDeflate() (*ImageData, ImageReturnInfo, bool, error) {
	interlaced := d.ihdr.Interlaced()
	for {
		buf, final, err := d.recon.Step()
		if err != nil {
			return nil, ImageReturnInfo{}, false, fatal("IDAT", translateDeflateError(err))
		}
		img := &ImageData{
			Pixels: buf,
			Width:  d.ihdr.Width,
			Height: d.ihdr.Height,
			Format: d.recon.format,
		}
		info := ImageReturnInfo{Valid: true, IsInterlaced: interlaced, Final: final}

		if final {
			if err := d.idatSrc.Seek(4); err != nil {
				return nil, ImageReturnInfo{}, false, fatal("IDAT", errors.Wrap(ErrInsufficientImageData, "zlib trailer: "+err.Error()))
			}
			return img, info, false, nil
		}
		if interlaced && d.opts.ReceiveInterlaced {
			d.state = stateResumeDeflate
			return img, info, true, nil
		}
		// Not delivering interlaced passes individually and this pass
		// wasn't final: keep decoding the next pass in the same call.
	}
}

// QueryState reports the decoder's basic error state (§6).
func (d *Decoder) QueryState() StreamState {
	s := StreamState{}
	if d.state == stateFatalError {
		s.HasError = true
		s.IsFatalError = true
		s.Err = d.fatalErr.Error()
	} else if len(d.cr.recoverable) > 0 {
		s.HasError = true
	}
	return s
}

// ExtQueryState reports the PNG-specific extended state (§6): which
// chunks have been processed and which produced a recoverable error.
func (d *Decoder) ExtQueryState() ExtState {
	return ExtState{
		StreamState:     d.QueryState(),
		ProcessedChunks: d.cr.processedChunks,
		ChunkErrors:     d.cr.chunkErrors,
	}
}
