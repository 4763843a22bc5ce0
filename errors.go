package png

import "github.com/pkg/errors"

// Error kinds from spec §7. Every one of these is a sentinel that
// errors.Is can match after the wrapping this package and its
// collaborators apply with errors.WithStack / errors.Wrap.
var (
	ErrInvalidSignature           = errors.New("png: invalid signature")
	ErrUnexpectedEOF               = errors.New("png: unexpected EOF")
	ErrCrcMismatch                 = errors.New("png: CRC mismatch")
	ErrDuplicateCriticalChunk      = errors.New("png: duplicate critical chunk")
	ErrUnknownCriticalChunk        = errors.New("png: unknown critical chunk")
	ErrChunkOrderViolation         = errors.New("png: chunk order violation")
	ErrInvalidIHDR                 = errors.New("png: invalid IHDR")
	ErrInvalidPLTE                 = errors.New("png: invalid PLTE")
	ErrPaletteIndexOutOfRange      = errors.New("png: palette index out of range")
	ErrUnsupportedCompressionMethod = errors.New("png: unsupported compression method")
	ErrUnsupportedFilterMethod     = errors.New("png: unsupported filter method")
	ErrUnsupportedInterlaceMethod  = errors.New("png: unsupported interlace method")
	ErrInvalidFilterType           = errors.New("png: invalid filter type")
	ErrDeflateHeader               = errors.New("png: deflate header invalid")
	ErrDeflateBlockType            = errors.New("png: deflate reserved block type")
	ErrDeflateStoredLengthMismatch = errors.New("png: deflate stored block length mismatch")
	ErrDeflateOverSubscribed       = errors.New("png: deflate huffman table over-subscribed")
	ErrDeflateIncompleteCodes      = errors.New("png: deflate huffman table incomplete")
	ErrDeflateInvalidSymbol        = errors.New("png: deflate invalid symbol")
	ErrDeflateDistanceOutOfRange   = errors.New("png: deflate back-reference distance out of range")
	ErrInsufficientImageData       = errors.New("png: insufficient image data")
)

// fatalError is a FatalError-state error tagged with the chunk type that
// was being processed when it occurred, per §7's propagation policy.
type fatalError struct {
	chunk string
	err   error
}

func (f *fatalError) Error() string {
	if f.chunk == "" {
		return f.err.Error()
	}
	return f.chunk + ": " + f.err.Error()
}

func (f *fatalError) Unwrap() error { return f.err }

func fatal(chunkType string, err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{chunk: chunkType, err: err}
}
