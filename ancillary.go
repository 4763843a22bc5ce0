package png

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// parseIHDR decodes the 13-byte IHDR payload (§3, §4.G ReadChunks),
// grounded on the teacher's IHDR.Parse.
func parseIHDR(data []byte) (IHDR, error) {
	if len(data) < 13 {
		return IHDR{}, errors.WithStack(ErrInvalidIHDR)
	}
	h := IHDR{
		Width:             binary.BigEndian.Uint32(data[0:4]),
		Height:            binary.BigEndian.Uint32(data[4:8]),
		BitDepth:          data[8],
		ColorType:         ColorType(data[9]),
		CompressionMethod: data[10],
		FilterMethod:      data[11],
		InterlaceMethod:   data[12],
	}
	if h.Width == 0 || h.Height == 0 {
		return IHDR{}, errors.WithStack(ErrInvalidIHDR)
	}
	if !h.ColorType.valid() {
		return IHDR{}, errors.WithStack(ErrInvalidIHDR)
	}
	if !h.ColorType.validBitDepth(h.BitDepth) {
		return IHDR{}, errors.WithStack(ErrInvalidIHDR)
	}
	if h.CompressionMethod != 0 {
		return IHDR{}, errors.WithStack(ErrUnsupportedCompressionMethod)
	}
	if h.FilterMethod != 0 {
		return IHDR{}, errors.WithStack(ErrUnsupportedFilterMethod)
	}
	if h.InterlaceMethod != 0 && h.InterlaceMethod != 1 {
		return IHDR{}, errors.WithStack(ErrUnsupportedInterlaceMethod)
	}
	return h, nil
}

// parsePLTE decodes a PLTE payload into an ordered palette (§3), grounded
// on the teacher's PLTE.Parse, generalized from a single RGB entry to the
// full chunk (the teacher only parsed the first triplet).
func parsePLTE(data []byte) (Palette, error) {
	if len(data)%3 != 0 || len(data) == 0 || len(data) > 256*3 {
		return nil, errors.WithStack(ErrInvalidPLTE)
	}
	pal := make(Palette, len(data)/3)
	for i := range pal {
		pal[i] = RGB{R: data[i*3], G: data[i*3+1], B: data[i*3+2]}
	}
	return pal, nil
}

// TextEntry is a decoded tEXt chunk (§4's ancillary chunk set), grounded
// on the teacher's TEXT type.
type TextEntry struct {
	Keyword string
	Text    string
}

const nullSep = "\x00"

func parseTEXT(data []byte) (TextEntry, error) {
	parts := strings.SplitN(string(data), nullSep, 2)
	if len(parts) != 2 {
		return TextEntry{}, errors.New("png: malformed tEXt chunk")
	}
	return TextEntry{Keyword: parts[0], Text: parts[1]}, nil
}

// ZTXTEntry is a decoded zTXt chunk (compressed text; the compressed
// payload itself is not inflated by this core — ancillary chunks are
// recognized and preserved, not rendered, per §1's scope).
type ZTXTEntry struct {
	Keyword           string
	CompressionMethod uint8
	CompressedText    []byte
}

func parseZTXT(data []byte) (ZTXTEntry, error) {
	idx := strings.IndexByte(string(data), 0)
	if idx < 0 || idx+1 >= len(data) {
		return ZTXTEntry{}, errors.New("png: malformed zTXt chunk")
	}
	return ZTXTEntry{
		Keyword:           string(data[:idx]),
		CompressionMethod: data[idx+1],
		CompressedText:    data[idx+2:],
	}, nil
}

// TimeInfo is a decoded tIME chunk, grounded on the teacher's TIME type.
type TimeInfo struct {
	Year                     uint16
	Month, Day               uint8
	Hour, Minute, Second     uint8
}

func parseTIME(data []byte) (TimeInfo, error) {
	if len(data) < 7 {
		return TimeInfo{}, errors.New("png: malformed tIME chunk")
	}
	return TimeInfo{
		Year:   binary.BigEndian.Uint16(data[0:2]),
		Month:  data[2],
		Day:    data[3],
		Hour:   data[4],
		Minute: data[5],
		Second: data[6],
	}, nil
}

// ToTime converts a TimeInfo to a time.Time in UTC.
func (t TimeInfo) ToTime() time.Time {
	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day), int(t.Hour), int(t.Minute), int(t.Second), 0, time.UTC)
}

// PhysInfo is a decoded pHYs chunk, grounded on the teacher's PHYS type.
type PhysInfo struct {
	X, Y          uint32
	UnitSpecifier uint8
}

func parsePHYS(data []byte) (PhysInfo, error) {
	if len(data) < 9 {
		return PhysInfo{}, errors.New("png: malformed pHYs chunk")
	}
	return PhysInfo{
		X:             binary.BigEndian.Uint32(data[0:4]),
		Y:             binary.BigEndian.Uint32(data[4:8]),
		UnitSpecifier: data[8],
	}, nil
}

// GamaInfo is a decoded gAMA chunk.
type GamaInfo struct {
	Gamma uint32 // image gamma times 100000
}

func parseGAMA(data []byte) (GamaInfo, error) {
	if len(data) < 4 {
		return GamaInfo{}, errors.New("png: malformed gAMA chunk")
	}
	return GamaInfo{Gamma: binary.BigEndian.Uint32(data[0:4])}, nil
}

// ChrmInfo is a decoded cHRM chunk.
type ChrmInfo struct {
	WhiteX, WhiteY uint32
	RedX, RedY     uint32
	GreenX, GreenY uint32
	BlueX, BlueY   uint32
}

func parseCHRM(data []byte) (ChrmInfo, error) {
	if len(data) < 32 {
		return ChrmInfo{}, errors.New("png: malformed cHRM chunk")
	}
	v := func(i int) uint32 { return binary.BigEndian.Uint32(data[i*4 : i*4+4]) }
	return ChrmInfo{
		WhiteX: v(0), WhiteY: v(1),
		RedX: v(2), RedY: v(3),
		GreenX: v(4), GreenY: v(5),
		BlueX: v(6), BlueY: v(7),
	}, nil
}
