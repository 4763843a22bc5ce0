package png

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/XC-Zero/pngdecode/bytesource"
	"github.com/pkg/errors"
)

// buildChunk frames one chunk record (length, type, data, CRC-32 over
// type+data), matching the wire format chunkReader.readRawChunk expects.
// This is deliberately independent of chunkReader's own CRC computation
// (crc.CalculateCRC) so a fixture bug and a decode bug wouldn't cancel out.
func buildChunk(typ string, data []byte) []byte {
	var buf bytes.Buffer
	var lenField [4]byte
	binary.BigEndian.PutUint32(lenField[:], uint32(len(data)))
	buf.Write(lenField[:])
	buf.WriteString(typ)
	buf.Write(data)
	sum := crc32.ChecksumIEEE(append([]byte(typ), data...))
	var crcField [4]byte
	binary.BigEndian.PutUint32(crcField[:], sum)
	buf.Write(crcField[:])
	return buf.Bytes()
}

func buildIHDR(width, height uint32, bitDepth uint8, colorType ColorType, interlace uint8) []byte {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], width)
	binary.BigEndian.PutUint32(data[4:8], height)
	data[8] = bitDepth
	data[9] = byte(colorType)
	data[10] = 0
	data[11] = 0
	data[12] = interlace
	return buildChunk("IHDR", data)
}

func zlibCompress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func buildPNG(chunks ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write(pngSignature[:])
	for _, c := range chunks {
		buf.Write(c)
	}
	return buf.Bytes()
}

func TestDecode1x1Grey8(t *testing.T) {
	raw := []byte{0, 0x42} // filter None, one sample
	png := buildPNG(
		buildIHDR(1, 1, 8, ColorGreyscale, 0),
		buildChunk("IDAT", zlibCompress(t, raw)),
		buildChunk("IEND", nil),
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	img, info, err := d.ReadData()
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if !info.Valid || !info.Final {
		t.Fatalf("info = %+v", info)
	}
	if !bytes.Equal(img.Pixels, []byte{0x42}) {
		t.Fatalf("pixels = %v, want [0x42]", img.Pixels)
	}
	if img.Format.Layout != LayoutGray {
		t.Fatalf("layout = %v, want Gray", img.Format.Layout)
	}
}

func TestDecode2x2RGB8(t *testing.T) {
	row0 := []byte{0, 1, 2, 3, 4, 5, 6} // filter None, 2 pixels * 3 bytes
	row1 := []byte{0, 7, 8, 9, 10, 11, 12}
	raw := append(append([]byte{}, row0...), row1...)
	png := buildPNG(
		buildIHDR(2, 2, 8, ColorTruecolor, 0),
		buildChunk("IDAT", zlibCompress(t, raw)),
		buildChunk("IEND", nil),
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	img, info, err := d.ReadData()
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if !info.Final {
		t.Fatalf("info = %+v", info)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if !bytes.Equal(img.Pixels, want) {
		t.Fatalf("pixels = %v, want %v", img.Pixels, want)
	}
}

func TestDecodeSubFilterRow(t *testing.T) {
	// 3x1 RGB8 row with a Sub filter: first pixel raw, rest delta-encoded
	// against the pixel to their left.
	row := []byte{1, 10, 20, 30, 1, 1, 1, 1, 1, 1}
	png := buildPNG(
		buildIHDR(3, 1, 8, ColorTruecolor, 0),
		buildChunk("IDAT", zlibCompress(t, row)),
		buildChunk("IEND", nil),
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	img, _, err := d.ReadData()
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	want := []byte{10, 20, 30, 11, 21, 31, 12, 22, 32}
	if !bytes.Equal(img.Pixels, want) {
		t.Fatalf("pixels = %v, want %v", img.Pixels, want)
	}
}

func TestDecodeIndexed2Bit(t *testing.T) {
	pal := []byte{
		0, 0, 0, // index 0: black
		255, 0, 0, // index 1: red
		0, 255, 0, // index 2: green
		0, 0, 255, // index 3: blue
	}
	// 4 pixels, indices 0,1,2,3 packed MSB-first into one byte: 00 01 10 11
	packed := byte(0b00_01_10_11)
	raw := []byte{0, packed}
	png := buildPNG(
		buildIHDR(4, 1, 2, ColorIndexed, 0),
		buildChunk("PLTE", pal),
		buildChunk("IDAT", zlibCompress(t, raw)),
		buildChunk("IEND", nil),
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	img, _, err := d.ReadData()
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	want := []byte{0, 0, 0, 255, 0, 0, 0, 255, 0, 0, 0, 255}
	if !bytes.Equal(img.Pixels, want) {
		t.Fatalf("pixels = %v, want %v", img.Pixels, want)
	}
}

func TestDecodeGrey16Endian(t *testing.T) {
	// 2x1 Grey16: samples 0x0102 and 0xFF00 on the wire (big-endian).
	raw := []byte{0, 0x01, 0x02, 0xFF, 0x00}
	png := buildPNG(
		buildIHDR(2, 1, 16, ColorGreyscale, 0),
		buildChunk("IDAT", zlibCompress(t, raw)),
		buildChunk("IEND", nil),
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	img, _, err := d.ReadData()
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	want := []byte{0x02, 0x01, 0x00, 0xFF}
	if !bytes.Equal(img.Pixels, want) {
		t.Fatalf("pixels = %v, want %v", img.Pixels, want)
	}
}

func TestDecodeInvalidSignature(t *testing.T) {
	bad := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	d := NewDecoder(bytesource.NewBufferSource(bad), DefaultOptions())
	_, info, err := d.ReadData()
	if err == nil {
		t.Fatal("expected invalid signature error")
	}
	if info.Valid {
		t.Fatalf("info.Valid = true, want false")
	}
}

func TestDecodeDuplicateCriticalChunk(t *testing.T) {
	png := buildPNG(
		buildIHDR(1, 1, 8, ColorGreyscale, 0),
		buildIHDR(1, 1, 8, ColorGreyscale, 0),
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	_, _, err := d.ReadData()
	if err == nil {
		t.Fatal("expected duplicate critical chunk error")
	}
}

func TestDecodePaletteIndexOutOfRange(t *testing.T) {
	pal := []byte{0, 0, 0, 255, 255, 255} // only 2 entries
	raw := []byte{0, 0b11_11_11_11}       // indices all 3, out of range
	png := buildPNG(
		buildIHDR(4, 1, 2, ColorIndexed, 0),
		buildChunk("PLTE", pal),
		buildChunk("IDAT", zlibCompress(t, raw)),
		buildChunk("IEND", nil),
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	_, _, err := d.ReadData()
	if err == nil {
		t.Fatal("expected palette index out of range error")
	}
}

func TestDecodeUnknownAncillaryChunkSkipped(t *testing.T) {
	raw := []byte{0, 0x42}
	png := buildPNG(
		buildIHDR(1, 1, 8, ColorGreyscale, 0),
		buildChunk("quXy", []byte("irrelevant")), // unknown, ancillary (lowercase first letter)
		buildChunk("IDAT", zlibCompress(t, raw)),
		buildChunk("IEND", nil),
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	img, _, err := d.ReadData()
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if !bytes.Equal(img.Pixels, []byte{0x42}) {
		t.Fatalf("pixels = %v", img.Pixels)
	}
	ext := d.ExtQueryState()
	if ext.ProcessedChunks&FlagUnknownAncillary == 0 {
		t.Fatal("expected FlagUnknownAncillary to be set")
	}
}

func TestDecodeDeflateBlockTypeThreeFatal(t *testing.T) {
	// A valid zlib header followed by a final block whose type bits are
	// the reserved value 3.
	idat := []byte{0x78, 0x9C, 0b111, 0x00}
	png := buildPNG(
		buildIHDR(1, 1, 8, ColorGreyscale, 0),
		buildChunk("IDAT", idat),
		buildChunk("IEND", nil),
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	_, _, err := d.ReadData()
	if err == nil {
		t.Fatal("expected deflate block type error")
	}
	if !errors.Is(err, ErrDeflateBlockType) {
		t.Fatalf("got %v, want an error matching ErrDeflateBlockType", err)
	}
}

func TestDecodeUnknownCriticalChunkFatal(t *testing.T) {
	png := buildPNG(
		buildIHDR(1, 1, 8, ColorGreyscale, 0),
		buildChunk("QuXy", []byte("data")), // unknown, critical (uppercase first letter)
	)
	d := NewDecoder(bytesource.NewBufferSource(png), DefaultOptions())
	_, _, err := d.ReadData()
	if err == nil {
		t.Fatal("expected unknown critical chunk error")
	}
}
