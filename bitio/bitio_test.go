package bitio

import (
	"testing"

	"github.com/XC-Zero/pngdecode/bytesource"
)

func TestReadBitsWithinByte(t *testing.T) {
	// 0b10110010: LSB-first, so the first 4 bits read are 0010.
	r := NewReader(bytesource.NewBufferSource([]byte{0b10110010}))
	v, err := r.ReadBits(4)
	if err != nil {
		t.Fatalf("ReadBits: %v", err)
	}
	if v != 0b0010 {
		t.Fatalf("got %b, want 0010", v)
	}
	v, err = r.ReadBits(4)
	if err != nil {
		t.Fatalf("ReadBits: %v", err)
	}
	if v != 0b1011 {
		t.Fatalf("got %b, want 1011", v)
	}
}

func TestReadBitsAcrossBytes(t *testing.T) {
	r := NewReader(bytesource.NewBufferSource([]byte{0xFF, 0x01}))
	v, err := r.ReadBits(9)
	if err != nil {
		t.Fatalf("ReadBits: %v", err)
	}
	// Low 8 bits all 1, plus 1 more bit from the low bit of 0x01.
	if v != 0x1FF {
		t.Fatalf("got %#x, want 0x1ff", v)
	}
}

func TestReadBitOneAtATime(t *testing.T) {
	r := NewReader(bytesource.NewBufferSource([]byte{0b00000001}))
	bit, err := r.ReadBit()
	if err != nil {
		t.Fatalf("ReadBit: %v", err)
	}
	if bit != 1 {
		t.Fatalf("got %d, want 1", bit)
	}
	for i := 0; i < 7; i++ {
		bit, err = r.ReadBit()
		if err != nil {
			t.Fatalf("ReadBit: %v", err)
		}
		if bit != 0 {
			t.Fatalf("bit %d = %d, want 0", i, bit)
		}
	}
}

func TestResetDiscardsPartialByte(t *testing.T) {
	r := NewReader(bytesource.NewBufferSource([]byte{0xFF, 0xAB, 0xCD}))
	if _, err := r.ReadBits(3); err != nil {
		t.Fatalf("ReadBits: %v", err)
	}
	r.Reset()
	// Byte-aligned reads via Source() should now see the second byte.
	var b [1]byte
	if err := r.Source().Read(b[:]); err != nil {
		t.Fatalf("Source Read: %v", err)
	}
	if b[0] != 0xAB {
		t.Fatalf("got %#x, want 0xab", b[0])
	}
}

func TestReadBitsEOF(t *testing.T) {
	r := NewReader(bytesource.NewBufferSource(nil))
	if _, err := r.ReadBits(1); err == nil {
		t.Fatal("expected error on empty source")
	}
}
