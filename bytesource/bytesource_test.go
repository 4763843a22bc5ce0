package bytesource

import (
	"bytes"
	"strings"
	"testing"
)

func TestBufferSourceRead(t *testing.T) {
	s := NewBufferSource([]byte{1, 2, 3, 4})
	out := make([]byte, 2)
	if err := s.Read(out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(out, []byte{1, 2}) {
		t.Fatalf("got %v", out)
	}
	if s.ReadCount() != 2 {
		t.Fatalf("ReadCount = %d, want 2", s.ReadCount())
	}
}

func TestBufferSourceReadUnexpectedEOF(t *testing.T) {
	s := NewBufferSource([]byte{1, 2})
	out := make([]byte, 4)
	if err := s.Read(out); err == nil {
		t.Fatal("expected error")
	}
}

func TestBufferSourceTryRead(t *testing.T) {
	s := NewBufferSource([]byte{1, 2})
	out := make([]byte, 4)
	ok, err := s.TryRead(out)
	if err != nil {
		t.Fatalf("TryRead: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false on short read")
	}
	if s.ReadCount() != 2 {
		t.Fatalf("ReadCount = %d, want 2", s.ReadCount())
	}
}

func TestBufferSourcePeek(t *testing.T) {
	s := NewBufferSource([]byte{9, 8})
	b, err := s.Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if b != 9 {
		t.Fatalf("Peek = %d, want 9", b)
	}
	// Peek must not advance the cursor.
	out := make([]byte, 1)
	if err := s.Read(out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out[0] != 9 {
		t.Fatalf("Read after Peek = %d, want 9", out[0])
	}
}

func TestBufferSourceSeek(t *testing.T) {
	s := NewBufferSource([]byte{1, 2, 3, 4, 5})
	if err := s.Seek(3); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	b, err := s.Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if b != 4 {
		t.Fatalf("Peek after Seek = %d, want 4", b)
	}
	if err := s.Seek(-2); err != nil {
		t.Fatalf("Seek back: %v", err)
	}
	b, _ = s.Peek()
	if b != 2 {
		t.Fatalf("Peek after seek back = %d, want 2", b)
	}
}

func TestBufferSourceSeekOutOfRange(t *testing.T) {
	s := NewBufferSource([]byte{1, 2})
	if err := s.Seek(10); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err := s.Seek(-1); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestReaderSourceRead(t *testing.T) {
	r := NewReaderSource(strings.NewReader("hello"))
	out := make([]byte, 5)
	if err := r.Read(out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("got %q", out)
	}
}

func TestReaderSourceForwardSeek(t *testing.T) {
	r := NewReaderSource(strings.NewReader("abcdef"))
	if err := r.Seek(2); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	out := make([]byte, 2)
	if err := r.Read(out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(out) != "cd" {
		t.Fatalf("got %q", out)
	}
}
