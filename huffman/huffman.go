// Package huffman builds and decodes canonical Huffman codes the way
// DEFLATE (RFC 1951 §3.2.2) specifies them: codes are assigned in order of
// increasing code length, and, within a length, in order of increasing
// symbol value. Construction and decoding follow Katz's reference
// algorithm (the same one the teacher's C++ ancestor ported from puff.c).
package huffman

import "github.com/pkg/errors"

// ErrOverSubscribed is returned by NewTable when the code-length vector
// describes more codes of some length than can exist (Kraft's inequality
// violated on the high side).
var ErrOverSubscribed = errors.New("huffman: over-subscribed code lengths")

// ErrIncompleteCodes is returned by NewTable when the set is incomplete
// (Kraft's inequality violated on the low side) in a way that is not the
// single-length-1-code degenerate case DEFLATE dynamic blocks permit.
var ErrIncompleteCodes = errors.New("huffman: incomplete code lengths")

// InvalidSymbol is returned by Decode when the bit stream does not
// correspond to any code in the table.
const InvalidSymbol = -1

// Table is a canonical Huffman decode table for an alphabet of at most
// maxSymbols symbols with code lengths at most maxBits.
type Table struct {
	maxBits int
	count   []int // count[l] = number of symbols with code length l
	symbol  []int // symbols sorted by (length asc, symbol asc)
}

// NewTable constructs a canonical Huffman table from codeLengths, one
// entry per symbol (0 meaning the symbol is absent). maxBits bounds the
// longest code length the table will ever decode (DEFLATE uses 15 for
// literal/length and distance tables, 7 for the code-length table).
func NewTable(codeLengths []int, maxBits int) (*Table, error) {
	t := &Table{
		maxBits: maxBits,
		count:   make([]int, maxBits+1),
		symbol:  make([]int, len(codeLengths)),
	}

	for _, l := range codeLengths {
		t.count[l]++
	}
	if t.count[0] == len(codeLengths) {
		// No codes at all: valid but decode will always fail. Legal for
		// a distance table when a block's literal stream never needs
		// one (a single literal length code with no matches).
		return t, nil
	}

	left := 1
	for length := 1; length <= maxBits; length++ {
		left <<= 1
		left -= t.count[length]
		if left < 0 {
			return nil, errors.WithStack(ErrOverSubscribed)
		}
	}
	if left > 0 && !singleLengthOneException(t.count) {
		return nil, errors.WithStack(ErrIncompleteCodes)
	}

	offs := make([]int, maxBits+2)
	for length := 1; length <= maxBits; length++ {
		offs[length+1] = offs[length] + t.count[length]
	}
	for symbol, l := range codeLengths {
		if l != 0 {
			t.symbol[offs[l]] = symbol
			offs[l]++
		}
	}
	return t, nil
}

// singleLengthOneException allows the caller-enforced relaxation the
// spec names: an incomplete set is legal when it consists of at most one
// code of length 1 (a degenerate dynamic table for a block that never
// emits a back-reference).
func singleLengthOneException(count []int) bool {
	total := 0
	for _, c := range count[1:] {
		total += c
	}
	return total == 1 && len(count) > 1 && count[1] == 1
}

// bitReader is the minimal surface Decode needs; bitio.Reader satisfies it.
type bitReader interface {
	ReadBit() (uint32, error)
}

// Decode reads one symbol from br using this table. Returns InvalidSymbol
// if the bits read do not correspond to any code (the caller treats this
// as fatal). Each bit read is ORed into the low-order position of `code`
// and the accumulator is shifted left before the next bit arrives, so the
// first bit read ends up as the code's most-significant bit — exactly the
// canonical-code comparison `first`/`count` expect.
func (t *Table) Decode(br bitReader) (int, error) {
	code, first, index := 0, 0, 0
	for length := 1; length <= t.maxBits; length++ {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		code |= int(bit)
		count := t.count[length]
		if code-first < count {
			return t.symbol[index+code-first], nil
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	return InvalidSymbol, nil
}
