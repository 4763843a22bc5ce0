package deflate

import "github.com/XC-Zero/pngdecode/huffman"

const (
	maxLCodes     = 286 // max number of literal/length codes
	maxDCodes     = 30  // max number of distance codes
	maxCodes      = maxLCodes + maxDCodes
	maxCodeLength = 19 // number of code-length alphabet symbols
	fixedLCodes   = 288
	maxBits       = 15
)

// lengthBase and lengthExtra give, for length symbols 257..285, the base
// match length and the count of extra bits that follow the symbol in the
// bit stream (RFC 1951 §3.2.5).
var lengthBase = [29]int{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}
var lengthExtra = [29]int{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// distBase and distExtra give, for distance symbols 0..29, the base
// back-reference distance and the count of extra bits that follow.
var distBase = [30]int{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145,
	8193, 12289, 16385, 24577,
}
var distExtra = [30]int{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// codeLengthOrder is the order in which a dynamic block's hclen code
// lengths (for the 19-symbol code-length alphabet) appear in the stream.
var codeLengthOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

var staticLiteralTable *huffman.Table
var staticDistanceTable *huffman.Table

func init() {
	lengths := make([]int, fixedLCodes)
	symbol := 0
	for ; symbol < 144; symbol++ {
		lengths[symbol] = 8
	}
	for ; symbol < 256; symbol++ {
		lengths[symbol] = 9
	}
	for ; symbol < 280; symbol++ {
		lengths[symbol] = 7
	}
	for ; symbol < fixedLCodes; symbol++ {
		lengths[symbol] = 8
	}
	t, err := huffman.NewTable(lengths, maxBits)
	if err != nil {
		panic("deflate: static literal table is malformed: " + err.Error())
	}
	staticLiteralTable = t

	dlens := make([]int, maxDCodes)
	for i := range dlens {
		dlens[i] = 5
	}
	dt, err := huffman.NewTable(dlens, maxBits)
	if err != nil {
		panic("deflate: static distance table is malformed: " + err.Error())
	}
	staticDistanceTable = dt
}
