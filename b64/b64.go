// Package b64 implements the fixed-width Base64 encoding used to render
// content IDs as text.
//
// The alphabet is URL and path safe and its characters are sorted by byte
// value:
//
//	| Values | Characters
//	| :----- | :---------
//	| 0      | -
//	| 1-10   | 0123456789
//	| 11-36  | ABCDEFGHIJKLMNOPQRSTUVWXYZ
//	| 37     | _
//	| 38-63  | abcdefghijklmnopqrstuvwxyz
//
// Because the mapping from 6-bit value to character is strictly increasing,
// comparing two encodings of equal-length inputs gives the same result as
// comparing the inputs themselves.
//
// Only input lengths that are a multiple of 3 are supported, so no padding is
// ever emitted. There is no decoder.
package b64

import "encoding/binary"

// Alphabet is the 64-symbol character set, indexed by 6-bit value.
const Alphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

const lowSixBits = 0x3F

// EncodedLen returns the length of the encoding of n input bytes.
func EncodedLen(n int) int {
	return (n + 2) / 3 * 4
}

// Encode39 encodes the 39 bytes of src into dst.
func Encode39(dst *[52]byte, src *[39]byte) {
	encode(dst[:], src[:])
}

// Encode42 encodes the 42 bytes of src into dst.
func Encode42(dst *[56]byte, src *[42]byte) {
	encode(dst[:], src[:])
}

// Encode encodes src into dst.
//
// len(src) must be a multiple of 3 and len(dst) must equal
// EncodedLen(len(src)); Encode panics otherwise. Callers with a statically
// known length should prefer Encode39 or Encode42.
func Encode(dst, src []byte) {
	if len(src)%3 != 0 {
		panic("b64: input length is not a multiple of 3")
	}
	if len(dst) != EncodedLen(len(src)) {
		panic("b64: output length does not match input length")
	}
	encode(dst, src)
}

// encode handles src in 6-byte groups, each read through a 64-bit
// big-endian window and emitted as 8 characters. A trailing 3-byte group is
// read through a 32-bit window and emitted as 4 characters.
func encode(dst, src []byte) {
	var si, di int
	for ; len(src)-si >= 6; si, di = si+6, di+8 {
		var w uint64
		if len(src)-si >= 8 {
			w = binary.BigEndian.Uint64(src[si:])
		} else {
			// The window would run past the end; the two excess bytes are
			// never emitted so zero stands in for them.
			var tmp [8]byte
			copy(tmp[:6], src[si:si+6])
			w = binary.BigEndian.Uint64(tmp[:])
		}
		put64(dst[di:di+8], w)
	}

	if len(src)-si == 3 {
		w := uint32(src[si])<<24 | uint32(src[si+1])<<16 | uint32(src[si+2])<<8
		d := dst[di : di+4]
		d[0] = Alphabet[(w>>26)&lowSixBits]
		d[1] = Alphabet[(w>>20)&lowSixBits]
		d[2] = Alphabet[(w>>14)&lowSixBits]
		d[3] = Alphabet[(w>>8)&lowSixBits]
	}
}

// put64 writes the eight sextets held in the top 48 bits of w.
func put64(d []byte, w uint64) {
	_ = d[7]
	d[0] = Alphabet[(w>>58)&lowSixBits]
	d[1] = Alphabet[(w>>52)&lowSixBits]
	d[2] = Alphabet[(w>>46)&lowSixBits]
	d[3] = Alphabet[(w>>40)&lowSixBits]
	d[4] = Alphabet[(w>>34)&lowSixBits]
	d[5] = Alphabet[(w>>28)&lowSixBits]
	d[6] = Alphabet[(w>>22)&lowSixBits]
	d[7] = Alphabet[(w>>16)&lowSixBits]
}
