package ocid

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/maphash"
	"io"

	"xdao.co/ocid/b64"
	"xdao.co/ocid/digest"
)

const (
	// WideLen is the length of a Wide in bytes.
	WideLen = wideVersionLen + WideSizeLen + HashLen
	// WideBodyLen is the length of a Wide without its version tag.
	WideBodyLen = WideLen - wideVersionLen
	// WideSizeLen is the width of the Wide size field.
	WideSizeLen = 8
	// WideTextLen is the length of the Base64 text form of a Wide.
	WideTextLen = WideLen / 3 * 4

	wideVersionLen = 2
	wideSizeOff    = wideVersionLen
	wideHashOff    = wideSizeOff + WideSizeLen
)

// RawWide holds the fields of a Wide with no validity guarantee.
type RawWide struct {
	// Version must be zero for the record to be a valid Wide.
	Version uint16
	// Size is the big-endian content size.
	Size [WideSizeLen]byte
	// Hash is the content digest.
	Hash [HashLen]byte
}

// RawWideFromBytes splits b into fields.
func RawWideFromBytes(b [WideLen]byte) RawWide {
	var r RawWide
	r.Version = binary.BigEndian.Uint16(b[:wideSizeOff])
	copy(r.Size[:], b[wideSizeOff:wideHashOff])
	copy(r.Hash[:], b[wideHashOff:])
	return r
}

// Bytes serializes r.
func (r RawWide) Bytes() [WideLen]byte {
	var b [WideLen]byte
	binary.BigEndian.PutUint16(b[:wideSizeOff], r.Version)
	copy(b[wideSizeOff:wideHashOff], r.Size[:])
	copy(b[wideHashOff:], r.Hash[:])
	return b
}

// Wide is a content ID with a 16-bit version tag and a 64-bit size field.
// It shares the ordering and text properties of V0.
type Wide struct {
	b [WideLen]byte
}

// NewWide creates an ID from its size and hash.
func NewWide(size [WideSizeLen]byte, hash [HashLen]byte) Wide {
	var id Wide
	copy(id.b[wideSizeOff:wideHashOff], size[:])
	copy(id.b[wideHashOff:], hash[:])
	return id
}

// WideFromSize creates an ID from a native content size and a hash.
func WideFromSize(size uint64, hash [HashLen]byte) Wide {
	var s [WideSizeLen]byte
	binary.BigEndian.PutUint64(s[:], size)
	return NewWide(s, hash)
}

// SumWide creates the ID of content using fn, or BLAKE3 if fn is nil.
func SumWide(content []byte, fn digest.Func) Wide {
	if fn == nil {
		fn = digest.Default.Sum
	}
	return WideFromSize(uint64(len(content)), fn(content))
}

// ReadWide creates the ID of everything read from r, hashing it with h.
func ReadWide(r io.Reader, h hash.Hash) (Wide, error) {
	n, sum, err := readDigest(r, h)
	if err != nil {
		return Wide{}, err
	}
	return WideFromSize(n, sum), nil
}

// RandomWide returns an ID filled from crypto/rand.
func RandomWide() Wide {
	id, err := ReadRandomWide(rand.Reader)
	if err != nil {
		panic(err)
	}
	return id
}

// ReadRandomWide returns an ID filled with bytes read from r.
//
// If the generated ID is empty, the size is refilled once.
func ReadRandomWide(r io.Reader) (Wide, error) {
	var id Wide
	if _, err := io.ReadFull(r, id.b[wideSizeOff:]); err != nil {
		return Wide{}, fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	if id.IsEmpty() {
		if _, err := io.ReadFull(r, id.b[wideSizeOff:wideHashOff]); err != nil {
			return Wide{}, fmt.Errorf("%w: %w", ErrRandomSource, err)
		}
	}
	return id, nil
}

// WideFromBytes parses the raw bytes of an ID.
func WideFromBytes(b [WideLen]byte) (Wide, error) {
	if v := binary.BigEndian.Uint16(b[:wideSizeOff]); v != 0 {
		return Wide{}, fmt.Errorf("%w: %d", ErrInvalidVersion, v)
	}
	return Wide{b: b}, nil
}

// WideFromRaw validates r.
func WideFromRaw(r RawWide) (Wide, error) {
	return WideFromBytes(r.Bytes())
}

// CutWide parses an ID from the front of b and returns the remaining bytes.
func CutWide(b []byte) (Wide, []byte, error) {
	if len(b) < WideLen {
		return Wide{}, b, fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooShort, len(b), WideLen)
	}
	id, err := WideFromBytes([WideLen]byte(b[:WideLen]))
	if err != nil {
		return Wide{}, b, err
	}
	return id, b[WideLen:], nil
}

// Version returns the ID version, which is always 0 in correct code.
func (id Wide) Version() uint16 {
	v := binary.BigEndian.Uint16(id.b[:wideSizeOff])
	if debugChecks && v != 0 {
		panic(fmt.Sprintf("ocid: %s is not version 0", id))
	}
	return v
}

// Size returns the content size as big-endian bytes.
func (id Wide) Size() [WideSizeLen]byte {
	return [WideSizeLen]byte(id.b[wideSizeOff:wideHashOff])
}

// SizeUint64 returns the content size.
func (id Wide) SizeUint64() uint64 {
	return binary.BigEndian.Uint64(id.b[wideSizeOff:wideHashOff])
}

// IsEmpty reports whether the content size is zero.
func (id Wide) IsEmpty() bool {
	return id.SizeUint64() == 0
}

// Hash returns the content digest.
func (id Wide) Hash() [HashLen]byte {
	return [HashLen]byte(id.b[wideHashOff:])
}

// Body returns everything after the version tag.
func (id Wide) Body() [WideBodyLen]byte {
	return [WideBodyLen]byte(id.b[wideSizeOff:])
}

// SetBody overwrites everything after the version tag.
func (id *Wide) SetBody(body [WideBodyLen]byte) {
	copy(id.b[wideSizeOff:], body[:])
}

// Raw returns the fields of id.
func (id Wide) Raw() RawWide { return RawWideFromBytes(id.b) }

// Bytes returns the raw bytes of id.
func (id Wide) Bytes() [WideLen]byte { return id.b }

// Equal reports whether id and other have the same size and hash.
func (id Wide) Equal(other Wide) bool {
	return id.Size() == other.Size() && id.Hash() == other.Hash()
}

// Compare compares the raw bytes of id and other.
func (id Wide) Compare(other Wide) int {
	return bytes.Compare(id.b[wideSizeOff:], other.b[wideSizeOff:])
}

// MapHash hashes the raw bytes of id with seed.
func (id Wide) MapHash(seed maphash.Seed) uint64 {
	return maphash.Bytes(seed, id.b[:])
}

// EncodeBase64 writes the text form of id to dst and returns dst as a slice.
func (id Wide) EncodeBase64(dst *[WideTextLen]byte) []byte {
	b64.Encode42(dst, &id.b)
	return dst[:]
}

// WithBase64 calls fn with the text form of id held in a temporary buffer.
func (id Wide) WithBase64(fn func(text []byte)) {
	var buf [WideTextLen]byte
	fn(id.EncodeBase64(&buf))
}

// String returns the Base64 text form of id.
func (id Wide) String() string {
	var buf [WideTextLen]byte
	return string(id.EncodeBase64(&buf))
}

// GoString shows the parsed fields of id.
func (id Wide) GoString() string {
	return fmt.Sprintf("ocid.Wide{Version:%d, Size:%d, Hash:%x}",
		binary.BigEndian.Uint16(id.b[:wideSizeOff]), id.SizeUint64(), id.b[wideHashOff:])
}

// AppendText appends the text form of id to b.
func (id Wide) AppendText(b []byte) ([]byte, error) {
	var buf [WideTextLen]byte
	return append(b, id.EncodeBase64(&buf)...), nil
}

// MarshalText returns the text form of id.
func (id Wide) MarshalText() ([]byte, error) {
	return id.AppendText(make([]byte, 0, WideTextLen))
}

// AppendBinary appends the raw bytes of id to b.
func (id Wide) AppendBinary(b []byte) ([]byte, error) {
	return append(b, id.b[:]...), nil
}

// MarshalBinary returns the raw bytes of id.
func (id Wide) MarshalBinary() ([]byte, error) {
	return id.AppendBinary(make([]byte, 0, WideLen))
}

// UnmarshalBinary parses exactly one ID from b.
func (id *Wide) UnmarshalBinary(b []byte) error {
	parsed, rest, err := CutWide(b)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: %d bytes after ID", ErrTrailingData, len(rest))
	}
	*id = parsed
	return nil
}
