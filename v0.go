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
	// V0Len is the length of a V0 in bytes.
	V0Len = 1 + V0SizeLen + HashLen
	// V0BodyLen is the length of a V0 without its version tag.
	V0BodyLen = V0Len - 1
	// V0SizeLen is the width of the V0 size field.
	V0SizeLen = 6
	// V0TextLen is the length of the Base64 text form of a V0.
	V0TextLen = V0Len / 3 * 4
	// MaxV0Size is the largest content size a V0 can address.
	MaxV0Size = 1<<(8*V0SizeLen) - 1

	// HashLen is the length of the digest carried by every layout.
	HashLen = digest.Size

	v0SizeOff = 1
	v0HashOff = v0SizeOff + V0SizeLen
)

// RawV0 holds the fields of a V0 with no validity guarantee.
type RawV0 struct {
	// Version must be zero for the record to be a valid V0.
	Version uint8
	// Size is the big-endian content size.
	Size [V0SizeLen]byte
	// Hash is the content digest.
	Hash [HashLen]byte
}

// RawV0FromBytes splits b into fields.
func RawV0FromBytes(b [V0Len]byte) RawV0 {
	var r RawV0
	r.Version = b[0]
	copy(r.Size[:], b[v0SizeOff:v0HashOff])
	copy(r.Hash[:], b[v0HashOff:])
	return r
}

// Bytes serializes r.
func (r RawV0) Bytes() [V0Len]byte {
	var b [V0Len]byte
	b[0] = r.Version
	copy(b[v0SizeOff:v0HashOff], r.Size[:])
	copy(b[v0HashOff:], r.Hash[:])
	return b
}

// V0 is a version 0 content ID.
//
// The zero value is a valid ID for empty content with an all-zero hash.
// V0 is comparable and can be used directly as a map key.
//
// The raw bytes sort by content size first, so sorting IDs puts the smallest
// content first. Content of the wrong size can be rejected before hashing.
type V0 struct {
	b [V0Len]byte
}

// NewV0 creates an ID from its size and hash.
func NewV0(size [V0SizeLen]byte, hash [HashLen]byte) V0 {
	var id V0
	copy(id.b[v0SizeOff:v0HashOff], size[:])
	copy(id.b[v0HashOff:], hash[:])
	return id
}

// V0FromSize creates an ID from a native content size and a hash. It fails
// with ErrSizeOverflow if size exceeds MaxV0Size.
func V0FromSize(size uint64, hash [HashLen]byte) (V0, error) {
	s, ok := v0SizeBytes(size)
	if !ok {
		return V0{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrSizeOverflow, size, uint64(MaxV0Size))
	}
	return NewV0(s, hash), nil
}

// SumV0 creates the ID of content using fn, or BLAKE3 if fn is nil.
func SumV0(content []byte, fn digest.Func) (V0, error) {
	size, ok := v0SizeBytes(uint64(len(content)))
	if !ok {
		return V0{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrSizeOverflow, len(content), uint64(MaxV0Size))
	}
	if fn == nil {
		fn = digest.Default.Sum
	}
	return NewV0(size, fn(content)), nil
}

// ReadV0 creates the ID of everything read from r, hashing it with h.
// h is reset first and must produce HashLen-byte sums.
func ReadV0(r io.Reader, h hash.Hash) (V0, error) {
	n, sum, err := readDigest(r, h)
	if err != nil {
		return V0{}, err
	}
	return V0FromSize(n, sum)
}

// RandomV0 returns an ID filled from crypto/rand.
//
// If the generated ID is empty, the size is refilled once.
func RandomV0() V0 {
	id, err := ReadRandomV0(rand.Reader)
	if err != nil {
		// crypto/rand.Reader does not return errors.
		panic(err)
	}
	return id
}

// ReadRandomV0 returns an ID filled with bytes read from r, wrapping any
// read error in ErrRandomSource.
//
// If the generated ID is empty, the size is refilled once.
func ReadRandomV0(r io.Reader) (V0, error) {
	var id V0
	if _, err := io.ReadFull(r, id.b[v0SizeOff:]); err != nil {
		return V0{}, fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	// No loop: r could emit zeros forever. A single refill makes an empty
	// ID very unlikely for any reasonable source.
	if id.IsEmpty() {
		if _, err := io.ReadFull(r, id.b[v0SizeOff:v0HashOff]); err != nil {
			return V0{}, fmt.Errorf("%w: %w", ErrRandomSource, err)
		}
	}
	return id, nil
}

// V0FromBytes parses the raw bytes of an ID.
func V0FromBytes(b [V0Len]byte) (V0, error) {
	if b[0] != 0 {
		return V0{}, fmt.Errorf("%w: %d", ErrInvalidVersion, b[0])
	}
	return V0{b: b}, nil
}

// V0FromRaw validates r.
func V0FromRaw(r RawV0) (V0, error) {
	return V0FromBytes(r.Bytes())
}

// CutV0 parses an ID from the front of b and returns the remaining bytes.
func CutV0(b []byte) (V0, []byte, error) {
	if len(b) < V0Len {
		return V0{}, b, fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooShort, len(b), V0Len)
	}
	id, err := V0FromBytes([V0Len]byte(b[:V0Len]))
	if err != nil {
		return V0{}, b, err
	}
	return id, b[V0Len:], nil
}

// SplitV0 parses b as a concatenation of IDs.
func SplitV0(b []byte) ([]V0, error) {
	if rem := len(b) % V0Len; rem != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrBufferTooShort, rem)
	}
	out := make([]V0, 0, len(b)/V0Len)
	for len(b) > 0 {
		id, rest, err := CutV0(b)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
		b = rest
	}
	return out, nil
}

// JoinV0 concatenates the raw bytes of ids.
func JoinV0(ids ...V0) []byte {
	out := make([]byte, 0, len(ids)*V0Len)
	for i := range ids {
		out = append(out, ids[i].b[:]...)
	}
	return out
}

// Version returns the ID version, which is always 0 in correct code.
func (id V0) Version() uint8 {
	v := id.b[0]
	if debugChecks && v != 0 {
		panic(fmt.Sprintf("ocid: %s is not version 0", id))
	}
	return v
}

// Size returns the content size as big-endian bytes.
func (id V0) Size() [V0SizeLen]byte {
	return [V0SizeLen]byte(id.b[v0SizeOff:v0HashOff])
}

// SizeUint64 returns the content size.
func (id V0) SizeUint64() uint64 {
	// The two bytes read past the size belong to the hash and are shifted out.
	return binary.BigEndian.Uint64(id.b[v0SizeOff:]) >> 16
}

// IsEmpty reports whether the content size is zero.
//
// An empty ID is valid but usually indicates a programming error; stores
// refuse it.
func (id V0) IsEmpty() bool {
	return id.Size() == [V0SizeLen]byte{}
}

// Hash returns the content digest.
func (id V0) Hash() [HashLen]byte {
	return [HashLen]byte(id.b[v0HashOff:])
}

// Body returns everything after the version tag.
func (id V0) Body() [V0BodyLen]byte {
	return [V0BodyLen]byte(id.b[v0SizeOff:])
}

// SetBody overwrites everything after the version tag. It is meant for
// filling a freshly declared ID before it is shared.
func (id *V0) SetBody(body [V0BodyLen]byte) {
	copy(id.b[v0SizeOff:], body[:])
}

// Raw returns the fields of id.
func (id V0) Raw() RawV0 {
	return RawV0FromBytes(id.b)
}

// Bytes returns the raw bytes of id.
func (id V0) Bytes() [V0Len]byte {
	return id.b
}

// Equal reports whether id and other have the same size and hash.
func (id V0) Equal(other V0) bool {
	return id.Size() == other.Size() && id.Hash() == other.Hash()
}

// Compare compares the raw bytes of id and other. The result matches
// comparing their text forms.
func (id V0) Compare(other V0) int {
	return bytes.Compare(id.b[v0SizeOff:], other.b[v0SizeOff:])
}

// MapHash hashes the raw bytes of id with seed.
func (id V0) MapHash(seed maphash.Seed) uint64 {
	return maphash.Bytes(seed, id.b[:])
}

// EncodeBase64 writes the text form of id to dst and returns dst as a slice.
func (id V0) EncodeBase64(dst *[V0TextLen]byte) []byte {
	b64.Encode39(dst, &id.b)
	return dst[:]
}

// WithBase64 calls fn with the text form of id held in a temporary buffer.
// fn must not retain the slice.
func (id V0) WithBase64(fn func(text []byte)) {
	var buf [V0TextLen]byte
	fn(id.EncodeBase64(&buf))
}

// String returns the Base64 text form of id.
func (id V0) String() string {
	var buf [V0TextLen]byte
	return string(id.EncodeBase64(&buf))
}

// GoString shows the parsed fields of id.
func (id V0) GoString() string {
	return fmt.Sprintf("ocid.V0{Version:%d, Size:%d, Hash:%x}", id.b[0], id.SizeUint64(), id.b[v0HashOff:])
}

// AppendText appends the text form of id to b.
func (id V0) AppendText(b []byte) ([]byte, error) {
	var buf [V0TextLen]byte
	return append(b, id.EncodeBase64(&buf)...), nil
}

// MarshalText returns the text form of id.
func (id V0) MarshalText() ([]byte, error) {
	return id.AppendText(make([]byte, 0, V0TextLen))
}

// AppendBinary appends the raw bytes of id to b.
func (id V0) AppendBinary(b []byte) ([]byte, error) {
	return append(b, id.b[:]...), nil
}

// MarshalBinary returns the raw bytes of id.
func (id V0) MarshalBinary() ([]byte, error) {
	return id.AppendBinary(make([]byte, 0, V0Len))
}

// UnmarshalBinary parses exactly one ID from b.
func (id *V0) UnmarshalBinary(b []byte) error {
	parsed, rest, err := CutV0(b)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: %d bytes after ID", ErrTrailingData, len(rest))
	}
	*id = parsed
	return nil
}

func v0SizeBytes(n uint64) ([V0SizeLen]byte, bool) {
	if n > MaxV0Size {
		return [V0SizeLen]byte{}, false
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return [V0SizeLen]byte(buf[8-V0SizeLen:]), true
}

func readDigest(r io.Reader, h hash.Hash) (uint64, [HashLen]byte, error) {
	h.Reset()
	n, err := io.Copy(h, r)
	if err != nil {
		return 0, [HashLen]byte{}, err
	}
	sum := h.Sum(nil)
	if len(sum) != HashLen {
		return 0, [HashLen]byte{}, fmt.Errorf("ocid: digest is %d bytes, want %d", len(sum), HashLen)
	}
	return uint64(n), [HashLen]byte(sum), nil
}
