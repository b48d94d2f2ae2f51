// Package digest provides the 32-byte digest functions content IDs are built
// from.
//
// An ID does not record which algorithm produced its hash. Every party that
// derives or verifies IDs for the same store must agree on one Algorithm.
package digest

import (
	"fmt"
	"hash"
	"sort"

	"github.com/cloudflare/circl/xof"
	sha256 "github.com/minio/sha256-simd"
	"github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Size is the length of every digest in bytes.
const Size = 32

// Func computes the digest of data.
type Func func(data []byte) [Size]byte

// Algorithm describes a named digest function.
type Algorithm struct {
	// Name is the stable, lower-case algorithm name (e.g. "blake3").
	Name string
	// Code is the multicodec code used when the digest is wrapped in a multihash.
	Code uint64
	// Sum computes a digest in one shot.
	Sum Func
	// New returns a streaming hasher producing the same digest as Sum.
	New func() hash.Hash
}

// IsZero reports whether a is the zero Algorithm.
func (a Algorithm) IsZero() bool { return a.Sum == nil }

// OrDefault returns a, or Default if a is the zero Algorithm.
func (a Algorithm) OrDefault() Algorithm {
	if a.IsZero() {
		return Default
	}
	return a
}

func (a Algorithm) String() string { return a.Name }

var (
	BLAKE3 = Algorithm{
		Name: "blake3",
		Code: multihash.BLAKE3,
		Sum:  blake3.Sum256,
		New:  func() hash.Hash { return blake3.New() },
	}

	SHA256 = Algorithm{
		Name: "sha2-256",
		Code: multihash.SHA2_256,
		Sum:  sha256.Sum256,
		New:  sha256.New,
	}

	BLAKE2b256 = Algorithm{
		Name: "blake2b-256",
		Code: multihash.BLAKE2B_MIN + Size - 1,
		Sum:  blake2b.Sum256,
		New: func() hash.Hash {
			// New256 only fails for keys longer than 64 bytes.
			h, _ := blake2b.New256(nil)
			return h
		},
	}

	SHAKE256 = Algorithm{
		Name: "shake-256",
		Code: multihash.SHAKE_256,
		Sum: func(data []byte) [Size]byte {
			x := xof.SHAKE256.New()
			_, _ = x.Write(data)
			var out [Size]byte
			_, _ = x.Read(out[:])
			return out
		},
		New: func() hash.Hash { return &xofHash{x: xof.SHAKE256.New(), blockSize: 136} },
	}

	// Default is the algorithm used when none is configured.
	Default = BLAKE3
)

var byName = map[string]Algorithm{
	BLAKE3.Name:     BLAKE3,
	SHA256.Name:     SHA256,
	BLAKE2b256.Name: BLAKE2b256,
	SHAKE256.Name:   SHAKE256,
}

// Lookup returns the algorithm with the given name. The empty name selects
// Default.
func Lookup(name string) (Algorithm, error) {
	if name == "" {
		return Default, nil
	}
	a, ok := byName[name]
	if !ok {
		return Algorithm{}, fmt.Errorf("digest: unknown algorithm %q", name)
	}
	return a, nil
}

// ByCode returns the algorithm with the given multihash code.
func ByCode(code uint64) (Algorithm, bool) {
	for _, a := range byName {
		if a.Code == code {
			return a, true
		}
	}
	return Algorithm{}, false
}

// Names returns the known algorithm names, sorted.
func Names() []string {
	out := make([]string, 0, len(byName))
	for n := range byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// xofHash adapts an extendable-output function to hash.Hash with a fixed
// Size-byte output.
type xofHash struct {
	x         xof.XOF
	blockSize int
}

func (h *xofHash) Write(p []byte) (int, error) { return h.x.Write(p) }

func (h *xofHash) Sum(b []byte) []byte {
	var out [Size]byte
	_, _ = h.x.Clone().Read(out[:])
	return append(b, out[:]...)
}

func (h *xofHash) Reset()         { h.x.Reset() }
func (h *xofHash) Size() int      { return Size }
func (h *xofHash) BlockSize() int { return h.blockSize }
