// Package cidutil converts content IDs to and from IPFS CIDs.
//
// An OCID carries a size and a bare digest; a CID carries a codec and a
// self-describing multihash. FromV0 wraps the digest in a multihash tagged
// with the algorithm's code, so the same bytes get matching addresses in
// both systems.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
)

// FromV0 returns the CIDv1 (raw codec) addressing the same content as id,
// whose hash must have been produced by alg.
func FromV0(id ocid.V0, alg digest.Algorithm) (cid.Cid, error) {
	alg = alg.OrDefault()
	h := id.Hash()
	mh, err := multihash.Encode(h[:], alg.Code)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: encode multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// String is like FromV0 but returns the CID's string form, or "" on error.
func String(id ocid.V0, alg digest.Algorithm) string {
	c, err := FromV0(id, alg)
	if err != nil {
		return ""
	}
	return c.String()
}

// Digest extracts the 32-byte digest and the algorithm from a CID.
func Digest(c cid.Cid) ([digest.Size]byte, digest.Algorithm, error) {
	if !c.Defined() {
		return [digest.Size]byte{}, digest.Algorithm{}, fmt.Errorf("cidutil: undefined cid")
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return [digest.Size]byte{}, digest.Algorithm{}, fmt.Errorf("cidutil: decode multihash: %w", err)
	}
	alg, ok := digest.ByCode(dec.Code)
	if !ok {
		return [digest.Size]byte{}, digest.Algorithm{}, fmt.Errorf("cidutil: unsupported multihash %s", dec.Name)
	}
	if len(dec.Digest) != digest.Size {
		return [digest.Size]byte{}, digest.Algorithm{}, fmt.Errorf("cidutil: digest is %d bytes, want %d", len(dec.Digest), digest.Size)
	}
	return [digest.Size]byte(dec.Digest), alg, nil
}

// ToV0 rebuilds an OCID from a CID and the content size, which a CID does
// not carry.
func ToV0(c cid.Cid, size uint64) (ocid.V0, digest.Algorithm, error) {
	sum, alg, err := Digest(c)
	if err != nil {
		return ocid.V0{}, digest.Algorithm{}, err
	}
	id, err := ocid.V0FromSize(size, sum)
	if err != nil {
		return ocid.V0{}, digest.Algorithm{}, err
	}
	return id, alg, nil
}
