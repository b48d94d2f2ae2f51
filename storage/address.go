package storage

import (
	"errors"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
)

// Address derives the ID of data under alg (BLAKE3 when alg is zero).
//
// Empty content is rejected: an empty ID addresses nothing useful and
// usually indicates a caller bug.
func Address(data []byte, alg digest.Algorithm) (ocid.V0, error) {
	if len(data) == 0 {
		return ocid.V0{}, ErrEmptyContent
	}
	id, err := ocid.SumV0(data, alg.OrDefault().Sum)
	if err != nil {
		if errors.Is(err, ocid.ErrSizeOverflow) {
			return ocid.V0{}, errors.Join(ErrInvalidID, err)
		}
		return ocid.V0{}, err
	}
	return id, nil
}

// Verify checks that data is the content addressed by id.
//
// The size is checked before hashing so truncated or padded reads fail
// without paying for a digest.
func Verify(id ocid.V0, data []byte, alg digest.Algorithm) error {
	if id.IsEmpty() {
		return ErrInvalidID
	}
	if uint64(len(data)) != id.SizeUint64() {
		return ErrIDMismatch
	}
	if alg.OrDefault().Sum(data) != id.Hash() {
		return ErrIDMismatch
	}
	return nil
}
