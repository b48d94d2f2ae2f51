package storage

import "xdao.co/ocid"

// CAS is a minimal content-addressable storage interface keyed by content IDs.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - IDs MUST be derived from the bytes written with the store's digest algorithm.
// - Put MUST reject empty content with ErrEmptyContent.
// - Get MUST return ErrNotFound when the ID is absent and ErrInvalidID for an empty ID.
// - Get MUST verify returned bytes against the ID (ErrIDMismatch).
type CAS interface {
	Put(bytes []byte) (ocid.V0, error)
	Get(id ocid.V0) ([]byte, error)
	Has(id ocid.V0) bool
}

// Lister is implemented by stores that can enumerate their contents.
//
// List returns IDs in raw byte order, which is also content size order and
// the order of their text forms.
type Lister interface {
	List() ([]ocid.V0, error)
}
