package storage

import (
	"fmt"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
)

// NamedCAS associates a CAS with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require all returned
// IDs to match (otherwise ErrIDMismatch is returned).
//
// Use PutAll when you need the per-backend ID mapping.
type ReplicatingCAS struct {
	Backends []NamedCAS
	// Digest is the algorithm all backends are expected to address with.
	Digest digest.Algorithm
}

var _ CAS = (*ReplicatingCAS)(nil)

// PutAll writes the same bytes to all backends.
//
// It returns:
// - the canonical ID (computed from bytes)
// - a map of backend name -> returned ID
//
// If any backend returns a different ID, ErrIDMismatch is returned.
func (r ReplicatingCAS) PutAll(bytes []byte) (ocid.V0, map[string]ocid.V0, error) {
	want, err := Address(bytes, r.Digest)
	if err != nil {
		return ocid.V0{}, nil, err
	}
	if len(r.Backends) == 0 {
		return ocid.V0{}, nil, fmt.Errorf("storage: ReplicatingCAS has no backends")
	}

	out := make(map[string]ocid.V0, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return ocid.V0{}, nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
		got, err := b.CAS.Put(bytes)
		if err != nil {
			return ocid.V0{}, nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if got != want {
			return ocid.V0{}, out, ErrIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(bytes []byte) (ocid.V0, error) {
	id, _, err := r.PutAll(bytes)
	return id, err
}

func (r ReplicatingCAS) Get(id ocid.V0) ([]byte, error) {
	adapters := make([]CAS, 0, len(r.Backends))
	for _, b := range r.Backends {
		adapters = append(adapters, b.CAS)
	}
	return getFirst(id, adapters)
}

func (r ReplicatingCAS) Has(id ocid.V0) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}
