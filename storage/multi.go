package storage

import (
	"errors"
	"slices"

	"xdao.co/ocid"
)

// MultiCAS provides deterministic, ordered fallback across multiple CAS adapters.
//
// Hydration order is the slice order in Adapters; callers MUST supply a fixed order.
// This avoids map-iteration nondeterminism and makes the retrieval strategy explicit.
//
// Put is defined to write only to the first adapter.
type MultiCAS struct {
	Adapters []CAS
}

var (
	_ CAS    = MultiCAS{}
	_ Lister = MultiCAS{}
)

func (m MultiCAS) Put(bytes []byte) (ocid.V0, error) {
	if len(m.Adapters) == 0 {
		return ocid.V0{}, errors.New("storage: MultiCAS has no adapters")
	}
	return m.Adapters[0].Put(bytes)
}

func (m MultiCAS) Get(id ocid.V0) ([]byte, error) {
	return getFirst(id, m.Adapters)
}

func (m MultiCAS) Has(id ocid.V0) bool {
	for _, cas := range m.Adapters {
		if cas != nil && cas.Has(id) {
			return true
		}
	}
	return false
}

// List merges the listings of every adapter that implements Lister.
func (m MultiCAS) List() ([]ocid.V0, error) {
	return mergeLists(m.Adapters)
}

func getFirst(id ocid.V0, adapters []CAS) ([]byte, error) {
	if id.IsEmpty() {
		return nil, ErrInvalidID
	}
	for _, cas := range adapters {
		if cas == nil {
			continue
		}
		b, err := cas.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func mergeLists(adapters []CAS) ([]ocid.V0, error) {
	var out []ocid.V0
	listed := false
	for _, cas := range adapters {
		l, ok := cas.(Lister)
		if !ok {
			continue
		}
		ids, err := l.List()
		if err != nil {
			return nil, err
		}
		listed = true
		out = append(out, ids...)
	}
	if !listed {
		return nil, errors.New("storage: no adapter supports listing")
	}
	slices.SortFunc(out, ocid.V0.Compare)
	return slices.Compact(out), nil
}
