// Package memcas is an in-memory storage.CAS.
//
// It is intended for tests and short-lived daemons; contents are lost when
// the process exits.
package memcas

import (
	"bytes"
	"slices"
	"sync"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

type CAS struct {
	alg digest.Algorithm

	mu      sync.RWMutex
	objects map[ocid.V0][]byte
}

var (
	_ storage.CAS    = (*CAS)(nil)
	_ storage.Lister = (*CAS)(nil)
)

// New returns an empty store addressing content with alg (BLAKE3 when zero).
func New(alg digest.Algorithm) *CAS {
	return &CAS{alg: alg.OrDefault(), objects: make(map[ocid.V0][]byte)}
}

func (c *CAS) Put(data []byte) (ocid.V0, error) {
	id, err := storage.Address(data, c.alg)
	if err != nil {
		return ocid.V0{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.objects[id]; ok {
		if !bytes.Equal(existing, data) {
			return ocid.V0{}, storage.ErrImmutable
		}
		return id, nil
	}
	c.objects[id] = bytes.Clone(data)
	return id, nil
}

func (c *CAS) Get(id ocid.V0) ([]byte, error) {
	if id.IsEmpty() {
		return nil, storage.ErrInvalidID
	}
	c.mu.RLock()
	b, ok := c.objects[id]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(b), nil
}

func (c *CAS) Has(id ocid.V0) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.objects[id]
	return ok
}

// List returns every stored ID in raw byte order.
func (c *CAS) List() ([]ocid.V0, error) {
	c.mu.RLock()
	ids := make([]ocid.V0, 0, len(c.objects))
	for id := range c.objects {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	slices.SortFunc(ids, ocid.V0.Compare)
	return ids, nil
}

// Len reports the number of stored objects.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}
