package localfs

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

// CAS is a local filesystem-backed content-addressable store.
//
// Objects are stored immutably and keyed strictly by ID. Files live at
// root/<hex of first hash byte>/<text ID>; the text form is path safe and
// the hash byte spreads objects evenly regardless of their size.
type CAS struct {
	root string
	alg  digest.Algorithm
}

var _ storage.CAS = (*CAS)(nil)

// New constructs a filesystem CAS rooted at root, addressing content with
// alg (BLAKE3 when zero). The directory will be created if needed.
func New(root string, alg digest.Algorithm) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root, alg: alg.OrDefault()}, nil
}

func (c *CAS) Put(bytes []byte) (ocid.V0, error) {
	id, err := storage.Address(bytes, c.alg)
	if err != nil {
		return ocid.V0{}, err
	}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ocid.V0{}, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := c.Get(id)
			if rerr != nil {
				// If the file exists but is unreadable or corrupted, treat as an immutability violation.
				return ocid.V0{}, storage.ErrImmutable
			}
			if string(existing) != string(bytes) {
				return ocid.V0{}, storage.ErrImmutable
			}
			return id, nil
		}
		return ocid.V0{}, err
	}
	defer f.Close()

	if _, err := f.Write(bytes); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return ocid.V0{}, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return ocid.V0{}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return ocid.V0{}, err
	}

	return id, nil
}

func (c *CAS) Get(id ocid.V0) ([]byte, error) {
	if id.IsEmpty() {
		return nil, storage.ErrInvalidID
	}
	path := c.pathFor(id)
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	// A size mismatch is detectable without reading the file.
	if uint64(st.Size()) != id.SizeUint64() {
		return nil, storage.ErrIDMismatch
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := storage.Verify(id, b, c.alg); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *CAS) Has(id ocid.V0) bool {
	if id.IsEmpty() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) pathFor(id ocid.V0) string {
	h := id.Hash()
	return filepath.Join(c.root, hex.EncodeToString(h[:1]), id.String())
}
