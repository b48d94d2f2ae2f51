package ipfs

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/ocid"
	"xdao.co/ocid/cidutil"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

// CAS is a content-addressable store backed by the local Kubo "ipfs" CLI.
//
// Objects are stored as raw blocks whose CID is cidutil.FromV0 of their ID,
// so the block hash is the ID hash. The size half of the ID is not part of
// the CID and is checked on Get.
//
// Properties:
// - Offline: operates on the local IPFS repo; does not require an IPFS daemon.
// - Verified: Get re-derives the ID from the returned bytes.
// - Best-effort: relies on an external "ipfs" binary (configurable).
type CAS struct {
	bin string
	env []string
	alg digest.Algorithm
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
}

func New(opts Options, alg digest.Algorithm) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env, alg: alg.OrDefault()}
}

func (c *CAS) Put(data []byte) (ocid.V0, error) {
	id, err := storage.Address(data, c.alg)
	if err != nil {
		return ocid.V0{}, err
	}
	want, err := cidutil.FromV0(id, c.alg)
	if err != nil {
		return ocid.V0{}, err
	}

	out, err := c.run(data,
		"block", "put",
		"--quiet",
		"--format=raw",
		"--mhtype="+c.alg.Name,
		"--mhlen=32",
		"--cid-version=1",
		"/dev/stdin",
	)
	if err != nil {
		return ocid.V0{}, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return ocid.V0{}, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(want) {
		return ocid.V0{}, storage.ErrIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(id ocid.V0) ([]byte, error) {
	if id.IsEmpty() {
		return nil, storage.ErrInvalidID
	}
	key, err := cidutil.FromV0(id, c.alg)
	if err != nil {
		return nil, err
	}

	out, err := c.run(nil, "block", "get", key.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := storage.Verify(id, out, c.alg); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CAS) Has(id ocid.V0) bool {
	if id.IsEmpty() {
		return false
	}
	key, err := cidutil.FromV0(id, c.alg)
	if err != nil {
		return false
	}
	_, err = c.run(nil, "block", "stat", key.String())
	return err == nil
}

func (c *CAS) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found")
}
