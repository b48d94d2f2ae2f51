// Package bundle moves objects between stores as deterministic TAR archives.
//
// Layout:
//
//	index.cbor            optional, first entry
//	objects/<text ID>     one per object, in ID order
//
// The whole archive may be zstd-compressed; Import detects this by magic.
package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"xdao.co/ocid"
	"xdao.co/ocid/cidutil"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const (
	indexName     = "index.cbor"
	objectsPrefix = "objects/"
)

var epoch0 = time.Unix(0, 0).UTC()

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Index is the optional, non-authoritative bundle manifest. Object bytes are
// always verified against their IDs regardless of what the index claims.
type Index struct {
	Version int           `cbor:"1,keyasint"`
	Digest  string        `cbor:"2,keyasint"`
	Objects []IndexObject `cbor:"3,keyasint"`
	Labels  []IndexLabel  `cbor:"4,keyasint,omitempty"`
}

type IndexObject struct {
	ID   []byte `cbor:"1,keyasint"`
	Size uint64 `cbor:"2,keyasint"`
	CID  string `cbor:"3,keyasint"`
}

type IndexLabel struct {
	Name string `cbor:"1,keyasint"`
	ID   []byte `cbor:"2,keyasint"`
}

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to IDs.
	Labels map[string]ocid.V0
	// IncludeIndex controls whether index.cbor is included.
	IncludeIndex bool
	// Compress wraps the archive in a zstd frame.
	Compress bool
	// Digest is the algorithm cas addresses with (BLAKE3 when zero).
	Digest digest.Algorithm
}

// Export writes a deterministic TAR bundle containing the objects for ids.
//
// The bundle bytes are deterministic: entry order is ID order and TAR headers
// are normalized. All exported bytes are verified against their IDs.
func Export(w io.Writer, cas storage.CAS, ids []ocid.V0, opts ExportOptions) (err error) {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}
	alg := opts.Digest.OrDefault()

	sorted := slices.Clone(ids)
	for _, id := range sorted {
		if id.IsEmpty() {
			return storage.ErrInvalidID
		}
	}
	slices.SortFunc(sorted, ocid.V0.Compare)
	sorted = slices.Compact(sorted)

	if opts.Compress {
		zw, zerr := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if zerr != nil {
			return zerr
		}
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	}
	tw := tar.NewWriter(w)

	if opts.IncludeIndex {
		idx, ierr := buildIndex(sorted, opts.Labels, alg)
		if ierr != nil {
			return ierr
		}
		b, ierr := MarshalIndex(idx)
		if ierr != nil {
			return ierr
		}
		if err := writeFile(tw, indexName, b); err != nil {
			return err
		}
	}

	for _, id := range sorted {
		b, err := cas.Get(id)
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", id, err)
		}
		if err := storage.Verify(id, b, alg); err != nil {
			return err
		}
		if err := writeFile(tw, objectsPrefix+id.String(), b); err != nil {
			return err
		}
	}

	return tw.Close()
}

func buildIndex(ids []ocid.V0, labels map[string]ocid.V0, alg digest.Algorithm) (Index, error) {
	idx := Index{
		Version: FormatVersion,
		Digest:  alg.Name,
		Objects: make([]IndexObject, 0, len(ids)),
	}
	for _, id := range ids {
		c, err := cidutil.FromV0(id, alg)
		if err != nil {
			return Index{}, err
		}
		raw := id.Bytes()
		idx.Objects = append(idx.Objects, IndexObject{ID: raw[:], Size: id.SizeUint64(), CID: c.String()})
	}

	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		if k == "" {
			return Index{}, fmt.Errorf("bundle: empty label key")
		}
		v := labels[k]
		if v.IsEmpty() {
			return Index{}, storage.ErrInvalidID
		}
		raw := v.Bytes()
		idx.Labels = append(idx.Labels, IndexLabel{Name: k, ID: raw[:]})
	}
	return idx, nil
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// MarshalIndex encodes idx with CBOR core deterministic encoding.
func MarshalIndex(idx Index) ([]byte, error) {
	return encMode.Marshal(idx)
}

// UnmarshalIndex decodes an index and checks its IDs are well-formed.
func UnmarshalIndex(b []byte) (Index, error) {
	var idx Index
	if err := decMode.Unmarshal(b, &idx); err != nil {
		return Index{}, fmt.Errorf("bundle: index: %w", err)
	}
	if idx.Version != FormatVersion {
		return Index{}, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
	}
	for _, o := range idx.Objects {
		var id ocid.V0
		if err := id.UnmarshalBinary(o.ID); err != nil {
			return Index{}, fmt.Errorf("bundle: index: %w", err)
		}
		if id.SizeUint64() != o.Size {
			return Index{}, fmt.Errorf("bundle: index: size %d disagrees with id %s", o.Size, id)
		}
	}
	return idx, nil
}

// IDs returns the object IDs listed in the index.
func (idx Index) IDs() []ocid.V0 {
	out := make([]ocid.V0, 0, len(idx.Objects))
	for _, o := range idx.Objects {
		var id ocid.V0
		if id.UnmarshalBinary(o.ID) == nil {
			out = append(out, id)
		}
	}
	return out
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
	// Digest is the algorithm cas addresses with. When zero, the index's
	// digest is used if present, else BLAKE3.
	Digest digest.Algorithm
}

// Import reads a bundle from r and imports all objects into cas.
//
// Default behavior is fail-closed: unknown entries cause an error.
// Use ImportWithOptions to allow ignoring unknown entries.
func Import(r io.Reader, cas storage.CAS) ([]ocid.V0, error) {
	return ImportWithOptions(r, cas, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and imports all objects into cas,
// returning the imported IDs in archive order.
//
// Each object's bytes must address to the ID in its entry name. When an index
// is present every object it lists must appear in the archive.
func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) ([]ocid.V0, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}

	r, closeFn, err := openArchive(r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	alg := opts.Digest
	tr := tar.NewReader(r)
	seen := map[ocid.V0]struct{}{}
	var imported []ocid.V0
	var index *Index

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			if index != nil || len(imported) > 0 {
				return imported, fmt.Errorf("bundle: %s must be the first entry", indexName)
			}
			b, err := io.ReadAll(tr)
			if err != nil {
				return imported, err
			}
			idx, err := UnmarshalIndex(b)
			if err != nil {
				return imported, err
			}
			named, err := digest.Lookup(idx.Digest)
			if err != nil {
				return imported, fmt.Errorf("bundle: index: %w", err)
			}
			if alg.IsZero() {
				alg = named
			} else if alg.Name != named.Name {
				return imported, fmt.Errorf("bundle: index digest %s, expected %s", named.Name, alg.Name)
			}
			index = &idx
			continue
		}

		if !strings.HasPrefix(name, objectsPrefix) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return imported, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		text := strings.TrimPrefix(name, objectsPrefix)
		if len(text) != ocid.V0TextLen {
			return imported, storage.ErrInvalidID
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return imported, err
		}
		id, err := storage.Address(payload, alg)
		if err != nil {
			return imported, err
		}
		if id.String() != text {
			return imported, storage.ErrIDMismatch
		}
		if _, ok := seen[id]; ok {
			return imported, fmt.Errorf("bundle: duplicate object entry: %s", text)
		}
		seen[id] = struct{}{}

		putID, err := cas.Put(payload)
		if err != nil {
			return imported, err
		}
		if putID != id {
			return imported, storage.ErrIDMismatch
		}
		imported = append(imported, id)
	}

	if index != nil {
		for _, id := range index.IDs() {
			if _, ok := seen[id]; !ok {
				return imported, fmt.Errorf("bundle: index lists %s but archive lacks it: %w", id, storage.ErrNotFound)
			}
		}
	}
	return imported, nil
}

// ReadIndex returns the index of a bundle without importing it.
func ReadIndex(r io.Reader) (Index, error) {
	r, closeFn, err := openArchive(r)
	if err != nil {
		return Index{}, err
	}
	defer closeFn()

	tr := tar.NewReader(r)
	h, err := tr.Next()
	if err != nil {
		return Index{}, err
	}
	if cleanTarPath(h.Name) != indexName {
		return Index{}, ErrNoIndex
	}
	b, err := io.ReadAll(tr)
	if err != nil {
		return Index{}, err
	}
	return UnmarshalIndex(b)
}

// ErrNoIndex is returned by ReadIndex for bundles exported without an index.
var ErrNoIndex = errors.New("bundle: no index")

// openArchive returns r, transparently decompressed when it starts with a
// zstd frame.
func openArchive(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(len(zstdMagic))
	if !bytes.Equal(magic, zstdMagic) {
		return br, func() {}, nil
	}
	zr, err := zstd.NewReader(br)
	if err != nil {
		return nil, nil, err
	}
	return zr, zr.Close, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		Uid:      0,
		Gid:      0,
		Uname:    "",
		Gname:    "",
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			return ""
		}
		if part == ".." {
			return ""
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}
