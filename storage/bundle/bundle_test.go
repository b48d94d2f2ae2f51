package bundle_test

import (
	"archive/tar"
	"bytes"
	"errors"
	"testing"
	"time"

	"xdao.co/ocid"
	"xdao.co/ocid/cidutil"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/bundle"
	"xdao.co/ocid/storage/localfs"
	"xdao.co/ocid/storage/memcas"
)

func TestBundle_ExportIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	cas, err := localfs.New(dir, digest.Algorithm{})
	if err != nil {
		t.Fatal(err)
	}

	id1, err := cas.Put([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := cas.Put([]byte("world!"))
	if err != nil {
		t.Fatal(err)
	}

	for _, compress := range []bool{false, true} {
		opts := bundle.ExportOptions{IncludeIndex: true, Compress: compress}
		var outA bytes.Buffer
		if err := bundle.Export(&outA, cas, []ocid.V0{id2, id1, id2}, opts); err != nil {
			t.Fatal(err)
		}
		var outB bytes.Buffer
		if err := bundle.Export(&outB, cas, []ocid.V0{id1, id2}, opts); err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
			t.Fatalf("expected deterministic bundle bytes (compress=%v)", compress)
		}
	}
}

func TestBundle_EntriesInIDOrder(t *testing.T) {
	cas := memcas.New(digest.Algorithm{})
	var ids []ocid.V0
	for _, s := range []string{"three", "a", "twelve bytes"} {
		id, err := cas.Put([]byte(s))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	var buf bytes.Buffer
	if err := bundle.Export(&buf, cas, ids, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	var names []string
	tr := tar.NewReader(&buf)
	for {
		h, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, h.Name)
	}
	if len(names) != 4 || names[0] != "index.cbor" {
		t.Fatalf("unexpected entries: %v", names)
	}
	for i := 2; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("entries not in ID order: %v", names)
		}
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		src, err := localfs.New(t.TempDir(), digest.SHA256)
		if err != nil {
			t.Fatal(err)
		}

		payload := []byte("payload")
		id, err := src.Put(payload)
		if err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		opts := bundle.ExportOptions{
			IncludeIndex: true,
			Compress:     compress,
			Digest:       digest.SHA256,
			Labels:       map[string]ocid.V0{"main": id},
		}
		if err := bundle.Export(&buf, src, []ocid.V0{id}, opts); err != nil {
			t.Fatal(err)
		}

		// The index carries the digest, so the importer need not be told.
		dst := memcas.New(digest.SHA256)
		got, err := bundle.Import(bytes.NewReader(buf.Bytes()), dst)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != id {
			t.Fatalf("imported ids: %v", got)
		}

		b, err := dst.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(b, payload) {
			t.Fatalf("payload mismatch")
		}
	}
}

func TestBundle_ReadIndex(t *testing.T) {
	cas := memcas.New(digest.BLAKE2b256)
	id, err := cas.Put([]byte("indexed"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	opts := bundle.ExportOptions{IncludeIndex: true, Compress: true, Digest: digest.BLAKE2b256, Labels: map[string]ocid.V0{"x": id}}
	if err := bundle.Export(&buf, cas, []ocid.V0{id}, opts); err != nil {
		t.Fatal(err)
	}
	idx, err := bundle.ReadIndex(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if idx.Version != bundle.FormatVersion || idx.Digest != digest.BLAKE2b256.Name {
		t.Fatalf("unexpected index header: %+v", idx)
	}
	if len(idx.Objects) != 1 || idx.Objects[0].Size != 7 {
		t.Fatalf("unexpected index objects: %+v", idx.Objects)
	}
	if want := cidutil.String(id, digest.BLAKE2b256); idx.Objects[0].CID != want {
		t.Fatalf("index CID: got %s want %s", idx.Objects[0].CID, want)
	}
	if ids := idx.IDs(); len(ids) != 1 || ids[0] != id {
		t.Fatalf("IDs: %v", ids)
	}
	if len(idx.Labels) != 1 || idx.Labels[0].Name != "x" {
		t.Fatalf("labels: %+v", idx.Labels)
	}

	buf.Reset()
	if err := bundle.Export(&buf, cas, []ocid.V0{id}, bundle.ExportOptions{Digest: digest.BLAKE2b256}); err != nil {
		t.Fatal(err)
	}
	if _, err := bundle.ReadIndex(&buf); !errors.Is(err, bundle.ErrNoIndex) {
		t.Fatalf("ReadIndex without index: got %v", err)
	}
}

func TestBundle_ImportRejectsIDMismatch(t *testing.T) {
	other, err := storage.Address([]byte("othr"), digest.Algorithm{})
	if err != nil {
		t.Fatal(err)
	}

	// Name says "other" but bytes are "good" => computed ID mismatch.
	bundleBytes := makeDeterministicTar(t, "objects/"+other.String(), []byte("good"))

	dst := memcas.New(digest.Algorithm{})
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), dst); err != storage.ErrIDMismatch {
		t.Fatalf("expected ErrIDMismatch, got %v", err)
	}
	if dst.Len() != 0 {
		t.Fatalf("mismatched object must not be stored")
	}
}

func TestBundle_ImportRejectsUnknownEntries(t *testing.T) {
	b := makeDeterministicTar(t, "notes.txt", []byte("hi"))
	if _, err := bundle.Import(bytes.NewReader(b), memcas.New(digest.Algorithm{})); err == nil {
		t.Fatalf("expected error for unknown entry")
	}
	ids, err := bundle.ImportWithOptions(bytes.NewReader(b), memcas.New(digest.Algorithm{}), bundle.ImportOptions{IgnoreUnknown: true})
	if err != nil || len(ids) != 0 {
		t.Fatalf("IgnoreUnknown: %v, %v", ids, err)
	}
	if _, err := bundle.Import(bytes.NewReader(makeDeterministicTar(t, "objects/short", []byte("x"))), memcas.New(digest.Algorithm{})); err != storage.ErrInvalidID {
		t.Fatalf("short name: got %v", err)
	}
}

func TestBundle_ImportChecksIndexCompleteness(t *testing.T) {
	cas := memcas.New(digest.Algorithm{})
	id, err := cas.Put([]byte("listed"))
	if err != nil {
		t.Fatal(err)
	}
	raw := id.Bytes()
	idx := bundle.Index{
		Version: bundle.FormatVersion,
		Digest:  digest.BLAKE3.Name,
		Objects: []bundle.IndexObject{{ID: raw[:], Size: id.SizeUint64()}},
	}
	b, err := bundle.MarshalIndex(idx)
	if err != nil {
		t.Fatal(err)
	}
	archive := makeDeterministicTar(t, "index.cbor", b)
	if _, err := bundle.Import(bytes.NewReader(archive), memcas.New(digest.Algorithm{})); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing indexed object: got %v", err)
	}

	idx.Digest = digest.SHA256.Name
	b, _ = bundle.MarshalIndex(idx)
	archive = makeDeterministicTar(t, "index.cbor", b)
	opts := bundle.ImportOptions{Digest: digest.BLAKE3}
	if _, err := bundle.ImportWithOptions(bytes.NewReader(archive), memcas.New(digest.Algorithm{}), opts); err == nil {
		t.Fatalf("expected digest disagreement error")
	}
}

func TestUnmarshalIndex_Rejects(t *testing.T) {
	good, _ := storage.Address([]byte("abc"), digest.Algorithm{})
	goodRaw := good.Bytes()
	cases := map[string]bundle.Index{
		"version":  {Version: 99},
		"short id": {Version: bundle.FormatVersion, Objects: []bundle.IndexObject{{ID: []byte{0}, Size: 0}}},
		"size":     {Version: bundle.FormatVersion, Objects: []bundle.IndexObject{{ID: goodRaw[:], Size: 4}}},
	}
	for name, idx := range cases {
		t.Run(name, func(t *testing.T) {
			b, err := bundle.MarshalIndex(idx)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := bundle.UnmarshalIndex(b); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := bundle.UnmarshalIndex([]byte{0xff}); err == nil {
		t.Fatalf("expected error for malformed CBOR")
	}
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		Uid:      0,
		Gid:      0,
		Uname:    "",
		Gname:    "",
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
