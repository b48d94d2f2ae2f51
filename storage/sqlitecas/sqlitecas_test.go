package sqlitecas

import (
	"bytes"
	"path/filepath"
	"testing"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/casregistry"
	"xdao.co/ocid/storage/testkit"
)

func openTemp(t *testing.T, alg digest.Algorithm) *CAS {
	t.Helper()
	cas, err := Open(filepath.Join(t.TempDir(), "cas.db"), alg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = cas.Close() })
	return cas
}

func TestSQLiteCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, digest.SHA256, func(t *testing.T) storage.CAS {
		return openTemp(t, digest.SHA256)
	})
}

func TestSQLiteCAS_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cas.db")
	cas, err := Open(path, digest.Algorithm{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	id, err := cas.Put([]byte("durable"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cas.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	again, err := Open(path, digest.Algorithm{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer again.Close()
	got, err := again.Get(id)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != "durable" {
		t.Fatalf("Get after reopen: got %q", got)
	}
}

func TestSQLiteCAS_DetectsTampering(t *testing.T) {
	cas := openTemp(t, digest.Algorithm{})
	id, err := cas.Put([]byte("original"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := cas.sqlDB.Exec(`UPDATE objects SET data = ? WHERE id = ?`, []byte("0riginal"), rowKey(id)); err != nil {
		t.Fatalf("UPDATE failed: %v", err)
	}
	if _, err := cas.Get(id); err != storage.ErrIDMismatch {
		t.Fatalf("Get tampered: got %v want %v", err, storage.ErrIDMismatch)
	}
	if _, err := cas.Put([]byte("original")); err != storage.ErrImmutable {
		t.Fatalf("Put over tampered: got %v want %v", err, storage.ErrImmutable)
	}
}

func TestSQLiteCAS_ListOrdersBySize(t *testing.T) {
	cas := openTemp(t, digest.Algorithm{})
	sizes := []int{65536, 256, 255, 2, 1}
	for _, n := range sizes {
		if _, err := cas.Put(bytes.Repeat([]byte{'x'}, n)); err != nil {
			t.Fatalf("Put %d bytes failed: %v", n, err)
		}
	}
	ids, err := cas.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != len(sizes) {
		t.Fatalf("List: got %d ids want %d", len(ids), len(sizes))
	}
	for i, id := range ids {
		if want := uint64(sizes[len(sizes)-1-i]); id.SizeUint64() != want {
			t.Fatalf("List[%d] size: got %d want %d", i, id.SizeUint64(), want)
		}
		if i > 0 && ids[i-1].Compare(id) >= 0 {
			t.Fatalf("List out of order at %d", i)
		}
	}
}

func TestSQLiteCAS_ListRejectsCorruptRow(t *testing.T) {
	cas := openTemp(t, digest.Algorithm{})
	if _, err := cas.sqlDB.Exec(`INSERT INTO objects (id, size, data) VALUES (?, ?, ?)`, []byte{0, 1}, 1, []byte("x")); err != nil {
		t.Fatalf("INSERT failed: %v", err)
	}
	if _, err := cas.List(); err == nil {
		t.Fatalf("expected error for malformed id row")
	}
}

func TestSQLiteCAS_RequiresPath(t *testing.T) {
	if _, err := Open("  ", digest.Algorithm{}); err == nil {
		t.Fatalf("expected error for blank path")
	}
	if _, _, err := casregistry.OpenWithConfig("sqlite", casregistry.UsageCLI, nil, digest.Algorithm{}); err == nil {
		t.Fatalf("expected error for missing --sqlite-path")
	}
}
