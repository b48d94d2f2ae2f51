package testkit

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

// RunCASConformance checks the storage.CAS contract. alg is the digest the
// CAS under test addresses with.
func RunCASConformance(t *testing.T, alg digest.Algorithm, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, ocid storage")

		id, err := cas.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := storage.Address(want, alg)
		if err != nil {
			t.Fatalf("Address failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put ID mismatch: got %s want %s", id, wantID)
		}
		if id.SizeUint64() != uint64(len(want)) {
			t.Fatalf("Put ID size: got %d want %d", id.SizeUint64(), len(want))
		}

		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
		if err := storage.Verify(id, got, alg); err != nil {
			t.Fatalf("Get returned bytes not matching requested ID: %v", err)
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := storage.Address(b, alg)
		if err != nil {
			t.Fatalf("Address failed: %v", err)
		}

		if cas.Has(id) {
			t.Fatalf("Has returned true for missing ID")
		}
		_, err = cas.Get(id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		_, err = cas.Put(b)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectEmpty", func(t *testing.T) {
		cas := newCAS(t)
		var empty ocid.V0
		if cas.Has(empty) {
			t.Fatalf("Has should be false for an empty ID")
		}
		if _, err := cas.Get(empty); err == nil {
			t.Fatalf("Get should fail for an empty ID")
		}
		if _, err := cas.Put(nil); !errors.Is(err, storage.ErrEmptyContent) {
			t.Fatalf("Put(nil): got err=%v want ErrEmptyContent", err)
		}
	})

	t.Run("ListInIDOrder", func(t *testing.T) {
		cas := newCAS(t)
		lister, ok := cas.(storage.Lister)
		if !ok {
			t.Skip("CAS does not implement storage.Lister")
		}
		payloads := [][]byte{
			[]byte(strings.Repeat("c", 300)),
			[]byte("a"),
			[]byte("bb"),
			[]byte("zz"),
		}
		want := make([]ocid.V0, 0, len(payloads))
		for _, p := range payloads {
			id, err := cas.Put(p)
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			want = append(want, id)
		}
		slices.SortFunc(want, ocid.V0.Compare)

		got, err := lister.List()
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("List mismatch:\n got %v\nwant %v", got, want)
		}
		for i := 1; i < len(got); i++ {
			if got[i-1].String() >= got[i].String() {
				t.Fatalf("List text forms out of order at %d", i)
			}
		}
	})
}
