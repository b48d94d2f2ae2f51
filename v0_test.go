package ocid

import (
	"bytes"
	"cmp"
	"errors"
	"hash/maphash"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"xdao.co/ocid/digest"
)

func newRNG(seed uint64) *rand.ChaCha8 {
	var s [32]byte
	s[0] = byte(seed)
	s[1] = byte(seed >> 8)
	return rand.NewChaCha8(s)
}

func TestV0_GoldenSizeOne(t *testing.T) {
	id, err := V0FromSize(1, [HashLen]byte{})
	if err != nil {
		t.Fatalf("V0FromSize failed: %v", err)
	}
	want := strings.Repeat("-", 9) + "F" + strings.Repeat("-", 42)
	if got := id.String(); got != want {
		t.Fatalf("text mismatch:\n got %s\nwant %s", got, want)
	}
	if len(want) != V0TextLen {
		t.Fatalf("golden vector has wrong length %d", len(want))
	}
}

func TestV0_GoldenAllOnes(t *testing.T) {
	var size [V0SizeLen]byte
	var hash [HashLen]byte
	for i := range size {
		size[i] = 0xFF
	}
	for i := range hash {
		hash[i] = 0xFF
	}
	id := NewV0(size, hash)
	want := "-E" + strings.Repeat("z", 50)
	if got := id.String(); got != want {
		t.Fatalf("text mismatch:\n got %s\nwant %s", got, want)
	}
	if got := id.SizeUint64(); got != MaxV0Size {
		t.Fatalf("SizeUint64: got %d want %d", got, uint64(MaxV0Size))
	}
}

func TestV0_EmptyIsZeroValue(t *testing.T) {
	var id V0
	if !id.IsEmpty() {
		t.Fatalf("zero value should be empty")
	}
	if got := id.String(); got != strings.Repeat("-", V0TextLen) {
		t.Fatalf("zero value text: %s", got)
	}
	var hash [HashLen]byte
	hash[0] = 1
	if !NewV0([V0SizeLen]byte{}, hash).IsEmpty() {
		t.Fatalf("a non-zero hash must not affect emptiness")
	}
	for i := 0; i < V0SizeLen; i++ {
		var size [V0SizeLen]byte
		size[i] = 1
		if NewV0(size, [HashLen]byte{}).IsEmpty() {
			t.Fatalf("size byte %d set but IsEmpty returned true", i)
		}
	}
}

func TestV0_OrderEquivalence(t *testing.T) {
	rng := newRNG(1)
	ids := make([]V0, 0, 512)
	for i := 0; i < 256; i++ {
		id, err := ReadRandomV0(rng)
		if err != nil {
			t.Fatalf("ReadRandomV0 failed: %v", err)
		}
		ids = append(ids, id)
	}
	// Pairs sharing a size exercise the hash part of the ordering.
	for i := 0; i < 256; i++ {
		var hash [HashLen]byte
		_, _ = rng.Read(hash[:])
		ids = append(ids, NewV0(ids[i%8].Size(), hash))
	}

	fieldCompare := func(a, b V0) int {
		if c := cmp.Compare(a.SizeUint64(), b.SizeUint64()); c != 0 {
			return c
		}
		ah, bh := a.Hash(), b.Hash()
		return bytes.Compare(ah[:], bh[:])
	}

	for i := range ids {
		for j := range ids {
			a, b := ids[i], ids[j]
			raw := a.Compare(b)
			text := strings.Compare(a.String(), b.String())
			field := fieldCompare(a, b)
			ab, bb := a.Bytes(), b.Bytes()
			full := bytes.Compare(ab[:], bb[:])
			if raw != text || raw != field || raw != full {
				t.Fatalf("ordering disagrees for %s vs %s: raw=%d text=%d field=%d full=%d", a, b, raw, text, field, full)
			}
		}
	}

	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, V0.Compare)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].SizeUint64() > sorted[i].SizeUint64() {
			t.Fatalf("sorted IDs are not in size order at %d", i)
		}
	}
}

func TestV0_RejectsNonZeroVersion(t *testing.T) {
	base := RandomV0().Bytes()
	for v := 1; v < 256; v++ {
		b := base
		b[0] = byte(v)
		if _, err := V0FromBytes(b); !errors.Is(err, ErrInvalidVersion) {
			t.Fatalf("version %d: got err=%v want ErrInvalidVersion", v, err)
		}
		if _, _, err := CutV0(b[:]); !errors.Is(err, ErrInvalidVersion) {
			t.Fatalf("CutV0 version %d: got err=%v", v, err)
		}
		var id V0
		if err := id.UnmarshalBinary(b[:]); !errors.Is(err, ErrInvalidVersion) {
			t.Fatalf("UnmarshalBinary version %d: got err=%v", v, err)
		}
		if _, err := V0FromRaw(RawV0FromBytes(b)); !errors.Is(err, ErrInvalidVersion) {
			t.Fatalf("V0FromRaw version %d: got err=%v", v, err)
		}
	}
}

func TestV0_SizeRoundTrip(t *testing.T) {
	rng := rand.New(newRNG(2))
	sizes := []uint64{0, 1, 255, 256, 1 << 32, MaxV0Size - 1, MaxV0Size}
	for i := 0; i < 1024; i++ {
		sizes = append(sizes, rng.Uint64()>>16)
	}
	for _, n := range sizes {
		var hash [HashLen]byte
		for i := range hash {
			hash[i] = 0xFF
		}
		id, err := V0FromSize(n, hash)
		if err != nil {
			t.Fatalf("V0FromSize(%d) failed: %v", n, err)
		}
		if got := id.SizeUint64(); got != n {
			t.Fatalf("SizeUint64: got %d want %d", got, n)
		}
		if got := FromV0(id).Size(); got != n {
			t.Fatalf("envelope Size: got %d want %d", got, n)
		}
	}
}

func TestV0_SizeOverflow(t *testing.T) {
	for _, n := range []uint64{MaxV0Size + 1, 1 << 60, ^uint64(0)} {
		if _, err := V0FromSize(n, [HashLen]byte{}); !errors.Is(err, ErrSizeOverflow) {
			t.Fatalf("V0FromSize(%d): got err=%v want ErrSizeOverflow", n, err)
		}
	}
}

func TestV0_BytesRoundTrip(t *testing.T) {
	rng := newRNG(3)
	for i := 0; i < 256; i++ {
		id, err := ReadRandomV0(rng)
		if err != nil {
			t.Fatalf("ReadRandomV0 failed: %v", err)
		}
		got, err := V0FromBytes(id.Bytes())
		if err != nil {
			t.Fatalf("V0FromBytes failed: %v", err)
		}
		if got != id || !got.Equal(id) {
			t.Fatalf("round trip mismatch: %#v vs %#v", got, id)
		}

		bin, err := id.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary failed: %v", err)
		}
		var back V0
		if err := back.UnmarshalBinary(bin); err != nil {
			t.Fatalf("UnmarshalBinary failed: %v", err)
		}
		if back != id {
			t.Fatalf("binary round trip mismatch")
		}

		fromRaw, err := V0FromRaw(id.Raw())
		if err != nil || fromRaw != id {
			t.Fatalf("raw round trip mismatch: %v", err)
		}
	}
}

func TestV0_PartsAndBody(t *testing.T) {
	size := [V0SizeLen]byte{0, 0, 0, 1, 2, 3}
	var hash [HashLen]byte
	for i := range hash {
		hash[i] = byte(i)
	}
	id := NewV0(size, hash)
	if id.Version() != 0 {
		t.Fatalf("Version: got %d", id.Version())
	}
	if id.Size() != size || id.Hash() != hash {
		t.Fatalf("parts mismatch")
	}
	if id.SizeUint64() != 0x010203 {
		t.Fatalf("SizeUint64: got %#x", id.SizeUint64())
	}
	body := id.Body()
	if !bytes.Equal(body[:V0SizeLen], size[:]) || !bytes.Equal(body[V0SizeLen:], hash[:]) {
		t.Fatalf("Body layout mismatch: %x", body)
	}

	var filled V0
	filled.SetBody(body)
	if filled != id {
		t.Fatalf("SetBody did not reproduce the ID")
	}

	raw := id.Raw()
	if raw.Version != 0 || raw.Size != size || raw.Hash != hash {
		t.Fatalf("Raw mismatch: %+v", raw)
	}
}

func TestCutV0(t *testing.T) {
	a, b := RandomV0(), RandomV0()
	buf := append(JoinV0(a, b), 0xAA, 0xBB)

	got, rest, err := CutV0(buf)
	if err != nil || got != a {
		t.Fatalf("first CutV0: got %v, %v", got, err)
	}
	got, rest, err = CutV0(rest)
	if err != nil || got != b {
		t.Fatalf("second CutV0: got %v, %v", got, err)
	}
	if !bytes.Equal(rest, []byte{0xAA, 0xBB}) {
		t.Fatalf("tail mismatch: %x", rest)
	}
	if _, _, err := CutV0(rest); !errors.Is(err, ErrBufferTooShort) {
		t.Fatalf("short CutV0: got err=%v want ErrBufferTooShort", err)
	}

	var id V0
	if err := id.UnmarshalBinary(buf[:V0Len+1]); !errors.Is(err, ErrTrailingData) {
		t.Fatalf("UnmarshalBinary with extra byte: got err=%v", err)
	}
	if err := id.UnmarshalBinary(buf[:V0Len-1]); !errors.Is(err, ErrBufferTooShort) {
		t.Fatalf("UnmarshalBinary short: got err=%v", err)
	}
}

func TestSplitJoinV0(t *testing.T) {
	ids := []V0{RandomV0(), RandomV0(), RandomV0()}
	got, err := SplitV0(JoinV0(ids...))
	if err != nil {
		t.Fatalf("SplitV0 failed: %v", err)
	}
	if !slices.Equal(got, ids) {
		t.Fatalf("SplitV0 mismatch")
	}
	if got, err := SplitV0(nil); err != nil || len(got) != 0 {
		t.Fatalf("SplitV0(nil) = %v, %v", got, err)
	}
	if _, err := SplitV0(make([]byte, V0Len+3)); !errors.Is(err, ErrBufferTooShort) {
		t.Fatalf("SplitV0 ragged: got err=%v", err)
	}
}

func TestSumV0(t *testing.T) {
	content := []byte("hello, ocid")
	id, err := SumV0(content, digest.SHA256.Sum)
	if err != nil {
		t.Fatalf("SumV0 failed: %v", err)
	}
	if id.SizeUint64() != uint64(len(content)) {
		t.Fatalf("size: got %d", id.SizeUint64())
	}
	if id.Hash() != digest.SHA256.Sum(content) {
		t.Fatalf("hash mismatch")
	}

	def, err := SumV0(content, nil)
	if err != nil {
		t.Fatalf("SumV0(nil fn) failed: %v", err)
	}
	if def.Hash() != digest.BLAKE3.Sum(content) {
		t.Fatalf("nil fn should use BLAKE3")
	}

	streamed, err := ReadV0(bytes.NewReader(content), digest.BLAKE3.New())
	if err != nil {
		t.Fatalf("ReadV0 failed: %v", err)
	}
	if streamed != def {
		t.Fatalf("ReadV0 %s != SumV0 %s", streamed, def)
	}

	empty, err := SumV0(nil, nil)
	if err != nil || !empty.IsEmpty() {
		t.Fatalf("SumV0(nil) = %v, %v; want empty", empty, err)
	}
}

// scriptedReader fills each Read with the next byte from fills, repeating the
// last one, and counts calls.
type scriptedReader struct {
	fills []byte
	calls int
	err   error
	errAt int
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	r.calls++
	if r.err != nil && r.calls >= r.errAt {
		return 0, r.err
	}
	b := r.fills[min(r.calls-1, len(r.fills)-1)]
	for i := range p {
		p[i] = b
	}
	return len(p), nil
}

func TestReadRandomV0_RefillsSizeOnce(t *testing.T) {
	r := &scriptedReader{fills: []byte{0, 0xAB}}
	id, err := ReadRandomV0(r)
	if err != nil {
		t.Fatalf("ReadRandomV0 failed: %v", err)
	}
	if r.calls != 2 {
		t.Fatalf("expected exactly 2 fills, got %d", r.calls)
	}
	if id.IsEmpty() {
		t.Fatalf("expected non-empty ID after refill")
	}
	if id.Size() != [V0SizeLen]byte{0xAB, 0xAB, 0xAB, 0xAB, 0xAB, 0xAB} {
		t.Fatalf("size not refilled: %x", id.Size())
	}
	if id.Hash() != ([HashLen]byte{}) {
		t.Fatalf("hash must not be refilled")
	}
}

func TestReadRandomV0_DoesNotLoop(t *testing.T) {
	r := &scriptedReader{fills: []byte{0}}
	id, err := ReadRandomV0(r)
	if err != nil {
		t.Fatalf("ReadRandomV0 failed: %v", err)
	}
	if r.calls != 2 {
		t.Fatalf("expected exactly 2 fills, got %d", r.calls)
	}
	if !id.IsEmpty() {
		t.Fatalf("an all-zero source yields an empty ID")
	}
}

func TestReadRandomV0_NoRefillWhenNonEmpty(t *testing.T) {
	r := &scriptedReader{fills: []byte{7}}
	if _, err := ReadRandomV0(r); err != nil {
		t.Fatalf("ReadRandomV0 failed: %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("expected a single fill, got %d", r.calls)
	}
}

func TestReadRandomV0_PropagatesErrors(t *testing.T) {
	boom := errors.New("entropy exhausted")
	for _, errAt := range []int{1, 2} {
		r := &scriptedReader{fills: []byte{0}, err: boom, errAt: errAt}
		_, err := ReadRandomV0(r)
		if !errors.Is(err, ErrRandomSource) || !errors.Is(err, boom) {
			t.Fatalf("errAt=%d: got err=%v", errAt, err)
		}
	}
}

func TestV0_TextForms(t *testing.T) {
	id := RandomV0()
	s := id.String()
	if len(s) != V0TextLen {
		t.Fatalf("text length: got %d", len(s))
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune("-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz", rune(s[i])) {
			t.Fatalf("unexpected character %q", s[i])
		}
	}

	txt, err := id.MarshalText()
	if err != nil || string(txt) != s {
		t.Fatalf("MarshalText = %q, %v", txt, err)
	}
	app, _ := id.AppendText([]byte("id="))
	if string(app) != "id="+s {
		t.Fatalf("AppendText = %q", app)
	}
	var seen string
	id.WithBase64(func(text []byte) { seen = string(text) })
	if seen != s {
		t.Fatalf("WithBase64 = %q", seen)
	}

	one, _ := V0FromSize(1, [HashLen]byte{})
	if gs := one.GoString(); !strings.Contains(gs, "Size:1,") {
		t.Fatalf("GoString = %s", gs)
	}
}

func TestV0_EncodeBase64DoesNotAllocate(t *testing.T) {
	id := RandomV0()
	var buf [V0TextLen]byte
	allocs := testing.AllocsPerRun(100, func() {
		_ = id.EncodeBase64(&buf)
	})
	if allocs != 0 {
		t.Fatalf("EncodeBase64 allocated %v times", allocs)
	}
}

func TestV0_MapKeyAndMapHash(t *testing.T) {
	a := RandomV0()
	b, _ := V0FromBytes(a.Bytes())
	m := map[V0]int{a: 1}
	if m[b] != 1 {
		t.Fatalf("equal IDs must address the same map entry")
	}
	seed := maphash.MakeSeed()
	if a.MapHash(seed) != b.MapHash(seed) {
		t.Fatalf("equal IDs must hash equally")
	}
}
