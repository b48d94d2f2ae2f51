package casconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/casregistry"
	_ "xdao.co/ocid/storage/localfs"
	_ "xdao.co/ocid/storage/memcas"
)

func TestParse_YAML(t *testing.T) {
	cfg, err := Parse([]byte(`
digest: sha2-256
write_policy: all
backends:
  - name: localfs
    config: {localfs-dir: /tmp/x}
  - name: mem
    id: scratch
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.WritePolicy != "all" || len(cfg.Backends) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Backends[0].Config["localfs-dir"] != "/tmp/x" || cfg.Backends[1].ID != "scratch" {
		t.Fatalf("unexpected backends: %+v", cfg.Backends)
	}
	alg, err := cfg.Algorithm()
	if err != nil || alg.Name != digest.SHA256.Name {
		t.Fatalf("Algorithm: got %v, %v", alg, err)
	}
}

func TestParse_JSONIsYAML(t *testing.T) {
	cfg, err := Parse([]byte(`{"backends":[{"name":"mem"}]}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	alg, _ := cfg.Algorithm()
	if alg.Name != digest.Default.Name {
		t.Fatalf("default digest: got %s want %s", alg, digest.Default)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"no backends":    `backends: []`,
		"unknown digest": "digest: md5\nbackends: [{name: mem}]",
		"bad policy":     "write_policy: some\nbackends: [{name: mem}]",
		"duplicate id":   "backends: [{name: mem}, {name: mem}]",
		"missing name":   "backends: [{id: x}]",
		"unknown field":  "backend: [{name: mem}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestOpen_WritePolicies(t *testing.T) {
	dir := t.TempDir()
	base := Config{
		Digest: "blake2b-256",
		Backends: []BackendConfig{
			{Name: "mem", ID: "hot"},
			{Name: "localfs", ID: "cold", Config: map[string]string{"localfs-dir": dir}},
		},
	}

	first := base
	cas, closeFn, err := first.Open(casregistry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open first: %v", err)
	}
	defer closeFn()
	if _, ok := cas.(storage.MultiCAS); !ok {
		t.Fatalf("first policy: got %T want storage.MultiCAS", cas)
	}

	all := base
	all.WritePolicy = "all"
	cas, closeFn2, err := all.Open(casregistry.UsageCLI, "cold")
	if err != nil {
		t.Fatalf("Open all: %v", err)
	}
	defer closeFn2()
	rep, ok := cas.(storage.ReplicatingCAS)
	if !ok {
		t.Fatalf("all policy: got %T want storage.ReplicatingCAS", cas)
	}
	if rep.Backends[0].Name != "cold" {
		t.Fatalf("preferred backend not first: %s", rep.Backends[0].Name)
	}
	id, perBackend, err := rep.PutAll([]byte("replicated"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	want, _ := storage.Address([]byte("replicated"), digest.BLAKE2b256)
	if id != want || perBackend["hot"] != want || perBackend["cold"] != want {
		t.Fatalf("PutAll ids: %s %v want %s", id, perBackend, want)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("localfs backend not written: %v", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{Name: "mem"}}}
	if _, _, err := cfg.Open(casregistry.UsageCLI, "nope"); err == nil {
		t.Fatalf("expected error for unknown preferred backend")
	}
	cfg = Config{Backends: []BackendConfig{{Name: "mem", Config: map[string]string{"bogus": "1"}}}}
	_, _, err := cfg.Open(casregistry.UsageCLI, "")
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected unknown option error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cas.yaml")
	if err := os.WriteFile(path, []byte("backends:\n  - name: mem\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := LoadFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
