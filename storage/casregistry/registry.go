package casregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/pflag"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

// OpenFunc opens a CAS addressing content with alg. It returns an optional
// close function.
type OpenFunc func(alg digest.Algorithm) (storage.CAS, func() error, error)

// Backend is a build-time plugin that can open a storage.CAS implementation.
//
// Backends typically register themselves in init():
//
//	casregistry.MustRegister(casregistry.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Flags adds backend-specific flags to fs and returns an OpenFunc that
	// reads the parsed values. Flag variables must be local to each call so
	// that several flag sets can be bound independently.
	Flags func(fs *pflag.FlagSet) OpenFunc
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
	bound    = map[string]OpenFunc{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Flags == nil {
		return fmt.Errorf("casregistry: backend %q missing Flags", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// RegisterFlags registers flags for all backends matching usage and
// remembers them for Open.
//
// This enables single-pass flag parsing (unknown flags are rejected).
func RegisterFlags(fs *pflag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		open := b.Flags(fs)
		mu.Lock()
		bound[b.Name] = open
		mu.Unlock()
	}
}

// Open opens the named backend if it exists and matches usage, using the
// values parsed into flags registered by RegisterFlags (or defaults if
// RegisterFlags was not called).
func Open(name string, usage Usage, alg digest.Algorithm) (storage.CAS, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	mu.RLock()
	open, ok := bound[name]
	mu.RUnlock()
	if !ok {
		open = b.Flags(pflag.NewFlagSet(name, pflag.ContinueOnError))
	}
	return open(alg)
}

// OpenWithConfig opens the named backend with options taken from cfg. Keys
// are the backend's flag names without leading dashes.
func OpenWithConfig(name string, usage Usage, cfg map[string]string, alg digest.Algorithm) (storage.CAS, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	open := b.Flags(fs)

	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if fs.Lookup(k) == nil {
			return nil, nil, fmt.Errorf("casregistry: backend %q has no option %q", name, k)
		}
		if err := fs.Set(k, cfg[k]); err != nil {
			return nil, nil, fmt.Errorf("casregistry: backend %q option %q: %w", name, k, err)
		}
	}
	return open(alg)
}

func lookup(name string, usage Usage) (Backend, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return Backend{}, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return Backend{}, fmt.Errorf("backend %q not supported in this binary", name)
	}
	return b, nil
}
