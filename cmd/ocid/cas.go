package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/bundle"
	"xdao.co/ocid/storage/casconfig"
	"xdao.co/ocid/storage/casregistry"

	_ "xdao.co/ocid/storage/grpccas"
	_ "xdao.co/ocid/storage/ipfs"
	_ "xdao.co/ocid/storage/localfs"
	_ "xdao.co/ocid/storage/memcas"
	_ "xdao.co/ocid/storage/rediscas"
	_ "xdao.co/ocid/storage/sqlitecas"
)

type commonFlags struct {
	backend      string
	casConfig    string
	digest       string
	listBackends bool
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name")
	fs.StringVar(&c.casConfig, "cas-config", "", "YAML backend config file (overrides --backend and --digest)")
	fs.StringVar(&c.digest, "digest", digest.Default.Name, "Addressing digest")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

// openCAS opens the selected store and reports the digest it addresses with.
func (c *commonFlags) openCAS() (storage.CAS, digest.Algorithm, func() error, error) {
	if c.casConfig != "" {
		cfg, err := casconfig.LoadFile(c.casConfig)
		if err != nil {
			return nil, digest.Algorithm{}, nil, err
		}
		alg, _ := cfg.Algorithm()
		cas, closeFn, err := cfg.Open(casregistry.UsageCLI, "")
		return cas, alg, closeFn, err
	}
	alg, err := digest.Lookup(c.digest)
	if err != nil {
		return nil, digest.Algorithm{}, nil, err
	}
	cas, closeFn, err := casregistry.Open(c.backend, casregistry.UsageCLI, alg)
	return cas, alg, closeFn, err
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

// parseFlags parses args into fs and handles --list-backends. It returns
// -1 when the caller should continue, else the exit code.
func parseFlags(fs *pflag.FlagSet, common *commonFlags, args []string, out io.Writer) int {
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	return -1
}

// parseID accepts the hex form of a raw ID, or its text form when cas can
// enumerate its contents.
func parseID(s string, cas storage.CAS) (ocid.V0, error) {
	switch len(s) {
	case 2 * ocid.V0Len:
		raw, err := hex.DecodeString(s)
		if err != nil {
			return ocid.V0{}, fmt.Errorf("%w: %v", storage.ErrInvalidID, err)
		}
		var id ocid.V0
		if err := id.UnmarshalBinary(raw); err != nil {
			return ocid.V0{}, fmt.Errorf("%w: %v", storage.ErrInvalidID, err)
		}
		return id, nil
	case ocid.V0TextLen:
		l, ok := cas.(storage.Lister)
		if !ok {
			return ocid.V0{}, errTextNeedsLister
		}
		ids, err := l.List()
		if err != nil {
			return ocid.V0{}, err
		}
		for _, id := range ids {
			if id.String() == s {
				return id, nil
			}
		}
		return ocid.V0{}, storage.ErrNotFound
	default:
		return ocid.V0{}, fmt.Errorf("%w: %q", storage.ErrInvalidID, s)
	}
}

func withCAS(common *commonFlags, errOut io.Writer, fn func(cas storage.CAS, alg digest.Algorithm) int) int {
	cas, alg, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(cas, alg)
}

func cmdPut(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("put", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	asHex := fs.Bool("hex", false, "Print raw IDs as hex instead of text")
	if code := parseFlags(fs, &common, args, out); code >= 0 {
		return code
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: ocid put [common flags] <file>|- ...")
		return 2
	}

	return withCAS(&common, errOut, func(cas storage.CAS, _ digest.Algorithm) int {
		status := 0
		for _, p := range fs.Args() {
			f, err := openInput(p, stdin)
			if err != nil {
				fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
				status = 1
				continue
			}
			b, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
				status = 1
				continue
			}
			id, err := cas.Put(b)
			if err != nil {
				fmt.Fprintf(errOut, "%s: %v\n", p, err)
				status = 1
				continue
			}
			text := id.String()
			if *asHex {
				raw := id.Bytes()
				text = hex.EncodeToString(raw[:])
			}
			_, _ = fmt.Fprintf(out, "%s  %s\n", text, p)
		}
		return status
	})
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	outPath := fs.String("out", "", "Output file (optional; default stdout)")
	if code := parseFlags(fs, &common, args, out); code >= 0 {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: ocid get [common flags] <id> [--out <file>]")
		return 2
	}

	return withCAS(&common, errOut, func(cas storage.CAS, _ digest.Algorithm) int {
		id, err := parseID(fs.Arg(0), cas)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		b, err := cas.Get(id)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if *outPath == "" {
			_, _ = out.Write(b)
			return 0
		}
		if err := os.WriteFile(*outPath, b, 0o600); err != nil {
			fmt.Fprintf(errOut, "write %s: %v\n", *outPath, err)
			return 1
		}
		return 0
	})
}

func cmdHas(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("has", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if code := parseFlags(fs, &common, args, out); code >= 0 {
		return code
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: ocid has [common flags] <id> ...")
		return 2
	}

	return withCAS(&common, errOut, func(cas storage.CAS, _ digest.Algorithm) int {
		status := 0
		for _, s := range fs.Args() {
			id, err := parseID(s, cas)
			if err != nil && !storage.IsNotFound(err) {
				fmt.Fprintln(errOut, err)
				return 1
			}
			present := err == nil && cas.Has(id)
			if !present {
				status = 1
			}
			_, _ = fmt.Fprintf(out, "%t  %s\n", present, s)
		}
		return status
	})
}

func cmdLs(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("ls", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	asHex := fs.Bool("hex", false, "Also print the hex form of each ID")
	if code := parseFlags(fs, &common, args, out); code >= 0 {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: ocid ls [common flags] [--hex]")
		return 2
	}

	return withCAS(&common, errOut, func(cas storage.CAS, _ digest.Algorithm) int {
		l, ok := cas.(storage.Lister)
		if !ok {
			fmt.Fprintf(errOut, "backend %s cannot list its contents\n", common.backend)
			return 1
		}
		ids, err := l.List()
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		w := bufio.NewWriter(out)
		defer w.Flush()
		for _, id := range ids {
			if *asHex {
				_, _ = fmt.Fprintf(w, "%s  %d  %x\n", id, id.SizeUint64(), id.Bytes())
				continue
			}
			_, _ = fmt.Fprintf(w, "%s  %d\n", id, id.SizeUint64())
		}
		return 0
	})
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	outPath := fs.String("out", "", "Bundle file to write")
	withIndex := fs.Bool("index", true, "Include index.cbor")
	compress := fs.Bool("zstd", false, "Compress the bundle with zstd")
	if code := parseFlags(fs, &common, args, out); code >= 0 {
		return code
	}
	if *outPath == "" {
		fmt.Fprintln(errOut, "usage: ocid export [common flags] --out <file> [--index] [--zstd] [<id> ...]")
		return 2
	}

	return withCAS(&common, errOut, func(cas storage.CAS, alg digest.Algorithm) int {
		var ids []ocid.V0
		if fs.NArg() == 0 {
			l, ok := cas.(storage.Lister)
			if !ok {
				fmt.Fprintln(errOut, "no IDs given and the backend cannot list its contents")
				return 2
			}
			all, err := l.List()
			if err != nil {
				fmt.Fprintln(errOut, err)
				return 1
			}
			ids = all
		}
		for _, s := range fs.Args() {
			id, err := parseID(s, cas)
			if err != nil {
				fmt.Fprintf(errOut, "%s: %v\n", s, err)
				return 1
			}
			ids = append(ids, id)
		}

		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		w := bufio.NewWriter(f)
		opts := bundle.ExportOptions{IncludeIndex: *withIndex, Compress: *compress, Digest: alg}
		if err := bundle.Export(w, cas, ids, opts); err != nil {
			_ = f.Close()
			_ = os.Remove(*outPath)
			fmt.Fprintln(errOut, err)
			return 1
		}
		if err := w.Flush(); err != nil {
			_ = f.Close()
			fmt.Fprintln(errOut, err)
			return 1
		}
		if err := f.Close(); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = fmt.Fprintf(errOut, "exported %d objects to %s\n", len(ids), *outPath)
		return 0
	})
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	ignoreUnknown := fs.Bool("ignore-unknown", false, "Skip unknown bundle entries instead of failing")
	if code := parseFlags(fs, &common, args, out); code >= 0 {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: ocid import [common flags] [--ignore-unknown] <file>")
		return 2
	}

	return withCAS(&common, errOut, func(cas storage.CAS, alg digest.Algorithm) int {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		ids, err := bundle.ImportWithOptions(f, cas, bundle.ImportOptions{IgnoreUnknown: *ignoreUnknown, Digest: alg})
		for _, id := range ids {
			_, _ = fmt.Fprintln(out, id)
		}
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		return 0
	})
}
