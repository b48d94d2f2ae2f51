package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"xdao.co/ocid"
	"xdao.co/ocid/cidutil"
	"xdao.co/ocid/digest"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	return runWithStdin(args, os.Stdin, out, errOut)
}

func runWithStdin(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "sum":
		return cmdSum(args[1:], stdin, out, errOut)
	case "rand":
		return cmdRand(args[1:], out, errOut)
	case "inspect":
		return cmdInspect(args[1:], out, errOut)
	case "cid":
		return cmdCID(args[1:], stdin, out, errOut)
	case "put":
		return cmdPut(args[1:], stdin, out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "has":
		return cmdHas(args[1:], out, errOut)
	case "ls":
		return cmdLs(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "ocid: content IDs and content-addressed storage")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  ocid sum [--digest <alg>] [--wide] [--hex] [<file>|- ...]")
	fmt.Fprintln(w, "  ocid rand [--wide] [-n <count>]")
	fmt.Fprintln(w, "  ocid inspect [--digest <alg>] <hex id>")
	fmt.Fprintln(w, "  ocid cid [--digest <alg>] [<file>|- ...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Storage (common flags: --backend <name> | --cas-config <file>, --digest <alg>):")
	fmt.Fprintln(w, "  ocid put [common flags] <file> ...")
	fmt.Fprintln(w, "  ocid get [common flags] <id> [--out <file>]")
	fmt.Fprintln(w, "  ocid has [common flags] <id> ...")
	fmt.Fprintln(w, "  ocid ls [common flags] [--hex]")
	fmt.Fprintln(w, "  ocid export [common flags] --out <file> [--index] [--zstd] [<id> ...]")
	fmt.Fprintln(w, "  ocid import [common flags] [--ignore-unknown] <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - <id> is the 78-char hex form, or the text form when the backend can list")
	fmt.Fprintln(w, "  - --list-backends prints the linked storage backends")
	fmt.Fprintf(w, "  - digests: %v (default %s)\n", digest.Names(), digest.Default)
}

func lookupDigest(name string, errOut io.Writer) (digest.Algorithm, bool) {
	alg, err := digest.Lookup(name)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return digest.Algorithm{}, false
	}
	return alg, true
}

// openInput opens p for reading; "-" is stdin.
func openInput(p string, stdin io.Reader) (io.ReadCloser, error) {
	if p == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(p)
}

func cmdSum(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("sum", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	digestName := fs.String("digest", digest.Default.Name, "Digest algorithm")
	wide := fs.Bool("wide", false, "Print the 42-byte wide layout")
	asHex := fs.Bool("hex", false, "Print raw bytes as hex instead of text")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	alg, ok := lookupDigest(*digestName, errOut)
	if !ok {
		return 2
	}
	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{"-"}
	}

	status := 0
	for _, p := range paths {
		id, err := sumFile(p, stdin, alg, *wide)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", p, err)
			status = 1
			continue
		}
		text := id.String()
		if *asHex {
			text = hex.EncodeToString(id.Bytes())
		}
		_, _ = fmt.Fprintf(out, "%s  %s\n", text, p)
	}
	return status
}

func sumFile(p string, stdin io.Reader, alg digest.Algorithm, wide bool) (ocid.ID, error) {
	f, err := openInput(p, stdin)
	if err != nil {
		return ocid.ID{}, err
	}
	defer f.Close()
	if wide {
		id, err := ocid.ReadWide(f, alg.New())
		return ocid.FromWide(id), err
	}
	id, err := ocid.ReadV0(f, alg.New())
	return ocid.FromV0(id), err
}

func cmdRand(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("rand", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	wide := fs.Bool("wide", false, "Generate the 42-byte wide layout")
	n := fs.IntP("count", "n", 1, "Number of IDs")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *n < 0 || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: ocid rand [--wide] [-n <count>]")
		return 2
	}
	for range *n {
		if *wide {
			_, _ = fmt.Fprintln(out, ocid.RandomWide())
		} else {
			_, _ = fmt.Fprintln(out, ocid.RandomV0())
		}
	}
	return 0
}

func cmdInspect(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	digestName := fs.String("digest", "", "Also print the CID under this digest (v0 only)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: ocid inspect [--digest <alg>] <hex id>")
		return 2
	}
	raw, err := hex.DecodeString(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid hex: %v\n", err)
		return 1
	}
	id, err := ocid.ParseID(raw)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	h := id.Hash()
	_, _ = fmt.Fprintf(out, "layout:  %s\n", id.Layout())
	_, _ = fmt.Fprintf(out, "size:    %d\n", id.Size())
	_, _ = fmt.Fprintf(out, "empty:   %t\n", id.IsEmpty())
	_, _ = fmt.Fprintf(out, "hash:    %x\n", h[:])
	_, _ = fmt.Fprintf(out, "text:    %s\n", id)
	_, _ = fmt.Fprintf(out, "go:      %#v\n", id)

	if *digestName != "" {
		alg, ok := lookupDigest(*digestName, errOut)
		if !ok {
			return 2
		}
		v0, ok := id.V0()
		if !ok {
			fmt.Fprintln(errOut, "CIDs are only defined for the v0 layout")
			return 1
		}
		c, err := cidutil.FromV0(v0, alg)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = fmt.Fprintf(out, "cid:     %s\n", c)
	}
	return 0
}

func cmdCID(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("cid", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	digestName := fs.String("digest", digest.Default.Name, "Digest algorithm")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	alg, ok := lookupDigest(*digestName, errOut)
	if !ok {
		return 2
	}
	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{"-"}
	}

	status := 0
	for _, p := range paths {
		id, err := sumFile(p, stdin, alg, false)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", filepath.Base(p), err)
			status = 1
			continue
		}
		v0, _ := id.V0()
		c, err := cidutil.FromV0(v0, alg)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", filepath.Base(p), err)
			status = 1
			continue
		}
		_, _ = fmt.Fprintf(out, "%s  %s\n", c, p)
	}
	return status
}

var errTextNeedsLister = errors.New("text IDs need a backend that can list; pass the hex form")
