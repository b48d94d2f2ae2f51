package ipfs

import (
	"os"

	"github.com/spf13/pflag"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (offline)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Flags: func(fs *pflag.FlagSet) casregistry.OpenFunc {
			bin := fs.String("ipfs-bin", "ipfs", "Path to ipfs binary (for --backend=ipfs)")
			repo := fs.String("ipfs-path", "", "IPFS_PATH for the local repo (for --backend=ipfs)")
			return func(alg digest.Algorithm) (storage.CAS, func() error, error) {
				var env []string
				if *repo != "" {
					env = append(os.Environ(), "IPFS_PATH="+*repo)
				}
				return New(Options{Bin: *bin, Env: env}, alg), nil, nil
			}
		},
	})
}
