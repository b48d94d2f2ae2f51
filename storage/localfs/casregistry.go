package localfs

import (
	"fmt"

	"github.com/spf13/pflag"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Flags: func(fs *pflag.FlagSet) casregistry.OpenFunc {
			dir := fs.String("localfs-dir", "", "LocalFS CAS directory (for --backend=localfs)")
			return func(alg digest.Algorithm) (storage.CAS, func() error, error) {
				if *dir == "" {
					return nil, nil, fmt.Errorf("missing --localfs-dir")
				}
				cas, err := New(*dir, alg)
				return cas, nil, err
			}
		},
	})
}
