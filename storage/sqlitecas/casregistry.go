package sqlitecas

import (
	"fmt"

	"github.com/spf13/pflag"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "sqlite",
		Description: "SQLite CAS (single database file)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Flags: func(fs *pflag.FlagSet) casregistry.OpenFunc {
			path := fs.String("sqlite-path", "", "SQLite database file (for --backend=sqlite)")
			return func(alg digest.Algorithm) (storage.CAS, func() error, error) {
				if *path == "" {
					return nil, nil, fmt.Errorf("missing --sqlite-path")
				}
				cas, err := Open(*path, alg)
				if err != nil {
					return nil, nil, err
				}
				return cas, cas.Close, nil
			}
		},
	})
}
