package memcas

import (
	"github.com/spf13/pflag"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "mem",
		Description: "In-memory CAS (non-persistent)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Flags: func(*pflag.FlagSet) casregistry.OpenFunc {
			return func(alg digest.Algorithm) (storage.CAS, func() error, error) {
				return New(alg), nil, nil
			}
		},
	})
}
