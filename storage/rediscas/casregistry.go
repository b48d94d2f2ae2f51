package rediscas

import (
	"github.com/spf13/pflag"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "redis",
		Description: "Redis CAS (objects as string keys, IDs in a sorted set)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Flags: func(fs *pflag.FlagSet) casregistry.OpenFunc {
			url := fs.String("redis-url", DefaultURL, "Redis URL (for --backend=redis)")
			prefix := fs.String("redis-prefix", DefaultPrefix, "Key prefix (for --backend=redis)")
			timeout := fs.Duration("redis-timeout", defaultTimeout, "Per-request timeout (for --backend=redis)")
			return func(alg digest.Algorithm) (storage.CAS, func() error, error) {
				cas, err := New(Options{URL: *url, Prefix: *prefix, Timeout: *timeout}, alg)
				if err != nil {
					return nil, nil, err
				}
				return cas, cas.Close, nil
			}
		},
	})
}
