package grpccas

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to a CAS gRPC daemon, e.g. ocid-casd)",
		Usage:       casregistry.UsageCLI,
		Flags: func(fs *pflag.FlagSet) casregistry.OpenFunc {
			target := fs.String("grpc-target", "", "gRPC target host:port (for --backend=grpc)")
			dialTimeout := fs.Duration("grpc-dial-timeout", 5*time.Second, "Dial timeout (for --backend=grpc)")
			timeout := fs.Duration("grpc-timeout", 0, "Per-RPC timeout (for --backend=grpc)")
			maxMsg := fs.Int("grpc-max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
			return func(alg digest.Algorithm) (storage.CAS, func() error, error) {
				t := strings.TrimSpace(*target)
				if t == "" {
					return nil, nil, fmt.Errorf("missing --grpc-target")
				}
				client, err := Dial(t, DialOptions{Timeout: *dialTimeout, MaxMsgBytes: *maxMsg, Digest: alg})
				if err != nil {
					return nil, nil, err
				}
				client.Timeout = *timeout
				if err := client.CheckDigest(); err != nil {
					_ = client.Close()
					return nil, nil, err
				}
				return client, client.Close, nil
			}
		},
	})
}
