package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"xdao.co/ocid/digest"
	"xdao.co/ocid/internal/config"
	"xdao.co/ocid/storage"
	"xdao.co/ocid/storage/casconfig"
	"xdao.co/ocid/storage/casmetrics"
	"xdao.co/ocid/storage/casregistry"
	"xdao.co/ocid/storage/grpccas"

	_ "xdao.co/ocid/storage/ipfs"
	_ "xdao.co/ocid/storage/localfs"
	_ "xdao.co/ocid/storage/memcas"
	_ "xdao.co/ocid/storage/rediscas"
	_ "xdao.co/ocid/storage/sqlitecas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	fs := pflag.NewFlagSet("ocid-casd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	cfg.bindFlags(fs)
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	logger, err := config.NewLogger(errOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	d, err := newDaemon(cfg, logger)
	if err != nil {
		logger.Error("opening backend failed", "error", err)
		return 2
	}
	defer d.close()

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Error("listen failed", "address", cfg.Listen, "error", err)
		return 1
	}

	if err := d.serve(ctx, lis); err != nil {
		logger.Error("serve failed", "error", err)
		return 1
	}
	return 0
}

type daemon struct {
	cfg      Config
	logger   *slog.Logger
	cas      storage.CAS
	alg      digest.Algorithm
	closeCAS func() error
	registry *prometheus.Registry
}

// newDaemon opens the configured backend and instruments it.
func newDaemon(cfg Config, logger *slog.Logger) (*daemon, error) {
	var (
		cas     storage.CAS
		closeFn func() error
		alg     digest.Algorithm
		label   string
		err     error
	)
	if cfg.CASConfig != "" {
		cc, lerr := casconfig.LoadFile(cfg.CASConfig)
		if lerr != nil {
			return nil, lerr
		}
		alg, _ = cc.Algorithm()
		cas, closeFn, err = cc.Open(casregistry.UsageDaemon, "")
		label = "config"
	} else {
		alg, err = digest.Lookup(cfg.Digest)
		if err != nil {
			return nil, err
		}
		cas, closeFn, err = casregistry.Open(cfg.Backend, casregistry.UsageDaemon, alg)
		label = cfg.Backend
	}
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := casmetrics.New("ocid")
	if err := m.Register(reg); err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, err
	}

	logger.Info("backend opened", "backend", label, "digest", alg.Name)
	return &daemon{
		cfg:      cfg,
		logger:   logger,
		cas:      m.Wrap(label, cas),
		alg:      alg,
		closeCAS: closeFn,
		registry: reg,
	}, nil
}

func (d *daemon) close() {
	if d.closeCAS == nil {
		return
	}
	if err := d.closeCAS(); err != nil {
		d.logger.Warn("closing backend failed", "error", err)
	}
}

func (d *daemon) grpcServer() *grpc.Server {
	opts := []grpc.ServerOption{grpc.UnaryInterceptor(grpccas.LoggingInterceptor(d.logger))}
	if d.cfg.MaxMsgBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(d.cfg.MaxMsgBytes), grpc.MaxSendMsgSize(d.cfg.MaxMsgBytes))
	}
	s := grpc.NewServer(opts...)
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: d.cas, Algorithm: d.alg})
	return s
}

func (d *daemon) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	return mux
}

// serve runs the gRPC server on lis (and the metrics endpoint if configured)
// until ctx is done, then stops gracefully.
func (d *daemon) serve(ctx context.Context, lis net.Listener) error {
	s := d.grpcServer()

	var metrics *http.Server
	if d.cfg.MetricsListen != "" {
		metrics = &http.Server{
			Addr:              d.cfg.MetricsListen,
			Handler:           d.metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.logger.Error("metrics server failed", "error", err)
			}
		}()
		d.logger.Info("metrics listening", "address", d.cfg.MetricsListen)
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(lis) }()
	d.logger.Info("ocid-casd listening", "address", lis.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	d.logger.Info("shutting down")
	if metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
	}
	s.GracefulStop()
	return nil
}
