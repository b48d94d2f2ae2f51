package main

import (
	"github.com/spf13/pflag"

	"xdao.co/ocid/internal/config"
)

// Config is the daemon configuration. Environment variables set defaults;
// flags override them.
type Config struct {
	Listen        string `env:"OCID_CASD_LISTEN" envDefault:"127.0.0.1:7777"`
	Backend       string `env:"OCID_CASD_BACKEND" envDefault:"localfs"`
	CASConfig     string `env:"OCID_CASD_CAS_CONFIG"`
	Digest        string `env:"OCID_CASD_DIGEST" envDefault:"blake3"`
	MetricsListen string `env:"OCID_CASD_METRICS_LISTEN"`
	MaxMsgBytes   int    `env:"OCID_CASD_MAX_MSG_BYTES"`
	LogLevel      string `env:"OCID_CASD_LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"OCID_CASD_LOG_FORMAT" envDefault:"json"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// bindFlags registers flags whose defaults are the current cfg values.
func (cfg *Config) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "gRPC listen address")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "CAS backend name")
	fs.StringVar(&cfg.CASConfig, "cas-config", cfg.CASConfig, "YAML backend config file (overrides --backend)")
	fs.StringVar(&cfg.Digest, "digest", cfg.Digest, "Addressing digest for --backend (ignored with --cas-config)")
	fs.StringVar(&cfg.MetricsListen, "metrics-listen", cfg.MetricsListen, "HTTP address for /metrics (empty disables)")
	fs.IntVar(&cfg.MaxMsgBytes, "max-msg-bytes", cfg.MaxMsgBytes, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json|text")
}
