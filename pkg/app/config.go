package app

import (
	"strings"
	"time"

	"github.com/Suhaibinator/SLayer/pkg/metrics"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines the configuration of an Application.
type Config struct {
	// Logger receives framework and error logs. Defaults to a production logger.
	Logger *zap.Logger `mapstructure:"-"`

	// LogLevel is used by LoadConfig callers building a logger with NewLogger.
	LogLevel string `mapstructure:"log_level"`

	// Env names the environment, e.g. "development" or "production".
	Env string `mapstructure:"env"`

	// Proxy trusts X-Forwarded-Host, X-Forwarded-Proto and ProxyIPHeader.
	Proxy bool `mapstructure:"proxy"`
	// ProxyIPHeader is the header holding forwarded client addresses.
	ProxyIPHeader string `mapstructure:"proxy_ip_header"`
	// MaxIPsCount limits the forwarded addresses read from ProxyIPHeader. Zero means unlimited.
	MaxIPsCount int `mapstructure:"max_ips_count"`
	// SubdomainOffset is the number of trailing host labels ignored as the domain.
	SubdomainOffset int `mapstructure:"subdomain_offset"`

	// Silent disables the default error listener's logging.
	Silent bool `mapstructure:"silent"`

	// EnableTraceID assigns a trace ID to every request and adds it to error logs.
	EnableTraceID bool `mapstructure:"enable_trace_id"`

	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig configures the http.Server started by Listen.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig enables Prometheus metrics for the application.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Registerer receives the collectors. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer `mapstructure:"-"`

	metrics.Config `mapstructure:",squash"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:        "info",
		Env:             "development",
		ProxyIPHeader:   "X-Forwarded-For",
		SubdomainOffset: 2,
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   30 * time.Second,
		},
		Metrics: MetricsConfig{
			Config: metrics.DefaultConfig(),
		},
	}
}

// setViperDefaults registers every key so environment variables can override them.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("env", d.Env)
	v.SetDefault("proxy", d.Proxy)
	v.SetDefault("proxy_ip_header", d.ProxyIPHeader)
	v.SetDefault("max_ips_count", d.MaxIPsCount)
	v.SetDefault("subdomain_offset", d.SubdomainOffset)
	v.SetDefault("silent", d.Silent)
	v.SetDefault("enable_trace_id", d.EnableTraceID)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.subsystem", d.Metrics.Subsystem)
	v.SetDefault("metrics.enable_latency", d.Metrics.EnableLatency)
	v.SetDefault("metrics.enable_throughput", d.Metrics.EnableThroughput)
	v.SetDefault("metrics.enable_qps", d.Metrics.EnableQPS)
	v.SetDefault("metrics.enable_errors", d.Metrics.EnableErrors)
	v.SetDefault("metrics.sampling_rate", d.Metrics.SamplingRate)
}

// LoadConfig reads the configuration from a YAML, TOML or JSON file and
// SLAYER_* environment variables (SLAYER_SERVER_ADDR, SLAYER_PROXY, ...).
// An empty path reads only defaults and the environment.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetEnvPrefix("SLAYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "reading config")
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return Config{}, errors.Wrap(err, "unmarshalling config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	var errs []string
	if c.MaxIPsCount < 0 {
		errs = append(errs, "max_ips_count must be non-negative")
	}
	if c.SubdomainOffset < 0 {
		errs = append(errs, "subdomain_offset must be non-negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); c.LogLevel != "" && err != nil {
		errs = append(errs, "log_level "+c.LogLevel+" is not a valid level")
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.read_header_timeout", c.Server.ReadHeaderTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
	} {
		if d.value < 0 {
			errs = append(errs, d.name+" must be non-negative")
		}
	}
	if c.Metrics.SamplingRate < 0 || c.Metrics.SamplingRate > 1 {
		errs = append(errs, "metrics.sampling_rate must be between 0 (unset, sample all) and 1")
	}
	if len(errs) > 0 {
		return errors.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger builds a production zap logger at the named level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing log level %q", level)
		}
		lvl = parsed
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
