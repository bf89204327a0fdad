// Package config provides configuration structures and loading logic for WhereGoes.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the root configuration structure.
type Config struct {
	Trace  TraceConfig  `mapstructure:"trace"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Runner RunnerConfig `mapstructure:"runner"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// TraceConfig bounds a single trace.
type TraceConfig struct {
	MaxRedirects int    `mapstructure:"max_redirects"`
	HopTimeout   string `mapstructure:"hop_timeout"`
}

// HTTPConfig shapes the outbound HEAD requests.
type HTTPConfig struct {
	UserAgent string            `mapstructure:"user_agent"`
	Proxy     string            `mapstructure:"proxy"`
	Cookie    string            `mapstructure:"cookie"`
	Insecure  bool              `mapstructure:"insecure"`
	Headers   map[string]string `mapstructure:"headers"`
}

// RunnerConfig controls bulk tracing.
type RunnerConfig struct {
	Threads   int `mapstructure:"threads"`
	RateLimit int `mapstructure:"rate_limit"`
}

// ServerConfig defines the API listen address. AllowedOrigins lists extra
// Origin host patterns accepted for WebSocket upgrades.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

const defaultHopTimeout = 10 * time.Second

// HopTimeoutDuration parses the per-hop timeout. "0" disables it; an
// unparseable value falls back to 10s.
func (c TraceConfig) HopTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.HopTimeout)
	if err != nil || d < 0 {
		return defaultHopTimeout
	}
	return d
}

// Header converts the configured headers into an http.Header.
func (c HTTPConfig) Header() http.Header {
	h := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	return h
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps the configured level onto slog; unknown values mean info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.SlogLevel()}))
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Trace.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("trace.max_redirects must be >= 0 (got %d)", c.Trace.MaxRedirects))
	}
	if c.Runner.Threads <= 0 {
		errs = append(errs, fmt.Errorf("runner.threads must be greater than zero (got %d)", c.Runner.Threads))
	}
	if c.Runner.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("runner.rate_limit must be >= 0 (got %d)", c.Runner.RateLimit))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range (got %d)", c.Server.Port))
	}
	return errors.Join(errs...)
}

// Loader reads configuration from bound flags, WHEREGOES_* environment
// variables, a YAML file and defaults, in that order of priority.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a Loader. An empty path searches ./wheregoes.yaml,
// ./config/wheregoes.yaml and /etc/wheregoes/wheregoes.yaml.
func NewLoader(path string) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wheregoes")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/wheregoes")
	}

	v.SetEnvPrefix("WHEREGOES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("trace.max_redirects", 10)
	v.SetDefault("trace.hop_timeout", defaultHopTimeout.String())
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.proxy", "")
	v.SetDefault("http.cookie", "")
	v.SetDefault("http.insecure", false)
	v.SetDefault("http.headers", map[string]string{})
	v.SetDefault("runner.threads", 10)
	v.SetDefault("runner.rate_limit", 0)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	return &Loader{v: v}
}

// Viper exposes the underlying instance so commands can bind flags.
func (l *Loader) Viper() *viper.Viper { return l.v }

// Load reads the config file, if any, and returns the merged settings.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the file in use, or "" when running on defaults.
func (l *Loader) ConfigFile() string { return l.v.ConfigFileUsed() }

// Watch calls onChange with the re-read settings whenever the config file
// is written. It does nothing when no file was loaded.
func (l *Loader) Watch(onChange func(*Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(l.decode())
	})
	l.v.WatchConfig()
}
