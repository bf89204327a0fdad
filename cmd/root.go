package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/selimozcann/WhereGoes/internal/config"
	"github.com/selimozcann/WhereGoes/internal/httpclient"
	"github.com/selimozcann/WhereGoes/internal/trace"
)

const version = "0.1.0"

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "wheregoes",
	Short:         "Follow a URL's redirect chain hop by hop",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./wheregoes.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(newTraceCmd(), newServeCmd())
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[-] Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then lets flags that
// were set on cmd override them.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(configFile)
	v := loader.Viper()
	for key, flag := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, nil, fmt.Errorf("bind --%s: %w", flag, err)
			}
		}
	}
	if logLevel != "" {
		v.Set("log.level", logLevel)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return loader, cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return config.NewLogger(cfg.Log, w)
}

// buildTracer wires the HTTP client and tracer from cfg.
func buildTracer(cfg *config.Config, extra http.Header, log *slog.Logger, rec trace.Recorder) (*trace.Tracer, error) {
	proxy, err := httpclient.ParseProxy(cfg.HTTP.Proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	headers := cfg.HTTP.Header()
	for k, vs := range extra {
		headers[k] = vs
	}
	hopTimeout := cfg.Trace.HopTimeoutDuration()
	client := httpclient.New(httpclient.Config{
		Timeout:   hopTimeout,
		Proxy:     proxy,
		Headers:   headers,
		Cookie:    cfg.HTTP.Cookie,
		UserAgent: cfg.HTTP.UserAgent,
		Insecure:  cfg.HTTP.Insecure,
	})
	opts := []trace.Option{
		trace.WithMaxRedirects(cfg.Trace.MaxRedirects),
		trace.WithHopTimeout(hopTimeout),
		trace.WithLogger(log),
	}
	if rec != nil {
		opts = append(opts, trace.WithRecorder(rec))
	}
	return trace.New(client, opts...), nil
}
