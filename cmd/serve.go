package cmd

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/selimozcann/WhereGoes/internal/config"
	"github.com/selimozcann/WhereGoes/internal/metrics"
	"github.com/selimozcann/WhereGoes/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trace API and the live WebSocket stream",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("host", "127.0.0.1", "Address to bind")
	cmd.Flags().Int("port", 8080, "Port to listen on")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	loader, cfg, err := loadConfig(cmd, map[string]string{
		"server.host": "host",
		"server.port": "port",
	})
	if err != nil {
		return err
	}
	log := newLogger(cfg, cmd.ErrOrStderr())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	tracer, err := buildTracer(cfg, nil, log, m)
	if err != nil {
		return err
	}
	handler := server.NewHandler(tracer, reg, log)
	handler.SetAllowedOrigins(cfg.Server.AllowedOrigins)

	loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			log.Warn("config reload rejected", "err", err)
			return
		}
		t, err := buildTracer(next, nil, log, m)
		if err != nil {
			log.Warn("config reload rejected", "err", err)
			return
		}
		handler.SetTracer(t)
		handler.SetAllowedOrigins(next.Server.AllowedOrigins)
		log.Info("config reloaded", "file", loader.ConfigFile(), "max_redirects", next.Trace.MaxRedirects)
	})

	srv := server.New(cfg.Server.Addr(), handler, log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-errCh
}
