package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/tracelog/internal/http"
	"github.com/fyrsmithlabs/tracelog/internal/services"
)

type serveFlags struct {
	host  string
	port  int
	watch bool
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API",
		Long: `Run the admin API of a pipeline built from the loaded configuration.

Endpoints:
  GET  /health            health and telemetry status
  GET  /metrics           Prometheus metrics
  GET  /api/v1/stats      per-method call statistics
  GET  /api/v1/settings   active record settings
  POST /api/v1/scrub      scrub secrets from text
  POST /api/v1/render     render a JSON value with redaction
  POST /api/v1/diff       compare two JSON documents

With --watch, edits to the --config file are applied to the running
pipeline without a restart.

Examples:
  tracelog serve
  tracelog --config tracelog.yaml serve --watch
  tracelog serve --host 0.0.0.0 --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "reload settings when the --config file changes")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalFlags, f *serveFlags) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}
	if f.watch && g.configPath == "" {
		return errors.New("--watch requires --config")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt, err := services.Build(ctx, cfg, services.Env{Stdout: cmd.OutOrStdout(), Registerer: reg})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		_ = rt.Close(closeCtx)
	}()

	if f.watch {
		w, err := rt.Watch(ctx, g.configPath)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	srv, err := httpserver.NewServer(httpserver.Deps{
		Registry:      rt,
		Gatherer:      reg,
		MeterProvider: rt.Telemetry().MeterProvider(),
	}, cfg.Server)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	fmt.Fprintf(cmd.ErrOrStderr(), "tracelog admin API listening on http://%s\n", srv.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.Logger().Warn(shutdownCtx, "http shutdown", zap.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
