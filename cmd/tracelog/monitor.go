package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tracelog/internal/config"
	"github.com/fyrsmithlabs/tracelog/internal/monitor"
)

type monitorFlags struct {
	url      string
	interval time.Duration
}

func newMonitorCmd(g *globalFlags) *cobra.Command {
	f := &monitorFlags{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live dashboard of call statistics",
		Long: `Show a terminal dashboard of a running admin API (see 'tracelog serve').

The dashboard polls /health and /api/v1/stats and charts the call rate,
mean latency and failure ratio, with the busiest methods listed below.
Without --url the address comes from the server section of the config.

Examples:
  tracelog monitor
  tracelog monitor --url http://10.0.0.5:9090 --interval 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := resolveMonitorURL(cmd, g, f)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return monitor.Run(ctx, target, f.interval)
		},
	}
	cmd.Flags().StringVar(&f.url, "url", "", "admin API base URL (defaults to server.host and server.port)")
	cmd.Flags().DurationVarP(&f.interval, "interval", "i", 2*time.Second, "refresh interval")
	return cmd
}

// resolveMonitorURL validates the flags and picks the admin API address.
func resolveMonitorURL(cmd *cobra.Command, g *globalFlags, f *monitorFlags) (string, error) {
	if f.interval <= 0 {
		return "", errors.New("--interval must be positive")
	}
	if cmd.Flags().Changed("url") {
		u, err := url.Parse(f.url)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("invalid --url %q: expected http(s)://host:port", f.url)
		}
		return f.url, nil
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return "", err
	}
	return adminURL(cfg.Server), nil
}

// adminURL is the base URL of the admin API described by cfg.
func adminURL(cfg config.ServerConfig) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 9090
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
