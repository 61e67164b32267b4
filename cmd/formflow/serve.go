package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow/internal/server"
	"github.com/goliatone/go-formflow/pkg/branding"
	"github.com/goliatone/go-formflow/pkg/options"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the form preview service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			opts := []server.Option{
				server.WithLogger(a.logger.WithField("component", "server")),
				server.WithSession(a.session()),
				server.WithBranding(a.branding()),
			}

			fetcherOpts := []options.Option{options.WithAllowedHosts(a.cfg.Server.OptionHosts...)}
			if a.cfg.Server.Metrics {
				reg := prometheus.NewRegistry()
				metrics, err := options.NewPrometheusMetrics(reg)
				if err != nil {
					return err
				}
				fetcherOpts = append(fetcherOpts, options.WithMetrics(metrics))
				opts = append(opts, server.WithRegistry(reg))
			}
			if a.cfg.Backend.BaseURL != "" {
				opts = append(opts, server.WithFetcher(a.fetcher(fetcherOpts...)))
			}

			srv, err := server.New(opts...)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func (a *app) branding() *branding.Resolver {
	opts := []branding.Option{
		branding.WithLogger(a.logger.WithField("component", "branding")),
		branding.WithTimeout(a.cfg.Backend.Timeout),
		branding.WithFallbackTenant(a.cfg.Tenant.Code),
	}
	if a.cfg.Backend.BaseURL != "" {
		opts = append(opts, branding.WithBaseURL(a.cfg.Backend.BaseURL))
	}
	return branding.New(opts...)
}
