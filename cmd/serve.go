package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vidgate/internal/metrics"
	"vidgate/internal/proxy"
	"vidgate/internal/server"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the /resolve and /proxy HTTP server",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Listen address (overrides config)")
}

func serveRun(cmd *cobra.Command, args []string) error {
	if flagListen != "" {
		cfg.Listen = flagListen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry()
	client := newClient()
	m := metrics.New()
	c := newCache(reg)
	m.WatchCache(c.Stats)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go c.Run(sweepCtx)

	srv := server.New(server.Config{
		Resolver: newResolver(client, reg, m),
		Proxy: proxy.New(proxy.Config{
			Client:       client,
			Cache:        c,
			Metrics:      m,
			Logger:       logger,
			AllowPrivate: cfg.AllowPrivate,
			PublicBase:   cfg.PublicBase,
			UserAgent:    cfg.UserAgent,
		}),
		Cache:   c,
		Metrics: m,
		Logger:  logger,
	})

	if cfg.AllowPrivate {
		logger.Warn("allow_private is set: the SSRF gate is disabled")
	}
	logger.WithFields(logrus.Fields{
		"listen":      cfg.Listen,
		"public_base": cfg.PublicBase,
		"providers":   len(reg.Profiles()),
	}).Info("starting server")

	if err := srv.Run(ctx, cfg.Listen); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
