// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vidgate/internal/cache"
	"vidgate/internal/config"
	"vidgate/internal/httputil"
	"vidgate/internal/logging"
	"vidgate/internal/metrics"
	"vidgate/internal/provider"
	"vidgate/internal/resolve"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig   string
	flagLogLevel string
	flagJSON     bool
	flagDebug    bool
)

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

// logger is built from cfg once flags are merged.
var logger *logrus.Logger

var rootCmd = &cobra.Command{
	Use:   "vidgate",
	Short: "Resolve embed pages to media URLs and proxy them",
	Long: `Vidgate turns video embed pages into direct, proxy-ready media URLs
and serves a streaming proxy that rewrites HLS playlists, forwards Range
requests and caches small bodies.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/vidgate/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: trace | debug | info | warn | error")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "JSON output (and JSON logs)")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFrom(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagJSON {
		cfg.LogJSON = true
	}
	if flagDebug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger = logging.New(cfg.LogLevel, cfg.LogJSON, os.Stderr)
	logger.WithField("version", Version).Debug("configuration loaded")
	return nil
}

// registry returns the built-in provider table with the configured
// providers merged over it.
func registry() *provider.Registry {
	reg := provider.Default()
	reg.Merge(cfg.Providers...)
	return reg
}

func newResolver(client *http.Client, reg *provider.Registry, m *metrics.Metrics) *resolve.Resolver {
	rc := cfg.Resolver
	return resolve.New(resolve.Config{
		Client:           client,
		Registry:         reg,
		Logger:           logger,
		Metrics:          m,
		PageTimeout:      rc.PageTimeout,
		AuxTimeout:       rc.AuxTimeout,
		MaxIframes:       rc.MaxIframes,
		MaxScripts:       rc.MaxScripts,
		ProbeConcurrency: rc.ProbeConcurrency,
		Exhaustive:       rc.Exhaustive,
		RatePerSecond:    rc.RatePerSecond,
		Burst:            rc.Burst,
		PublicBase:       cfg.PublicBase,
		UserAgent:        cfg.UserAgent,
		AllowPrivate:     cfg.AllowPrivate,
	})
}

func newCache(reg *provider.Registry) *cache.Cache {
	cc := cfg.Cache
	return cache.New(cache.Options{
		MaxBytes:       cc.MaxBytes,
		MaxObjectBytes: cc.MaxObjectBytes,
		PlaylistTTL:    cc.PlaylistTTL,
		MediaTTL:       cc.MediaTTL,
		MinTTL:         cc.MinTTL,
		SweepInterval:  cc.SweepInterval,
		Reliability:    reg.Reliability,
	})
}

func newClient() *http.Client {
	return httputil.NewClient(cfg.AllowPrivate)
}
