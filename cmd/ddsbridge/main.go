// Package main provides the ddsbridge binary entry point.
// ddsbridge joins a DDS domain and forwards configured topics onto NATS
// subjects, carrying raw CDR payloads in both directions.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dataflume/flumedds/bridge"
	"github.com/dataflume/flumedds/config"
	"github.com/dataflume/flumedds/dds"
	"github.com/dataflume/flumedds/metrics"
)

const (
	Version = "0.1.0"
	appName = "ddsbridge"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "ddsbridge",
		Short: "DDS to NATS gateway",
		Long: `ddsbridge joins a DDS domain as a regular participant and forwards
the configured topics onto NATS subjects.

Outbound DDS samples appear on <prefix>.<topic>; messages published to
<prefix>.<topic>.in are written back into the domain. Payloads cross the
gateway as raw CDR, so the bridge never needs the topic's type.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err == nil {
			err = cfg.Validate()
		}
	} else {
		cfg, err = config.NewLoader(logger).Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Bridge.URL == "" {
		return fmt.Errorf("bridge.url is required")
	}
	if len(cfg.Bridge.Topics) == 0 {
		return fmt.Errorf("bridge.topics is empty; nothing to forward")
	}

	observer := metrics.New()
	pc := cfg.ToParticipantConfig()
	pc.Logger = logger
	pc.Metrics = observer

	dp, err := dds.NewParticipant(pc)
	if err != nil {
		return fmt.Errorf("join domain %d: %w", pc.DomainID, err)
	}
	defer dp.Close()

	routes := make([]bridge.TopicRoute, 0, len(cfg.Bridge.Topics))
	for _, t := range cfg.Bridge.Topics {
		routes = append(routes, bridge.TopicRoute{
			Name:     t.Name,
			TypeName: t.Type,
			Reliable: t.Reliable,
		})
	}
	br, err := bridge.New(bridge.Config{
		URL:           cfg.Bridge.URL,
		SubjectPrefix: cfg.Bridge.SubjectPrefix,
		Routes:        routes,
	}, dp, logger)
	if err != nil {
		return err
	}
	if err := br.Start(); err != nil {
		return err
	}
	defer br.Stop()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := observer.Serve(cfg.Metrics.Listen); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics listening", "addr", cfg.Metrics.Listen)
	}

	logger.Info("ddsbridge ready",
		"version", Version,
		"domain", pc.DomainID,
		"nats", cfg.Bridge.URL,
		"topics", len(routes))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	return nil
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
