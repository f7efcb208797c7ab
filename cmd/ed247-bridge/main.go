// Package main implements ed247-bridge, which runs one ED247 component and
// relays its streams to NATS subjects and WebSocket clients.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/c360/ed247"
	"github.com/c360/ed247/bridge"
	"github.com/c360/ed247/config"
	"github.com/c360/ed247/metric"
	"github.com/c360/ed247/pkg/retry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ed247-bridge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger, logCloser, err := setupLogger(cliCfg)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("Starting ED247 bridge",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := config.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid", "name", cfg.Name, "channels", len(cfg.Channels))
		return nil
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	registry := metric.NewMetricsRegistry()
	ed, err := ed247.Load(cfg, ed247.WithLogger(logger), ed247.WithMetrics(registry))
	if err != nil {
		return fmt.Errorf("load context: %w", err)
	}
	defer ed.Close()

	hub := bridge.NewWebSocketHub(logger, registry.CoreMetrics())
	defer hub.Close()

	opts := []bridge.Option{
		bridge.WithSink(hub),
		bridge.WithLogger(logger),
		bridge.WithMetrics(registry.CoreMetrics()),
	}

	if cliCfg.NATSURL != "" {
		nc, err := connectToNATS(signalCtx, cliCfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer closeNATS(nc, cliCfg)
		opts = append(opts,
			bridge.WithSink(bridge.NewNATSSink(nc, cliCfg.SubjectPrefix)),
			bridge.WithNATSInput(nc))
	}

	b, err := bridge.New(ed, bridge.Config{
		SubjectPrefix: cliCfg.SubjectPrefix,
		Streams:       cliCfg.Streams,
		WaitTimeout:   cliCfg.WaitTimeout,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}

	if cliCfg.MetricsPort > 0 {
		server := metric.NewServer(cliCfg.MetricsPort, "/metrics", registry)
		server.Handle("/ws", hub)
		server.SetHealthCheck(b.Health)
		go func() {
			if err := server.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() { _ = server.Stop() }()
		slog.Info("Metrics server started", "address", server.Address())
	}

	if err := b.Run(signalCtx); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}
	slog.Info("ED247 bridge shutdown complete")
	return nil
}

// connectToNATS dials the server, retrying while it comes up
func connectToNATS(ctx context.Context, url string, logger *slog.Logger) (*nats.Conn, error) {
	slog.Info("Connecting to NATS", "url", url)

	cfg := retry.Quick()
	cfg.OnRetry = func(attempt int, err error) {
		logger.Warn("NATS connection attempt failed", "attempt", attempt, "error", err)
	}
	nc, err := retry.DoWithResult(ctx, cfg, func() (*nats.Conn, error) {
		return nats.Connect(url,
			nats.Name(appName),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("NATS disconnected", "error", err)
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("NATS reconnected", "url", c.ConnectedUrl())
			}),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

func closeNATS(nc *nats.Conn, cliCfg *CLIConfig) {
	if err := nc.FlushTimeout(cliCfg.ShutdownTimeout); err != nil {
		slog.Warn("NATS flush failed", "error", err)
	}
	nc.Close()
}
