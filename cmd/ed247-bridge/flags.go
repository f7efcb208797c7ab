package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	NATSURL         string
	SubjectPrefix   string
	Streams         string
	WaitTimeout     time.Duration
	LogLevel        string
	LogFormat       string
	LogFile         string
	MetricsPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("ED247_CONFIG", "ecic.yaml"),
		"Path to the component configuration (env: ED247_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("ED247_CONFIG", "ecic.yaml"),
		"Path to the component configuration (env: ED247_CONFIG)")

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("ED247_NATS_URL", "nats://localhost:4222"),
		"NATS server URL, empty to disable (env: ED247_NATS_URL)")

	flag.StringVar(&cfg.SubjectPrefix, "subject-prefix",
		getEnv("ED247_SUBJECT_PREFIX", "ed247"),
		"NATS subject prefix (env: ED247_SUBJECT_PREFIX)")

	flag.StringVar(&cfg.Streams, "streams",
		getEnv("ED247_STREAMS", ""),
		"Regular expression selecting the forwarded input streams (env: ED247_STREAMS)")

	flag.DurationVar(&cfg.WaitTimeout, "wait",
		getEnvDuration("ED247_WAIT", 50*time.Millisecond),
		"Frame wait timeout of the bridge loop (env: ED247_WAIT)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("ED247_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: ED247_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("ED247_LOG_FORMAT", "json"),
		"Log format: json, text (env: ED247_LOG_FORMAT)")

	flag.StringVar(&cfg.LogFile, "log-file",
		getEnv("ED247_LOG_FILEPATH", ""),
		"Rotated log file, in addition to stdout (env: ED247_LOG_FILEPATH)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("ED247_METRICS_PORT", 9090),
		"Metrics, health and WebSocket port, 0 to disable (env: ED247_METRICS_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("ED247_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: ED247_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}

	if !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	if cfg.WaitTimeout <= 0 {
		return fmt.Errorf("invalid wait timeout: %s", cfg.WaitTimeout)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - ED247 to NATS and WebSocket bridge

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Subjects:
  <prefix>.in.<stream>    received samples, JSON encoded
  <prefix>.out.<stream>   raw samples to emit

Examples:
  # Bridge every input stream
  %s --config=/etc/ed247/ecic.yaml

  # Forward the A429 labels only, WebSocket clients on :9090/ws
  %s --streams='^A429_' --nats-url=

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
