// Package main implements ed247-dump, which loads an ED247 component and
// prints the samples it receives as a table.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/c360/ed247"
	"github.com/c360/ed247/pkg/logging"
)

const appName = "ed247-dump"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		streams    string
		count      int
		duration   time.Duration
		wait       time.Duration
	)
	flag.StringVar(&configPath, "config", "ecic.yaml", "Path to the component configuration")
	flag.StringVar(&streams, "streams", ".*", "Regular expression selecting the dumped input streams")
	flag.IntVar(&count, "count", 0, "Stop after this many samples, 0 for no limit")
	flag.DurationVar(&duration, "duration", 5*time.Second, "How long to listen")
	flag.DurationVar(&wait, "wait", 100*time.Millisecond, "Frame wait timeout")
	flag.Parse()

	logger, closer, err := logging.FromEnv(logging.Config{Level: "warn", Format: "text", Output: os.Stderr})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ed, err := ed247.LoadFile(configPath, ed247.WithLogger(logger))
	if err != nil {
		return err
	}
	defer ed.Close()

	c, err := newCollector(ed, streams, count)
	if err != nil {
		return err
	}
	if err := c.run(duration, wait); err != nil {
		return err
	}
	return render(c.records, ed)
}
