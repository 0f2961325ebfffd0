package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/rtm0/icedrift/internal/metrics"
	"github.com/rtm0/icedrift/internal/source"
)

type cli struct {
	LogLevel    string `default:"info" enum:"debug,info,warn,error" env:"ICEDRIFT_LOG_LEVEL" help:"Log level (${enum})."`
	MetricsFile string `type:"path" env:"ICEDRIFT_METRICS_FILE" help:"Write Prometheus metrics to this textfile on exit."`

	Resolve resolveCmd `cmd:"" help:"Print the file name and locations of the product centered on a date."`
	Extract extractCmd `cmd:"" help:"Fetch one product, derive drift velocities and write them to a file."`
	Export  exportCmd  `cmd:"" help:"Process a range of dates into Victoria Metrics, ClickHouse and the product index."`
	List    listCmd    `cmd:"" help:"List processed and missing products recorded in the index."`
}

// env carries what every command needs at run time.
type env struct {
	ctx    context.Context
	logger *slog.Logger
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("icedrift"),
		kong.Description("Retrieve OSI-SAF low resolution sea ice drift products and derive drift velocities."),
		kong.UsageOnError(),
		kong.Vars{
			"catalogRoot": source.DefaultCatalogRoot,
			"ftpAddr":     source.DefaultFTPAddr,
			"ftpDir":      source.DefaultFTPDir,
		},
	)

	logger := newLogger(c.LogLevel)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := kctx.Run(&env{ctx: ctx, logger: logger})
	cancel()

	if c.MetricsFile != "" {
		if err := metrics.WriteTextfile(c.MetricsFile); err != nil {
			logger.Error("Could not write metrics", "path", c.MetricsFile, "err", err)
		}
	}
	if err != nil {
		logger.Error("Command failed", "cmd", kctx.Command(), "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
