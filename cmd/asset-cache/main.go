// Command asset-cache serves optimized web assets from a disk-backed,
// content-addressed store shared by reduction pipeline instances.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/reducekit/asset-cache/server"
	"github.com/reducekit/asset-cache/telemetry"
)

var cli struct {
	Address     string `help:"Address to listen on." default:":8080"`
	Storage     string `help:"Storage directory for artifacts." default:"./cache" type:"path"`
	VirtualPath string `help:"URL prefix artifacts are served under." default:"/rr"`
	IndexPath   string `help:"Path of the reduction index database. Empty keeps the index in memory." type:"path"`
	Watch       bool   `help:"Watch the storage directory and reconcile the index with external changes."`
	AuthToken   string `help:"Bearer token required on all endpoints except /health and /metrics." env:"ASSET_CACHE_AUTH_TOKEN"`

	MaxUpload int64 `help:"Maximum accepted artifact upload size in bytes." default:"33554432"`

	Metrics     bool   `help:"Enable metrics collection and the /metrics endpoint."`
	OTLPIngest  string `help:"OTLP gRPC endpoint to export metrics to." env:"ASSET_CACHE_OTLP_INGEST"`
	ServiceName string `help:"Service name reported in metrics." default:"asset-cache"`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error"`
	LogFormat string `help:"Log format (text, json)." default:"text" enum:"text,json"`
	Version   kong.VersionFlag
}

var version = "dev"

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("asset-cache"),
		kong.Description("Disk-backed store for optimized web assets."),
		kong.Vars{"version": version},
	)
	kctx.FatalIfErrorf(run())
}

func run() error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cli.Metrics {
		shutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
			ServiceName:      cli.ServiceName,
			ServiceVersion:   version,
			OTLPEndpoint:     cli.OTLPIngest,
			EnablePrometheus: true,
		})
		if err != nil {
			return fmt.Errorf("initialising metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("shutting down metrics", "error", err)
			}
		}()
	}

	srv, err := server.New(server.Config{
		Address:        cli.Address,
		StoragePath:    cli.Storage,
		VirtualPath:    cli.VirtualPath,
		IndexPath:      cli.IndexPath,
		EnableWatcher:  cli.Watch,
		MaxUploadBytes: cli.MaxUpload,
		AuthToken:      cli.AuthToken,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cli.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level: %s", cli.LogLevel)
	}

	var handler slog.Handler
	switch cli.LogFormat {
	case "text":
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format: %s", cli.LogFormat)
	}
	return slog.New(handler), nil
}
