package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/battlewager/config"
	"github.com/alejandrodnm/battlewager/internal/adapters/storage"
	"github.com/alejandrodnm/battlewager/internal/adapters/telemetry"
	"github.com/alejandrodnm/battlewager/internal/application/settlement"
	"github.com/alejandrodnm/battlewager/internal/domain"
)

const usage = `usage: battle [flags] <command> [command flags]

commands:
  create    create a battle
  log       log one repetition attempt
  tally     show the live score of a battle
  preview   show what settling a battle would do
  settle    settle a battle
  grant     credit or debit points outside a battle
  avatar    set a participant's avatar bonus percentage
  serve     run the HTTP API (and the sweeper when enabled)
  sweep     settle every completed battle (once, or on an interval)

flags:
`

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Setup(ctx, "battlewager", cfg.Telemetry.Endpoint)
	if err != nil {
		slog.Warn("tracing disabled", "err", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("flush traces", "err", err)
		}
	}()

	app := newApp(cfg, store)
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := app.run(ctx, cmd, args); err != nil {
		slog.Error("command failed", "command", cmd, "err", err)
		_ = shutdown(context.Background())
		cancel()
		store.Close()
		os.Exit(1)
	}
}

// engineConfig traduce la sección settlement del YAML.
func engineConfig(cfg *config.Config) settlement.Config {
	return settlement.Config{
		AbuseThreshold: cfg.Settlement.AbuseThreshold,
		AbuseWindow:    cfg.AbuseWindow(),
		Rules: domain.Rules{
			MinPointsPerRep:   cfg.Settlement.MinPointsPerRep,
			MVPMinSuccessRate: cfg.Settlement.MVPMinSuccessRate,
			RefundCap:         cfg.Settlement.RefundCap,
			ConsolationPoints: cfg.Settlement.ConsolationPoints,
		},
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
