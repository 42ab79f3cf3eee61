package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/takecian/vibe-flow/internal/application"
	"github.com/takecian/vibe-flow/internal/command"
	"github.com/takecian/vibe-flow/internal/config"
	"github.com/takecian/vibe-flow/internal/db"
	"github.com/takecian/vibe-flow/internal/global"
	"github.com/takecian/vibe-flow/internal/logging"
)

var version = "dev"

var startApplication = application.StartApplication
var defaultConfigDir = global.DefaultConfigDir

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig: config.LoadConfig,
		RunServe: func(ctx context.Context, cfg config.Config) error {
			return runServe(ctx, os.Stderr, cfg)
		},
		RunMigrateUp: runMigrateUp,
	})
	app.Version = version

	if err := app.RunContext(rootCtx, os.Args); err != nil {
		logging.NewLogger(logging.Options{Level: "error", Writer: os.Stderr, Component: "vibeflow"}).Error("vibeflow failed", "err", err)
		os.Exit(1)
	}
}

func newRuntimeLogger(out io.Writer, cfg config.Config) *slog.Logger {
	return logging.NewLogger(logging.Options{
		Level:     cfg.ListenLogLevel,
		Format:    cfg.LogFormat,
		Writer:    out,
		Component: "vibeflow",
	})
}

func runServe(ctx context.Context, logOut io.Writer, cfg config.Config) error {
	configDir, err := defaultConfigDir()
	if err != nil {
		return err
	}
	logger := newRuntimeLogger(logOut, cfg)
	app, err := startApplication(ctx, application.StartOptions{
		ConfigDir: configDir,
		DBDSN:     cfg.DBPath,
		LocalHost: cfg.LocalHost,
		LocalPort: cfg.LocalPort,
		TermName:  cfg.TermName,
		WebUI: application.WebUIOptions{
			Mode:        cfg.WebUIMode,
			DevProxyURL: cfg.WebUIDevProxyURL,
			DistDir:     cfg.WebUIDistDir,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	logger.Info("vibeflow listening", "url", app.LocalAPIBaseURL(), "db", app.DBDSN(), "version", version)
	return app.Run(ctx)
}

func runMigrateUp(_ context.Context, cfg config.Config) error {
	configDir, err := defaultConfigDir()
	if err != nil {
		return err
	}
	gdb, err := db.Open(application.ResolveDBDSN(configDir, cfg.DBPath))
	if err != nil {
		return err
	}
	return db.Close(gdb)
}
