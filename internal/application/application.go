package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/takecian/vibe-flow/internal/appserver"
	"github.com/takecian/vibe-flow/internal/assistant"
	"github.com/takecian/vibe-flow/internal/coordinator"
	"github.com/takecian/vibe-flow/internal/db"
	"github.com/takecian/vibe-flow/internal/global"
	"github.com/takecian/vibe-flow/internal/lifecycle"
	"github.com/takecian/vibe-flow/internal/localapi"
	"github.com/takecian/vibe-flow/internal/logging"
	"github.com/takecian/vibe-flow/internal/repohistory"
	"github.com/takecian/vibe-flow/internal/router"
	"github.com/takecian/vibe-flow/internal/session"
	"github.com/takecian/vibe-flow/internal/systempicker"
	"github.com/takecian/vibe-flow/internal/taskstore"
	"github.com/takecian/vibe-flow/internal/worktree"
)

const (
	defaultLocalHost = "127.0.0.1"
	defaultLocalPort = 3001
	dbFileName       = "vibeflow.db"
)

type Application struct {
	localAPIBaseURL string
	dbDSN           string
	runFn           func(context.Context) error
	shutdownFn      func(context.Context) error
}

// StartApplication builds the whole object graph. Nothing listens until Run.
func StartApplication(_ context.Context, opts StartOptions) (*Application, error) {
	configDir := strings.TrimSpace(opts.ConfigDir)
	if configDir == "" {
		return nil, errors.New("config dir is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	dsn := ResolveDBDSN(configDir, opts.DBDSN)

	cfgStore := global.NewConfigStore(configDir)
	if _, err := cfgStore.LoadOrInit(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	toolsStore := global.NewAssistantToolsStore(configDir)
	if _, err := toolsStore.LoadOrInit(); err != nil {
		return nil, fmt.Errorf("load assistant tools: %w", err)
	}

	gdb, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	tasks, err := taskstore.NewStore(gdb)
	if err != nil {
		_ = db.Close(gdb)
		return nil, err
	}
	history, err := repohistory.NewStore(gdb)
	if err != nil {
		_ = db.Close(gdb)
		return nil, err
	}

	provisioner := worktree.NewProvisioner(worktree.RealExec{}, logger)
	sessions := session.NewManager(session.Options{
		Spawner:   opts.Spawner,
		Tasks:     tasks,
		Worktrees: provisioner,
		RepoRoot:  cfgStore.RepoRoot,
		Shell: func() string {
			cfg, err := cfgStore.LoadOrInit()
			if err != nil {
				return ""
			}
			return cfg.Terminal.Shell
		},
		TermName: opts.TermName,
		Logger:   logger,
	})
	terminalRouter := router.New(sessions, logger)
	sessions.SetSink(terminalRouter.Deliver)

	hub := localapi.NewWSHub()
	launchStatus := localapi.NewLaunchStatusPublisher(tasks, hub)
	launcher := assistant.NewLauncher(sessions, cfgStore, toolsStore, launchStatus, logger)
	coordCtx, cancelCoord := context.WithCancel(context.Background())
	coord := coordinator.New(coordCtx, coordinator.Options{
		Worktrees: provisioner,
		Sessions:  sessions,
		Launcher:  launcher,
		Status:    launchStatus,
		RepoRoot:  cfgStore.RepoRoot,
		TerminalSize: func() (int, int) {
			cfg, err := cfgStore.LoadOrInit()
			if err != nil {
				return session.DefaultCols, session.DefaultRows
			}
			return cfg.Terminal.DefaultCols, cfg.Terminal.DefaultRows
		},
		Logger: logger,
	})

	localServer := localapi.NewServer(localapi.Deps{
		ConfigStore:         cfgStore,
		AssistantToolsStore: toolsStore,
		RepoHistory:         history,
		TaskStore:           tasks,
		TaskObserver:        coord,
		Worktrees:           provisioner,
		Git:                 provisioner.Git(),
		Sessions:            sessions,
		ToolDetector:        assistant.NewDetector(),
		PickDirectory:       systempicker.PickDirectory,
		Hub:                 hub,
		Logger:              logger,
	})
	server, err := appserver.NewServer(appserver.Deps{
		LocalAPI: localServer.Handler(),
		Terminal: terminalRouter.HandleWS,
		WebUI: appserver.WebUIConfig{
			Mode:        strings.TrimSpace(opts.WebUI.Mode),
			DevProxyURL: strings.TrimSpace(opts.WebUI.DevProxyURL),
			DistDir:     strings.TrimSpace(opts.WebUI.DistDir),
		},
	})
	if err != nil {
		cancelCoord()
		_ = db.Close(gdb)
		return nil, err
	}

	host := strings.TrimSpace(opts.LocalHost)
	if host == "" {
		host = defaultLocalHost
	}
	port := opts.LocalPort
	if port <= 0 {
		port = defaultLocalPort
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownHTTP := func(context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
	stopCoordinator := once(func() error {
		cancelCoord()
		coord.Wait()
		return nil
	})
	closeSessions := once(sessions.Close)
	closeDB := once(func() error { return db.Close(gdb) })

	mgr := lifecycle.NewManager(logger)
	mgr.AddRun("http-server", func(runCtx context.Context) error {
		go func() {
			<-runCtx.Done()
			_ = shutdownHTTP(context.Background())
		}()
		logger.Info("listening", "addr", addr, "db", dsn)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// Shutdown jobs run in reverse: http, coordinator, sessions, db.
	mgr.AddShutdown("close-db", closeDB)
	mgr.AddShutdown("close-sessions", closeSessions)
	mgr.AddShutdown("stop-coordinator", stopCoordinator)
	mgr.AddShutdown("http-server-shutdown", shutdownHTTP)

	return &Application{
		localAPIBaseURL: fmt.Sprintf("http://%s", addr),
		dbDSN:           dsn,
		runFn: func(ctx context.Context) error {
			return mgr.StartAndWait(ctx)
		},
		shutdownFn: func(ctx context.Context) error {
			return errors.Join(
				shutdownHTTP(ctx),
				stopCoordinator(ctx),
				closeSessions(ctx),
				closeDB(ctx),
			)
		},
	}, nil
}

func once(fn func() error) func(context.Context) error {
	var o sync.Once
	var err error
	return func(context.Context) error {
		o.Do(func() { err = fn() })
		return err
	}
}

// ResolveDBDSN returns dsn, or the default database file inside configDir when dsn is blank.
func ResolveDBDSN(configDir, dsn string) string {
	if dsn = strings.TrimSpace(dsn); dsn != "" {
		return dsn
	}
	return filepath.Join(configDir, dbFileName)
}

func (a *Application) LocalAPIBaseURL() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.localAPIBaseURL)
}

func (a *Application) DBDSN() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.dbDSN)
}

func (a *Application) Run(ctx context.Context) error {
	if a == nil || a.runFn == nil {
		return nil
	}
	return a.runFn(ctx)
}

func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil || a.shutdownFn == nil {
		return nil
	}
	return a.shutdownFn(ctx)
}
