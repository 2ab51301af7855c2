package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goalritual/goalritual/internal/config"
	"github.com/goalritual/goalritual/internal/remote"
	"github.com/goalritual/goalritual/internal/session"
	"github.com/goalritual/goalritual/internal/store"
	goalsync "github.com/goalritual/goalritual/internal/sync"
)

// connectTimeout bounds opening the remote store.
const connectTimeout = 10 * time.Second

// app holds everything a command needs. Commands open it, use it and close
// it; Close runs any pending push before the process exits.
type app struct {
	cfg      *config.Config
	logs     *config.Logs
	logger   *log.Logger
	local    *store.Store
	sessions *session.Manager

	remote       remote.Store
	engine       *goalsync.Engine
	autosync     *goalsync.AutoSync
	stopFollow   func()
	remoteFailed bool
}

// openApp loads config and opens the local store and session. Errors are
// fatal.
func openApp() *app {
	cfg, err := config.Load(dataDirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logs := config.OpenLogs(cfg.Log, cfg.DataDir)
	a := &app{
		cfg:    cfg,
		logs:   logs,
		logger: logs.Logger("goalritual"),
	}

	a.local, err = store.Open(cfg.DBPath())
	if err != nil {
		a.fatalf("Error opening local store: %v", err)
	}

	a.sessions = session.NewManager(cfg.SessionPath())
	if err := a.sessions.Load(); err != nil {
		a.logger.Printf("Warning: ignoring unreadable session: %v", err)
	}
	return a
}

// connect opens the remote store and the sync engine. A remote that cannot
// be reached leaves the engine nil; local work continues offline.
func (a *app) connect(ctx context.Context) *goalsync.Engine {
	if a.engine != nil || a.remoteFailed {
		return a.engine
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	rs, err := remote.Open(ctx, a.cfg.Remote())
	if err != nil {
		a.logger.Printf("Warning: remote unavailable, working offline: %v", err)
		a.remoteFailed = true
		return nil
	}
	a.remote = rs

	a.engine = goalsync.New(a.local, rs, a.sessions, &goalsync.Config{
		Logger: a.logs.Logger("sync"),
		Now:    time.Now,
	})
	a.stopFollow = a.engine.Follow(a.sessions)
	return a.engine
}

// startAutoSync pushes local edits made by this command when signed in.
func (a *app) startAutoSync(ctx context.Context) {
	if a.sessions.User() == nil {
		return
	}
	engine := a.connect(ctx)
	if engine == nil || a.autosync != nil {
		return
	}
	a.autosync = goalsync.NewAutoSync(engine, a.local, a.cfg.Sync.Debounce)
	a.autosync.Start()
}

// Close flushes a pending push and releases every resource.
func (a *app) Close() {
	if a.autosync != nil {
		a.autosync.Stop()
		a.autosync = nil
	}
	if a.stopFollow != nil {
		a.stopFollow()
		a.stopFollow = nil
	}
	if a.remote != nil {
		_ = a.remote.Close()
		a.remote = nil
	}
	if a.local != nil {
		_ = a.local.Close()
		a.local = nil
	}
	_ = a.logs.Close()
}

// fatalf closes the app, prints the error and exits 1.
func (a *app) fatalf(format string, args ...any) {
	a.Close()
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// printJSON writes v indented to stdout.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
