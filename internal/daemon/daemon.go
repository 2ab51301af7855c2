// Package daemon keeps a device's local data in step with the remote
// snapshot while the user is not running commands.
//
// The daemon:
//  1. Pushes after in-process edits (debounced autosync)
//  2. Watches the database file for writes by other goalritual processes
//     and pushes after those too
//  3. Periodically applies recurring-task and daily to-do resets
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/goalritual/goalritual/internal/store"
	goalsync "github.com/goalritual/goalritual/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long the store must be quiet before a push.
	DebounceInterval time.Duration

	// ResetInterval is how often recurring and daily resets are checked.
	ResetInterval time.Duration

	// OnExternalChange runs after writes by another process have settled,
	// before the push. Optional.
	OnExternalChange func()

	// Logger for daemon activity
	Logger *log.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: goalsync.DefaultDebounce,
		ResetInterval:    time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
		Now:              time.Now,
	}
}

// Daemon orchestrates autosync, file watching and periodic resets.
type Daemon struct {
	local  *store.Store
	engine *goalsync.Engine
	config *Config

	autosync *goalsync.AutoSync
	watcher  *FileWatcher
	external *goalsync.Debouncer

	// lastLocal is when this process last wrote to the store; database
	// file events close to it are our own.
	lastLocal   time.Time
	lastLocalMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a new Daemon instance.
//
// Use Start() to begin watching and syncing.
func New(local *store.Store, engine *goalsync.Engine) (*Daemon, error) {
	return NewWithConfig(local, engine, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(local *store.Store, engine *goalsync.Engine, config *Config) (*Daemon, error) {
	if local == nil {
		return nil, fmt.Errorf("local store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("sync engine cannot be nil")
	}
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = def.DebounceInterval
	}
	if config.ResetInterval <= 0 {
		config.ResetInterval = def.ResetInterval
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		local:    local,
		engine:   engine,
		config:   config,
		autosync: goalsync.NewAutoSync(engine, local, config.DebounceInterval),
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
	}
	d.external = goalsync.NewDebouncer(config.DebounceInterval, d.handleExternalChange)
	return d, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
//  1. Start autosync and the database file watcher
//  2. Apply any due resets, then check again every ResetInterval
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.watcher.Start(d.local.Path()); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.local.Path())

	ch := d.local.Subscribe()
	d.autosync.Start()

	d.wg.Add(3)
	go d.trackLocalWrites(ch)
	go d.watchFileEvents()
	go d.resetLoop()

	d.applyResets()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		d.local.Unsubscribe(ch)
		return d.Stop()
	case <-d.ctx.Done():
		d.local.Unsubscribe(ch)
		return nil
	}
}

// Stop gracefully shuts down the daemon. A pending push runs before it
// returns.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(d.stop)
	return nil
}

func (d *Daemon) stop() {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.external.Stop()
	d.autosync.Stop()

	d.config.Logger.Println("Daemon stopped")
}

// trackLocalWrites records when this process last wrote to the store.
func (d *Daemon) trackLocalWrites(ch <-chan store.Change) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			d.lastLocalMu.Lock()
			d.lastLocal = time.Now()
			d.lastLocalMu.Unlock()
		}
	}
}

// watchFileEvents monitors the database file and schedules a push for
// writes that did not come from this process.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if d.isOwnWrite() {
				continue
			}
			d.config.Logger.Printf("File event: %s %s", event.Op, event.Path)
			d.external.Trigger()

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) isOwnWrite() bool {
	d.lastLocalMu.Lock()
	defer d.lastLocalMu.Unlock()
	return !d.lastLocal.IsZero() && time.Since(d.lastLocal) < d.config.DebounceInterval
}

func (d *Daemon) handleExternalChange() {
	d.config.Logger.Println("Processing change from another process")
	if d.config.OnExternalChange != nil {
		d.config.OnExternalChange()
	}

	ctx, cancel := context.WithTimeout(d.ctx, goalsync.PushTimeout)
	defer cancel()
	d.engine.PushSnapshot(ctx)
}

// resetLoop periodically applies recurring and daily resets.
func (d *Daemon) resetLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ResetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.applyResets()
		}
	}
}

func (d *Daemon) applyResets() {
	res, err := ApplyResets(d.ctx, d.local, d.config.Now())
	if err != nil {
		d.config.Logger.Printf("Error applying resets: %v", err)
		return
	}
	if res.Changed() {
		d.config.Logger.Printf("Reset %d recurring groups, %d goal habit groups, daily todos: %v",
			res.RecurringGroups, res.GoalGroups, res.DailyTodosReset)
	}
}
