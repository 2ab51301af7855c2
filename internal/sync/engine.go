package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goalritual/goalritual/internal/remote"
	"github.com/goalritual/goalritual/internal/session"
	"github.com/goalritual/goalritual/internal/store"
)

var (
	// ErrNoIdentity means sync is disabled because nobody is signed in.
	ErrNoIdentity = errors.New("no sync identity")
	// ErrInvalidSession means the session verifier rejected the session.
	ErrInvalidSession = errors.New("invalid session")
	// ErrIdentityMismatch means the verified session belongs to a different
	// user than the engine's identity.
	ErrIdentityMismatch = errors.New("session user does not match sync identity")
)

// Verifier reports which user holds the current session.
type Verifier interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// Strategy is the caller's choice for the first sync after sign-in.
type Strategy string

const (
	// StrategyPull replaces local data with the remote snapshot.
	StrategyPull Strategy = "pull"
	// StrategyMerge unions local and remote data.
	StrategyMerge Strategy = "merge"
	// StrategyPush uploads local data over the remote snapshot.
	StrategyPush Strategy = "push"
	// StrategyNone only sets the identity.
	StrategyNone Strategy = "none"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyPull, StrategyMerge, StrategyPush, StrategyNone:
		return st, nil
	case "":
		return StrategyMerge, nil
	default:
		return "", fmt.Errorf("unknown sync strategy %q (want pull, merge, push or none)", s)
	}
}

// Config holds optional engine settings.
type Config struct {
	// Logger for sync activity.
	Logger *log.Logger
	// Now returns the current time. Used for remote updated_at stamps.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[sync] ", log.LstdFlags),
		Now:    time.Now,
	}
}

// Engine synchronizes one local store with one remote snapshot table on
// behalf of the current identity.
type Engine struct {
	local    *store.Store
	remote   remote.Store
	verifier Verifier
	logger   *log.Logger
	now      func() time.Time

	// opMu serializes remote operations so a pull never interleaves with
	// a push.
	opMu sync.Mutex

	// ===== Guarded by mu =====
	mu         sync.Mutex
	identity   *session.User
	inFlight   bool
	pending    bool
	status     Status
	lastSynced time.Time
	lastErr    error
	listeners  map[int]StatusListener
	nextID     int
}

// New creates an Engine. verifier may be nil, in which case the identity is
// trusted as-is. If config is nil, DefaultConfig is used.
//
// The engine starts without identity; call SetIdentity or SignIn before
// any operation has an effect.
//
// Example:
//
//	engine := sync.New(localStore, remoteStore, sessions, nil)
//	engine.SetIdentity(sessions.User())
//	engine.PushSnapshot(ctx)
func New(local *store.Store, rs remote.Store, verifier Verifier, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		local:     local,
		remote:    rs,
		verifier:  verifier,
		logger:    logger,
		now:       now,
		status:    StatusOffline,
		listeners: make(map[int]StatusListener),
	}
}

// SetIdentity sets the owner of subsequent sync operations. nil disables
// sync; operations then return false without touching the network.
func (e *Engine) SetIdentity(user *session.User) {
	e.mu.Lock()
	if user == nil {
		e.identity = nil
		e.status = StatusOffline
	} else {
		u := *user
		e.identity = &u
		if e.status == StatusOffline {
			e.status = StatusIdle
		}
	}
	ev := e.statusLocked()
	e.mu.Unlock()

	e.emit(ev)
}

// Identity returns the current identity, or nil.
func (e *Engine) Identity() *session.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.identity == nil {
		return nil
	}
	u := *e.identity
	return &u
}

// SignIn sets the identity and runs the chosen first sync.
func (e *Engine) SignIn(ctx context.Context, user *session.User, strategy Strategy) bool {
	if user == nil {
		e.logger.Printf("Sign-in without a user; sync stays disabled")
		return false
	}
	e.SetIdentity(user)
	e.logger.Printf("Signed in as %s (strategy=%s)", user.Email, strategy)

	switch strategy {
	case StrategyPull:
		return e.PullSnapshot(ctx)
	case StrategyMerge:
		return e.MergeSnapshot(ctx)
	case StrategyPush:
		return e.PushSnapshot(ctx)
	default:
		return true
	}
}

// SignOut clears the identity. Local data is kept.
func (e *Engine) SignOut() {
	e.SetIdentity(nil)
	e.logger.Printf("Signed out; sync disabled")
}

// Follow keeps the engine's identity in step with m. It returns a function
// that stops following.
func (e *Engine) Follow(m *session.Manager) (stop func()) {
	e.SetIdentity(m.User())
	return m.OnChange(func(u *session.User) {
		e.SetIdentity(u)
	})
}

// PushSnapshot uploads the full local snapshot under the current identity.
//
// If a push is already in flight the request is queued as the single
// follow-up and true is returned. The goroutine running the in-flight push
// also runs the follow-up, so PushSnapshot may upload twice before it
// returns.
func (e *Engine) PushSnapshot(ctx context.Context) bool {
	e.mu.Lock()
	if e.identity == nil {
		e.mu.Unlock()
		return e.skip("push")
	}
	if e.inFlight {
		if !e.pending {
			e.pending = true
			e.logger.Printf("Push in flight; queued follow-up")
		}
		e.mu.Unlock()
		return true
	}
	e.inFlight = true
	e.mu.Unlock()

	ok := e.pushOnce(ctx)
	for {
		e.mu.Lock()
		if !e.pending {
			e.inFlight = false
			e.mu.Unlock()
			return ok
		}
		e.pending = false
		e.mu.Unlock()

		ok = e.pushOnce(ctx)
	}
}

func (e *Engine) pushOnce(ctx context.Context) bool {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	user := e.Identity()
	if user == nil {
		return e.skip("push")
	}
	e.setStatus(StatusSyncing, nil)

	snap, err := e.local.Snapshot(ctx)
	if err != nil {
		return e.fail("push", fmt.Errorf("failed to read local snapshot: %w", err))
	}
	if err := e.verify(ctx, user); err != nil {
		return e.fail("push", err)
	}

	rec := &remote.Record{UserID: user.ID, Data: snap, UpdatedAt: e.now()}
	if err := e.remote.Upsert(ctx, rec); err != nil {
		return e.fail("push", err)
	}

	e.succeed()
	e.logger.Printf("Pushed %d datasets for %s", len(snap), user.ID)
	return true
}

// PullSnapshot replaces local data with the remote snapshot. When the user
// has no remote row the local store is cleared so a previous identity's
// data never leaks into a fresh account.
func (e *Engine) PullSnapshot(ctx context.Context) bool {
	user := e.Identity()
	if user == nil {
		return e.skip("pull")
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.setStatus(StatusSyncing, nil)

	if err := e.verify(ctx, user); err != nil {
		return e.fail("pull", err)
	}

	rec, err := e.remote.Fetch(ctx, user.ID)
	if errors.Is(err, remote.ErrNotFound) {
		if err := e.local.Clear(ctx, store.OriginSync); err != nil {
			return e.fail("pull", fmt.Errorf("failed to clear local data: %w", err))
		}
		e.succeed()
		e.logger.Printf("No remote snapshot for %s; cleared local data", user.ID)
		return true
	}
	if err != nil {
		return e.fail("pull", err)
	}

	if err := e.local.Replace(ctx, rec.Data, store.OriginSync); err != nil {
		return e.fail("pull", fmt.Errorf("failed to write local data: %w", err))
	}

	e.succeed()
	e.logger.Printf("Pulled %d datasets for %s", len(rec.Data), user.ID)
	return true
}

// MergeSnapshot combines local and remote data (see MergeSnapshots) and
// writes the result to both sides.
func (e *Engine) MergeSnapshot(ctx context.Context) bool {
	user := e.Identity()
	if user == nil {
		return e.skip("merge")
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.setStatus(StatusSyncing, nil)

	if err := e.verify(ctx, user); err != nil {
		return e.fail("merge", err)
	}

	localSnap, err := e.local.Snapshot(ctx)
	if err != nil {
		return e.fail("merge", fmt.Errorf("failed to read local snapshot: %w", err))
	}

	var remoteSnap store.Snapshot
	rec, err := e.remote.Fetch(ctx, user.ID)
	switch {
	case errors.Is(err, remote.ErrNotFound):
	case err != nil:
		return e.fail("merge", err)
	default:
		remoteSnap = rec.Data
	}

	merged := MergeSnapshots(localSnap, remoteSnap)

	if err := e.local.Replace(ctx, merged, store.OriginSync); err != nil {
		return e.fail("merge", fmt.Errorf("failed to write local data: %w", err))
	}
	if err := e.remote.Upsert(ctx, &remote.Record{UserID: user.ID, Data: merged, UpdatedAt: e.now()}); err != nil {
		return e.fail("merge", err)
	}

	e.succeed()
	e.logger.Printf("Merged %d datasets for %s", len(merged), user.ID)
	return true
}

// verify checks that the session still belongs to user.
func (e *Engine) verify(ctx context.Context, user *session.User) error {
	if e.verifier == nil {
		return nil
	}
	id, err := e.verifier.CurrentUserID(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if id != user.ID {
		return fmt.Errorf("%w: session=%s identity=%s", ErrIdentityMismatch, id, user.ID)
	}
	return nil
}

// skip logs an operation requested while sync is disabled and reports false.
func (e *Engine) skip(op string) bool {
	e.logger.Printf("Skipping %s: %v", op, ErrNoIdentity)
	return false
}

func (e *Engine) fail(op string, err error) bool {
	e.logger.Printf("ERROR: %s failed: %v", op, err)
	e.setStatus(StatusError, err)
	return false
}

func (e *Engine) succeed() {
	e.mu.Lock()
	e.lastSynced = e.now()
	e.mu.Unlock()
	e.setStatus(StatusSynced, nil)
}
