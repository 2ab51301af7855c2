package sync

import (
	"context"
	"sync"
	"time"

	"github.com/goalritual/goalritual/internal/store"
)

// PushTimeout bounds a single debounced push.
const PushTimeout = 30 * time.Second

// AutoSync pushes after the local store has been quiet for the debounce
// window. Changes written by the engine itself (origin sync) are ignored so
// a pull never echoes back as a push.
type AutoSync struct {
	engine    *Engine
	local     *store.Store
	debouncer *Debouncer

	ch chan store.Change

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAutoSync wires engine to local's change bus. Call Start to begin.
func NewAutoSync(engine *Engine, local *store.Store, wait time.Duration) *AutoSync {
	ctx, cancel := context.WithCancel(context.Background())
	a := &AutoSync{
		engine: engine,
		local:  local,
		ctx:    ctx,
		cancel: cancel,
	}
	a.debouncer = NewDebouncer(wait, a.push)
	return a
}

// Start subscribes to the store and begins scheduling pushes.
func (a *AutoSync) Start() {
	a.ch = a.local.Subscribe()
	a.wg.Add(1)
	go a.run()
}

// Trigger schedules a push as if a local change had happened.
func (a *AutoSync) Trigger() {
	a.debouncer.Trigger()
}

// Stop unsubscribes, runs any pending push immediately and waits for the
// loop to exit.
func (a *AutoSync) Stop() {
	if a.ch != nil {
		a.local.Unsubscribe(a.ch)
	}
	a.wg.Wait()
	a.debouncer.Flush()
	a.debouncer.Stop()
	a.cancel()
}

func (a *AutoSync) run() {
	defer a.wg.Done()

	for c := range a.ch {
		if c.Origin == store.OriginSync {
			continue
		}
		a.debouncer.Trigger()
	}
}

func (a *AutoSync) push() {
	ctx, cancel := context.WithTimeout(a.ctx, PushTimeout)
	defer cancel()
	a.engine.PushSnapshot(ctx)
}
