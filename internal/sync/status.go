package sync

import "time"

// Status is the engine's user-facing sync state.
type Status string

const (
	// StatusIdle means signed in with no sync attempted yet.
	StatusIdle Status = "idle"
	// StatusSyncing means a remote operation is running.
	StatusSyncing Status = "syncing"
	// StatusSynced means the last operation succeeded.
	StatusSynced Status = "synced"
	// StatusError means the last operation failed.
	StatusError Status = "error"
	// StatusOffline means nobody is signed in.
	StatusOffline Status = "offline"
)

// StatusEvent is a snapshot of the engine's state.
type StatusEvent struct {
	Status     Status    `json:"status"`
	LastSynced time.Time `json:"lastSynced,omitempty"`
	Error      string    `json:"error,omitempty"`
	UserID     string    `json:"userId,omitempty"`
}

// StatusListener receives every status transition.
type StatusListener func(StatusEvent)

// Status returns the current state.
func (e *Engine) Status() StatusEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// OnStatus registers fn for status transitions and returns a function that
// unregisters it. Listeners run synchronously on the syncing goroutine and
// must not call back into PushSnapshot.
func (e *Engine) OnStatus(fn StatusListener) (cancel func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *Engine) statusLocked() StatusEvent {
	ev := StatusEvent{Status: e.status, LastSynced: e.lastSynced}
	if e.lastErr != nil {
		ev.Error = e.lastErr.Error()
	}
	if e.identity != nil {
		ev.UserID = e.identity.ID
	}
	return ev
}

func (e *Engine) setStatus(s Status, err error) {
	e.mu.Lock()
	if e.identity == nil {
		s = StatusOffline
	}
	e.status = s
	if s != StatusSyncing {
		e.lastErr = err
	}
	ev := e.statusLocked()
	e.mu.Unlock()

	e.emit(ev)
}

func (e *Engine) emit(ev StatusEvent) {
	e.mu.Lock()
	fns := make([]StatusListener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
