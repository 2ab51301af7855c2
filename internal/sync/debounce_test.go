package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goalritual/goalritual/internal/remote"
	"github.com/goalritual/goalritual/internal/store"
)

func TestDebouncerCoalescesTriggers(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
	if d.Pending() {
		t.Error("nothing should be pending after firing")
	}
}

func TestDebouncerFlush(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(time.Hour, func() { calls.Add(1) })
	defer d.Stop()

	d.Flush()
	if calls.Load() != 0 {
		t.Fatal("flush with nothing pending should not run")
	}

	d.Trigger()
	if !d.Pending() {
		t.Fatal("expected pending run")
	}
	d.Flush()
	if calls.Load() != 1 {
		t.Errorf("expected flush to run once, got %d", calls.Load())
	}
	if d.Pending() {
		t.Error("flush should clear the pending run")
	}
}

func TestDebouncerStop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()

	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("expected no calls after stop, got %d", got)
	}
}

func TestDebouncerDefaultWait(t *testing.T) {
	d := NewDebouncer(0, func() {})
	if d.wait != DefaultDebounce {
		t.Errorf("expected default wait %v, got %v", DefaultDebounce, d.wait)
	}
}

func waitForRemote(t *testing.T, rs remote.Store, timeout time.Duration) *remote.Record {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		rec, err := rs.Fetch(context.Background(), testUser.ID)
		if err == nil {
			return rec
		}
		if !errors.Is(err, remote.ErrNotFound) {
			t.Fatalf("Fetch failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func TestAutoSyncPushesLocalChanges(t *testing.T) {
	e, local, rs := setupTestEngine(t)

	a := NewAutoSync(e, local, 20*time.Millisecond)
	a.Start()
	defer a.Stop()

	mustSet(t, local, store.KeyGoals, `[{"id":"auto"}]`)

	rec := waitForRemote(t, rs, 2*time.Second)
	if rec == nil {
		t.Fatal("autosync never pushed")
	}
	if rec.Data[store.KeyGoals] != `[{"id":"auto"}]` {
		t.Errorf("unexpected remote goals: %q", rec.Data[store.KeyGoals])
	}
}

func TestAutoSyncIgnoresSyncOrigin(t *testing.T) {
	e, local, rs := setupTestEngine(t)

	a := NewAutoSync(e, local, 20*time.Millisecond)
	a.Start()
	defer a.Stop()

	if err := local.Replace(context.Background(), store.Snapshot{store.KeyGoals: `[{"id":"pulled"}]`}, store.OriginSync); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if rec := waitForRemote(t, rs, 150*time.Millisecond); rec != nil {
		t.Errorf("sync-origin change should not be pushed back, got %v", rec.Data)
	}
}

func TestAutoSyncStopFlushesPendingPush(t *testing.T) {
	e, local, rs := setupTestEngine(t)

	a := NewAutoSync(e, local, time.Hour)
	a.Start()

	mustSet(t, local, store.KeyGoals, `[{"id":"flushed"}]`)

	// the change travels through the bus asynchronously
	deadline := time.Now().Add(2 * time.Second)
	for !a.debouncer.Pending() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	a.Stop()

	rec, err := rs.Fetch(context.Background(), testUser.ID)
	if err != nil {
		t.Fatalf("expected flushed push, got %v", err)
	}
	if rec.Data[store.KeyGoals] != `[{"id":"flushed"}]` {
		t.Errorf("unexpected remote goals: %q", rec.Data[store.KeyGoals])
	}
}
