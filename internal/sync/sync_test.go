package sync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/goalritual/goalritual/internal/remote"
	"github.com/goalritual/goalritual/internal/session"
	"github.com/goalritual/goalritual/internal/store"
)

var testUser = &session.User{ID: "user-1", Email: "ada@example.com"}

func quietConfig() *Config {
	return &Config{Logger: log.New(io.Discard, "", 0), Now: time.Now}
}

// setupTestStore opens a local store in a temp directory.
func setupTestStore(t *testing.T, name string) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), name+".db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// setupTestRemote opens a SQLite snapshot table in a temp directory.
func setupTestRemote(t *testing.T) remote.Store {
	t.Helper()
	rs, err := remote.Open(context.Background(), remote.Config{
		Backend: remote.BackendSQLite,
		DSN:     filepath.Join(t.TempDir(), "remote.db"),
	})
	if err != nil {
		t.Fatalf("failed to open remote: %v", err)
	}
	t.Cleanup(func() { rs.Close() })
	return rs
}

// setupTestEngine returns a signed-in engine over fresh stores.
func setupTestEngine(t *testing.T) (*Engine, *store.Store, remote.Store) {
	t.Helper()
	local := setupTestStore(t, "local")
	rs := setupTestRemote(t)
	e := New(local, rs, nil, quietConfig())
	e.SetIdentity(testUser)
	return e, local, rs
}

func mustSet(t *testing.T, s *store.Store, key, value string) {
	t.Helper()
	if err := s.Set(context.Background(), key, value, store.OriginLocal); err != nil {
		t.Fatalf("failed to set %s: %v", key, err)
	}
}

func ids(t *testing.T, raw string) []string {
	t.Helper()
	var out []string
	for _, id := range gjson.Get(raw, "#.id").Array() {
		out = append(out, id.String())
	}
	return out
}

type staticVerifier struct {
	id  string
	err error
}

func (v staticVerifier) CurrentUserID(context.Context) (string, error) {
	return v.id, v.err
}

func TestOperationsWithoutIdentity(t *testing.T) {
	local := setupTestStore(t, "local")
	rs := setupTestRemote(t)
	var logs bytes.Buffer
	e := New(local, rs, nil, &Config{Logger: log.New(&logs, "", 0), Now: time.Now})
	ctx := context.Background()

	mustSet(t, local, store.KeyGoals, `[{"id":"g1"}]`)

	if e.PushSnapshot(ctx) {
		t.Error("push without identity should report false")
	}
	if e.PullSnapshot(ctx) {
		t.Error("pull without identity should report false")
	}
	if e.MergeSnapshot(ctx) {
		t.Error("merge without identity should report false")
	}
	if _, err := rs.Fetch(ctx, testUser.ID); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("remote should be untouched, got %v", err)
	}
	if got := e.Status().Status; got != StatusOffline {
		t.Errorf("expected offline, got %s", got)
	}
	for _, op := range []string{"push", "pull", "merge"} {
		if !strings.Contains(logs.String(), "Skipping "+op+": no sync identity") {
			t.Errorf("expected a log line for %s, got %q", op, logs.String())
		}
	}
}

func TestPushThenFetch(t *testing.T) {
	e, local, rs := setupTestEngine(t)
	ctx := context.Background()

	mustSet(t, local, store.KeyGoals, `[{"id":"g1","title":"Run"}]`)
	mustSet(t, local, store.KeyLifePurpose, "Be useful")

	if !e.PushSnapshot(ctx) {
		t.Fatal("push failed")
	}

	rec, err := rs.Fetch(ctx, testUser.ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if rec.Data[store.KeyGoals] != `[{"id":"g1","title":"Run"}]` || rec.Data[store.KeyLifePurpose] != "Be useful" {
		t.Errorf("unexpected remote data: %v", rec.Data)
	}
	if st := e.Status(); st.Status != StatusSynced || st.LastSynced.IsZero() {
		t.Errorf("expected synced with timestamp, got %+v", st)
	}
}

func TestPushIsIdempotent(t *testing.T) {
	e, local, rs := setupTestEngine(t)
	ctx := context.Background()

	mustSet(t, local, store.KeyGoals, `[{"id":"g1"}]`)
	mustSet(t, local, store.KeyJournal, `[{"id":"j1","text":"day one"}]`)

	if !e.PushSnapshot(ctx) {
		t.Fatal("first push failed")
	}
	first, err := rs.Fetch(ctx, testUser.ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !e.PushSnapshot(ctx) {
		t.Fatal("second push failed")
	}
	second, err := rs.Fetch(ctx, testUser.ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(first.Data) != len(second.Data) {
		t.Fatalf("dataset count changed: %d vs %d", len(first.Data), len(second.Data))
	}
	for k, v := range first.Data {
		if second.Data[k] != v {
			t.Errorf("dataset %s changed: %q vs %q", k, v, second.Data[k])
		}
	}
}

func TestPullOverwritesLocal(t *testing.T) {
	e, local, rs := setupTestEngine(t)
	ctx := context.Background()

	if err := rs.Upsert(ctx, &remote.Record{UserID: testUser.ID, Data: store.Snapshot{
		store.KeyGoals: `[{"id":"remote"}]`,
	}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	mustSet(t, local, store.KeyGoals, `[{"id":"local"}]`)
	mustSet(t, local, store.KeyLifePurpose, "local only")

	if !e.PullSnapshot(ctx) {
		t.Fatal("pull failed")
	}

	snap, err := local.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap[store.KeyGoals] != `[{"id":"remote"}]` {
		t.Errorf("goals not overwritten: %q", snap[store.KeyGoals])
	}
	if _, ok := snap[store.KeyLifePurpose]; ok {
		t.Error("dataset absent remotely should be removed locally")
	}
}

func TestPullWithoutRemoteClearsLocal(t *testing.T) {
	e, local, _ := setupTestEngine(t)
	ctx := context.Background()

	mustSet(t, local, store.KeyGoals, `[{"id":"previous-user"}]`)

	if !e.PullSnapshot(ctx) {
		t.Fatal("pull failed")
	}
	snap, err := local.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("expected local store cleared, got %v", snap)
	}
}

func TestMergeLaw(t *testing.T) {
	e, local, rs := setupTestEngine(t)
	ctx := context.Background()

	if err := rs.Upsert(ctx, &remote.Record{UserID: testUser.ID, Data: store.Snapshot{
		store.KeyGoals:       `[{"id":"r1","title":"remote one"},{"id":"shared","title":"remote version"}]`,
		store.KeyLifePurpose: "remote purpose",
	}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	mustSet(t, local, store.KeyGoals, `[{"id":"shared","title":"local version"},{"id":"l1","title":"local one"}]`)
	mustSet(t, local, store.KeyLifePurpose, "local purpose")
	mustSet(t, local, store.KeyJournal, `[{"id":"j1"}]`)

	if !e.MergeSnapshot(ctx) {
		t.Fatal("merge failed")
	}

	snap, err := local.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	got := ids(t, snap[store.KeyGoals])
	want := []string{"r1", "shared", "l1"}
	if len(got) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("id %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if title := gjson.Get(snap[store.KeyGoals], `#(id=="shared").title`).String(); title != "remote version" {
		t.Errorf("remote item must not be replaced by local duplicate, got %q", title)
	}

	// scalar datasets prefer remote; a local edit is dropped
	if snap[store.KeyLifePurpose] != "remote purpose" {
		t.Errorf("expected remote purpose, got %q", snap[store.KeyLifePurpose])
	}
	if snap[store.KeyJournal] != `[{"id":"j1"}]` {
		t.Errorf("local-only dataset should survive, got %q", snap[store.KeyJournal])
	}

	rec, err := rs.Fetch(ctx, testUser.ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	for k, v := range snap {
		if rec.Data[k] != v {
			t.Errorf("remote %s not converged: %q vs %q", k, rec.Data[k], v)
		}
	}
}

func TestMergeWithoutRemoteKeepsLocal(t *testing.T) {
	e, local, rs := setupTestEngine(t)
	ctx := context.Background()

	mustSet(t, local, store.KeyGoals, `[{"id":"g1"}]`)
	if !e.MergeSnapshot(ctx) {
		t.Fatal("merge failed")
	}
	rec, err := rs.Fetch(ctx, testUser.ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if rec.Data[store.KeyGoals] != `[{"id":"g1"}]` {
		t.Errorf("unexpected remote goals: %q", rec.Data[store.KeyGoals])
	}
}

func TestMergeSnapshotsDeduplicates(t *testing.T) {
	merged := MergeSnapshots(
		store.Snapshot{store.KeyGoals: `[{"id":"a"},{"id":"a"},{"id":"b"}]`},
		store.Snapshot{store.KeyGoals: `[{"id":"b"},{"id":"c"}]`},
	)
	got := gjson.Get(merged[store.KeyGoals], "#.id").Array()
	if len(got) != 3 || got[0].String() != "b" || got[1].String() != "c" || got[2].String() != "a" {
		t.Errorf("unexpected merge: %s", merged[store.KeyGoals])
	}
}

func TestTextDatasetsSurviveSync(t *testing.T) {
	merged := MergeSnapshots(store.Snapshot{store.KeyLifePurpose: "null"}, nil)
	if merged[store.KeyLifePurpose] != "null" {
		t.Errorf("expected merge to keep local text, got %v", merged)
	}
	merged = MergeSnapshots(store.Snapshot{store.KeyLifePurpose: "local"}, store.Snapshot{store.KeyLifePurpose: "[]"})
	if merged[store.KeyLifePurpose] != "[]" {
		t.Errorf("expected merge to prefer remote text, got %v", merged)
	}

	e, local, _ := setupTestEngine(t)
	ctx := context.Background()
	mustSet(t, local, store.KeyLifePurpose, "{}")

	if !e.PushSnapshot(ctx) {
		t.Fatal("push failed")
	}
	if err := local.Clear(ctx, store.OriginLocal); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if !e.PullSnapshot(ctx) {
		t.Fatal("pull failed")
	}
	if got := store.ReadSet(ctx, local, store.KeyLifePurpose, "<fallback>"); got != "{}" {
		t.Errorf("expected pulled life purpose %q, got %q", "{}", got)
	}
}

func TestMergeSnapshotsCorruptRemoteList(t *testing.T) {
	merged := MergeSnapshots(
		store.Snapshot{store.KeyGoals: `[{"id":"a"}]`},
		store.Snapshot{store.KeyGoals: `[{"id":`},
	)
	if merged[store.KeyGoals] != `[{"id":"a"}]` {
		t.Errorf("expected local list when remote is corrupt, got %q", merged[store.KeyGoals])
	}
}

func TestIdentityMismatchAborts(t *testing.T) {
	local := setupTestStore(t, "local")
	rs := setupTestRemote(t)
	e := New(local, rs, staticVerifier{id: "someone-else"}, quietConfig())
	e.SetIdentity(testUser)
	ctx := context.Background()

	mustSet(t, local, store.KeyGoals, `[{"id":"g1"}]`)

	if e.PushSnapshot(ctx) {
		t.Fatal("push should fail on identity mismatch")
	}
	if _, err := rs.Fetch(ctx, testUser.ID); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("nothing should be written remotely, got %v", err)
	}
	if e.PullSnapshot(ctx) {
		t.Error("pull should fail on identity mismatch")
	}
	if _, ok, _ := local.Get(ctx, store.KeyGoals); !ok {
		t.Error("aborted pull must not clear local data")
	}
	st := e.Status()
	if st.Status != StatusError || st.Error == "" {
		t.Errorf("expected error status, got %+v", st)
	}
}

func TestInvalidSessionAborts(t *testing.T) {
	local := setupTestStore(t, "local")
	rs := setupTestRemote(t)
	e := New(local, rs, staticVerifier{err: session.ErrExpired}, quietConfig())
	e.SetIdentity(testUser)

	if e.PushSnapshot(context.Background()) {
		t.Fatal("push should fail with an invalid session")
	}
}

// Two processes push inside the same debounce window; the later push is the
// remote state and the earlier process's unique edit is lost.
func TestLastFullWriteWins(t *testing.T) {
	rs := setupTestRemote(t)
	ctx := context.Background()

	localA := setupTestStore(t, "a")
	localB := setupTestStore(t, "b")
	a := New(localA, rs, nil, quietConfig())
	b := New(localB, rs, nil, quietConfig())
	a.SetIdentity(testUser)
	b.SetIdentity(testUser)

	mustSet(t, localA, store.KeyGoals, `[{"id":"only-in-a"}]`)
	mustSet(t, localA, store.KeyLifePurpose, "A's purpose")
	mustSet(t, localB, store.KeyGoals, `[{"id":"only-in-b"}]`)

	if !a.PushSnapshot(ctx) {
		t.Fatal("push A failed")
	}
	if !b.PushSnapshot(ctx) {
		t.Fatal("push B failed")
	}

	rec, err := rs.Fetch(ctx, testUser.ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	snapB, err := localB.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(rec.Data) != len(snapB) {
		t.Fatalf("remote should equal B's snapshot: %v vs %v", rec.Data, snapB)
	}
	for k, v := range snapB {
		if rec.Data[k] != v {
			t.Errorf("remote %s = %q, want B's %q", k, rec.Data[k], v)
		}
	}
	if _, ok := rec.Data[store.KeyLifePurpose]; ok {
		t.Error("A's unique edit should be lost")
	}
}

// blockingRemote holds each Upsert until the test releases it.
type blockingRemote struct {
	remote.Store

	entered chan store.Snapshot
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (b *blockingRemote) Upsert(ctx context.Context, rec *remote.Record) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	b.entered <- rec.Data
	<-b.release
	return b.Store.Upsert(ctx, rec)
}

func (b *blockingRemote) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestPushCoalescing(t *testing.T) {
	local := setupTestStore(t, "local")
	br := &blockingRemote{
		Store:   setupTestRemote(t),
		entered: make(chan store.Snapshot),
		release: make(chan struct{}),
	}
	e := New(local, br, nil, quietConfig())
	e.SetIdentity(testUser)
	ctx := context.Background()

	mustSet(t, local, store.KeyGoals, `[{"id":"first"}]`)

	done := make(chan bool, 1)
	go func() { done <- e.PushSnapshot(ctx) }()

	var firstSnap store.Snapshot
	select {
	case firstSnap = <-br.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first push never reached the remote")
	}

	mustSet(t, local, store.KeyGoals, `[{"id":"second"}]`)

	if !e.PushSnapshot(ctx) {
		t.Error("request during in-flight push should be accepted")
	}
	if !e.PushSnapshot(ctx) {
		t.Error("extra request should be folded into the follow-up")
	}

	br.release <- struct{}{}

	var followUp store.Snapshot
	select {
	case followUp = <-br.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up push never ran")
	}
	br.release <- struct{}{}

	select {
	case ok := <-done:
		if !ok {
			t.Error("in-flight push reported failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight push never returned")
	}

	if firstSnap[store.KeyGoals] != `[{"id":"first"}]` {
		t.Errorf("unexpected first snapshot: %v", firstSnap)
	}
	if followUp[store.KeyGoals] != `[{"id":"second"}]` {
		t.Errorf("follow-up should carry a fresh snapshot, got %v", followUp)
	}
	if calls := br.Calls(); calls != 2 {
		t.Errorf("expected exactly 2 uploads, got %d", calls)
	}
}

func TestStatusTransitions(t *testing.T) {
	e, local, _ := setupTestEngine(t)
	mustSet(t, local, store.KeyGoals, `[{"id":"g1"}]`)

	var mu sync.Mutex
	var seen []Status
	cancel := e.OnStatus(func(ev StatusEvent) {
		mu.Lock()
		seen = append(seen, ev.Status)
		mu.Unlock()
	})
	defer cancel()

	if !e.PushSnapshot(context.Background()) {
		t.Fatal("push failed")
	}
	e.SignOut()

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusSyncing, StatusSynced, StatusOffline}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestSignInStrategies(t *testing.T) {
	ctx := context.Background()

	t.Run("push", func(t *testing.T) {
		local := setupTestStore(t, "local")
		rs := setupTestRemote(t)
		e := New(local, rs, nil, quietConfig())
		mustSet(t, local, store.KeyGoals, `[{"id":"local"}]`)

		if !e.SignIn(ctx, testUser, StrategyPush) {
			t.Fatal("sign-in push failed")
		}
		rec, err := rs.Fetch(ctx, testUser.ID)
		if err != nil || rec.Data[store.KeyGoals] != `[{"id":"local"}]` {
			t.Errorf("expected local goals pushed, got %v (%v)", rec, err)
		}
	})

	t.Run("pull", func(t *testing.T) {
		local := setupTestStore(t, "local")
		rs := setupTestRemote(t)
		e := New(local, rs, nil, quietConfig())
		if err := rs.Upsert(ctx, &remote.Record{UserID: testUser.ID, Data: store.Snapshot{
			store.KeyGoals: `[{"id":"remote"}]`,
		}}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		if !e.SignIn(ctx, testUser, StrategyPull) {
			t.Fatal("sign-in pull failed")
		}
		if v, _, _ := local.Get(ctx, store.KeyGoals); v != `[{"id":"remote"}]` {
			t.Errorf("expected remote goals locally, got %q", v)
		}
	})

	t.Run("sign out keeps local data", func(t *testing.T) {
		e, local, _ := setupTestEngine(t)
		mustSet(t, local, store.KeyGoals, `[{"id":"kept"}]`)
		e.SignOut()
		if e.PushSnapshot(ctx) {
			t.Error("push after sign out should be a no-op")
		}
		if _, ok, _ := local.Get(ctx, store.KeyGoals); !ok {
			t.Error("sign out must not clear local data")
		}
	})
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"pull": StrategyPull, " Merge ": StrategyMerge, "": StrategyMerge, "push": StrategyPush} {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseStrategy("sideways"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestFollowSessionManager(t *testing.T) {
	local := setupTestStore(t, "local")
	rs := setupTestRemote(t)
	m := session.NewManager("")
	e := New(local, rs, m, quietConfig())

	stop := e.Follow(m)
	defer stop()

	if e.Identity() != nil {
		t.Fatal("expected no identity before sign in")
	}

	s, err := session.NewSession("ada@example.com", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := m.SignIn(s); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if id := e.Identity(); id == nil || id.ID != s.User.ID {
		t.Fatalf("engine did not follow sign in: %+v", id)
	}

	mustSet(t, local, store.KeyGoals, `[{"id":"g1"}]`)
	if !e.PushSnapshot(context.Background()) {
		t.Error("push with a valid session should succeed")
	}

	if err := m.SignOut(); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if e.Identity() != nil {
		t.Error("engine did not follow sign out")
	}
}
