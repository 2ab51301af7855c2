package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/store"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// setupTestServer starts a server on a random port.
func setupTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0, Logger: quietLogger()})
	return server
}

func startServer(t *testing.T, server *Server) {
	t.Helper()
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "goalritual.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// waitForClients polls until the server has registered n clients.
func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if server.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", n, server.ClientCount())
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return msg
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ MessageType) Message {
	t.Helper()
	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestServerStartStop(t *testing.T) {
	server := setupTestServer(t)
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" || addr == "127.0.0.1:0" {
		t.Fatalf("unexpected listen address %q", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(t)

	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("health body is not JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	server := setupTestServer(t)
	startServer(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conns := []*websocket.Conn{dial(t, ctx, server), dial(t, ctx, server), dial(t, ctx, server)}
	waitForClients(t, server, len(conns))

	data, _ := json.Marshal(store.Change{Key: store.KeyGoals, Origin: store.OriginLocal})
	server.Broadcast(Message{Type: MessageTypeDatasetChanged, Data: data})

	for i, conn := range conns {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeDatasetChanged {
			t.Errorf("client %d: expected %s, got %s", i, MessageTypeDatasetChanged, msg.Type)
		}
		if msg.Timestamp.IsZero() {
			t.Errorf("client %d: timestamp not set", i)
		}
		var c store.Change
		if err := json.Unmarshal(msg.Data, &c); err != nil || c.Key != store.KeyGoals {
			t.Errorf("client %d: unexpected payload %s", i, msg.Data)
		}
	}
}

func TestClientDisconnectIsRemoved(t *testing.T) {
	server := setupTestServer(t)
	startServer(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	waitForClients(t, server, 1)

	conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, server, 0)
}

func sampleGoals() []model.Goal {
	done, open := true, false
	return []model.Goal{
		{
			ID:    "g1",
			Title: "Run a marathon",
			Group: "Health",
			Tags:  []string{"fitness"},
			Milestones: []model.Milestone{
				{ID: "m1", Title: "Buy shoes", Completed: done},
				{ID: "m2", Title: "Run 10k", Completed: open, TargetDate: "2026-03-01"},
			},
		},
		{
			ID:         "g2",
			Title:      "Read 20 books",
			TargetDate: "2026-03-12",
			Milestones: []model.Milestone{
				{ID: "m3", Title: "Book one", Completed: done},
			},
		},
		{ID: "g3", Title: "Old plan", Archived: true},
	}
}

func TestComputeStats(t *testing.T) {
	st := ComputeStats(sampleGoals(), testNow)

	if st.Total != 3 || st.Archived != 1 {
		t.Errorf("unexpected totals: %+v", st)
	}
	if st.Completed != 1 || st.Active != 1 {
		t.Errorf("unexpected completion counts: %+v", st)
	}
	if st.AverageProgress != 75 {
		t.Errorf("expected average progress 75, got %d", st.AverageProgress)
	}
	if st.OverdueMilestones != 1 {
		t.Errorf("expected 1 overdue milestone, got %d", st.OverdueMilestones)
	}
}

func TestOverviewSkipsArchived(t *testing.T) {
	groups := Overview(sampleGoals(), []string{"Health"}, testNow)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Name != "Health" || groups[0].Goals[0].ID != "g1" {
		t.Errorf("unexpected first group: %+v", groups[0])
	}
	if groups[1].Name != "" || len(groups[1].Goals) != 1 || groups[1].Goals[0].ID != "g2" {
		t.Errorf("unexpected ungrouped bucket: %+v", groups[1])
	}
	if groups[1].Goals[0].DaysRemaining == "" {
		t.Error("expected a days remaining label for a dated goal")
	}
}

func TestHandlerWelcomeCarriesStats(t *testing.T) {
	local := setupTestStore(t)
	ctx := context.Background()
	if err := store.WriteSet(ctx, local, store.KeyGoals, sampleGoals()); err != nil {
		t.Fatalf("failed to seed goals: %v", err)
	}

	server := setupTestServer(t)
	handler := NewHandler(server, local, quietLogger())
	handler.RefreshStats(ctx)
	startServer(t, server)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("expected welcome of type %s, got %s", MessageTypeStats, msg.Type)
	}
	var st StatsData
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		t.Fatalf("failed to unmarshal stats: %v", err)
	}
	if st.Total != 3 {
		t.Errorf("expected 3 goals in welcome stats, got %d", st.Total)
	}
}

func TestHandlerForwardsStoreChanges(t *testing.T) {
	local := setupTestStore(t)
	server := setupTestServer(t)
	handler := NewHandler(server, local, quietLogger())
	startServer(t, server)

	stop := handler.Watch(nil)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn) // welcome
	waitForClients(t, server, 1)

	if err := store.WriteSet(context.Background(), local, store.KeyGoals, sampleGoals()); err != nil {
		t.Fatalf("failed to write goals: %v", err)
	}

	msg := readUntil(t, ctx, conn, MessageTypeDatasetChanged)
	var c store.Change
	if err := json.Unmarshal(msg.Data, &c); err != nil {
		t.Fatalf("failed to unmarshal change: %v", err)
	}
	if c.Key != store.KeyGoals || c.Origin != store.OriginLocal {
		t.Errorf("unexpected change: %+v", c)
	}

	msg = readUntil(t, ctx, conn, MessageTypeStats)
	var st StatsData
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		t.Fatalf("failed to unmarshal stats: %v", err)
	}
	if st.Total != 3 {
		t.Errorf("expected refreshed stats with 3 goals, got %+v", st)
	}
	if got := handler.GetStats(); got.Total != 3 {
		t.Errorf("GetStats not refreshed: %+v", got)
	}
}

func TestHandlerRoutes(t *testing.T) {
	local := setupTestStore(t)
	ctx := context.Background()
	if err := store.WriteSet(ctx, local, store.KeyGoals, sampleGoals()); err != nil {
		t.Fatalf("failed to seed goals: %v", err)
	}

	server := setupTestServer(t)
	handler := NewHandler(server, local, quietLogger())
	handler.now = func() time.Time { return testNow }
	handler.Register(server.Mux())

	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/goals", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var overview struct {
		Groups []GroupSummary `json:"groups"`
		Tags   []string       `json:"tags"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &overview); err != nil {
		t.Fatalf("failed to decode overview: %v", err)
	}
	if len(overview.Groups) != 2 || len(overview.Tags) != 1 || overview.Tags[0] != "fitness" {
		t.Errorf("unexpected overview: %+v", overview)
	}

	rec = httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/sync, got %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode sync status: %v", err)
	}
	if status["status"] != "offline" {
		t.Errorf("expected offline without an engine, got %v", status)
	}
}
