package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/store"
	goalsync "github.com/goalritual/goalritual/internal/sync"
)

// StatsData contains goal statistics
type StatsData struct {
	Total             int `json:"total"`
	Active            int `json:"active"`
	Completed         int `json:"completed"`
	Archived          int `json:"archived"`
	AverageProgress   int `json:"average_progress"`
	OverdueMilestones int `json:"overdue_milestones"`
	DueSoonMilestones int `json:"due_soon_milestones"`
}

// GoalSummary is one row of the goals overview.
type GoalSummary struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Progress      int      `json:"progress"`
	Completed     bool     `json:"completed"`
	TargetDate    string   `json:"target_date,omitempty"`
	DaysRemaining string   `json:"days_remaining,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// GroupSummary is a named bucket of goal summaries.
type GroupSummary struct {
	Name  string        `json:"name"`
	Goals []GoalSummary `json:"goals"`
}

// ComputeStats derives statistics from the goal list.
func ComputeStats(goals []model.Goal, now time.Time) StatsData {
	var st StatsData
	progressSum, progressCount := 0, 0

	for i := range goals {
		g := &goals[i]
		st.Total++
		if g.Archived {
			st.Archived++
			continue
		}
		if model.IsGoalCompleted(g) {
			st.Completed++
		} else {
			st.Active++
		}
		if g.ProgressEnabled() {
			progressSum += model.EffectiveProgress(g, goals)
			progressCount++
		}
		for j := range g.Milestones {
			switch model.ClassifyDue(&g.Milestones[j], now) {
			case model.Overdue:
				st.OverdueMilestones++
			case model.DueSoon:
				st.DueSoonMilestones++
			}
		}
	}
	if progressCount > 0 {
		st.AverageProgress = progressSum / progressCount
	}
	return st
}

// Overview groups goals the way the goal list shows them.
func Overview(goals []model.Goal, order []string, now time.Time) []GroupSummary {
	groups := model.GroupGoals(goals, order)
	out := make([]GroupSummary, 0, len(groups))
	for _, grp := range groups {
		gs := GroupSummary{Name: grp.Name, Goals: make([]GoalSummary, 0, len(grp.Goals))}
		for i := range grp.Goals {
			g := &grp.Goals[i]
			if g.Archived {
				continue
			}
			sum := GoalSummary{
				ID:         g.ID,
				Title:      g.Title,
				Progress:   model.EffectiveProgress(g, goals),
				Completed:  model.IsGoalCompleted(g),
				TargetDate: g.TargetDate,
				Tags:       g.Tags,
			}
			if g.TargetDate != "" {
				sum.DaysRemaining = model.DaysRemainingLabel(g.TargetDate, now)
			}
			gs.Goals = append(gs.Goals, sum)
		}
		if len(gs.Goals) > 0 {
			out = append(out, gs)
		}
	}
	return out
}

// Handler bridges store changes and sync status transitions to dashboard
// broadcasts, and serves the goals overview.
type Handler struct {
	server *Server
	local  *store.Store
	logger *log.Logger
	now    func() time.Time

	mu     sync.Mutex
	stats  StatsData
	engine *goalsync.Engine
}

// NewHandler creates a handler connected to a dashboard server. It sets the
// server's welcome message to the current statistics.
func NewHandler(server *Server, local *store.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = DefaultConfig().Logger
	}
	h := &Handler{
		server: server,
		local:  local,
		logger: logger,
		now:    time.Now,
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// Register mounts the JSON routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/goals", h.handleGoals)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /api/sync", h.handleSync)
}

// Watch forwards local store changes and, when engine is not nil, its status
// transitions until the returned stop function is called.
func (h *Handler) Watch(engine *goalsync.Engine) (stop func()) {
	h.RefreshStats(context.Background())

	ch := h.local.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for c := range ch {
			h.OnDatasetChanged(c)
		}
	}()

	cancelStatus := func() {}
	if engine != nil {
		h.mu.Lock()
		h.engine = engine
		h.mu.Unlock()
		cancelStatus = engine.OnStatus(h.OnSyncStatus)
	}

	return func() {
		cancelStatus()
		h.mu.Lock()
		h.engine = nil
		h.mu.Unlock()
		h.local.Unsubscribe(ch)
		wg.Wait()
	}
}

// OnDatasetChanged broadcasts one store change. Goal writes also refresh
// and broadcast the statistics.
func (h *Handler) OnDatasetChanged(c store.Change) {
	h.logger.Printf("Dataset changed: %s (%s)", c.Key, c.Origin)
	h.send(MessageTypeDatasetChanged, c)

	if c.Key == store.KeyGoals {
		h.RefreshStats(context.Background())
		h.server.Broadcast(h.statsMessage())
	}
}

// OnSyncStatus broadcasts a sync status transition.
func (h *Handler) OnSyncStatus(ev goalsync.StatusEvent) {
	h.send(MessageTypeSyncStatus, ev)
}

// RefreshStats recomputes the statistics from the store.
func (h *Handler) RefreshStats(ctx context.Context) StatsData {
	goals := store.ReadSet(ctx, h.local, store.KeyGoals, []model.Goal{})
	st := ComputeStats(goals, h.now())

	h.mu.Lock()
	h.stats = st
	h.mu.Unlock()
	return st
}

// GetStats returns the last computed statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) statsMessage() Message {
	data, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}

func (h *Handler) handleGoals(w http.ResponseWriter, r *http.Request) {
	goals := store.ReadSet(r.Context(), h.local, store.KeyGoals, []model.Goal{})
	order := store.ReadSet(r.Context(), h.local, store.KeyGroupOrder, []string{})
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": Overview(goals, order, h.now()),
		"tags":   model.AllTags(goals),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.RefreshStats(r.Context()))
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	engine := h.engine
	h.mu.Unlock()

	if engine == nil {
		writeJSON(w, http.StatusOK, goalsync.StatusEvent{Status: goalsync.StatusOffline})
		return
	}
	writeJSON(w, http.StatusOK, engine.Status())
}
