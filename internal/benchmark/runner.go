package benchmark

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/remote"
	"github.com/goalritual/goalritual/internal/session"
	"github.com/goalritual/goalritual/internal/store"
	goalsync "github.com/goalritual/goalritual/internal/sync"
)

// Run executes one benchmark.
//
// This seeds a local store with the configured goals, runs concurrent
// writers against it, then times pushes, one merge and one pull against the
// configured remote.
func Run(ctx context.Context, config Config) (*Result, error) {
	def := DefaultConfig()
	if config.Goals <= 0 {
		config.Goals = def.Goals
	}
	if config.MilestonesPerGoal < 0 {
		config.MilestonesPerGoal = 0
	}
	if config.Writers <= 0 {
		config.Writers = def.Writers
	}
	if config.WritesPerWriter <= 0 {
		config.WritesPerWriter = def.WritesPerWriter
	}
	if config.Pushes <= 0 {
		config.Pushes = def.Pushes
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}

	dir := config.Dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "goalritual-bench-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer func() { _ = os.RemoveAll(tmp) }()
		dir = tmp
	}
	if config.Remote.DSN == "" {
		config.Remote = remote.Config{Backend: remote.BackendSQLite, DSN: filepath.Join(dir, "bench-remote.db")}
	}

	memBefore := GetMemoryStats()
	start := time.Now()

	dbPath := filepath.Join(dir, "bench.db")
	_ = os.Remove(dbPath)
	local, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = local.Close() }()

	seedStart := time.Now()
	goals := seedGoals(config.Goals, config.MilestonesPerGoal, seedStart)
	if err := store.WriteSet(ctx, local, store.KeyGoals, goals); err != nil {
		return nil, fmt.Errorf("failed to seed goals: %w", err)
	}
	seedDuration := time.Since(seedStart)

	writeDurations, writeErrors, writeElapsed := runWriters(ctx, local, config)

	rs, err := remote.Open(ctx, config.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote: %w", err)
	}
	defer func() { _ = rs.Close() }()

	engine := goalsync.New(local, rs, nil, &goalsync.Config{Logger: config.Logger, Now: time.Now})
	engine.SetIdentity(&session.User{ID: session.UserIDForEmail(BenchEmail), Email: BenchEmail})

	syncErrors := 0
	pushDurations := make([]time.Duration, 0, config.Pushes)
	for i := 0; i < config.Pushes; i++ {
		t := time.Now()
		if !engine.PushSnapshot(ctx) {
			syncErrors++
		}
		pushDurations = append(pushDurations, time.Since(t))
	}

	t := time.Now()
	if !engine.MergeSnapshot(ctx) {
		syncErrors++
	}
	mergeDuration := time.Since(t)

	t = time.Now()
	if !engine.PullSnapshot(ctx) {
		syncErrors++
	}
	pullDuration := time.Since(t)

	snap, err := local.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	snapBytes := 0
	for _, v := range snap {
		snapBytes += len(v)
	}
	var dbSize int64
	if info, err := os.Stat(dbPath); err == nil {
		dbSize = info.Size()
	}

	totalWrites := len(writeDurations)
	wps := 0.0
	if writeElapsed.Seconds() > 0 {
		wps = float64(totalWrites) / writeElapsed.Seconds()
	}

	errorCount := writeErrors + syncErrors
	ops := totalWrites + config.Pushes + 2
	errorRate := 0.0
	if ops > 0 {
		errorRate = float64(errorCount) / float64(ops)
	}

	return &Result{
		Config: config,
		Write:  ComputeStats(writeDurations),
		Push:   ComputeStats(pushDurations),
		Merge:  mergeDuration,
		Pull:   pullDuration,
		Throughput: ThroughputMetrics{
			WritesPerSecond: wps,
			TotalWrites:     totalWrites,
		},
		Resources: CompareMemoryStats(memBefore, GetMemoryStats()),
		Snapshot: SnapshotMetrics{
			Bytes:       snapBytes,
			SeedTimeMs:  seedDuration.Milliseconds(),
			GoalCount:   len(goals),
			Milestones:  len(goals) * config.MilestonesPerGoal,
			LocalDBSize: dbSize,
		},
		TotalDuration: time.Since(start),
		ErrorCount:    errorCount,
		ErrorRate:     errorRate,
		Success:       errorCount == 0,
	}, nil
}

// seedGoals builds n goals with m milestones each; every third milestone is
// completed.
func seedGoals(n, m int, now time.Time) []model.Goal {
	goals := make([]model.Goal, 0, n)
	for i := 0; i < n; i++ {
		g := model.NewGoal(fmt.Sprintf("Benchmark goal %d", i), now)
		g.Group = fmt.Sprintf("Group %d", i%5)
		g.Tags = []string{fmt.Sprintf("tag-%d", i%7)}
		for j := 0; j < m; j++ {
			ms := model.NewMilestone(fmt.Sprintf("Milestone %d.%d", i, j),
				now.AddDate(0, 0, j*7).Format(model.DateLayout))
			ms.Completed = j%3 == 0
			g.Milestones = append(g.Milestones, ms)
		}
		goals = append(goals, g)
	}
	return goals
}

// runWriters toggles milestones from concurrent writers. Writers overwrite
// each other's edits; only latency is of interest.
func runWriters(ctx context.Context, local *store.Store, config Config) ([]time.Duration, int, time.Duration) {
	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, config.Writers)
	errorsChan := make(chan error, config.Writers)

	start := time.Now()
	for i := 0; i < config.Writers; i++ {
		wg.Add(1)
		go func(writerID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, config.WritesPerWriter)
			for j := 0; j < config.WritesPerWriter; j++ {
				t := time.Now()
				goals := store.ReadSet(ctx, local, store.KeyGoals, []model.Goal{})
				if len(goals) > 0 {
					g := &goals[(writerID+j)%len(goals)]
					if len(g.Milestones) > 0 {
						ms := &g.Milestones[j%len(g.Milestones)]
						ms.Completed = !ms.Completed
					}
				}
				err := store.WriteSet(ctx, local, store.KeyGoals, goals)
				durations = append(durations, time.Since(t))

				if err != nil {
					errorsChan <- fmt.Errorf("writer %d write %d failed: %w", writerID, j, err)
					break
				}
			}
			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)
	close(resultsChan)
	close(errorsChan)

	errorCount := 0
	for range errorsChan {
		errorCount++
	}
	var all []time.Duration
	for durations := range resultsChan {
		all = append(all, durations...)
	}
	return all, errorCount, elapsed
}
