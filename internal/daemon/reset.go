package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/store"
)

// ResetResult reports what ApplyResets changed.
type ResetResult struct {
	// RecurringGroups is the number of standalone recurring groups reset.
	RecurringGroups int
	// GoalGroups is the number of recurring groups inside goals reset.
	GoalGroups int
	// DailyTodosReset is true when a new day started for the to-do list.
	DailyTodosReset bool
	// DroppedTodos is the number of completed to-dos removed.
	DroppedTodos int
}

// Changed reports whether anything was written.
func (r ResetResult) Changed() bool {
	return r.RecurringGroups > 0 || r.GoalGroups > 0 || r.DailyTodosReset
}

// ApplyResets starts new periods for recurring task groups (standalone and
// inside goals) and a new day for the daily to-do list. Writes use origin
// reset so they are pushed like local edits.
func ApplyResets(ctx context.Context, local *store.Store, now time.Time) (ResetResult, error) {
	var res ResetResult

	groups := store.ReadSet(ctx, local, store.KeyRecurringTasks, []model.RecurringTaskGroup{})
	if n := model.ResetRecurring(groups, now); n > 0 {
		if err := store.WriteSetFrom(ctx, local, store.KeyRecurringTasks, groups, store.OriginReset); err != nil {
			return res, fmt.Errorf("failed to write recurring tasks: %w", err)
		}
		res.RecurringGroups = n
	}

	goals := store.ReadSet(ctx, local, store.KeyGoals, []model.Goal{})
	for i := range goals {
		res.GoalGroups += model.ResetRecurring(goals[i].RecurringTasks, now)
	}
	if res.GoalGroups > 0 {
		if err := store.WriteSetFrom(ctx, local, store.KeyGoals, goals, store.OriginReset); err != nil {
			return res, fmt.Errorf("failed to write goals: %w", err)
		}
	}

	todos := store.ReadSet(ctx, local, store.KeyDailyTodos, []model.DailyTodo{})
	last := store.ReadSet(ctx, local, store.KeyDailyTodosReset, "")
	kept, marker, changed := model.ResetDailyTodos(todos, last, now)
	if changed {
		if err := store.WriteSetFrom(ctx, local, store.KeyDailyTodos, kept, store.OriginReset); err != nil {
			return res, fmt.Errorf("failed to write daily todos: %w", err)
		}
		if err := store.WriteSetFrom(ctx, local, store.KeyDailyTodosReset, marker, store.OriginReset); err != nil {
			return res, fmt.Errorf("failed to write daily todo marker: %w", err)
		}
		res.DailyTodosReset = true
		res.DroppedTodos = len(todos) - len(kept)
	}

	return res, nil
}
