package model

import "time"

// PeriodStart returns the start of the period containing now: midnight for
// daily, Monday midnight for weekly, the first of the month for monthly.
func PeriodStart(c Cadence, now time.Time) time.Time {
	day := StartOfDay(now)
	switch c {
	case CadenceWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case CadenceMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	default:
		return day
	}
}

// ResetIfDue starts a new period when the last reset predates the current
// one: completion flags are zeroed and, if every task of the closing period
// was done, CompletionCount is incremented. A group that has never been
// reset is only stamped. Groups whose StartDate lies in the future are left
// alone. It reports whether the group changed.
func (r *RecurringTaskGroup) ResetIfDue(now time.Time) bool {
	if r.StartDate != "" {
		if start, ok := ParseDate(r.StartDate, now.Location()); ok && now.Before(start) {
			return false
		}
	}

	if r.LastReset == nil {
		stamp := now
		r.LastReset = &stamp
		return true
	}
	if !r.LastReset.Before(PeriodStart(r.Cadence, now)) {
		return false
	}

	done, total := TaskProgress(r.Tasks)
	if total > 0 && done == total {
		r.CompletionCount++
	}
	for i := range r.Tasks {
		r.Tasks[i].Completed = false
	}
	stamp := now
	r.LastReset = &stamp
	return true
}

// ResetRecurring applies ResetIfDue to every group and returns how many
// groups changed.
func ResetRecurring(groups []RecurringTaskGroup, now time.Time) int {
	changed := 0
	for i := range groups {
		if groups[i].ResetIfDue(now) {
			changed++
		}
	}
	return changed
}

// ResetDailyTodos starts a new day for the daily to-do list: when lastReset
// is not today's date, completed items are dropped and unfinished ones carry
// over. It returns the new list, the new marker and whether anything changed.
func ResetDailyTodos(todos []DailyTodo, lastReset string, now time.Time) ([]DailyTodo, string, bool) {
	today := now.Format(DateLayout)
	if lastReset == today {
		return todos, lastReset, false
	}
	kept := make([]DailyTodo, 0, len(todos))
	for _, t := range todos {
		if !t.Completed {
			kept = append(kept, t)
		}
	}
	return kept, today, true
}
