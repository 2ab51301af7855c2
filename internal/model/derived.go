package model

import (
	"math"
	"sort"
)

// CalculateProgress returns the share of completed milestones as an integer
// percentage in [0, 100]. A goal without milestones has 0 progress.
func CalculateProgress(g *Goal) int {
	if len(g.Milestones) == 0 {
		return 0
	}
	done := 0
	for _, m := range g.Milestones {
		if m.Completed {
			done++
		}
	}
	return percent(done, len(g.Milestones))
}

// EffectiveProgress is CalculateProgress with linked milestones resolved
// through MilestoneCompleted.
func EffectiveProgress(g *Goal, goals []Goal) int {
	if len(g.Milestones) == 0 {
		return 0
	}
	done := 0
	for i := range g.Milestones {
		if MilestoneCompleted(&g.Milestones[i], goals) {
			done++
		}
	}
	return percent(done, len(g.Milestones))
}

// TaskProgress counts completed and total tasks, skipping separator rows.
func TaskProgress(tasks []Task) (done, total int) {
	for _, t := range tasks {
		if t.IsSeparator {
			continue
		}
		total++
		if t.Completed {
			done++
		}
	}
	return done, total
}

// IsGoalCompleted reports whether a goal has at least one milestone, every
// milestone is completed, and progress tracking is enabled.
func IsGoalCompleted(g *Goal) bool {
	if !g.ProgressEnabled() || len(g.Milestones) == 0 {
		return false
	}
	for _, m := range g.Milestones {
		if !m.Completed {
			return false
		}
	}
	return true
}

// MilestoneCompleted is the single resolution rule for a milestone's
// effective completion. A milestone linked to an existing goal mirrors that
// goal's IsGoalCompleted; an unlinked milestone, or one whose linked goal no
// longer exists, uses its own Completed flag.
func MilestoneCompleted(m *Milestone, goals []Goal) bool {
	if m.LinkedGoalID == "" {
		return m.Completed
	}
	linked, _ := FindGoal(goals, m.LinkedGoalID)
	if linked == nil {
		return m.Completed
	}
	return IsGoalCompleted(linked)
}

// NegativelyImpactedBy returns every other goal that threatens target:
// goals listing target's id in NegativeImpactOn and goals flagged
// NegativeImpactOnAll. Order follows goals.
func NegativelyImpactedBy(target *Goal, goals []Goal) []Goal {
	var out []Goal
	for _, g := range goals {
		if g.ID == target.ID {
			continue
		}
		if g.NegativeImpactOnAll || contains(g.NegativeImpactOn, target.ID) {
			out = append(out, g)
		}
	}
	return out
}

// NegativelyImpacts returns the goals that source threatens. With
// NegativeImpactOnAll set that is every other goal.
func NegativelyImpacts(source *Goal, goals []Goal) []Goal {
	var out []Goal
	for _, g := range goals {
		if g.ID == source.ID {
			continue
		}
		if source.NegativeImpactOnAll || contains(source.NegativeImpactOn, g.ID) {
			out = append(out, g)
		}
	}
	return out
}

// SupportingGoals returns the goals referenced through linkedGoalId by any
// of g's milestones, in milestone order and without duplicates.
func SupportingGoals(g *Goal, goals []Goal) []Goal {
	var out []Goal
	seen := make(map[string]bool)
	for _, m := range g.Milestones {
		if m.LinkedGoalID == "" || seen[m.LinkedGoalID] {
			continue
		}
		if linked, _ := FindGoal(goals, m.LinkedGoalID); linked != nil {
			seen[m.LinkedGoalID] = true
			out = append(out, *linked)
		}
	}
	return out
}

// AllTags collects every tag across goals, deduplicated and sorted.
func AllTags(goals []Goal) []string {
	seen := make(map[string]bool)
	tags := []string{}
	for _, g := range goals {
		for _, t := range g.Tags {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags
}

// GoalGroup is a named bucket of goals.
type GoalGroup struct {
	Name  string
	Goals []Goal
}

// GroupGoals buckets goals by Group. Named groups follow order, then any
// groups missing from order alphabetically, then ungrouped goals under "".
func GroupGoals(goals []Goal, order []string) []GoalGroup {
	byName := make(map[string][]Goal)
	for _, g := range goals {
		byName[g.Group] = append(byName[g.Group], g)
	}

	var groups []GoalGroup
	placed := make(map[string]bool)
	for _, name := range order {
		if gs, ok := byName[name]; ok && name != "" && !placed[name] {
			groups = append(groups, GoalGroup{Name: name, Goals: gs})
			placed[name] = true
		}
	}

	var rest []string
	for name := range byName {
		if name != "" && !placed[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		groups = append(groups, GoalGroup{Name: name, Goals: byName[name]})
	}

	if gs, ok := byName[""]; ok {
		groups = append(groups, GoalGroup{Name: "", Goals: gs})
	}
	return groups
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	p := int(math.Round(float64(done) * 100 / float64(total)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
