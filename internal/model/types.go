// Package model provides the goal-tracking data structures stored in the
// local datasets and the pure, deterministic views derived from them.
//
// Every type here is persisted as JSON inside a dataset value, so field names
// use the camelCase keys the export document and remote snapshot also carry.
// Nothing in this package touches storage or the network.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the ISO date format used for target and start dates.
const DateLayout = "2006-01-02"

// MaxPriority is the highest goal priority.
const MaxPriority = 5

// Goal is a top-level user objective.
type Goal struct {
	// ===== Identification =====
	ID string `json:"id"`

	// ===== Content =====
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Motivation  string   `json:"motivation,omitempty"`
	Tags        []string `json:"tags"`

	// ===== Scheduling & Presentation =====
	TargetDate string `json:"targetDate,omitempty"` // YYYY-MM-DD
	Color      string `json:"color,omitempty"`
	Priority   int    `json:"priority"` // 0-5
	Group      string `json:"group,omitempty"`
	Archived   bool   `json:"archived,omitempty"`

	// ShowProgress disables progress tracking when explicitly false.
	ShowProgress *bool `json:"showProgress,omitempty"`

	// ===== Structure =====
	Milestones     []Milestone          `json:"milestones"`
	RecurringTasks []RecurringTaskGroup `json:"recurringTasks,omitempty"`

	// ===== Dependencies =====
	NegativeImpactOn    []string `json:"negativeImpactOn,omitempty"`
	NegativeImpactOnAll bool     `json:"negativeImpactOnAll,omitempty"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// Milestone is a step toward a goal. When LinkedGoalID is set the milestone
// stands in for another goal; see MilestoneCompleted.
type Milestone struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	TargetDate   string `json:"targetDate,omitempty"`
	Completed    bool   `json:"completed"`
	InProgress   bool   `json:"inProgress,omitempty"`
	Archived     bool   `json:"archived,omitempty"`
	Tasks        []Task `json:"tasks,omitempty"`
	LinkedGoalID string `json:"linkedGoalId,omitempty"`
}

// Task is a checklist row inside a milestone or recurring group.
// Separator rows are cosmetic dividers and never count toward completion.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Completed   bool   `json:"completed"`
	IsSeparator bool   `json:"isSeparator,omitempty"`
}

// Cadence is how often a recurring group resets.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	}
	return false
}

// RecurringTaskGroup is a set of habits that reset every period.
type RecurringTaskGroup struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Cadence         Cadence    `json:"cadence"`
	StartDate       string     `json:"startDate,omitempty"`
	Tasks           []Task     `json:"tasks"`
	LastReset       *time.Time `json:"lastReset,omitempty"`
	CompletionCount int        `json:"completionCount"`
}

// DailyTodo is a one-day to-do item.
type DailyTodo struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// JournalEntry is a dated free-text reflection.
type JournalEntry struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Text string `json:"text"`
}

// PinnedInsight is an AI answer the user chose to keep.
type PinnedInsight struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	GoalID   string    `json:"goalId,omitempty"`
	PinnedAt time.Time `json:"pinnedAt"`
}

// Suggestion is a cached AI-proposed milestone for a goal.
type Suggestion struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goalId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// SuggestionCache maps goal ids to their cached suggestions.
type SuggestionCache map[string][]Suggestion

// NewID returns a fresh time-ordered identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewGoal returns a goal with a fresh id and empty collections.
func NewGoal(title string, now time.Time) Goal {
	created := now.UTC()
	return Goal{
		ID:         NewID(),
		Title:      strings.TrimSpace(title),
		Tags:       []string{},
		Milestones: []Milestone{},
		CreatedAt:  &created,
	}
}

// NewMilestone returns a milestone with a fresh id.
func NewMilestone(title, targetDate string) Milestone {
	return Milestone{
		ID:         NewID(),
		Title:      strings.TrimSpace(title),
		TargetDate: targetDate,
	}
}

// ProgressEnabled reports whether progress tracking is on for the goal.
// An absent setting means enabled.
func (g *Goal) ProgressEnabled() bool {
	return g.ShowProgress == nil || *g.ShowProgress
}

// Normalize strips a self-reference from NegativeImpactOn, deduplicates tags
// and impact ids, clamps priority and replaces nil collections.
func (g *Goal) Normalize() {
	g.Title = strings.TrimSpace(g.Title)
	g.Tags = dedupStrings(g.Tags)
	if g.Tags == nil {
		g.Tags = []string{}
	}
	if g.Milestones == nil {
		g.Milestones = []Milestone{}
	}

	var impacts []string
	for _, id := range dedupStrings(g.NegativeImpactOn) {
		if id != g.ID {
			impacts = append(impacts, id)
		}
	}
	g.NegativeImpactOn = impacts

	if g.Priority < 0 {
		g.Priority = 0
	}
	if g.Priority > MaxPriority {
		g.Priority = MaxPriority
	}
}

// Validate checks if the Goal has valid field values.
func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(g.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if g.Priority < 0 || g.Priority > MaxPriority {
		return fmt.Errorf("priority must be between 0 and %d (got %d)", MaxPriority, g.Priority)
	}
	for _, id := range g.NegativeImpactOn {
		if id == g.ID {
			return fmt.Errorf("goal %s cannot negatively impact itself", g.ID)
		}
	}
	if g.TargetDate != "" {
		if _, ok := ParseDate(g.TargetDate, time.UTC); !ok {
			return fmt.Errorf("invalid target date %q", g.TargetDate)
		}
	}
	for _, rt := range g.RecurringTasks {
		if !rt.Cadence.Valid() {
			return fmt.Errorf("recurring group %s has invalid cadence %q", rt.ID, rt.Cadence)
		}
	}
	return nil
}

// FindGoal returns the goal with the given id and its index, or nil and -1.
func FindGoal(goals []Goal, id string) (*Goal, int) {
	for i := range goals {
		if goals[i].ID == id {
			return &goals[i], i
		}
	}
	return nil, -1
}

// FindMilestone returns the milestone with the given id, or nil.
func (g *Goal) FindMilestone(id string) *Milestone {
	for i := range g.Milestones {
		if g.Milestones[i].ID == id {
			return &g.Milestones[i]
		}
	}
	return nil
}

// RemoveGoal deletes a goal and, with it, its embedded milestones and tasks.
// References to the goal held by other goals are left as they are.
func RemoveGoal(goals []Goal, id string) ([]Goal, bool) {
	_, idx := FindGoal(goals, id)
	if idx < 0 {
		return goals, false
	}
	out := make([]Goal, 0, len(goals)-1)
	out = append(out, goals[:idx]...)
	out = append(out, goals[idx+1:]...)
	return out, true
}

func dedupStrings(in []string) []string {
	if in == nil {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
