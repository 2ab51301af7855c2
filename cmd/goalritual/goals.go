package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/store"
	"github.com/goalritual/goalritual/internal/ui"
)

// ===== Helpers =====

func loadGoals(ctx context.Context, a *app) []model.Goal {
	return store.ReadSet(ctx, a.local, store.KeyGoals, []model.Goal{})
}

func saveGoals(ctx context.Context, a *app, goals []model.Goal) {
	if err := store.WriteSet(ctx, a.local, store.KeyGoals, goals); err != nil {
		a.fatalf("failed to save goals: %v", err)
	}
}

// resolveGoal finds a goal by exact id, unique id prefix or case-insensitive
// title.
func resolveGoal(goals []model.Goal, ref string) (*model.Goal, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("goal reference cannot be empty")
	}
	if g, _ := model.FindGoal(goals, ref); g != nil {
		return g, nil
	}

	var matches []int
	for i := range goals {
		if strings.HasPrefix(goals[i].ID, ref) || strings.EqualFold(goals[i].Title, ref) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no goal matches %q", ref)
	case 1:
		return &goals[matches[0]], nil
	default:
		return nil, fmt.Errorf("%q matches %d goals; use a longer id", ref, len(matches))
	}
}

// resolveMilestone finds a milestone of g by id, id prefix or title.
func resolveMilestone(g *model.Goal, ref string) (*model.Milestone, error) {
	if m := g.FindMilestone(ref); m != nil {
		return m, nil
	}
	var found *model.Milestone
	for i := range g.Milestones {
		m := &g.Milestones[i]
		if strings.HasPrefix(m.ID, ref) || strings.EqualFold(m.Title, ref) {
			if found != nil {
				return nil, fmt.Errorf("%q matches more than one milestone", ref)
			}
			found = m
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no milestone of %q matches %q", g.Title, ref)
	}
	return found, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printGoalLine(g *model.Goal, goals []model.Goal, now time.Time) {
	line := fmt.Sprintf("  %s  %s", ui.RenderMuted(shortID(g.ID)), ui.RenderBold(g.Title))
	if g.ProgressEnabled() {
		line += "  " + ui.ProgressBar(model.EffectiveProgress(g, goals), 10)
	}
	if model.IsGoalCompleted(g) {
		line += "  " + ui.RenderPass("✓ done")
	} else if label := model.DaysRemainingLabel(g.TargetDate, now); label != "" {
		if strings.HasSuffix(label, "overdue") {
			label = ui.RenderFail(label)
		} else {
			label = ui.RenderMuted(label)
		}
		line += "  " + label
	}
	if len(g.Tags) > 0 {
		line += "  " + ui.RenderAccent("#"+strings.Join(g.Tags, " #"))
	}
	fmt.Println(line)
}

// ===== Commands =====

var goalCmd = &cobra.Command{
	Use:     "goals",
	Aliases: []string{"goal"},
	GroupID: "goals",
	Short:   "Manage goals",
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals by group",
	Long: `List goals grouped in the saved group order, with progress and the
distance to each target date.

Example usage:
  goalritual goals list
  goalritual goals list --tag fitness
  goalritual goals list --archived --json`,
	Run: func(cmd *cobra.Command, args []string) {
		tag, _ := cmd.Flags().GetString("tag")
		showArchived, _ := cmd.Flags().GetBool("archived")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		now := time.Now()

		goals := loadGoals(ctx, a)
		var visible []model.Goal
		for _, g := range goals {
			if g.Archived != showArchived {
				continue
			}
			if tag != "" && !containsFold(g.Tags, tag) {
				continue
			}
			visible = append(visible, g)
		}

		if jsonOutput {
			if visible == nil {
				visible = []model.Goal{}
			}
			printJSON(visible)
			return
		}
		if len(visible) == 0 {
			fmt.Println("No goals yet. Add one with: goalritual goals add \"<title>\"")
			return
		}

		order := store.ReadSet(ctx, a.local, store.KeyGroupOrder, []string{})
		for _, group := range model.GroupGoals(visible, order) {
			name := group.Name
			if name == "" {
				name = "Ungrouped"
			}
			fmt.Println(ui.RenderHeader(name))
			for i := range group.Goals {
				printGoalLine(&group.Goals[i], goals, now)
			}
			fmt.Println()
		}
	},
}

var goalAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a goal",
	Long: `Add a goal. Target dates accept YYYY-MM-DD or natural language.

Example usage:
  goalritual goals add "Run a marathon" --target "in 6 months" --tag fitness
  goalritual goals add "Learn Go" --group Career --priority 3`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target, _ := cmd.Flags().GetString("target")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		group, _ := cmd.Flags().GetString("group")
		description, _ := cmd.Flags().GetString("description")
		motivation, _ := cmd.Flags().GetString("motivation")
		priority, _ := cmd.Flags().GetInt("priority")
		noProgress, _ := cmd.Flags().GetBool("no-progress")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		a.startAutoSync(ctx)
		now := time.Now()

		g := model.NewGoal(strings.Join(args, " "), now)
		g.Description = description
		g.Motivation = motivation
		g.Tags = tags
		g.Group = strings.TrimSpace(group)
		g.Priority = priority
		if noProgress {
			off := false
			g.ShowProgress = &off
		}
		date, err := model.ParseTargetDate(target, now)
		if err != nil {
			a.fatalf("%v", err)
		}
		g.TargetDate = date
		g.Normalize()
		if err := g.Validate(); err != nil {
			a.fatalf("invalid goal: %v", err)
		}

		goals := append(loadGoals(ctx, a), g)
		saveGoals(ctx, a, goals)

		if g.Group != "" {
			order := store.ReadSet(ctx, a.local, store.KeyGroupOrder, []string{})
			if !containsFold(order, g.Group) {
				if err := store.WriteSet(ctx, a.local, store.KeyGroupOrder, append(order, g.Group)); err != nil {
					a.fatalf("failed to save group order: %v", err)
				}
			}
		}

		if jsonOutput {
			printJSON(g)
			return
		}
		fmt.Printf("%s Added goal %s: %s\n", ui.RenderPass("✓"), ui.RenderMuted(shortID(g.ID)), g.Title)
		if g.TargetDate != "" {
			fmt.Printf("  Target: %s (%s)\n", g.TargetDate, model.DaysRemainingLabel(g.TargetDate, now))
		}
	},
}

var goalShowCmd = &cobra.Command{
	Use:   "show <goal>",
	Short: "Show a goal with its milestones",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		now := time.Now()

		goals := loadGoals(ctx, a)
		g, err := resolveGoal(goals, args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(g)
			return
		}

		fmt.Println(ui.RenderHeader(g.Title))
		fmt.Printf("  ID:       %s\n", g.ID)
		if g.Description != "" {
			fmt.Printf("  About:    %s\n", g.Description)
		}
		if g.Motivation != "" {
			fmt.Printf("  Why:      %s\n", g.Motivation)
		}
		if g.Group != "" {
			fmt.Printf("  Group:    %s\n", g.Group)
		}
		if g.TargetDate != "" {
			fmt.Printf("  Target:   %s (%s)\n", g.TargetDate, model.DaysRemainingLabel(g.TargetDate, now))
		}
		fmt.Printf("  Priority: %d\n", g.Priority)
		if g.ProgressEnabled() {
			fmt.Printf("  Progress: %s\n", ui.ProgressBar(model.EffectiveProgress(g, goals), 20))
		}
		if len(g.Tags) > 0 {
			fmt.Printf("  Tags:     %s\n", strings.Join(g.Tags, ", "))
		}
		for _, other := range model.NegativelyImpactedBy(g, goals) {
			fmt.Printf("  %s held back by %s\n", ui.RenderWarn("!"), other.Title)
		}
		for _, other := range model.SupportingGoals(g, goals) {
			fmt.Printf("  %s supported by %s\n", ui.RenderAccent("+"), other.Title)
		}

		if len(g.Milestones) == 0 {
			return
		}
		fmt.Println("\n  Milestones:")
		for i := range g.Milestones {
			m := &g.Milestones[i]
			if m.Archived {
				continue
			}
			mark := "[ ]"
			if model.MilestoneCompleted(m, goals) {
				mark = ui.RenderPass("[✓]")
			} else if m.InProgress {
				mark = ui.RenderAccent("[~]")
			}
			line := fmt.Sprintf("    %s %s %s", mark, ui.RenderMuted(shortID(m.ID)), m.Title)
			switch model.ClassifyDue(m, now) {
			case model.Overdue:
				line += "  " + ui.RenderFail(model.DaysRemainingLabel(m.TargetDate, now))
			case model.DueSoon:
				line += "  " + ui.RenderWarn(model.DaysRemainingLabel(m.TargetDate, now))
			}
			if done, total := model.TaskProgress(m.Tasks); total > 0 {
				line += ui.RenderMuted(fmt.Sprintf("  (%d/%d tasks)", done, total))
			}
			fmt.Println(line)
		}
	},
}

var goalDeleteCmd = &cobra.Command{
	Use:   "delete <goal>",
	Short: "Delete a goal and its milestones",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		goals := loadGoals(ctx, a)
		g, err := resolveGoal(goals, args[0])
		if err != nil {
			a.fatalf("%v", err)
		}

		ok, err := ui.Confirm(fmt.Sprintf("Delete %q?", g.Title),
			fmt.Sprintf("%d milestones will be removed with it.", len(g.Milestones)), assumeYes)
		if err != nil {
			a.fatalf("%v", err)
		}
		if !ok {
			fmt.Println("Cancelled.")
			return
		}

		a.startAutoSync(ctx)
		id, title := g.ID, g.Title
		goals, _ = model.RemoveGoal(goals, id)
		saveGoals(ctx, a, goals)
		fmt.Printf("%s Deleted goal %s\n", ui.RenderPass("✓"), title)
	},
}

var goalArchiveCmd = &cobra.Command{
	Use:   "archive <goal>",
	Short: "Archive a goal (use --undo to restore)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		undo, _ := cmd.Flags().GetBool("undo")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		a.startAutoSync(ctx)

		goals := loadGoals(ctx, a)
		g, err := resolveGoal(goals, args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		g.Archived = !undo
		saveGoals(ctx, a, goals)

		if undo {
			fmt.Printf("%s Restored %s\n", ui.RenderPass("✓"), g.Title)
		} else {
			fmt.Printf("%s Archived %s\n", ui.RenderPass("✓"), g.Title)
		}
	},
}

var goalImpactCmd = &cobra.Command{
	Use:   "impact <goal> <other-goal>",
	Short: "Mark a goal as holding back another goal",
	Long: `Record that working on <goal> holds back <other-goal>. Use --all to mark
the goal as holding back every other goal, or --remove to drop the link.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		remove, _ := cmd.Flags().GetBool("remove")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		goals := loadGoals(ctx, a)
		g, err := resolveGoal(goals, args[0])
		if err != nil {
			a.fatalf("%v", err)
		}

		switch {
		case all:
			g.NegativeImpactOnAll = !remove
		case len(args) == 2:
			other, err := resolveGoal(goals, args[1])
			if err != nil {
				a.fatalf("%v", err)
			}
			if other.ID == g.ID {
				a.fatalf("a goal cannot hold itself back")
			}
			if remove {
				kept := g.NegativeImpactOn[:0]
				for _, id := range g.NegativeImpactOn {
					if id != other.ID {
						kept = append(kept, id)
					}
				}
				g.NegativeImpactOn = kept
			} else {
				g.NegativeImpactOn = append(g.NegativeImpactOn, other.ID)
			}
		default:
			a.fatalf("name the goal it holds back, or pass --all")
		}
		g.Normalize()

		a.startAutoSync(ctx)
		saveGoals(ctx, a, goals)
		fmt.Printf("%s Updated impacts of %s\n", ui.RenderPass("✓"), g.Title)
	},
}

var tagsCmd = &cobra.Command{
	Use:     "tags",
	GroupID: "goals",
	Short:   "List every tag in use",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()

		tags := model.AllTags(loadGoals(cmd.Context(), a))
		if jsonOutput {
			if tags == nil {
				tags = []string{}
			}
			printJSON(tags)
			return
		}
		for _, t := range tags {
			fmt.Println(t)
		}
	},
}

// ===== Milestones =====

var milestoneCmd = &cobra.Command{
	Use:     "milestone",
	GroupID: "goals",
	Short:   "Manage milestones of a goal",
}

var milestoneAddCmd = &cobra.Command{
	Use:   "add <goal> <title>",
	Short: "Add a milestone to a goal",
	Long: `Add a milestone. --link makes the milestone stand in for another goal:
it counts as done when that goal is completed.

Example usage:
  goalritual milestone add marathon "Run 10k" --target 2026-05-01
  goalritual milestone add health "Finish marathon" --link marathon`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		target, _ := cmd.Flags().GetString("target")
		link, _ := cmd.Flags().GetString("link")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		now := time.Now()

		goals := loadGoals(ctx, a)
		g, err := resolveGoal(goals, args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		date, err := model.ParseTargetDate(target, now)
		if err != nil {
			a.fatalf("%v", err)
		}

		m := model.NewMilestone(strings.Join(args[1:], " "), date)
		if m.Title == "" {
			a.fatalf("milestone title cannot be empty")
		}
		if link != "" {
			linked, err := resolveGoal(goals, link)
			if err != nil {
				a.fatalf("%v", err)
			}
			if linked.ID == g.ID {
				a.fatalf("a milestone cannot link to its own goal")
			}
			m.LinkedGoalID = linked.ID
		}
		g.Milestones = append(g.Milestones, m)

		a.startAutoSync(ctx)
		saveGoals(ctx, a, goals)
		fmt.Printf("%s Added milestone %s to %s\n", ui.RenderPass("✓"), ui.RenderMuted(shortID(m.ID)), g.Title)
	},
}

var milestoneDoneCmd = &cobra.Command{
	Use:   "done <goal> <milestone>",
	Short: "Mark a milestone completed (use --undo to reopen)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		undo, _ := cmd.Flags().GetBool("undo")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		goals := loadGoals(ctx, a)
		g, err := resolveGoal(goals, args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		m, err := resolveMilestone(g, args[1])
		if err != nil {
			a.fatalf("%v", err)
		}
		if m.LinkedGoalID != "" {
			a.fatalf("%q follows a linked goal; complete that goal instead", m.Title)
		}
		m.Completed = !undo
		if m.Completed {
			m.InProgress = false
		}

		a.startAutoSync(ctx)
		saveGoals(ctx, a, goals)
		fmt.Printf("%s %s  %s\n", ui.RenderPass("✓"), m.Title, ui.ProgressBar(model.EffectiveProgress(g, goals), 10))
	},
}

var milestoneTaskCmd = &cobra.Command{
	Use:   "task <goal> <milestone> <title>",
	Short: "Add a checklist task to a milestone",
	Args:  cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		separator, _ := cmd.Flags().GetBool("separator")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		goals := loadGoals(ctx, a)
		g, err := resolveGoal(goals, args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		m, err := resolveMilestone(g, args[1])
		if err != nil {
			a.fatalf("%v", err)
		}
		m.Tasks = append(m.Tasks, model.Task{
			ID:          model.NewID(),
			Title:       strings.Join(args[2:], " "),
			IsSeparator: separator,
		})

		a.startAutoSync(ctx)
		saveGoals(ctx, a, goals)
		done, total := model.TaskProgress(m.Tasks)
		fmt.Printf("%s Added task to %s (%d/%d done)\n", ui.RenderPass("✓"), m.Title, done, total)
	},
}

var milestoneCheckCmd = &cobra.Command{
	Use:   "check <goal> <milestone> <task>",
	Short: "Toggle a milestone task",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		goals := loadGoals(ctx, a)
		g, err := resolveGoal(goals, args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		m, err := resolveMilestone(g, args[1])
		if err != nil {
			a.fatalf("%v", err)
		}
		task := findTask(m.Tasks, args[2])
		if task == nil {
			a.fatalf("no task of %q matches %q", m.Title, args[2])
		}
		task.Completed = !task.Completed
		if done, total := model.TaskProgress(m.Tasks); total > 0 && done > 0 && done < total {
			m.InProgress = true
		}

		a.startAutoSync(ctx)
		saveGoals(ctx, a, goals)
		state := "open"
		if task.Completed {
			state = "done"
		}
		fmt.Printf("%s %s is %s\n", ui.RenderPass("✓"), task.Title, state)
	},
}

func findTask(tasks []model.Task, ref string) *model.Task {
	for i := range tasks {
		t := &tasks[i]
		if t.IsSeparator {
			continue
		}
		if t.ID == ref || strings.HasPrefix(t.ID, ref) || strings.EqualFold(t.Title, ref) {
			return t
		}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func init() {
	goalListCmd.Flags().String("tag", "", "Only goals with this tag")
	goalListCmd.Flags().Bool("archived", false, "List archived goals instead")

	goalAddCmd.Flags().StringP("target", "t", "", "Target date (YYYY-MM-DD or e.g. \"next friday\")")
	goalAddCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")
	goalAddCmd.Flags().StringP("group", "g", "", "Group name")
	goalAddCmd.Flags().StringP("description", "d", "", "Description")
	goalAddCmd.Flags().String("motivation", "", "Why this goal matters")
	goalAddCmd.Flags().IntP("priority", "p", 0, "Priority 0-5")
	goalAddCmd.Flags().Bool("no-progress", false, "Disable progress tracking")

	goalArchiveCmd.Flags().Bool("undo", false, "Restore an archived goal")
	goalImpactCmd.Flags().Bool("all", false, "Holds back every other goal")
	goalImpactCmd.Flags().Bool("remove", false, "Remove the link instead")

	milestoneAddCmd.Flags().StringP("target", "t", "", "Target date (YYYY-MM-DD or e.g. \"in 2 weeks\")")
	milestoneAddCmd.Flags().String("link", "", "Goal this milestone stands in for")
	milestoneDoneCmd.Flags().Bool("undo", false, "Reopen the milestone")
	milestoneTaskCmd.Flags().Bool("separator", false, "Add a divider row instead of a task")

	goalCmd.AddCommand(goalListCmd, goalAddCmd, goalShowCmd, goalDeleteCmd, goalArchiveCmd, goalImpactCmd)
	milestoneCmd.AddCommand(milestoneAddCmd, milestoneDoneCmd, milestoneTaskCmd, milestoneCheckCmd)

	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(milestoneCmd)
	rootCmd.AddCommand(tagsCmd)
}
