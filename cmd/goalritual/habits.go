package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/goalritual/goalritual/internal/daemon"
	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/store"
	"github.com/goalritual/goalritual/internal/ui"
)

// ===== Recurring tasks =====

var recurringCmd = &cobra.Command{
	Use:     "recurring",
	GroupID: "habits",
	Short:   "Manage recurring habit groups",
}

var recurringListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recurring groups and their tasks",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()

		groups := store.ReadSet(cmd.Context(), a.local, store.KeyRecurringTasks, []model.RecurringTaskGroup{})
		if jsonOutput {
			printJSON(groups)
			return
		}
		if len(groups) == 0 {
			fmt.Println("No recurring groups. Add one with: goalritual recurring add <name> --cadence weekly")
			return
		}
		for _, g := range groups {
			done, total := model.TaskProgress(g.Tasks)
			fmt.Printf("%s %s  %s\n", ui.RenderHeader(g.Name), ui.RenderMuted(string(g.Cadence)),
				ui.RenderMuted(fmt.Sprintf("%d/%d · completed %d times", done, total, g.CompletionCount)))
			for _, t := range g.Tasks {
				if t.IsSeparator {
					fmt.Println(ui.RenderMuted("    ───"))
					continue
				}
				mark := "[ ]"
				if t.Completed {
					mark = ui.RenderPass("[✓]")
				}
				fmt.Printf("    %s %s %s\n", mark, ui.RenderMuted(shortID(t.ID)), t.Title)
			}
		}
	},
}

var recurringAddCmd = &cobra.Command{
	Use:   "add <name> [task...]",
	Short: "Add a recurring group with its tasks",
	Long: `Add a recurring group. Each extra argument becomes a task.

Example usage:
  goalritual recurring add Morning "Stretch" "Journal" --cadence daily
  goalritual recurring add Review "Plan week" --cadence weekly --start 2026-11-02`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cadence, _ := cmd.Flags().GetString("cadence")
		start, _ := cmd.Flags().GetString("start")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		now := time.Now()

		c := model.Cadence(strings.ToLower(cadence))
		if !c.Valid() {
			a.fatalf("invalid cadence %q (want daily, weekly or monthly)", cadence)
		}
		startDate, err := model.ParseTargetDate(start, now)
		if err != nil {
			a.fatalf("%v", err)
		}

		group := model.RecurringTaskGroup{
			ID:        model.NewID(),
			Name:      strings.TrimSpace(args[0]),
			Cadence:   c,
			StartDate: startDate,
			Tasks:     []model.Task{},
		}
		for _, title := range args[1:] {
			group.Tasks = append(group.Tasks, model.Task{ID: model.NewID(), Title: title})
		}

		a.startAutoSync(ctx)
		groups := store.ReadSet(ctx, a.local, store.KeyRecurringTasks, []model.RecurringTaskGroup{})
		if err := store.WriteSet(ctx, a.local, store.KeyRecurringTasks, append(groups, group)); err != nil {
			a.fatalf("failed to save recurring groups: %v", err)
		}
		fmt.Printf("%s Added %s group %s with %d tasks\n", ui.RenderPass("✓"), c, group.Name, len(group.Tasks))
	},
}

var recurringCheckCmd = &cobra.Command{
	Use:   "check <group> <task>",
	Short: "Toggle a recurring task for the current period",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		groups := store.ReadSet(ctx, a.local, store.KeyRecurringTasks, []model.RecurringTaskGroup{})
		var group *model.RecurringTaskGroup
		for i := range groups {
			if groups[i].ID == args[0] || strings.HasPrefix(groups[i].ID, args[0]) || strings.EqualFold(groups[i].Name, args[0]) {
				group = &groups[i]
				break
			}
		}
		if group == nil {
			a.fatalf("no recurring group matches %q", args[0])
		}
		task := findTask(group.Tasks, args[1])
		if task == nil {
			a.fatalf("no task of %q matches %q", group.Name, args[1])
		}
		task.Completed = !task.Completed

		a.startAutoSync(ctx)
		if err := store.WriteSet(ctx, a.local, store.KeyRecurringTasks, groups); err != nil {
			a.fatalf("failed to save recurring groups: %v", err)
		}
		done, total := model.TaskProgress(group.Tasks)
		fmt.Printf("%s %s (%d/%d this period)\n", ui.RenderPass("✓"), task.Title, done, total)
	},
}

var recurringResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start new periods for due recurring groups and the daily to-do list",
	Long: `Apply period resets now. Groups whose period has rolled over get their
tasks unchecked (counting a completion when every task was done), and the
daily to-do list drops finished items once per day. The daemon does this
automatically.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		a.startAutoSync(ctx)

		res, err := daemon.ApplyResets(ctx, a.local, time.Now())
		if err != nil {
			a.fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(res)
			return
		}
		if !res.Changed() {
			fmt.Println("Nothing to reset.")
			return
		}
		fmt.Printf("%s Reset %d recurring groups and %d goal habit groups\n",
			ui.RenderPass("✓"), res.RecurringGroups, res.GoalGroups)
		if res.DailyTodosReset {
			fmt.Printf("  Daily to-dos: %d finished items cleared\n", res.DroppedTodos)
		}
	},
}

// ===== Daily to-dos =====

var todoCmd = &cobra.Command{
	Use:     "todo",
	GroupID: "habits",
	Short:   "Manage today's to-do list",
}

var todoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List today's to-dos",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()

		todos := store.ReadSet(cmd.Context(), a.local, store.KeyDailyTodos, []model.DailyTodo{})
		if jsonOutput {
			printJSON(todos)
			return
		}
		if len(todos) == 0 {
			fmt.Println("Nothing on today's list.")
			return
		}
		for _, t := range todos {
			mark := "[ ]"
			if t.Completed {
				mark = ui.RenderPass("[✓]")
			}
			fmt.Printf("%s %s %s\n", mark, ui.RenderMuted(shortID(t.ID)), t.Text)
		}
	},
}

var todoAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a to-do for today",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		a.startAutoSync(ctx)

		todo := model.DailyTodo{ID: model.NewID(), Text: strings.Join(args, " ")}
		todos := store.ReadSet(ctx, a.local, store.KeyDailyTodos, []model.DailyTodo{})
		if err := store.WriteSet(ctx, a.local, store.KeyDailyTodos, append(todos, todo)); err != nil {
			a.fatalf("failed to save to-dos: %v", err)
		}
		fmt.Printf("%s Added %s\n", ui.RenderPass("✓"), todo.Text)
	},
}

var todoDoneCmd = &cobra.Command{
	Use:   "done <todo>",
	Short: "Toggle a to-do",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		todos := store.ReadSet(ctx, a.local, store.KeyDailyTodos, []model.DailyTodo{})
		var todo *model.DailyTodo
		for i := range todos {
			if strings.HasPrefix(todos[i].ID, args[0]) || strings.EqualFold(todos[i].Text, args[0]) {
				todo = &todos[i]
				break
			}
		}
		if todo == nil {
			a.fatalf("no to-do matches %q", args[0])
		}
		todo.Completed = !todo.Completed

		a.startAutoSync(ctx)
		if err := store.WriteSet(ctx, a.local, store.KeyDailyTodos, todos); err != nil {
			a.fatalf("failed to save to-dos: %v", err)
		}
		fmt.Printf("%s %s\n", ui.RenderPass("✓"), todo.Text)
	},
}

// ===== Purpose and journal =====

var purposeCmd = &cobra.Command{
	Use:     "purpose [text]",
	GroupID: "habits",
	Short:   "Show or set your life purpose statement",
	Run: func(cmd *cobra.Command, args []string) {
		clearPurpose, _ := cmd.Flags().GetBool("clear")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		if len(args) == 0 && !clearPurpose {
			purpose := store.ReadSet(ctx, a.local, store.KeyLifePurpose, "")
			if purpose == "" {
				fmt.Println(ui.RenderMuted("No purpose statement yet."))
				return
			}
			fmt.Println(purpose)
			return
		}

		a.startAutoSync(ctx)
		text := strings.TrimSpace(strings.Join(args, " "))
		if err := store.WriteSet(ctx, a.local, store.KeyLifePurpose, text); err != nil {
			a.fatalf("failed to save purpose: %v", err)
		}
		if text == "" {
			fmt.Printf("%s Cleared purpose statement\n", ui.RenderPass("✓"))
			return
		}
		fmt.Printf("%s Saved purpose statement\n", ui.RenderPass("✓"))
	},
}

var journalCmd = &cobra.Command{
	Use:     "journal [text]",
	GroupID: "habits",
	Short:   "Write a journal entry, or list entries without text",
	Run: func(cmd *cobra.Command, args []string) {
		date, _ := cmd.Flags().GetString("date")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		now := time.Now()

		entries := store.ReadSet(ctx, a.local, store.KeyJournal, []model.JournalEntry{})
		if len(args) == 0 {
			if jsonOutput {
				printJSON(entries)
				return
			}
			for _, e := range entries {
				fmt.Printf("%s  %s\n", ui.RenderAccent(e.Date), e.Text)
			}
			return
		}

		day, err := model.ParseTargetDate(date, now)
		if err != nil {
			a.fatalf("%v", err)
		}
		if day == "" {
			day = now.Format(model.DateLayout)
		}

		a.startAutoSync(ctx)
		entry := model.JournalEntry{ID: model.NewID(), Date: day, Text: strings.Join(args, " ")}
		if err := store.WriteSet(ctx, a.local, store.KeyJournal, append(entries, entry)); err != nil {
			a.fatalf("failed to save journal: %v", err)
		}
		fmt.Printf("%s Journal entry for %s saved\n", ui.RenderPass("✓"), day)
	},
}

func init() {
	recurringAddCmd.Flags().StringP("cadence", "c", string(model.CadenceDaily), "daily, weekly or monthly")
	recurringAddCmd.Flags().String("start", "", "First day the group is active")
	purposeCmd.Flags().Bool("clear", false, "Clear the purpose statement")
	journalCmd.Flags().String("date", "", "Entry date (default today)")

	recurringCmd.AddCommand(recurringListCmd, recurringAddCmd, recurringCheckCmd, recurringResetCmd)
	todoCmd.AddCommand(todoListCmd, todoAddCmd, todoDoneCmd)

	rootCmd.AddCommand(recurringCmd)
	rootCmd.AddCommand(todoCmd)
	rootCmd.AddCommand(purposeCmd)
	rootCmd.AddCommand(journalCmd)
}
