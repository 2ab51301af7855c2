package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/goalritual/goalritual/internal/remote"
	"github.com/goalritual/goalritual/internal/session"
	goalsync "github.com/goalritual/goalritual/internal/sync"
	"github.com/goalritual/goalritual/internal/ui"
)

// requireEngine returns a connected engine for a signed-in user or exits.
func requireEngine(ctx context.Context, a *app) *goalsync.Engine {
	if a.sessions.User() == nil {
		a.fatalf("not logged in (run: goalritual login <email>)")
	}
	engine := a.connect(ctx)
	if engine == nil {
		a.fatalf("remote %s backend is unreachable; see the log for details", a.cfg.Sync.Backend)
	}
	return engine
}

// reportSync prints the outcome of one sync operation and exits 1 on
// failure.
func reportSync(a *app, engine *goalsync.Engine, op string, ok bool) {
	ev := engine.Status()
	if jsonOutput {
		printJSON(ev)
		if !ok {
			a.Close()
			os.Exit(1)
		}
		return
	}
	if !ok {
		msg := ev.Error
		if msg == "" {
			msg = "sync is disabled"
		}
		a.fatalf("%s failed: %s", op, msg)
	}
	fmt.Printf("%s %s complete\n", ui.RenderPass("✓"), op)
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Synchronize with the remote snapshot",
	Long: `Synchronize the local data with your remote snapshot.

  push   upload every local dataset, replacing the remote snapshot
  pull   replace local data with the remote snapshot
  merge  union both sides (lists by id, remote first) and upload the result

Edits made through goalritual push automatically while you are logged in;
these commands are for the first sync on a device and for recovery.`,
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload local data over the remote snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		engine := requireEngine(ctx, a)
		reportSync(a, engine, "Push", engine.PushSnapshot(ctx))
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace local data with the remote snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		engine := requireEngine(ctx, a)
		ok, err := ui.Confirm("Replace local data with the remote snapshot?",
			"Local changes that were never pushed will be lost.", assumeYes)
		if err != nil {
			a.fatalf("%v", err)
		}
		if !ok {
			fmt.Println("Cancelled.")
			return
		}
		reportSync(a, engine, "Pull", engine.PullSnapshot(ctx))
	},
}

var syncMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge local and remote data and upload the result",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		engine := requireEngine(ctx, a)
		reportSync(a, engine, "Merge", engine.MergeSnapshot(ctx))
	},
}

// syncStatus is the JSON shape of `sync status`.
type syncStatus struct {
	LoggedIn      bool       `json:"loggedIn"`
	Email         string     `json:"email,omitempty"`
	UserID        string     `json:"userId,omitempty"`
	Backend       string     `json:"backend"`
	Reachable     bool       `json:"reachable"`
	RemoteUpdated *time.Time `json:"remoteUpdatedAt,omitempty"`
	SessionExpiry *time.Time `json:"sessionExpiresAt,omitempty"`
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show login and remote snapshot state",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		st := syncStatus{Backend: a.cfg.Sync.Backend}
		if s := a.sessions.Current(); s != nil {
			st.LoggedIn = true
			st.Email = s.User.Email
			st.UserID = s.User.ID
			exp := s.ExpiresAt
			st.SessionExpiry = &exp

			if engine := a.connect(ctx); engine != nil {
				st.Reachable = true
				rec, err := a.remote.Fetch(ctx, s.User.ID)
				switch {
				case err == nil:
					st.RemoteUpdated = &rec.UpdatedAt
				case !errors.Is(err, remote.ErrNotFound):
					a.logger.Printf("Warning: failed to fetch remote snapshot: %v", err)
				}
			}
		}

		if jsonOutput {
			printJSON(st)
			return
		}
		if !st.LoggedIn {
			fmt.Printf("%s Not logged in; changes stay on this device\n", ui.RenderWarn("○"))
			return
		}
		fmt.Printf("Logged in as %s\n", ui.RenderBold(st.Email))
		fmt.Printf("  Backend:  %s\n", st.Backend)
		if !st.Reachable {
			fmt.Printf("  Remote:   %s\n", ui.RenderFail("unreachable"))
			return
		}
		if st.RemoteUpdated == nil {
			fmt.Printf("  Remote:   %s\n", ui.RenderWarn("no snapshot yet (run: goalritual sync push)"))
		} else {
			fmt.Printf("  Remote:   %s updated %s\n", ui.RenderPass("●"), st.RemoteUpdated.Local().Format(time.DateTime))
		}
		fmt.Printf("  Session:  valid until %s\n", st.SessionExpiry.Local().Format(time.DateOnly))
	},
}

// ===== Identity =====

var loginCmd = &cobra.Command{
	Use:     "login <email>",
	GroupID: "sync",
	Short:   "Log in and choose how to combine this device's data",
	Long: `Log in on this device. The first sync after login follows --strategy:

  merge  union local and remote data (default)
  pull   replace local data with the remote snapshot
  push   replace the remote snapshot with local data
  none   change nothing now

Without --strategy an interactive prompt asks.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		strategyFlag, _ := cmd.Flags().GetString("strategy")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		s, err := session.NewSession(args[0], ttl, time.Now())
		if err != nil {
			a.fatalf("%v", err)
		}

		if strategyFlag == "" && !assumeYes {
			strategyFlag, err = ui.Select("How should this device's data be combined with your account?", []ui.Option{
				{Label: "Merge both", Value: string(goalsync.StrategyMerge)},
				{Label: "Use account data (replace local)", Value: string(goalsync.StrategyPull)},
				{Label: "Use this device's data (replace account)", Value: string(goalsync.StrategyPush)},
				{Label: "Do nothing now", Value: string(goalsync.StrategyNone)},
			}, string(goalsync.StrategyMerge))
			if err != nil {
				a.fatalf("%v", err)
			}
		}
		strategy, err := goalsync.ParseStrategy(strategyFlag)
		if err != nil {
			a.fatalf("%v", err)
		}

		engine := a.connect(ctx)
		if err := a.sessions.SignIn(s); err != nil {
			a.fatalf("failed to save session: %v", err)
		}
		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), s.User.Email)

		if engine == nil {
			if strategy == goalsync.StrategyNone {
				return
			}
			fmt.Printf("%s Remote unreachable; run `goalritual sync %s` later\n", ui.RenderWarn("!"), strategy)
			return
		}
		if !engine.SignIn(ctx, &s.User, strategy) {
			a.fatalf("initial %s failed: %s", strategy, engine.Status().Error)
		}
		if strategy != goalsync.StrategyNone {
			fmt.Printf("%s Initial %s complete\n", ui.RenderPass("✓"), strategy)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "sync",
	Short:   "Log out; local data stays on this device",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()

		if a.sessions.User() == nil {
			fmt.Println("Not logged in.")
			return
		}
		if err := a.sessions.SignOut(); err != nil {
			a.fatalf("failed to remove session: %v", err)
		}
		fmt.Printf("%s Logged out. Local data was kept.\n", ui.RenderPass("✓"))
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "sync",
	Short:   "Print the logged-in user",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()

		u := a.sessions.User()
		if jsonOutput {
			printJSON(u)
			return
		}
		if u == nil {
			fmt.Println("Not logged in.")
			return
		}
		fmt.Printf("%s %s\n", u.Email, ui.RenderMuted(u.ID))
	},
}

func init() {
	loginCmd.Flags().StringP("strategy", "s", "", "First sync: merge, pull, push or none")
	loginCmd.Flags().Duration("ttl", session.DefaultTTL, "How long the session stays valid")

	syncCmd.AddCommand(syncPushCmd, syncPullCmd, syncMergeCmd, syncStatusCmd)

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
