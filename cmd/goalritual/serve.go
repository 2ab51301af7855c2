package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goalritual/goalritual/internal/ai"
	"github.com/goalritual/goalritual/internal/daemon"
	"github.com/goalritual/goalritual/internal/dashboard"
	"github.com/goalritual/goalritual/internal/ui"
)

// newDaemon builds the background syncer for a connected app.
func newDaemon(a *app, onExternal func()) (*daemon.Daemon, error) {
	engine := a.connect(context.Background())
	if engine == nil {
		return nil, fmt.Errorf("remote %s backend is unreachable", a.cfg.Sync.Backend)
	}
	return daemon.NewWithConfig(a.local, engine, &daemon.Config{
		DebounceInterval: a.cfg.Sync.Debounce,
		ResetInterval:    a.cfg.Daemon.ResetInterval,
		OnExternalChange: onExternal,
		Logger:           a.logs.Logger("daemon"),
	})
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run the local change feed, AI endpoint and background sync",
	Long: `Start the local HTTP server and the sync daemon.

Routes:
  /ws                  WebSocket change feed (dataset_changed, sync_status, stats)
  GET  /health         health check
  GET  /api/goals      goals grouped for display
  GET  /api/stats      goal statistics
  GET  /api/sync       current sync status
  POST /api/ai/complete  completion proxy (needs ai.api_key)

The server binds 127.0.0.1 unless server.host says otherwise.

Example usage:
  goalritual serve
  goalritual serve --port 9000 --no-daemon`,
	Run: func(cmd *cobra.Command, args []string) {
		noDaemon, _ := cmd.Flags().GetBool("no-daemon")

		a := openApp()
		defer a.Close()

		port := a.cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Host:   a.cfg.Server.Host,
			Logger: a.logs.Logger("dashboard"),
		})
		handler := dashboard.NewHandler(server, a.local, a.logs.Logger("dashboard"))
		handler.Register(server.Mux())
		ai.NewProxy(newCompleter(a), aiConfig(a)).Register(server.Mux())

		stopWatch := handler.Watch(a.connect(ctx))
		defer stopWatch()

		var d *daemon.Daemon
		if !noDaemon {
			var err error
			d, err = newDaemon(a, func() {
				handler.RefreshStats(context.Background())
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s Background sync disabled: %v\n", ui.RenderWarn("!"), err)
			}
		}

		if err := server.Start(); err != nil {
			a.fatalf("failed to start server: %v", err)
		}

		done := make(chan struct{})
		if d != nil {
			go func() {
				defer close(done)
				if err := d.Start(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "Error: daemon stopped: %v\n", err)
				}
			}()
		} else {
			close(done)
		}

		addr := server.GetAddr()
		fmt.Printf("Server started on http://%s\n", addr)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
		if u := a.sessions.User(); u != nil && d != nil {
			fmt.Printf("Syncing as %s\n", u.Email)
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if d != nil {
			_ = d.Stop()
		}
		<-done
		if err := server.Stop(); err != nil {
			a.fatalf("during shutdown: %v", err)
		}
		fmt.Println("Server stopped")
	},
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run background sync and periodic resets without the server",
	Long: `Run the sync daemon in the foreground.

The daemon pushes local edits after they settle, notices writes made by
other goalritual processes on this machine and pushes those too, and starts
new periods for recurring habits and the daily to-do list as they roll over.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()

		d, err := newDaemon(a, nil)
		if err != nil {
			a.fatalf("%v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if u := a.sessions.User(); u != nil {
			fmt.Printf("Daemon started; syncing as %s\n", u.Email)
		} else {
			fmt.Printf("Daemon started; %s\n", ui.RenderWarn("not logged in, changes stay local"))
		}

		if err := d.Start(ctx); err != nil {
			a.fatalf("daemon failed: %v", err)
		}
		_ = d.Stop()
		fmt.Println("Daemon stopped")
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default from server.port)")
	serveCmd.Flags().Bool("no-daemon", false, "Serve without background sync")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(daemonCmd)
}
