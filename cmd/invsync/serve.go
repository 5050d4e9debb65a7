package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/huangc28/kikichoice-be/internal/inventory/dashboard"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "inspect",
	Short:   "Serve the run history dashboard",
	Long: `Serve run history over HTTP without running any pipelines.

Endpoints:
  GET /health          liveness
  GET /api/runs        run history (?pipeline=, ?limit=, ?since=RFC3339)
  GET /api/runs/{id}   one run with its steps
  GET /api/stats       catalog counts
  GET /ws              WebSocket stream of run and step events

Live events are only produced by a process that runs pipelines; use
"invsync daemon --dashboard" for those.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		db, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		server := dashboard.NewServer(dashboard.Config{Addr: cfg.Server.Addr}, db, logger.Logger)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		fmt.Printf("Dashboard server started on %s\n", ui.RenderAccent("http://"+server.Addr()))
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		return server.Stop()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}
