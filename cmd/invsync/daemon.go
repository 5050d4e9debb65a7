package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huangc28/kikichoice-be/internal/inventory/daemon"
	"github.com/huangc28/kikichoice-be/internal/inventory/dashboard"
	"github.com/huangc28/kikichoice-be/internal/sheet"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run both pipelines on a schedule",
	Long: `Run the products and variants pipelines every daemon.interval (default
30m) until interrupted.

With the csv backend and --watch, a change to any CSV file in the products
workbook also triggers a run. Triggers that arrive while a run is in
progress are coalesced into one follow-up run.

  invsync daemon                      # every 30 minutes
  invsync daemon --interval 5m        # custom interval
  invsync daemon --watch --dashboard  # csv watch plus status dashboard`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("interval") {
			cfg.Daemon.Interval, _ = flags.GetDuration("interval")
		}
		if flags.Changed("watch") {
			cfg.Daemon.Watch, _ = flags.GetBool("watch")
		}
		if flags.Changed("no-initial-run") {
			skip, _ := flags.GetBool("no-initial-run")
			cfg.Daemon.RunOnStart = !skip
		}
		withDashboard, _ := flags.GetBool("dashboard")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		p, err := openPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		dcfg := daemon.Config{
			Interval:   cfg.Daemon.Interval,
			RunOnStart: cfg.Daemon.RunOnStart,
			Debounce:   cfg.Daemon.Debounce,
		}
		if cfg.Daemon.Watch && cfg.Sheets.Backend == sheet.BackendCSV {
			dcfg.WatchDir = filepath.Join(cfg.Sheets.CSVDir, cfg.Sheets.ProductsID)
		}

		d, err := daemon.New(p.syncer, dcfg, logger.Logger)
		if err != nil {
			return err
		}

		if withDashboard {
			server := dashboard.NewServer(dashboard.Config{Addr: cfg.Server.Addr}, p.db, logger.Logger)
			p.scheduler.OnEvent(server.Events().OnEvent)
			if err := server.Start(); err != nil {
				return err
			}
			defer func() {
				if err := server.Stop(); err != nil {
					logger.Warn("dashboard shutdown", zap.Error(err))
				}
			}()
			fmt.Printf("Dashboard: %s\n", ui.RenderAccent("http://"+server.Addr()))
		}

		fmt.Printf("%s syncing every %s", ui.RenderPass("●"), cfg.Daemon.Interval)
		if dcfg.WatchDir != "" {
			fmt.Printf(", watching %s", dcfg.WatchDir)
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		err = d.Run(ctx)

		stats := d.Stats()
		fmt.Printf("\nStopped after %d runs (%d failed, %d triggers coalesced)\n",
			stats.Runs, stats.Failures, stats.Coalesced)
		return err
	},
}

func init() {
	daemonCmd.Flags().Duration("interval", 0, "Sync interval (default from config, 30m)")
	daemonCmd.Flags().Bool("watch", false, "Trigger a run when workbook CSV files change (csv backend)")
	daemonCmd.Flags().Bool("no-initial-run", false, "Wait for the first tick instead of syncing at startup")
	daemonCmd.Flags().Bool("dashboard", false, "Serve the status dashboard on server.addr")
	rootCmd.AddCommand(daemonCmd)
}
