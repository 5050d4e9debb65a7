// Command invsync reconciles spreadsheet stock sheets with the product
// catalog database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/huangc28/kikichoice-be/internal/config"
	"github.com/huangc28/kikichoice-be/internal/logging"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

var (
	configFile string
	noColor    bool

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "invsync",
	Short: "Sync inventory between Google Sheets and the product catalog",
	Long: `invsync applies stock adjustments entered in a products sheet and a
variants sheet to the catalog database, then writes the resulting stock
counts back to the sheets.

Configuration is read from invsync.yaml or invsync.toml in the working
directory (or --config), .env files, and INVSYNC_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.DisableColor()
		}

		var err error
		cfg, err = config.Load(config.Options{File: configFile})
		if err != nil {
			return err
		}
		applyFlags(cmd)

		logger, err = logging.New(logging.Options{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		return err
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default: ./invsync.{yaml,toml})")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("backend", "", "Sheet backend (google or csv)")
	flags.String("csv-dir", "", "Workbook directory for the csv backend")
	flags.String("driver", "", "Catalog database driver (sqlite or postgres)")
	flags.String("dsn", "", "Catalog database DSN or SQLite path")
}

// applyFlags overrides configuration with explicitly set global flags.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	set := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	set("log-level", &cfg.Log.Level)
	set("backend", &cfg.Sheets.Backend)
	set("csv-dir", &cfg.Sheets.CSVDir)
	set("driver", &cfg.Database.Driver)
	set("dsn", &cfg.Database.DSN)
}

// execute runs the root command and closes the logger afterwards. Cobra
// skips post-run hooks when a command fails, so the logger is closed here
// rather than in PersistentPostRun.
func execute(args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Close()
		logger = nil
	}
	return err
}

func main() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
