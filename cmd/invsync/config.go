package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/huangc28/kikichoice-be/internal/config"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Inspect, validate and create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.Sheets.Credentials.PrivateKey != "" {
			shown.Sheets.Credentials.PrivateKey = "<redacted>"
		}
		if cfg.File != "" {
			fmt.Printf("# from %s\n", cfg.File)
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(shown); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Long: `Check the effective configuration. When the config file is TOML it is
also decoded strictly, so misspelled keys are reported instead of ignored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.File != "" && strings.HasSuffix(strings.ToLower(cfg.File), ".toml") {
			unknown, err := config.CheckFile(cfg.File)
			if err != nil {
				return err
			}
			for _, key := range unknown {
				fmt.Printf("%s unknown key %q in %s\n", ui.RenderWarn("!"), key, cfg.File)
			}
		}
		if err := cfg.Validate(); err != nil {
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Printf("%s %s\n", ui.RenderFail("✗"), line)
			}
			return errors.New("configuration is invalid")
		}
		fmt.Printf("%s configuration is valid\n", ui.RenderPass("✓"))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a starter invsync.toml",
	Long: `Write a starter config file (default invsync.toml). On a terminal the
main settings are asked for interactively; use --defaults to skip that.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "invsync.toml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		useDefaults, _ := cmd.Flags().GetBool("defaults")

		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		c := config.Default()
		if !useDefaults && ui.IsTerminal() {
			if err := askConfig(c); err != nil {
				return err
			}
			c.Sheets.VariantsRange, c.Sheets.ParentSKURange = "", ""
			c.FillVariantRanges()
		}

		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(starterFile(c)); err != nil {
			return err
		}
		fmt.Printf("%s wrote %s\n", ui.RenderPass("✓"), path)
		if c.Sheets.Backend == "google" {
			fmt.Println("Set INVSYNC_SHEETS_CREDENTIALS_EMAIL and INVSYNC_SHEETS_CREDENTIALS_PRIVATE_KEY in .env, or credentials.file.")
		}
		return nil
	},
}

func askConfig(c *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where do the stock sheets live?").
				Options(
					huh.NewOption("Google Sheets", "google"),
					huh.NewOption("Local CSV workbook", "csv"),
				).
				Value(&c.Sheets.Backend),
			huh.NewInput().
				Title("Products spreadsheet ID").
				Description("Google spreadsheet ID, or the workbook subdirectory for csv").
				Value(&c.Sheets.ProductsID),
			huh.NewInput().
				Title("Variants spreadsheet ID").
				Description("Leave empty if variants are in the products spreadsheet").
				Value(&c.Sheets.VariantsID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("CSV workbook directory").
				Value(&c.Sheets.CSVDir),
		).WithHideFunc(func() bool { return c.Sheets.Backend != "csv" }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Catalog database").
				Options(
					huh.NewOption("SQLite file", "sqlite"),
					huh.NewOption("PostgreSQL", "postgres"),
				).
				Value(&c.Database.Driver),
			huh.NewInput().
				Title("Database DSN or SQLite path").
				Value(&c.Database.DSN),
		),
	)
	return form.Run()
}

// starterFile is the subset of settings written by config init. Durations
// are rendered as strings so they stay human readable.
func starterFile(c *config.Config) map[string]any {
	sheets := map[string]any{
		"backend":          c.Sheets.Backend,
		"products_id":      c.Sheets.ProductsID,
		"products_range":   c.Sheets.ProductsRange,
		"variants_range":   c.Sheets.VariantsRange,
		"parent_sku_range": c.Sheets.ParentSKURange,
	}
	if c.Sheets.VariantsID != "" {
		sheets["variants_id"] = c.Sheets.VariantsID
	}
	if c.Sheets.CSVDir != "" {
		sheets["csv_dir"] = c.Sheets.CSVDir
	}
	return map[string]any{
		"sheets": sheets,
		"database": map[string]any{
			"driver":     c.Database.Driver,
			"dsn":        c.Database.DSN,
			"batch_size": c.Database.BatchSize,
		},
		"sync": map[string]any{
			"retries": c.Sync.Retries,
			"backoff": c.Sync.Backoff.String(),
		},
		"daemon": map[string]any{
			"interval":     c.Daemon.Interval.String(),
			"run_on_start": c.Daemon.RunOnStart,
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configInitCmd.Flags().Bool("defaults", false, "Write defaults without prompting")
	configCmd.AddCommand(configShowCmd, configValidateCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
