// Package config loads invsync settings from defaults, an optional config
// file, .env files and INVSYNC_* environment variables, in increasing order
// of precedence. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/huangc28/kikichoice-be/internal/inventory/catalog"
	"github.com/huangc28/kikichoice-be/internal/inventory/ingest"
	"github.com/huangc28/kikichoice-be/internal/inventory/workflow"
	"github.com/huangc28/kikichoice-be/internal/sheet"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "INVSYNC"

// Config is the complete application configuration.
type Config struct {
	Sheets   SheetsConfig   `mapstructure:"sheets" toml:"sheets" yaml:"sheets"`
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database"`
	Sync     SyncConfig     `mapstructure:"sync" toml:"sync" yaml:"sync"`
	Daemon   DaemonConfig   `mapstructure:"daemon" toml:"daemon" yaml:"daemon"`
	Log      LogConfig      `mapstructure:"log" toml:"log" yaml:"log"`
	Server   ServerConfig   `mapstructure:"server" toml:"server" yaml:"server"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" toml:"-" yaml:"-"`
}

// SheetsConfig locates the two spreadsheets.
type SheetsConfig struct {
	Backend        string            `mapstructure:"backend" toml:"backend" yaml:"backend"` // google | csv
	ProductsID     string            `mapstructure:"products_id" toml:"products_id" yaml:"products_id"`
	VariantsID     string            `mapstructure:"variants_id" toml:"variants_id" yaml:"variants_id"`
	ProductsRange  string            `mapstructure:"products_range" toml:"products_range" yaml:"products_range"`
	VariantsRange  string            `mapstructure:"variants_range" toml:"variants_range" yaml:"variants_range"`
	ParentSKURange string            `mapstructure:"parent_sku_range" toml:"parent_sku_range" yaml:"parent_sku_range"`
	CSVDir         string            `mapstructure:"csv_dir" toml:"csv_dir" yaml:"csv_dir"`
	Credentials    CredentialsConfig `mapstructure:"credentials" toml:"credentials" yaml:"credentials"`
}

// CredentialsConfig holds a Google service account, either inline or as a
// key file.
type CredentialsConfig struct {
	Email      string `mapstructure:"email" toml:"email" yaml:"email"`
	PrivateKey string `mapstructure:"private_key" toml:"private_key" yaml:"private_key"`
	File       string `mapstructure:"file" toml:"file" yaml:"file"`
}

// DatabaseConfig selects the catalog store.
type DatabaseConfig struct {
	Driver    string `mapstructure:"driver" toml:"driver" yaml:"driver"` // sqlite | postgres
	DSN       string `mapstructure:"dsn" toml:"dsn" yaml:"dsn"`
	BatchSize int    `mapstructure:"batch_size" toml:"batch_size" yaml:"batch_size"`
}

// SyncConfig tunes retries.
type SyncConfig struct {
	Retries       int           `mapstructure:"retries" toml:"retries" yaml:"retries"`
	Backoff       time.Duration `mapstructure:"backoff" toml:"backoff" yaml:"backoff"`
	MaxStepOutput int           `mapstructure:"max_step_output" toml:"max_step_output" yaml:"max_step_output"`
	HistoryDays   int           `mapstructure:"history_days" toml:"history_days" yaml:"history_days"`
}

// DaemonConfig schedules background syncs.
type DaemonConfig struct {
	Interval   time.Duration `mapstructure:"interval" toml:"interval" yaml:"interval"`
	Debounce   time.Duration `mapstructure:"debounce" toml:"debounce" yaml:"debounce"`
	RunOnStart bool          `mapstructure:"run_on_start" toml:"run_on_start" yaml:"run_on_start"`
	Watch      bool          `mapstructure:"watch" toml:"watch" yaml:"watch"` // csv backend only
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `mapstructure:"level" toml:"level" yaml:"level"`
	Format     string `mapstructure:"format" toml:"format" yaml:"format"` // json | console
	File       string `mapstructure:"file" toml:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days" yaml:"max_age_days"`
}

// ServerConfig configures the status dashboard.
type ServerConfig struct {
	Addr string `mapstructure:"addr" toml:"addr" yaml:"addr"`
}

// defaults lists every key with its default. Every key must appear here so
// that AutomaticEnv can see it during Unmarshal.
var defaults = map[string]any{
	"sheets.backend":                 "google",
	"sheets.products_id":             "",
	"sheets.variants_id":             "",
	"sheets.products_range":          "Sheet1!A2:L",
	"sheets.variants_range":          "", // see FillVariantRanges
	"sheets.parent_sku_range":        "",
	"sheets.csv_dir":                 "",
	"sheets.credentials.email":       "",
	"sheets.credentials.private_key": "",
	"sheets.credentials.file":        "",
	"database.driver":                "sqlite",
	"database.dsn":                   "invsync.db",
	"database.batch_size":            catalog.DefaultBatchSize,
	"sync.retries":                   3,
	"sync.backoff":                   10 * time.Second,
	"sync.max_step_output":           8 << 10,
	"sync.history_days":              30,
	"daemon.interval":                30 * time.Minute,
	"daemon.debounce":                500 * time.Millisecond,
	"daemon.run_on_start":            true,
	"daemon.watch":                   false,
	"log.level":                      "info",
	"log.format":                     "console",
	"log.file":                       "",
	"log.max_size_mb":                100,
	"log.max_backups":                5,
	"log.max_age_days":               28,
	"server.addr":                    ":8080",
}

// legacyEnv maps keys to the environment variable names used by the hosted
// job this tool replaces. INVSYNC_* names take precedence.
var legacyEnv = map[string]string{
	"sheets.products_id":             "GOOGLE_SHEET_ID",
	"sheets.products_range":          "GOOGLE_SHEET_RANGE",
	"sheets.variants_id":             "GOOGLE_PROD_VARIANTS_SHEET_ID",
	"sheets.variants_range":          "GOOGLE_PROD_VARIANTS_SHEET_RANGE",
	"sheets.credentials.email":       "GOOGLE_SERVICE_ACCOUNT_EMAIL",
	"sheets.credentials.private_key": "GOOGLE_SERVICE_ACCOUNT_PRIVATE_KEY",
	"database.dsn":                   "DATABASE_URL",
}

// Options controls where Load looks.
type Options struct {
	// File is an explicit config file. When empty, invsync.{yaml,toml,json}
	// is searched for in the working directory.
	File string
	// EnvFiles are loaded into the process environment first. Missing files
	// are ignored. Defaults to .env and .env.local.
	EnvFiles []string
}

// Load builds a Config. It does not validate it.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env", ".env.local"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set.
		_ = godotenv.Load(f)
	}

	v := New()
	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("invsync")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.FillVariantRanges()
	return cfg, nil
}

// New returns a viper instance with defaults and environment bindings but
// no config file. The CLI binds its flags to it.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, envName(key), legacy)
	}
	return v
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Default returns the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	_ = v.Unmarshal(cfg)
	cfg.FillVariantRanges()
	return cfg
}

// Variants tab defaults. A variants spreadsheet of its own keeps its data on
// Sheet1; one shared with the products sheet uses a separate Variants tab.
const (
	separateVariantsRange  = "Sheet1!A2:F"
	separateParentSKURange = "Sheet1!A2:A"
	sharedVariantsRange    = "Variants!A2:F"
	sharedParentSKURange   = "Variants!A2:A"
)

// SharedSpreadsheet reports whether products and variants live in the same
// spreadsheet.
func (c *Config) SharedSpreadsheet() bool {
	return c.Sheets.VariantsID == "" || c.Sheets.VariantsID == c.Sheets.ProductsID
}

// FillVariantRanges fills unset variants ranges for the spreadsheet
// layout in use.
func (c *Config) FillVariantRanges() {
	variants, parents := separateVariantsRange, separateParentSKURange
	if c.SharedSpreadsheet() {
		variants, parents = sharedVariantsRange, sharedParentSKURange
	}
	if c.Sheets.VariantsRange == "" {
		c.Sheets.VariantsRange = variants
	}
	if c.Sheets.ParentSKURange == "" {
		c.Sheets.ParentSKURange = parents
	}
}

// ProductsSheet returns the options for opening the products spreadsheet.
func (c *Config) ProductsSheet() sheet.Options {
	return c.sheetOptions(c.Sheets.ProductsID)
}

// VariantsSheet returns the options for opening the variants spreadsheet.
// An empty variants ID means both tabs live in the products spreadsheet.
func (c *Config) VariantsSheet() sheet.Options {
	id := c.Sheets.VariantsID
	if id == "" {
		id = c.Sheets.ProductsID
	}
	return c.sheetOptions(id)
}

func (c *Config) sheetOptions(id string) sheet.Options {
	return sheet.Options{
		Backend:       c.Sheets.Backend,
		SpreadsheetID: id,
		CSVDir:        c.Sheets.CSVDir,
		Credentials: sheet.Credentials{
			Email:      c.Sheets.Credentials.Email,
			PrivateKey: c.Sheets.Credentials.PrivateKey,
			File:       c.Sheets.Credentials.File,
		},
	}
}

// Ranges returns the sheet ranges ingestion and write-back operate on.
func (c *Config) Ranges() ingest.Ranges {
	return ingest.Ranges{
		Products:   c.Sheets.ProductsRange,
		Variants:   c.Sheets.VariantsRange,
		ParentSKUs: c.Sheets.ParentSKURange,
	}
}

// Workflow returns the scheduler retry settings.
func (c *Config) Workflow() workflow.Config {
	return workflow.Config{
		Retries:   c.Sync.Retries,
		Backoff:   c.Sync.Backoff,
		MaxOutput: c.Sync.MaxStepOutput,
	}
}
