package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/huangc28/kikichoice-be/internal/inventory/catalog"
	"github.com/huangc28/kikichoice-be/internal/sheet"
)

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Sheets.Backend {
	case sheet.BackendGoogle:
		if c.Sheets.ProductsID == "" {
			add("sheets.products_id is required for the google backend")
		}
		creds := c.Sheets.Credentials
		if creds.File == "" && (creds.Email == "" || creds.PrivateKey == "") {
			add("sheets.credentials needs a key file or both email and private_key")
		}
	case sheet.BackendCSV:
		if c.Sheets.CSVDir == "" {
			add("sheets.csv_dir is required for the csv backend")
		}
	default:
		add("sheets.backend must be %q or %q, got %q", sheet.BackendGoogle, sheet.BackendCSV, c.Sheets.Backend)
	}
	if err := c.checkVariantsTab(); err != nil {
		errs = append(errs, err)
	}
	for key, rng := range map[string]string{
		"sheets.products_range":   c.Sheets.ProductsRange,
		"sheets.variants_range":   c.Sheets.VariantsRange,
		"sheets.parent_sku_range": c.Sheets.ParentSKURange,
	} {
		if rng == "" {
			continue
		}
		if _, err := sheet.ParseRange(rng); err != nil {
			add("%s: %w", key, err)
		}
	}

	switch catalog.Dialect(c.Database.Driver) {
	case catalog.DialectSQLite, catalog.DialectPostgres:
	default:
		add("database.driver must be %q or %q, got %q", catalog.DialectSQLite, catalog.DialectPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("database.dsn is required")
	}
	if c.Database.BatchSize < 1 {
		add("database.batch_size must be positive")
	}

	if c.Sync.Retries < 0 {
		add("sync.retries must not be negative")
	}
	if c.Sync.Backoff < 0 {
		add("sync.backoff must not be negative")
	}
	if c.Daemon.Interval <= 0 {
		add("daemon.interval must be positive")
	}
	if c.Daemon.Watch && c.Sheets.Backend != sheet.BackendCSV {
		add("daemon.watch requires the csv backend")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format must be json or console, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// checkVariantsTab rejects a variants range on the products tab of a shared
// spreadsheet. Both pipelines would read and write the same rows.
func (c *Config) checkVariantsTab() error {
	if !c.SharedSpreadsheet() {
		return nil
	}
	products, err := sheet.ParseRange(c.Sheets.ProductsRange)
	if err != nil {
		return nil
	}
	for key, rng := range map[string]string{
		"sheets.variants_range":   c.Sheets.VariantsRange,
		"sheets.parent_sku_range": c.Sheets.ParentSKURange,
	} {
		r, err := sheet.ParseRange(rng)
		if err != nil {
			continue
		}
		if r.Sheet == products.Sheet {
			return fmt.Errorf("%s must use a different tab than sheets.products_range (%q) when variants share the products spreadsheet", key, products.Sheet)
		}
	}
	return nil
}

// CheckFile strictly decodes a TOML config file and reports keys that do
// not correspond to any setting. Viper silently ignores those, which hides
// typos.
func CheckFile(path string) ([]string, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".toml" {
		return nil, fmt.Errorf("strict checking supports .toml files, got %q", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	return unknown, nil
}
