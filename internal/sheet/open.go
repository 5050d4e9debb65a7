package sheet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendGoogle = "google"
	BackendCSV    = "csv"
)

// Options selects and configures a backend.
type Options struct {
	Backend       string
	SpreadsheetID string
	Credentials   Credentials

	// CSVDir is the workbook root for the csv backend. Each spreadsheet
	// lives in its own subdirectory named after SpreadsheetID.
	CSVDir string
}

// Open returns the Source described by opts.
func Open(ctx context.Context, opts Options) (Source, error) {
	switch opts.Backend {
	case BackendGoogle, "":
		return NewGoogle(ctx, opts.SpreadsheetID, opts.Credentials)
	case BackendCSV:
		dir := opts.CSVDir
		if opts.SpreadsheetID != "" {
			dir = filepath.Join(dir, opts.SpreadsheetID)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workbook directory: %w", err)
		}
		return NewCSVBook(dir)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
