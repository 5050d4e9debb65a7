package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultTab is the tab used by CSVBook when a range has no sheet prefix.
const DefaultTab = "Sheet1"

// CSVBook is a Source backed by a directory of CSV files. Each sheet tab is
// stored as <dir>/<tab>.csv; row 1 of the file is the header row.
type CSVBook struct {
	dir string
	mu  sync.Mutex
}

// NewCSVBook returns a CSVBook rooted at dir. The directory must exist.
func NewCSVBook(dir string) (*CSVBook, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workbook path %s is not a directory", dir)
	}
	return &CSVBook{dir: dir}, nil
}

// Dir returns the workbook directory.
func (b *CSVBook) Dir() string {
	return b.dir
}

// TabPath returns the CSV file that stores a sheet tab.
func (b *CSVBook) TabPath(tab string) string {
	if tab == "" {
		tab = DefaultTab
	}
	return filepath.Join(b.dir, tab+".csv")
}

// Read implements Source.
func (b *CSVBook) Read(ctx context.Context, rng string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	g, err := b.load(r.Sheet)
	if err != nil {
		return nil, err
	}
	return g.read(r), nil
}

// WriteCells implements Source. Each affected tab is rewritten through a
// temporary file and renamed into place.
func (b *CSVBook) WriteCells(ctx context.Context, updates []CellUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tabs := make(map[string]grid)
	var order []string
	for _, u := range updates {
		name, col, row, err := ParseCell(u.Cell)
		if err != nil {
			return err
		}
		if name == "" {
			name = DefaultTab
		}
		g, ok := tabs[name]
		if !ok {
			g, err = b.load(name)
			if err != nil {
				return err
			}
			order = append(order, name)
		}
		tabs[name] = g.set(col, row, u.Value)
	}

	for _, name := range order {
		if err := b.save(name, tabs[name]); err != nil {
			return err
		}
	}
	return nil
}

func (b *CSVBook) load(tab string) (grid, error) {
	f, err := os.Open(b.TabPath(tab))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, tab)
		}
		return nil, fmt.Errorf("failed to open tab %s: %w", tab, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse tab %s: %w", tab, err)
	}
	return grid(rows), nil
}

func (b *CSVBook) save(tab string, g grid) error {
	path := b.TabPath(tab)
	tmp, err := os.CreateTemp(b.dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for tab %s: %w", tab, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(g); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write tab %s: %w", tab, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close tab %s: %w", tab, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace tab %s: %w", tab, err)
	}
	return nil
}
