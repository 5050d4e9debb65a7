package sheet

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Source. Reads and writes are safe for concurrent
// use. Tests can inject failures through ReadErr and WriteErr.
type Memory struct {
	mu     sync.Mutex
	tabs   map[string]grid
	order  []string
	writes [][]CellUpdate
	reads  []string

	// ReadErr, when set, is returned by Read for ranges it matches.
	ReadErr func(rng string) error
	// WriteErr, when set, is returned by WriteCells before any cell is written.
	WriteErr func(updates []CellUpdate) error
}

// NewMemory creates an empty in-memory spreadsheet.
func NewMemory() *Memory {
	return &Memory{tabs: make(map[string]grid)}
}

// SetSheet replaces a tab's contents. rows[0] is sheet row 1 (the header).
func (m *Memory) SetSheet(name string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[name]; !ok {
		m.order = append(m.order, name)
	}
	m.tabs[name] = grid(rows).clone()
}

// Read implements Source.
func (m *Memory) Read(ctx context.Context, rng string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, rng)

	if m.ReadErr != nil {
		if err := m.ReadErr(rng); err != nil {
			return nil, err
		}
	}

	g, err := m.tab(r.Sheet)
	if err != nil {
		return nil, err
	}
	return g.read(r), nil
}

// WriteCells implements Source. The batch is applied atomically: either every
// address is valid and all cells are written, or none are.
func (m *Memory) WriteCells(ctx context.Context, updates []CellUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		if err := m.WriteErr(updates); err != nil {
			return err
		}
	}

	type target struct {
		name     string
		col, row int
	}
	targets := make([]target, len(updates))
	for i, u := range updates {
		name, col, row, err := ParseCell(u.Cell)
		if err != nil {
			return err
		}
		if name == "" {
			if len(m.order) == 0 {
				return fmt.Errorf("%w: no default sheet for %q", ErrSheetNotFound, u.Cell)
			}
			name = m.order[0]
		}
		if _, ok := m.tabs[name]; !ok {
			return fmt.Errorf("%w: %q", ErrSheetNotFound, name)
		}
		targets[i] = target{name, col, row}
	}

	for i, t := range targets {
		m.tabs[t.name] = m.tabs[t.name].set(t.col, t.row, updates[i].Value)
	}
	m.writes = append(m.writes, append([]CellUpdate(nil), updates...))
	return nil
}

// Cell returns the current value at a sheet-qualified address.
func (m *Memory) Cell(addr string) string {
	name, col, row, err := ParseCell(addr)
	if err != nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.tab(name)
	if err != nil {
		return ""
	}
	return g.get(col, row)
}

// Rows returns a copy of a tab's full contents.
func (m *Memory) Rows(name string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tabs[name].clone()
}

// Writes returns every batch written so far, in order.
func (m *Memory) Writes() [][]CellUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]CellUpdate, len(m.writes))
	copy(out, m.writes)
	return out
}

// Reads returns every range read so far, in order.
func (m *Memory) Reads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reads...)
}

func (m *Memory) tab(name string) (grid, error) {
	if name == "" {
		if len(m.order) == 0 {
			return nil, fmt.Errorf("%w: spreadsheet has no tabs", ErrSheetNotFound)
		}
		name = m.order[0]
	}
	g, ok := m.tabs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	return g, nil
}
