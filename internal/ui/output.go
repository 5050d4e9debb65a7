package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Format selects how command results are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a --format value. An empty value picks table for
// terminals and JSON otherwise.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		if IsTerminal() {
			return FormatTable, nil
		}
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json or yaml)", s)
	}
}

// Tabular is implemented by results that can be shown as a table.
type Tabular interface {
	Headers() []string
	Rows() [][]string
}

// Write renders data in the given format. Table format requires data to
// implement Tabular and falls back to JSON otherwise.
func Write(w io.Writer, format Format, data any) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toPlain(data)); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		if t, ok := data.(Tabular); ok {
			_, err := fmt.Fprintln(w, RenderTable(t.Headers(), t.Rows()))
			return err
		}
		fallthrough
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
}

// toPlain round-trips through JSON so YAML output uses the json field
// names and formats of the domain types.
func toPlain(data any) any {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return data
	}
	return plain
}

// RenderTable draws a bordered table.
func RenderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.Render()
}
