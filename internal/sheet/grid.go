package sheet

// grid is a sheet tab held as rows of cells, row 0 being sheet row 1.
type grid [][]string

// read extracts r from g using the Sheets API conventions: trailing empty
// cells are trimmed from each row and trailing empty rows are dropped.
func (g grid) read(r Range) [][]string {
	first := r.StartRow - 1
	last := len(g) - 1
	if r.EndRow > 0 && r.EndRow-1 < last {
		last = r.EndRow - 1
	}

	var out [][]string
	for i := first; i <= last; i++ {
		row := g[i]
		if r.StartCol >= len(row) {
			out = append(out, []string{})
			continue
		}
		end := len(row)
		if r.EndCol >= 0 && r.EndCol+1 < end {
			end = r.EndCol + 1
		}
		cells := make([]string, end-r.StartCol)
		copy(cells, row[r.StartCol:end])
		out = append(out, trimRow(cells))
	}

	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

// set writes value at (col, row), growing the grid as needed.
func (g grid) set(col, row int, value string) grid {
	for len(g) < row {
		g = append(g, nil)
	}
	cells := g[row-1]
	for len(cells) <= col {
		cells = append(cells, "")
	}
	cells[col] = value
	g[row-1] = cells
	return g
}

func (g grid) get(col, row int) string {
	if row < 1 || row > len(g) {
		return ""
	}
	cells := g[row-1]
	if col < 0 || col >= len(cells) {
		return ""
	}
	return cells[col]
}

func (g grid) clone() grid {
	out := make(grid, len(g))
	for i, row := range g {
		out[i] = append([]string(nil), row...)
	}
	return out
}

func trimRow(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	return cells[:n]
}
