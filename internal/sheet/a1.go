package sheet

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a parsed A1 range. Columns are 0-based (A=0); rows are 1-based.
// EndCol < 0 and EndRow == 0 mean the range is open in that direction.
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseRange parses ranges such as "Sheet1!A2:L", "A2:H1000" or
// "'Stock Sheet'!B2".
func ParseRange(s string) (Range, error) {
	sheetName, ref := splitSheet(strings.TrimSpace(s))
	if ref == "" {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}

	start, end, hasEnd := strings.Cut(ref, ":")

	r := Range{Sheet: sheetName, EndCol: -1}

	col, row, err := parseRef(start)
	if err != nil || col < 0 {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	r.StartCol = col
	r.StartRow = row
	if r.StartRow == 0 {
		r.StartRow = 1
	}

	if !hasEnd {
		// Single cell.
		r.EndCol = r.StartCol
		r.EndRow = r.StartRow
		return r, nil
	}

	col, row, err = parseRef(end)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	r.EndCol = col
	r.EndRow = row

	if r.EndCol >= 0 && r.EndCol < r.StartCol {
		return Range{}, fmt.Errorf("%w: %q ends before it starts", ErrInvalidRange, s)
	}
	if r.EndRow > 0 && r.EndRow < r.StartRow {
		return Range{}, fmt.Errorf("%w: %q ends before it starts", ErrInvalidRange, s)
	}
	return r, nil
}

// String formats r back into A1 notation.
func (r Range) String() string {
	var b strings.Builder
	if r.Sheet != "" {
		b.WriteString(quoteSheet(r.Sheet))
		b.WriteByte('!')
	}
	b.WriteString(ColumnLetter(r.StartCol))
	b.WriteString(strconv.Itoa(r.StartRow))
	if r.EndCol == r.StartCol && r.EndRow == r.StartRow {
		return b.String()
	}
	b.WriteByte(':')
	if r.EndCol >= 0 {
		b.WriteString(ColumnLetter(r.EndCol))
	} else {
		// Open-ended column ranges are not valid A1; use the widest column.
		b.WriteString(ColumnLetter(maxColumn))
	}
	if r.EndRow > 0 {
		b.WriteString(strconv.Itoa(r.EndRow))
	}
	return b.String()
}

// Cell returns the address of the cell at column col (0-based, relative to
// the sheet's column A) in the row that Read returned at index rowIndex.
func (r Range) Cell(col, rowIndex int) string {
	return CellAddress(r.Sheet, col, r.StartRow+rowIndex)
}

// CellAddress formats a sheet-qualified A1 cell address.
func CellAddress(sheetName string, col, row int) string {
	addr := ColumnLetter(col) + strconv.Itoa(row)
	if sheetName == "" {
		return addr
	}
	return quoteSheet(sheetName) + "!" + addr
}

// ParseCell parses a single cell address into its sheet, 0-based column and
// 1-based row.
func ParseCell(s string) (sheetName string, col, row int, err error) {
	sheetName, ref := splitSheet(strings.TrimSpace(s))
	col, row, err = parseRef(ref)
	if err != nil || col < 0 || row < 1 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidCell, s)
	}
	return sheetName, col, row, nil
}

// maxColumn is the last column Google Sheets supports (ZZZ).
const maxColumn = 18277

// ColumnLetter converts a 0-based column index to its letter (0 → A, 26 → AA).
func ColumnLetter(col int) string {
	if col < 0 {
		return ""
	}
	var buf [4]byte
	i := len(buf)
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		i--
		buf[i] = byte('A' + (n-1)%26)
	}
	return string(buf[i:])
}

// ColumnIndex converts a column letter to its 0-based index (A → 0).
// It returns -1 for an empty or invalid string.
func ColumnIndex(letters string) int {
	if letters == "" {
		return -1
	}
	n := 0
	for _, c := range strings.ToUpper(letters) {
		if c < 'A' || c > 'Z' {
			return -1
		}
		n = n*26 + int(c-'A'+1)
	}
	return n - 1
}

// parseRef parses "G12", "G" or "12". Missing parts come back as col=-1 or
// row=0.
func parseRef(ref string) (col, row int, err error) {
	ref = strings.ReplaceAll(ref, "$", "")
	i := 0
	for i < len(ref) && isLetter(ref[i]) {
		i++
	}
	col = ColumnIndex(ref[:i])
	if i == len(ref) {
		if col < 0 {
			return 0, 0, ErrInvalidCell
		}
		return col, 0, nil
	}
	row, err = strconv.Atoi(ref[i:])
	if err != nil || row < 1 {
		return 0, 0, ErrInvalidCell
	}
	return col, row, nil
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func splitSheet(s string) (sheetName, ref string) {
	idx := strings.LastIndex(s, "!")
	if idx < 0 {
		return "", s
	}
	sheetName = s[:idx]
	if len(sheetName) >= 2 && sheetName[0] == '\'' && sheetName[len(sheetName)-1] == '\'' {
		sheetName = strings.ReplaceAll(sheetName[1:len(sheetName)-1], "''", "'")
	}
	return sheetName, s[idx+1:]
}

func quoteSheet(name string) string {
	for _, c := range name {
		if !(c == '_' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}
