// Package tabular holds the pieces shared by the local TabularStore backends.
package tabular

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Range is a parsed A1 range. Columns are 0-based; rows are 1-based and 0 when unbounded.
type Range struct {
	Sheet    string
	StartCol int
	EndCol   int
	StartRow int
	EndRow   int
}

// ParseRange parses ranges such as "Sheet1!A:I", "Sheet1!A2:I2" or "'My sheet'!B3:D".
func ParseRange(rng string) (Range, error) {
	idx := strings.LastIndex(rng, "!")
	if idx <= 0 {
		return Range{}, errors.Errorf("invalid range %q: missing sheet name", rng)
	}
	r := Range{Sheet: strings.Trim(rng[:idx], "'")}

	cells := strings.SplitN(rng[idx+1:], ":", 2)
	if len(cells) != 2 {
		return Range{}, errors.Errorf("invalid range %q", rng)
	}
	var err error
	if r.StartCol, r.StartRow, err = parseCell(cells[0]); err != nil {
		return Range{}, errors.Wrapf(err, "invalid range %q", rng)
	}
	if r.EndCol, r.EndRow, err = parseCell(cells[1]); err != nil {
		return Range{}, errors.Wrapf(err, "invalid range %q", rng)
	}
	if r.EndCol < r.StartCol || (r.EndRow != 0 && r.EndRow < r.StartRow) {
		return Range{}, errors.Errorf("invalid range %q: end before start", rng)
	}
	return r, nil
}

// Width is the number of columns of r.
func (r Range) Width() int {
	return r.EndCol - r.StartCol + 1
}

// FirstRow returns the first row of r, 1 when unbounded.
func (r Range) FirstRow() int {
	if r.StartRow == 0 {
		return 1
	}
	return r.StartRow
}

func parseCell(cell string) (col, row int, err error) {
	cell = strings.ToUpper(strings.TrimSpace(cell))
	i := 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		i++
	}
	if i == 0 {
		return 0, 0, errors.Errorf("cell %q has no column", cell)
	}
	col = ColumnIndex(cell[:i])
	if i < len(cell) {
		if row, err = strconv.Atoi(cell[i:]); err != nil || row < 1 {
			return 0, 0, errors.Errorf("cell %q has an invalid row", cell)
		}
	}
	return col, row, nil
}

// ColumnIndex converts a column name ("A", "AB") to its 0-based index.
func ColumnIndex(name string) int {
	idx := 0
	for _, c := range name {
		idx = idx*26 + int(c-'A'+1)
	}
	return idx - 1
}

// TrimRow drops the trailing empty cells of row, the way spreadsheet APIs return rows.
func TrimRow(row []string) []string {
	n := len(row)
	for n > 0 && row[n-1] == "" {
		n--
	}
	return row[:n]
}

// Cut returns the cells of row within the columns of r.
func Cut(row []string, r Range) []string {
	out := make([]string, 0, r.Width())
	for c := r.StartCol; c <= r.EndCol && c < len(row); c++ {
		out = append(out, row[c])
	}
	return TrimRow(out)
}

// TrimRows drops trailing empty rows.
func TrimRows(rows [][]string) [][]string {
	n := len(rows)
	for n > 0 && len(TrimRow(rows[n-1])) == 0 {
		n--
	}
	return rows[:n]
}

// TableEnd returns the number of rows of the table addressed by r, i.e. the index of its last non-empty row.
func TableEnd(rows [][]string, r Range) int {
	end := len(rows)
	for end > 0 && len(Cut(rows[end-1], r)) == 0 {
		end--
	}
	return end
}
