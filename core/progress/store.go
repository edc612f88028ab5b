package progress

import (
	"context"
	"fmt"
)

// TabularStore performs range-addressed operations against a spreadsheet-like store.
// Ranges use A1 notation, e.g. "Sheet1!A:I" or "Sheet1!A7:I7".
type TabularStore interface {
	// ReadRange returns the addressed rows, header row included.
	ReadRange(ctx context.Context, storeID, rng string) ([][]string, error)
	// WriteRange replaces the addressed cells with rows.
	WriteRange(ctx context.Context, storeID, rng string, rows [][]string) error
	// AppendRows adds rows after the existing data of the addressed table.
	AppendRows(ctx context.Context, storeID, rng string, rows [][]string) error
}

const (
	firstColumn = "A"
	lastColumn  = "I" // len(Header) columns
)

// TableRange addresses the whole progress table of sheet.
func TableRange(sheet string) string {
	return fmt.Sprintf("%s!%s:%s", sheet, firstColumn, lastColumn)
}

// RowRange addresses the n-th (1-based) row of sheet.
func RowRange(sheet string, n int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", sheet, firstColumn, n, lastColumn, n)
}
