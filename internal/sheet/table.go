// Package sheet keeps the briefing's tabular state: one row per day in the
// Daily and Morning sheets, one row per session in Activities, and an
// append-only AI log. Rows are positional; column order must not change.
package sheet

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Table is a single named sheet. Row and column indices are zero-based.
type Table interface {
	Name() string
	// Rows returns every row as display strings.
	Rows(ctx context.Context) ([][]string, error)
	Append(ctx context.Context, row []any) error
	// Update writes the given cells of one existing row in a single call.
	Update(ctx context.Context, row int, cells map[int]any) error
}

// Book is a set of tables, usually one spreadsheet.
type Book interface {
	Table(name string) Table
	Close() error
}

// Cell renders a value the way a spreadsheet displays it.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Cells renders a whole row.
func Cells(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = Cell(v)
	}
	return out
}

// column returns the A1 column letters for a zero-based index.
func column(i int) string {
	var b strings.Builder
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		b.WriteByte(byte('A' + (n-1)%26))
	}
	s := []byte(b.String())
	for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
	return string(s)
}
