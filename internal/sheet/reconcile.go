package sheet

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jai/garmin-briefing/internal/resolve"
)

// Action is what Upsert did.
type Action string

const (
	Updated  Action = "Updated"
	Appended Action = "Appended"
	Failed   Action = "Err"
)

// Result is the outcome of an upsert. A failure is a value, not an error:
// the caller logs it and moves on.
type Result struct {
	Action Action
	Row    int // zero-based row index touched, -1 on failure
	Cells  int // cells written
	Err    error
}

func (r Result) String() string {
	if r.Action == Failed {
		msg := "unknown"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		msg = truncate(msg, 40)
		return fmt.Sprintf("Err: %s", msg)
	}
	return string(r.Action)
}

// DateKey strips any time-of-day suffix from a key like "2024-05-01 07:12".
func DateKey(key string) string {
	key = strings.TrimSpace(key)
	if i := strings.IndexAny(key, " T"); i > 0 {
		return key[:i]
	}
	return key
}

// Find returns the index of the first row whose first cell contains key, or -1.
func Find(rows [][]string, key string) int {
	if key == "" {
		return -1
	}
	for i, r := range rows {
		if len(r) > 0 && strings.Contains(r[0], key) {
			return i
		}
	}
	return -1
}

// Upsert keeps one row per date. The first row whose first cell contains the
// date part of key gets every non-absent candidate cell written over it; the
// key column and cells the candidate leaves absent keep their old values. With
// no matching row the candidate is appended as is.
func Upsert(ctx context.Context, t Table, key string, row []any) Result {
	rows, err := t.Rows(ctx)
	if err != nil {
		return Result{Action: Failed, Row: -1, Err: fmt.Errorf("read %s: %w", t.Name(), err)}
	}

	idx := Find(rows, DateKey(key))
	if idx < 0 {
		if err := t.Append(ctx, row); err != nil {
			return Result{Action: Failed, Row: -1, Err: fmt.Errorf("append %s: %w", t.Name(), err)}
		}
		return Result{Action: Appended, Row: len(rows), Cells: len(row)}
	}

	cells := make(map[int]any)
	for col := 1; col < len(row); col++ {
		if !resolve.Absent(row[col]) {
			cells[col] = row[col]
		}
	}
	if len(cells) == 0 {
		return Result{Action: Updated, Row: idx}
	}
	if err := t.Update(ctx, idx, cells); err != nil {
		return Result{Action: Failed, Row: -1, Err: fmt.Errorf("update %s row %d: %w", t.Name(), idx+1, err)}
	}
	return Result{Action: Updated, Row: idx, Cells: len(cells)}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
