// Package resolve picks metric values out of loosely-shaped vendor payloads.
//
// The wearable API renames and omits fields depending on device and account
// state, so a metric is described as an ordered list of candidate field paths
// and, for some metrics, an ordered list of days to probe. Numeric zero counts
// as absent: a zero resting heart rate or HRV means the reading is missing.
// A metric whose true value is zero can therefore never be recorded.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is reported by Value.Err when every candidate was absent and
// no fetch failed.
var ErrNotFound = errors.New("no value found")

// Fetcher returns the payload for one calendar day (YYYY-MM-DD).
type Fetcher func(ctx context.Context, day string) (map[string]any, error)

// Value is the outcome of a lookup.
type Value struct {
	V     any
	Field string // path that produced V
	Day   string // day that produced V, empty for single-payload lookups

	// err is set when nothing was found and at least one fetch failed.
	err error
}

// OK reports whether a value was found.
func (v Value) OK() bool { return !Absent(v.V) }

// Unavailable reports whether the lookup came back empty because a fetch
// failed, as opposed to the vendor simply having no data.
func (v Value) Unavailable() bool { return !v.OK() && v.err != nil }

// Err returns nil for a found value, the last fetch error for an unavailable
// one and ErrNotFound otherwise.
func (v Value) Err() error {
	switch {
	case v.OK():
		return nil
	case v.err != nil:
		return v.err
	default:
		return ErrNotFound
	}
}

// Or returns the found value or def.
func (v Value) Or(def any) any {
	if v.OK() {
		return v.V
	}
	return def
}

// Float returns the value as a float64.
func (v Value) Float() (float64, bool) {
	if !v.OK() {
		return 0, false
	}
	return Float(v.V)
}

// Absent reports whether v carries no usable reading.
func Absent(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(x)
		return s == "" || s == "N/A" || s == "0" || s == "0.0"
	case float64:
		return x == 0 || math.IsNaN(x)
	case float32:
		return x == 0
	case int:
		return x == 0
	case int64:
		return x == 0
	case int32:
		return x == 0
	case json.Number:
		f, err := x.Float64()
		return err != nil || f == 0
	case bool:
		return false
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// Lookup walks a dotted path through nested maps and lists. Numeric segments
// index lists; negative indices count from the end. A missing or mistyped
// segment yields nil.
func Lookup(payload map[string]any, path string) any {
	var cur any = payload
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return nil
			}
			if i < 0 {
				i += len(node)
			}
			if i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// First returns the first candidate field that holds a usable value.
func First(payload map[string]any, fields ...string) Value {
	for _, f := range fields {
		if v := Lookup(payload, f); !Absent(v) {
			return Value{V: v, Field: f}
		}
	}
	return Value{}
}

// Walk probes days in order and returns the first usable candidate field.
// It never panics and never returns an error directly; a failed fetch is
// kept on the returned Value when nothing else turned up.
func Walk(ctx context.Context, days []string, fetch Fetcher, fields ...string) Value {
	var lastErr error
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		payload, err := fetch(ctx, day)
		if err != nil {
			lastErr = err
			continue
		}
		if v := First(payload, fields...); v.OK() {
			v.Day = day
			return v
		}
	}
	return Value{err: lastErr}
}

// Days lists n calendar days starting at target and walking backward.
func Days(target time.Time, n int) []string {
	if n < 1 {
		n = 1
	}
	days := make([]string, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, target.AddDate(0, 0, -i).Format("2006-01-02"))
	}
	return days
}

// Float converts the numeric shapes that come out of JSON or a spreadsheet.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// Round rounds x to the given number of decimal places.
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
