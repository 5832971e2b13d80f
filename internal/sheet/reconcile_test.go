package sheet

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTable is an in-memory Table that counts writes.
type memTable struct {
	name    string
	rows    [][]string
	appends int
	updates int
	readErr error
}

func (m *memTable) Name() string { return m.name }

func (m *memTable) Rows(context.Context) ([][]string, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (m *memTable) Append(_ context.Context, row []any) error {
	m.appends++
	m.rows = append(m.rows, Cells(row))
	return nil
}

func (m *memTable) Update(_ context.Context, row int, cells map[int]any) error {
	m.updates++
	for col, v := range cells {
		for len(m.rows[row]) <= col {
			m.rows[row] = append(m.rows[row], "")
		}
		m.rows[row][col] = Cell(v)
	}
	return nil
}

func TestUpsertPreservesCellsLeftEmpty(t *testing.T) {
	tbl := &memTable{name: "Daily", rows: [][]string{
		{"Date", "Steps", "Distance", "Calories", "RHR", "Body Battery"},
		{"2024-05-01", "8000", "6.1", "2200", "58", "72"},
	}}

	res := Upsert(context.Background(), tbl, "2024-05-01", []any{"2024-05-01", 9500, "", 2350, "", ""})

	require.NoError(t, res.Err)
	assert.Equal(t, Updated, res.Action)
	assert.Equal(t, 1, res.Row)
	assert.Equal(t, 2, res.Cells)
	assert.Equal(t, 1, tbl.updates)
	assert.Equal(t, 0, tbl.appends)
	if diff := cmp.Diff([]string{"2024-05-01", "9500", "6.1", "2350", "58", "72"}, tbl.rows[1]); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertAppendsWhenNoMatch(t *testing.T) {
	tbl := &memTable{name: "Daily", rows: [][]string{
		{"2024-04-30", "7000", "5.3", "2100", "59", "64"},
	}}

	row := []any{"2024-05-01", 9500, 7.24, 2350, 58.0, ""}
	res := Upsert(context.Background(), tbl, "2024-05-01", row)

	assert.Equal(t, Appended, res.Action)
	assert.Equal(t, 1, res.Row)
	require.Len(t, tbl.rows, 2)
	if diff := cmp.Diff([]string{"2024-05-01", "9500", "7.24", "2350", "58", ""}, tbl.rows[1]); diff != "" {
		t.Errorf("appended row mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertMatchesDateInsideTimestamp(t *testing.T) {
	tbl := &memTable{name: "Morning", rows: [][]string{
		{"2024-05-01 06:58", "73.1", "", "", "", "", ""},
	}}

	res := Upsert(context.Background(), tbl, "2024-05-01 07:40", []any{"2024-05-01 07:40", "", 52.0, 47.0, 88.0, 81.0, 7.4})

	assert.Equal(t, Updated, res.Action)
	assert.Equal(t, []string{"2024-05-01 06:58", "73.1", "52", "47", "88", "81", "7.4"}, tbl.rows[0])
}

func TestUpsertZeroIsTreatedAsAbsent(t *testing.T) {
	tbl := &memTable{name: "Daily", rows: [][]string{
		{"2024-05-01", "8000", "6.1", "2200", "58", "72"},
	}}

	res := Upsert(context.Background(), tbl, "2024-05-01", []any{"2024-05-01", 0, 0.0, "0", "N/A", nil})

	assert.Equal(t, Updated, res.Action)
	assert.Equal(t, 0, res.Cells)
	assert.Equal(t, 0, tbl.updates)
	assert.Equal(t, []string{"2024-05-01", "8000", "6.1", "2200", "58", "72"}, tbl.rows[0])
}

func TestUpsertFirstMatchWins(t *testing.T) {
	tbl := &memTable{name: "Daily", rows: [][]string{
		{"2024-05-01", "1"},
		{"2024-05-01", "2"},
	}}
	Upsert(context.Background(), tbl, "2024-05-01", []any{"2024-05-01", 3})
	assert.Equal(t, "3", tbl.rows[0][1])
	assert.Equal(t, "2", tbl.rows[1][1])
}

func TestUpsertReadFailureIsAValue(t *testing.T) {
	tbl := &memTable{name: "Daily", readErr: errors.New("quota exceeded")}

	res := Upsert(context.Background(), tbl, "2024-05-01", []any{"2024-05-01", 1})

	assert.Equal(t, Failed, res.Action)
	assert.Error(t, res.Err)
	assert.Contains(t, res.String(), "Err: ")
	assert.LessOrEqual(t, len(res.String()), len("Err: ")+40)
}

func TestResultStringKeepsRunesWhole(t *testing.T) {
	res := Result{Action: Failed, Err: errors.New("не удалось прочитать лист: превышена квота запросов")}

	s := res.String()
	assert.True(t, utf8.ValidString(s), s)
	assert.Equal(t, 40, utf8.RuneCountInString(strings.TrimPrefix(s, "Err: ")))
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, "2024-05-01", DateKey("2024-05-01 07:12"))
	assert.Equal(t, "2024-05-01", DateKey("2024-05-01T07:12:00"))
	assert.Equal(t, "2024-05-01", DateKey(" 2024-05-01 "))
}

func TestFind(t *testing.T) {
	rows := [][]string{{}, {"Date"}, {"2024-05-01 08:00"}}
	assert.Equal(t, 2, Find(rows, "2024-05-01"))
	assert.Equal(t, -1, Find(rows, "2024-05-02"))
	assert.Equal(t, -1, Find(rows, ""))
}

func TestColumn(t *testing.T) {
	for i, want := range map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"} {
		assert.Equal(t, want, column(i), "column(%d)", i)
	}
}

func TestCell(t *testing.T) {
	assert.Equal(t, "", Cell(nil))
	assert.Equal(t, "6.1", Cell(6.1))
	assert.Equal(t, "9500", Cell(9500))
	assert.Equal(t, "9500", Cell(9500.0))
	assert.Equal(t, "walking", Cell("walking"))
	assert.Equal(t, "true", Cell(true))
}
