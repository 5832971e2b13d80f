package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jai/garmin-briefing/internal/config"
	"github.com/jai/garmin-briefing/internal/narrative"
	"github.com/jai/garmin-briefing/internal/sheet"
)

const testDay = "2024-03-10"

var testNow = time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC)

// fakeSource serves canned payloads keyed by day.
type fakeSource struct {
	summaries  map[string]map[string]any
	steps      float64
	sleep      map[string]map[string]any
	hrv        map[string]map[string]any
	weight     map[string]any
	activities []map[string]any
	fail       error

	summaryCalls int
}

func (f *fakeSource) DailySummary(_ context.Context, day string) (map[string]any, error) {
	f.summaryCalls++
	if f.fail != nil {
		return nil, f.fail
	}
	return f.summaries[day], nil
}

func (f *fakeSource) DailySteps(_ context.Context, start, _ string) ([]map[string]any, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if f.steps == 0 {
		return nil, nil
	}
	return []map[string]any{{"calendarDate": start, "totalSteps": f.steps}}, nil
}

func (f *fakeSource) Sleep(_ context.Context, day string) (map[string]any, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.sleep[day], nil
}

func (f *fakeSource) HRV(_ context.Context, day string) (map[string]any, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.hrv[day], nil
}

func (f *fakeSource) BodyComposition(_ context.Context, _, _ string) (map[string]any, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.weight, nil
}

func (f *fakeSource) Activities(_ context.Context, _, _ string) ([]map[string]any, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.activities, nil
}

func morningSource() *fakeSource {
	return &fakeSource{
		summaries: map[string]map[string]any{
			testDay: {
				"restingHeartRate":           52.0,
				"bodyBatteryHighestValue":    88.0,
				"bodyBatteryMostRecentValue": 40.0,
				"activeKilocalories":         500.0,
				"bmrKilocalories":            1700.0,
			},
		},
		steps: 9000,
		sleep: map[string]map[string]any{
			testDay: {"dailySleepDTO": map[string]any{
				"sleepTimeSeconds":  27000.0,
				"sleepScores":       map[string]any{"overall": map[string]any{"value": 82.0}},
				"sleepEndTimeLocal": "2024-03-10T06:42:00.0",
			}},
		},
		hrv: map[string]map[string]any{
			"2024-03-09": {"hrvSummary": map[string]any{"lastNightAvg": 48.0}},
		},
		weight: map[string]any{"dateWeightList": []any{
			map[string]any{"weight": 73100.0},
			map[string]any{"weight": 72500.0},
		}},
		activities: []map[string]any{
			{
				"activityId":     987654321.0,
				"startTimeLocal": "2024-03-10 07:15:00",
				"activityType":   map[string]any{"typeKey": "running"},
				"duration":       3600.0,
				"distance":       10000.0,
				"averageHR":      142.0,
				"maxHR":          170.0,
				"calories":       650.0,
			},
			{
				"activityId":     987654300.0,
				"startTimeLocal": "2024-03-09 18:30:00",
				"activityType":   map[string]any{"typeKey": "cycling"},
				"duration":       5400.0,
				"averageHR":      100.0,
			},
		},
	}
}

type fakeGenerator struct {
	text    string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", "", g.err
	}
	return g.text, "test-model", nil
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	return nil
}

func newTestBook(t *testing.T) *sheet.SQLiteBook {
	t.Helper()
	book, err := sheet.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { book.Close() })
	return book
}

func newDeps(src Source, book sheet.Book) Deps {
	return Deps{
		Source: src,
		Book:   book,
		Config: config.Default(),
		Now:    func() time.Time { return testNow },
	}
}

func rows(t *testing.T, book sheet.Book, name string) [][]string {
	t.Helper()
	out, err := book.Table(name).Rows(context.Background())
	require.NoError(t, err)
	return out
}

func TestRunWritesEverySheet(t *testing.T) {
	ctx := context.Background()
	book := newTestBook(t)
	gen := &fakeGenerator{text: "  Rest is training too.  "}
	notifier := &fakeNotifier{}
	deps := newDeps(morningSource(), book)
	deps.Generator = gen
	deps.Notifier = notifier

	r := Run(ctx, testNow, deps)

	assert.Empty(t, r.Errors)
	assert.Equal(t, testDay, r.TargetDate)
	assert.Equal(t, map[string]string{
		"Activities": "2 appended",
		"Daily":      "Appended",
		"Morning":    "Appended",
		"AI_Log":     "Appended",
	}, r.Writes)

	assert.Equal(t, [][]string{{"2024-03-10 06:42", "72.5", "52", "48", "88", "82", "7.5"}}, rows(t, book, "Morning"))
	assert.Equal(t, [][]string{{"2024-03-10", "9000", "6.86", "2200", "52", "40"}}, rows(t, book, "Daily"))

	acts := rows(t, book, "Activities")
	require.Len(t, acts, 2)
	assert.Equal(t, []string{"2024-03-09", "18:30", "cycling", "1.5", "", "100", "", "Low", "", "", "", "", "", "987654300"}, acts[0])
	assert.Equal(t, "running", acts[1][2])
	assert.Equal(t, "Moderate", acts[1][7])

	assert.Equal(t, [][]string{{"2024-03-10 21:00", "Success", "Rest is training too."}}, rows(t, book, "AI_Log"))

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "HRV 48 ms")
	assert.Contains(t, gen.prompts[0], "steps 9000")

	require.Len(t, notifier.sent, 1)
	assert.True(t, r.Notified)
	assert.Equal(t, r.Message, notifier.sent[0])
	assert.Contains(t, r.Message, "Report 2024-03-10")
	assert.Contains(t, r.Message, "Steps: 9,000, calories: 2,200")
	assert.Contains(t, r.Message, "Activities: 2")
	assert.True(t, strings.HasSuffix(r.Message, "Rest is training too."))
	assert.Equal(t, "test-model", r.AdviceModel)
}

func TestRunIsIdempotentAndPreservesValues(t *testing.T) {
	ctx := context.Background()
	book := newTestBook(t)

	Run(ctx, testNow, newDeps(morningSource(), book))

	// Later the same day: more steps, and the resting heart rate has dropped
	// out of the summary.
	later := morningSource()
	later.steps = 12000
	delete(later.summaries[testDay], "restingHeartRate")

	r := Run(ctx, testNow, newDeps(later, book))

	assert.Equal(t, "Updated", r.Writes["Daily"])
	assert.Equal(t, "Updated", r.Writes["Morning"])
	assert.Equal(t, "0 appended", r.Writes["Activities"])

	assert.Equal(t, [][]string{{"2024-03-10", "12000", "9.14", "2200", "52", "40"}}, rows(t, book, "Daily"))
	morning := rows(t, book, "Morning")
	require.Len(t, morning, 1)
	assert.Equal(t, "52", morning[0][2])
	assert.Len(t, rows(t, book, "Activities"), 2)
	assert.Len(t, rows(t, book, "AI_Log"), 2)
}

func TestRunFetchesEachSummaryOnce(t *testing.T) {
	src := morningSource()
	Run(context.Background(), testNow, newDeps(src, newTestBook(t)))

	// The target day, shared by the morning and daily blocks, plus the
	// previous day where HRV turned up.
	assert.Equal(t, 2, src.summaryCalls)
}

func TestRunDegradesOnGeneratorAndNotifierFailure(t *testing.T) {
	book := newTestBook(t)
	deps := newDeps(morningSource(), book)
	deps.Generator = &fakeGenerator{err: errors.New("quota exhausted")}
	deps.Notifier = &fakeNotifier{err: errors.New("chat not found")}

	r := Run(context.Background(), testNow, deps)

	assert.Equal(t, narrative.StatusError, r.AdviceStatus)
	assert.Equal(t, deps.Config.FallbackAdvice, r.Advice)
	assert.False(t, r.Notified)
	assert.Contains(t, r.Errors, "narrative: quota exhausted")
	assert.Contains(t, r.Errors, "notify: chat not found")

	assert.Equal(t, [][]string{{"2024-03-10 21:00", "AI Error", "AI Error: quota exhausted"}}, rows(t, book, "AI_Log"))
	assert.Len(t, rows(t, book, "Daily"), 1)
}

func TestRunWithoutGeneratorOrNotifier(t *testing.T) {
	book := newTestBook(t)
	r := Run(context.Background(), testNow, newDeps(morningSource(), book))

	assert.Equal(t, narrative.StatusSkipped, r.AdviceStatus)
	assert.False(t, r.Notified)
	assert.NotEmpty(t, r.Message)
	assert.Empty(t, r.Errors)
	assert.Equal(t, [][]string{{"2024-03-10 21:00", "Skipped", config.Default().FallbackAdvice}}, rows(t, book, "AI_Log"))
}

func TestRunSurvivesSourceOutage(t *testing.T) {
	book := newTestBook(t)
	src := &fakeSource{fail: errors.New("503 service unavailable")}

	r := Run(context.Background(), testNow, newDeps(src, book))

	assert.NotEmpty(t, r.Errors)
	assert.Equal(t, "", r.Morning.RestingHR)
	assert.Contains(t, r.Message, "HRV: — ms")
	// The date-only rows still go in so later runs can fill them.
	assert.Equal(t, [][]string{{"2024-03-10", "", "", "", "", ""}}, rows(t, book, "Daily"))
	assert.NotContains(t, r.Writes, "Activities")
}

func TestRunReportsStoreFailure(t *testing.T) {
	r := Run(context.Background(), testNow, newDeps(morningSource(), discardBook{}))

	assert.Equal(t, "Err: read Daily: no row store available", r.Writes["Daily"])
	assert.True(t, strings.HasPrefix(r.Writes["Activities"], "Err: "))
	assert.True(t, strings.HasPrefix(r.Writes["AI_Log"], "Err: "))
	assert.NotEmpty(t, r.Message)
}

func TestRunKeepsBareDateWhenSleepIsFromEarlierNight(t *testing.T) {
	book := newTestBook(t)
	src := morningSource()
	src.sleep = map[string]map[string]any{
		"2024-03-09": {"dailySleepDTO": map[string]any{
			"sleepTimeSeconds":  25200.0,
			"sleepEndTimeLocal": "2024-03-09T07:05:00.0",
		}},
	}

	r := Run(context.Background(), testNow, newDeps(src, book))

	assert.Equal(t, "2024-03-09", r.Morning.SleepDate)
	assert.Equal(t, "07:05", r.Morning.WakeTime)
	assert.Equal(t, testDay, r.Morning.Timestamp)
	morning := rows(t, book, "Morning")
	require.Len(t, morning, 1)
	assert.Equal(t, testDay, morning[0][0])
	assert.Equal(t, "7", morning[0][6])
}
