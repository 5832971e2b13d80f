package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jai/garmin-briefing/internal/config"
	"github.com/jai/garmin-briefing/internal/narrative"
	"github.com/jai/garmin-briefing/internal/notify"
	"github.com/jai/garmin-briefing/internal/resolve"
	"github.com/jai/garmin-briefing/internal/sheet"
)

// Source is the wearable account as the pipeline sees it.
type Source interface {
	DailySummary(ctx context.Context, day string) (map[string]any, error)
	DailySteps(ctx context.Context, start, end string) ([]map[string]any, error)
	Sleep(ctx context.Context, day string) (map[string]any, error)
	HRV(ctx context.Context, day string) (map[string]any, error)
	BodyComposition(ctx context.Context, start, end string) (map[string]any, error)
	Activities(ctx context.Context, start, end string) ([]map[string]any, error)
}

// Notifier delivers the finished message.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Deps is everything a run touches. Generator and Notifier may be nil.
type Deps struct {
	Source    Source
	Book      sheet.Book
	Generator narrative.Generator
	Notifier  Notifier
	Config    config.Config
	Log       *zap.Logger
	Now       func() time.Time
}

// Report is the outcome of one run, printed at the end.
type Report struct {
	RunID        string            `json:"run_id"`
	GeneratedAt  string            `json:"generated_at"`
	TargetDate   string            `json:"target_date"`
	Morning      MorningData       `json:"morning"`
	Daily        DailyData         `json:"daily"`
	Activities   []ActivityData    `json:"activities,omitempty"`
	Writes       map[string]string `json:"writes"`
	Advice       string            `json:"advice"`
	AdviceStatus string            `json:"advice_status"`
	AdviceModel  string            `json:"advice_model,omitempty"`
	Notified     bool              `json:"notified"`
	Message      string            `json:"message"`
	Errors       []string          `json:"errors,omitempty"`
}

func (r *Report) fail(stage string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", stage, err))
}

// Run executes fetch, reconcile, summarize and notify for target. Nothing in
// here is fatal: each stage records its failure and the run carries on with
// whatever it has. Rows already written stay written.
func Run(ctx context.Context, target time.Time, d Deps) *Report {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	day := target.Format("2006-01-02")

	r := &Report{
		GeneratedAt: now().Format(time.RFC3339),
		TargetDate:  day,
		Writes:      map[string]string{},
	}
	src := cached(d.Source)

	// 1. Fetch
	getMorningData(ctx, r, src, d.Config, target, log)
	getDailyData(ctx, r, src, d.Config, day, log)
	getActivityData(ctx, r, src, d.Config, target, log)

	// 2. Reconcile
	sheets := d.Config.Sheets
	writeActivities(ctx, r, d.Book.Table(sheets.Activities), log)
	for _, w := range []struct {
		table string
		key   string
		row   []any
	}{
		{sheets.Daily, day, r.Daily.Row()},
		{sheets.Morning, day, r.Morning.Row()},
	} {
		res := sheet.Upsert(ctx, d.Book.Table(w.table), w.key, w.row)
		r.Writes[w.table] = res.String()
		if res.Err != nil {
			log.Warn("sheet write failed", zap.String("sheet", w.table), zap.Error(res.Err))
			r.fail(w.table, res.Err)
			continue
		}
		log.Info("sheet written", zap.String("sheet", w.table), zap.String("action", string(res.Action)), zap.Int("cells", res.Cells))
	}

	// 3. Summarize
	advice := narrative.Advise(ctx, d.Generator, buildPrompt(d.Config.Prompt, r), d.Config.FallbackAdvice)
	r.Advice, r.AdviceStatus, r.AdviceModel = advice.Text, advice.Status, advice.Model
	if advice.Err != nil {
		log.Warn("narrative unavailable", zap.Error(advice.Err))
		r.fail("narrative", advice.Err)
	}
	logRow := []any{now().Format("2006-01-02 15:04"), advice.Status, advice.LogText()}
	if err := d.Book.Table(sheets.Log).Append(ctx, logRow); err != nil {
		log.Warn("ai log append failed", zap.Error(err))
		r.fail(sheets.Log, err)
		r.Writes[sheets.Log] = sheet.Result{Action: sheet.Failed, Err: err}.String()
	} else {
		r.Writes[sheets.Log] = string(sheet.Appended)
	}

	// 4. Notify
	r.Message = notify.Format(r.summary())
	if d.Notifier == nil {
		log.Info("notification skipped: no chat credentials")
		return r
	}
	if err := d.Notifier.Send(ctx, r.Message); err != nil {
		log.Warn("notification failed", zap.Error(err))
		r.fail("notify", err)
		return r
	}
	r.Notified = true
	return r
}

func (r *Report) summary() notify.Summary {
	return notify.Summary{
		Date:        r.TargetDate,
		HRV:         r.Morning.HRV,
		SleepHours:  r.Morning.SleepHours,
		SleepScore:  r.Morning.SleepScore,
		RestingHR:   r.Morning.RestingHR,
		BodyBattery: r.Morning.BodyBatteryPeak,
		Steps:       r.Daily.Steps,
		Calories:    r.Daily.Calories,
		Activities:  len(r.Activities),
		Advice:      r.Advice,
	}
}

func buildPrompt(template string, r *Report) string {
	show := func(v any) string {
		if resolve.Absent(v) {
			return "unknown"
		}
		return sheet.Cell(v)
	}
	return strings.NewReplacer(
		"{hrv}", show(r.Morning.HRV),
		"{rhr}", show(r.Morning.RestingHR),
		"{battery}", show(r.Morning.BodyBatteryPeak),
		"{sleep}", show(r.Morning.SleepHours),
		"{score}", show(r.Morning.SleepScore),
		"{steps}", show(r.Daily.Steps),
	).Replace(template)
}

// cachedSource remembers daily summaries; the morning and daily blocks both
// read the same day.
type cachedSource struct {
	Source
	summaries map[string]summaryResult
}

type summaryResult struct {
	payload map[string]any
	err     error
}

func cached(s Source) *cachedSource {
	return &cachedSource{Source: s, summaries: map[string]summaryResult{}}
}

func (c *cachedSource) DailySummary(ctx context.Context, day string) (map[string]any, error) {
	if r, ok := c.summaries[day]; ok {
		return r.payload, r.err
	}
	p, err := c.Source.DailySummary(ctx, day)
	c.summaries[day] = summaryResult{payload: p, err: err}
	return p, err
}

// value renders a resolved metric as a cell, optionally rounded. Absent
// metrics become empty cells so the reconciler leaves old data alone.
func value(v resolve.Value, places int) any {
	f, ok := v.Float()
	if !ok || places < 0 {
		return v.Or("")
	}
	return resolve.Round(f, places)
}

// missing records why a metric came back empty: a failed fetch is a report
// error, plain absence only a debug line.
func (r *Report) missing(log *zap.Logger, metric string, v resolve.Value, fields ...string) {
	if v.OK() {
		return
	}
	if v.Unavailable() {
		log.Warn("metric unavailable", zap.String("metric", metric), zap.Error(v.Err()))
		r.fail(metric, v.Err())
		return
	}
	log.Debug("metric absent", zap.String("metric", metric), zap.Strings("fields", fields))
}

func yesterday(today string) string {
	return addDays(today, -1)
}

func addDays(date string, days int) string {
	t, _ := time.Parse("2006-01-02", date)
	return t.AddDate(0, 0, days).Format("2006-01-02")
}
