package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jai/garmin-briefing/internal/config"
	"github.com/jai/garmin-briefing/internal/resolve"
)

// MorningData is the first reading of the day. The row is keyed by calendar
// date; the wake time only decorates the first column.
type MorningData struct {
	Timestamp       string `json:"timestamp"`
	WeightKg        any    `json:"weight_kg"`
	RestingHR       any    `json:"resting_hr_bpm"`
	HRV             any    `json:"hrv_ms"`
	BodyBatteryPeak any    `json:"body_battery_peak"`
	SleepScore      any    `json:"sleep_score"`
	SleepHours      any    `json:"sleep_hours"`
	SleepDate       string `json:"sleep_date,omitempty"`
	WakeTime        string `json:"wake_time,omitempty"`
}

// Row is the Morning sheet layout: timestamp, weight, resting HR, HRV, body
// battery peak, sleep score, sleep hours.
func (m MorningData) Row() []any {
	return []any{m.Timestamp, m.WeightKg, m.RestingHR, m.HRV, m.BodyBatteryPeak, m.SleepScore, m.SleepHours}
}

var (
	restingHRFields   = []string{"restingHeartRate", "heartRateRestingValue", "restingHeartRateValue"}
	hrvFields         = []string{"allDayAvgHrv", "lastNightAvgHrv", "lastNightHrv", "hrvSummary.lastNightAvg", "hrvSummary.weeklyAvg"}
	sleepSecondsField = "dailySleepDTO.sleepTimeSeconds"
	sleepScoreFields  = []string{"dailySleepDTO.sleepScores.overall.value", "dailySleepDTO.sleepScore", "sleepScore"}
	weightFields      = []string{"dateWeightList.-1.weight", "dailyWeightSummaries.0.latestWeight.weight", "totalAverage.weight"}
)

func getMorningData(ctx context.Context, r *Report, src Source, cfg config.Config, target time.Time, log *zap.Logger) {
	day := target.Format("2006-01-02")
	m := &r.Morning
	m.Timestamp = day

	summary, err := src.DailySummary(ctx, day)
	if err != nil {
		log.Warn("daily summary unavailable", zap.String("day", day), zap.Error(err))
		r.fail("summary", err)
	}

	rhr := resolve.First(summary, restingHRFields...)
	m.RestingHR = value(rhr, 0)
	r.missing(log, "resting_hr", rhr, restingHRFields...)

	bb := resolve.First(summary, "bodyBatteryHighestValue", "bodyBatteryAtWakeTime")
	m.BodyBatteryPeak = value(bb, 0)

	hrv := resolve.Walk(ctx, resolve.Days(target, cfg.Lookback.HRV), hrvFetcher(src), hrvFields...)
	m.HRV = value(hrv, 0)
	r.missing(log, "hrv", hrv, hrvFields...)
	if hrv.OK() && hrv.Day != day {
		log.Debug("hrv taken from earlier day", zap.String("day", hrv.Day))
	}

	getSleepData(ctx, r, src, cfg, target, log)

	weight := resolve.Walk(ctx, resolve.Days(target, cfg.Lookback.Weight), func(ctx context.Context, d string) (map[string]any, error) {
		return src.BodyComposition(ctx, d, day)
	}, weightFields...)
	if grams, ok := weight.Float(); ok {
		m.WeightKg = resolve.Round(grams/1000, 1)
	} else {
		m.WeightKg = ""
	}
	r.missing(log, "weight", weight, weightFields...)

	// An earlier night's wake time would misdate the row.
	if m.WakeTime != "" && m.SleepDate == day {
		m.Timestamp = day + " " + m.WakeTime
	}
}

// hrvFetcher merges the daily summary with the HRV service for one day. It
// fails only when both sources fail.
func hrvFetcher(src Source) resolve.Fetcher {
	return func(ctx context.Context, day string) (map[string]any, error) {
		merged := map[string]any{}
		summary, sumErr := src.DailySummary(ctx, day)
		for k, v := range summary {
			merged[k] = v
		}
		hrv, hrvErr := src.HRV(ctx, day)
		for k, v := range hrv {
			merged[k] = v
		}
		if sumErr != nil && hrvErr != nil {
			return nil, errors.Join(sumErr, hrvErr)
		}
		return merged, nil
	}
}

// getSleepData takes the most recent night that has any recorded sleep.
func getSleepData(ctx context.Context, r *Report, src Source, cfg config.Config, target time.Time, log *zap.Logger) {
	m := &r.Morning
	m.SleepScore, m.SleepHours = "", ""

	nights := map[string]map[string]any{}
	secs := resolve.Walk(ctx, resolve.Days(target, cfg.Lookback.Sleep), func(ctx context.Context, d string) (map[string]any, error) {
		p, err := src.Sleep(ctx, d)
		nights[d] = p
		return p, err
	}, sleepSecondsField)
	r.missing(log, "sleep", secs, sleepSecondsField)
	if !secs.OK() {
		return
	}

	night := nights[secs.Day]
	seconds, _ := secs.Float()
	m.SleepDate = secs.Day
	m.SleepHours = resolve.Round(seconds/3600, 1)
	m.SleepScore = value(resolve.First(night, sleepScoreFields...), 0)
	m.WakeTime = wakeTime(night)
}

// wakeTime returns HH:MM of the sleep end, from the local timestamp string
// when present, else from the local epoch milliseconds.
func wakeTime(night map[string]any) string {
	if s, ok := resolve.Lookup(night, "dailySleepDTO.sleepEndTimeLocal").(string); ok {
		s = strings.Replace(s, "T", " ", 1)
		if len(s) >= 16 {
			return s[11:16]
		}
	}
	if ms, ok := resolve.Float(resolve.Lookup(night, "dailySleepDTO.sleepEndTimestampLocal")); ok && ms > 0 {
		return time.UnixMilli(int64(ms)).UTC().Format("15:04")
	}
	return ""
}
