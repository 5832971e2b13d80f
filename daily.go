package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/jai/garmin-briefing/internal/config"
	"github.com/jai/garmin-briefing/internal/resolve"
)

// DailyData is the day's running totals; later runs fill it in further.
type DailyData struct {
	Date        string `json:"date"`
	Steps       any    `json:"steps"`
	DistanceKm  any    `json:"distance_km"`
	Calories    any    `json:"calories"`
	RestingHR   any    `json:"resting_hr_bpm"`
	BodyBattery any    `json:"body_battery"`
}

// Row is the Daily sheet layout: date, steps, distance, calories, resting HR,
// body battery.
func (d DailyData) Row() []any {
	return []any{d.Date, d.Steps, d.DistanceKm, d.Calories, d.RestingHR, d.BodyBattery}
}

// StepsDistanceKm converts steps to kilometres with a fixed stride. The
// vendor's own distance includes GPS activities, which the Activities sheet
// already counts.
func StepsDistanceKm(steps, strideMeters float64) float64 {
	return resolve.Round(steps*strideMeters/1000, 2)
}

// TotalCalories prefers active + BMR, then the vendor totals.
func TotalCalories(summary map[string]any) resolve.Value {
	active, _ := resolve.Float(resolve.Lookup(summary, "activeKilocalories"))
	bmr, _ := resolve.Float(resolve.Lookup(summary, "bmrKilocalories"))
	if sum := active + bmr; sum > 0 {
		return resolve.Value{V: sum, Field: "activeKilocalories+bmrKilocalories"}
	}
	return resolve.First(summary, "totalKilocalories", "calories", "wellnessKilocalories")
}

func getDailyData(ctx context.Context, r *Report, src Source, cfg config.Config, day string, log *zap.Logger) {
	d := &r.Daily
	d.Date = day
	d.RestingHR = r.Morning.RestingHR

	summary, err := src.DailySummary(ctx, day)
	if err != nil {
		log.Warn("daily summary unavailable", zap.String("day", day), zap.Error(err))
	}

	steps := resolve.Value{}
	list, err := src.DailySteps(ctx, day, day)
	if err != nil {
		log.Warn("daily steps unavailable", zap.String("day", day), zap.Error(err))
		r.fail("steps", err)
	} else if len(list) > 0 {
		steps = resolve.First(list[0], "totalSteps")
	}
	if !steps.OK() {
		steps = resolve.First(summary, "totalSteps")
	}
	r.missing(log, "steps", steps, "totalSteps")
	d.Steps = value(steps, 0)
	if n, ok := steps.Float(); ok {
		d.DistanceKm = StepsDistanceKm(n, cfg.StrideMeters)
	} else {
		d.DistanceKm = ""
	}

	cals := TotalCalories(summary)
	r.missing(log, "calories", cals, "activeKilocalories", "bmrKilocalories", "totalKilocalories", "calories")
	d.Calories = value(cals, 0)

	d.BodyBattery = value(resolve.First(summary, "bodyBatteryMostRecentValue"), 0)
}
