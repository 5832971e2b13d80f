package main

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jai/garmin-briefing/internal/config"
	"github.com/jai/garmin-briefing/internal/intensity"
	"github.com/jai/garmin-briefing/internal/resolve"
	"github.com/jai/garmin-briefing/internal/sheet"
)

// activityIDCol is the Activities column holding the vendor activity id.
const activityIDCol = 13

// ActivityData is one logged session.
type ActivityData struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	Sport          string `json:"sport"`
	DurationHours  any    `json:"duration_hours"`
	DistanceKm     any    `json:"distance_km"`
	AvgHR          any    `json:"avg_hr"`
	MaxHR          any    `json:"max_hr"`
	Intensity      string `json:"intensity"`
	ReservePct     any    `json:"hr_reserve_pct,omitempty"`
	TrainingLoad   any    `json:"training_load"`
	TrainingEffect any    `json:"training_effect"`
	Calories       any    `json:"calories"`
	AvgPower       any    `json:"avg_power"`
	Cadence        any    `json:"cadence"`
}

// Row is the Activities sheet layout; the vendor id comes last.
func (a ActivityData) Row() []any {
	return []any{
		a.Date, a.StartTime, a.Sport,
		a.DurationHours, a.DistanceKm,
		a.AvgHR, a.MaxHR, a.Intensity,
		a.TrainingLoad, a.TrainingEffect,
		a.Calories, a.AvgPower, a.Cadence,
		a.ID,
	}
}

var (
	cadenceFields = []string{
		"averageBikingCadenceInRevPerMinute",
		"averageBikingCadence",
		"averageRunningCadenceInStepsPerMinute",
		"averageRunCadence",
		"averageCadence",
		"averageFractionalCadence",
	}
	loadFields = []string{"activityTrainingLoad", "trainingLoad", "metabolicCartTrainingLoad"}
)

// ParseActivity maps one vendor activity onto the sheet layout. restingHR is
// the day's resting heart rate, used for the intensity label.
func ParseActivity(a map[string]any, restingHR any, maxHR float64) ActivityData {
	start, _ := resolve.Lookup(a, "startTimeLocal").(string)
	act := ActivityData{Intensity: intensity.Classify(resolve.Lookup(a, "averageHR"), restingHR, maxHR)}
	if len(start) >= 10 {
		act.Date = start[:10]
	}
	if len(start) >= 16 {
		act.StartTime = start[11:16]
	}
	act.Sport, _ = resolve.Lookup(a, "activityType.typeKey").(string)
	if pct, ok := intensity.Percent(resolve.Lookup(a, "averageHR"), restingHR, maxHR); ok {
		act.ReservePct = pct
	}

	if id, ok := resolve.Float(resolve.Lookup(a, "activityId")); ok && id > 0 {
		act.ID = strconv.FormatInt(int64(id), 10)
	}
	if secs, ok := resolve.First(a, "duration", "elapsedDuration", "movingDuration").Float(); ok {
		act.DurationHours = resolve.Round(secs/3600, 2)
	} else {
		act.DurationHours = ""
	}
	if meters, ok := resolve.First(a, "distance").Float(); ok {
		act.DistanceKm = resolve.Round(meters/1000, 2)
	} else {
		act.DistanceKm = ""
	}
	act.AvgHR = value(resolve.First(a, "averageHR"), 0)
	act.MaxHR = value(resolve.First(a, "maxHR"), 0)
	act.TrainingLoad = value(resolve.First(a, loadFields...), 1)
	act.TrainingEffect = value(resolve.First(a, "aerobicTrainingEffect"), 1)
	act.Calories = value(resolve.First(a, "calories"), 0)
	act.AvgPower = value(resolve.First(a, "avgPower", "averagePower"), 0)
	act.Cadence = value(resolve.First(a, cadenceFields...), 0)
	return act
}

// getActivityData loads sessions from the day before target through target,
// oldest first.
func getActivityData(ctx context.Context, r *Report, src Source, cfg config.Config, target time.Time, log *zap.Logger) {
	day := target.Format("2006-01-02")
	raw, err := src.Activities(ctx, yesterday(day), day)
	if err != nil {
		log.Warn("activities unavailable", zap.Error(err))
		r.fail("activities", err)
		return
	}
	log.Debug("activities fetched", zap.Int("count", len(raw)))

	for _, a := range raw {
		act := ParseActivity(a, r.Morning.RestingHR, cfg.AssumedMaxHR)
		if act.Date == "" {
			log.Debug("activity without start time skipped", zap.String("id", act.ID))
			continue
		}
		r.Activities = append(r.Activities, act)
	}
	sort.SliceStable(r.Activities, func(i, j int) bool {
		a, b := r.Activities[i], r.Activities[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.StartTime < b.StartTime
	})
}

// writeActivities appends sessions the sheet does not hold yet.
func writeActivities(ctx context.Context, r *Report, t sheet.Table, log *zap.Logger) {
	if len(r.Activities) == 0 {
		return
	}
	guard, err := sheet.LoadGuard(ctx, t, activityIDCol)
	if err != nil {
		log.Warn("activities sheet unreadable", zap.Error(err))
		r.fail(t.Name(), err)
		r.Writes[t.Name()] = sheet.Result{Action: sheet.Failed, Err: err}.String()
		return
	}

	log.Debug("activities indexed", zap.Int("known", guard.Len()))

	appended := 0
	for _, act := range r.Activities {
		row := act.Row()
		if !guard.Admit(sheet.Cells(row)) {
			log.Info("activity exists", zap.String("id", act.ID), zap.String("sport", act.Sport), zap.String("start", act.Date+" "+act.StartTime))
			continue
		}
		if err := t.Append(ctx, row); err != nil {
			log.Warn("activity append failed", zap.String("id", act.ID), zap.Error(err))
			r.fail(t.Name(), err)
			continue
		}
		appended++
		log.Info("activity appended", zap.String("id", act.ID), zap.String("sport", act.Sport), zap.String("start", act.Date+" "+act.StartTime),
			zap.String("intensity", act.Intensity), zap.Any("hr_reserve_pct", act.ReservePct))
	}
	r.Writes[t.Name()] = strconv.Itoa(appended) + " appended"
}
