// Package intensity labels a training session by heart-rate reserve.
package intensity

import (
	"github.com/jai/garmin-briefing/internal/resolve"
)

// Labels returned by Classify.
const (
	Low      = "Low"
	Moderate = "Moderate"
	High     = "High"
	Unknown  = "N/A"
)

// Lower bounds of the Moderate and High brackets. A fraction equal to a bound
// belongs to the upper bracket.
const (
	ModerateFrom = 0.5
	HighFrom     = 0.75
)

// Reserve returns (avg - resting) / (maxHR - resting). ok is false when the
// fraction is undefined: absent inputs or maxHR not above resting.
func Reserve(avg, resting, maxHR float64) (fraction float64, ok bool) {
	if avg <= 0 || resting <= 0 || maxHR <= resting {
		return 0, false
	}
	return (avg - resting) / (maxHR - resting), true
}

// Classify maps raw session and day values to a label. Inputs may be any of
// the numeric or string shapes that come out of the vendor payload.
func Classify(avg, resting any, maxHR float64) string {
	fraction, ok := reserveOf(avg, resting, maxHR)
	if !ok {
		return Unknown
	}
	switch {
	case fraction < ModerateFrom:
		return Low
	case fraction < HighFrom:
		return Moderate
	default:
		return High
	}
}

// Percent is the reserve fraction as a percentage rounded to one decimal.
func Percent(avg, resting any, maxHR float64) (float64, bool) {
	fraction, ok := reserveOf(avg, resting, maxHR)
	if !ok {
		return 0, false
	}
	return resolve.Round(fraction*100, 1), true
}

func reserveOf(avg, resting any, maxHR float64) (float64, bool) {
	if resolve.Absent(avg) || resolve.Absent(resting) {
		return 0, false
	}
	a, ok := resolve.Float(avg)
	if !ok {
		return 0, false
	}
	r, ok := resolve.Float(resting)
	if !ok {
		return 0, false
	}
	return Reserve(a, r, maxHR)
}
