package notify

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jai/garmin-briefing/internal/resolve"
)

// Summary is what the daily message reports. Metric fields hold whatever the
// resolver found; absent values print as a dash.
type Summary struct {
	Date        string
	HRV         any
	SleepHours  any
	SleepScore  any
	RestingHR   any
	BodyBattery any
	Steps       any
	Calories    any
	Activities  int
	Advice      string
}

// Format renders the message body.
func Format(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚀 Report %s\n", s.Date)
	fmt.Fprintf(&b, "HRV: %s ms\n", show(s.HRV))
	fmt.Fprintf(&b, "Sleep: %s h (score %s)\n", show(s.SleepHours), show(s.SleepScore))
	fmt.Fprintf(&b, "Resting HR: %s\n", show(s.RestingHR))
	fmt.Fprintf(&b, "Body battery: %s\n", show(s.BodyBattery))
	fmt.Fprintf(&b, "Steps: %s, calories: %s\n", count(s.Steps), count(s.Calories))
	if s.Activities > 0 {
		fmt.Fprintf(&b, "Activities: %d\n", s.Activities)
	}
	if s.Advice != "" {
		fmt.Fprintf(&b, "\n🤖 %s", s.Advice)
	}
	return strings.TrimRight(b.String(), "\n")
}

func show(v any) string {
	if resolve.Absent(v) {
		return "—"
	}
	if f, ok := resolve.Float(v); ok {
		return humanize.FtoaWithDigits(f, 1)
	}
	return fmt.Sprint(v)
}

func count(v any) string {
	if resolve.Absent(v) {
		return "—"
	}
	if f, ok := resolve.Float(v); ok {
		return humanize.Comma(int64(f + 0.5))
	}
	return fmt.Sprint(v)
}
