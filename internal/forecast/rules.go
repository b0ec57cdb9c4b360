package forecast

import (
	"fmt"

	"github.com/i474232898/trail-status/internal/common"
	"github.com/i474232898/trail-status/internal/trail"
)

// Rule is one row of the prediction decision table.
type Rule struct {
	Name    string
	Match   func(Stats) bool
	Outcome func(Stats) Outcome
}

// DefaultRules is evaluated top to bottom; the first match wins. The last rule
// always matches.
var DefaultRules = []Rule{
	{
		Name:  "snow",
		Match: func(s Stats) bool { return s.HasSnow || s.TotalSnow > 0 },
		Outcome: func(Stats) Outcome {
			return Outcome{trail.StatusFreezeThaw, trail.ConfidenceHigh, "Snow expected tomorrow"}
		},
	},
	{
		Name:  "rain",
		Match: func(s Stats) bool { return s.HasRain || s.TotalRain > 0.1 },
		Outcome: func(s Stats) Outcome {
			return Outcome{trail.StatusClosed, trail.ConfidenceHigh, fmt.Sprintf(`Rain expected (~%.1f" total)`, s.TotalRain)}
		},
	},
	{
		Name:  "freeze-thaw",
		Match: func(s Stats) bool { return s.MinTemp <= 35 && s.MaxTemp >= 32 },
		Outcome: func(s Stats) Outcome {
			return Outcome{trail.StatusFreezeThaw, trail.ConfidenceHigh,
				fmt.Sprintf("Temps %d°F-%d°F (freeze/thaw range)", low(s), high(s))}
		},
	},
	{
		Name:  "frozen",
		Match: func(s Stats) bool { return s.MaxTemp < 28 },
		Outcome: func(s Stats) Outcome {
			return Outcome{trail.StatusFreezeThaw, trail.ConfidenceMedium,
				fmt.Sprintf("Cold temps (high of %d°F) - ground frozen", high(s))}
		},
	},
	{
		Name:  "humid",
		Match: func(s Stats) bool { return s.AvgHumidity > 85 && s.MinTemp > 35 && s.MaxTemp < 55 },
		Outcome: func(s Stats) Outcome {
			return Outcome{trail.StatusCaution, trail.ConfidenceLow,
				fmt.Sprintf("High humidity (%d%%) - trails may be soft", s.AvgHumidity)}
		},
	},
	{
		Name:  "good",
		Match: func(s Stats) bool { return s.MinTemp > 40 && s.AvgHumidity < 75 && !s.HasRain },
		Outcome: func(s Stats) Outcome {
			return Outcome{trail.StatusOpen, trail.ConfidenceHigh,
				fmt.Sprintf("Good conditions: %d°F-%d°F, dry", low(s), high(s))}
		},
	},
	{
		Name:  "default",
		Match: func(Stats) bool { return true },
		Outcome: func(s Stats) Outcome {
			return Outcome{trail.StatusOpen, trail.ConfidenceLow, fmt.Sprintf("Temps %d°F-%d°F", low(s), high(s))}
		},
	},
}

// Evaluate applies rules in order and returns the first matching outcome along with
// the name of the rule that produced it.
func Evaluate(rules []Rule, s Stats) (Outcome, string) {
	for _, r := range rules {
		if r.Match(s) {
			return r.Outcome(s), r.Name
		}
	}
	return Outcome{trail.StatusOpen, trail.ConfidenceLow, fmt.Sprintf("Temps %d°F-%d°F", low(s), high(s))}, "default"
}

func low(s Stats) int  { return common.RoundHalfUp(s.MinTemp) }
func high(s Stats) int { return common.RoundHalfUp(s.MaxTemp) }
