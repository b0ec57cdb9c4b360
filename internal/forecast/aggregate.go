package forecast

import (
	"math"
	"strings"

	"github.com/i474232898/trail-status/internal/common"
)

// AggregatePoints combines the selected forecast points into Stats.
// Temperatures are reduced to min/max, precipitation is summed, humidity is averaged
// and any point whose description mentions rain or snow sets the matching flag.
func AggregatePoints(points []Point) Stats {
	if len(points) == 0 {
		return Stats{}
	}

	stats := Stats{
		MinTemp: math.Inf(1),
		MaxTemp: math.Inf(-1),
	}
	var sumHumidity float64

	for _, p := range points {
		stats.MinTemp = math.Min(stats.MinTemp, p.TempF)
		stats.MaxTemp = math.Max(stats.MaxTemp, p.TempF)
		stats.TotalRain += p.RainIn
		stats.TotalSnow += p.SnowIn
		sumHumidity += p.Humidity

		desc := strings.ToLower(p.Description)
		if common.HasAny(desc, "rain", "drizzle", "shower") {
			stats.HasRain = true
		}
		if common.HasAny(desc, "snow") {
			stats.HasSnow = true
		}
	}

	stats.AvgHumidity = common.RoundHalfUp(sumHumidity / float64(len(points)))
	return stats
}
