package forecast

import (
	"time"

	"github.com/i474232898/trail-status/internal/trail"
)

// Units is the unit system requested from the weather provider.
type Units string

const (
	UnitsImperial Units = "imperial"
	UnitsMetric   Units = "metric"
)

// Point is one forecast step normalized to °F, inches and mph.
type Point struct {
	Time        time.Time
	TempF       float64
	Humidity    float64
	Description string
	Icon        string
	RainIn      float64
	SnowIn      float64
	WindMph     float64
}

// Stats summarizes the forecast points selected for tomorrow.
type Stats struct {
	MinTemp     float64
	MaxTemp     float64
	TotalRain   float64 // inches
	TotalSnow   float64 // inches
	AvgHumidity int
	HasRain     bool
	HasSnow     bool
}

// Outcome is the prediction chosen by the first matching rule.
type Outcome struct {
	Prediction trail.Status
	Confidence trail.Confidence
	Reason     string
}
