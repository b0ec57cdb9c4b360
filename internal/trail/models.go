package trail

import (
	"time"
)

// Status represents a normalized trail usability status.
type Status string

const (
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusCaution    Status = "caution"
	StatusFreezeThaw Status = "freeze-thaw"
	StatusUnknown    Status = "unknown"
	StatusError      Status = "error"
)

// Persistable reports whether the status may be recorded as a trail's last known state.
func (s Status) Persistable() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusCaution, StatusFreezeThaw, StatusUnknown:
		return true
	default:
		return false
	}
}

// Confidence grades how strongly a prediction follows from the forecast.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// SourceKind selects which StatusSource variant reads a trail's status.
type SourceKind string

const (
	SourceCalendar SourceKind = "calendar"
	SourceImage    SourceKind = "image"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Trailhead describes a parking/entry point for a trail.
type Trailhead struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Note    string `json:"note,omitempty"`
}

// Config is the immutable description of one tracked trail.
type Config struct {
	ID         string
	Name       string
	Kind       SourceKind
	Source     string // calendar feed URL, image URL or page identifier
	Coordinate Coordinate
	Trailheads []Trailhead
}

// RGB is an averaged 8-bit color sample.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// StatusResult is the outcome of reading one trail's status source.
type StatusResult struct {
	Status        Status `json:"status"`
	Description   string `json:"description"`
	DetectedColor string `json:"detectedColor,omitempty"`
	RGB           *RGB   `json:"rgb,omitempty"`
}

// TomorrowConditions are the representative forecast values for the next day.
type TomorrowConditions struct {
	TempHigh    int    `json:"tempHigh"`
	TempLow     int    `json:"tempLow"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Humidity    int    `json:"humidity"`
	WindSpeed   int    `json:"wind_speed"`
}

// WeatherPrediction is the forward-looking status estimate for tomorrow.
// When the weather provider rate-limits us only Error and Message are set.
type WeatherPrediction struct {
	Tomorrow   *TomorrowConditions `json:"tomorrow,omitempty"`
	Prediction Status              `json:"prediction,omitempty"`
	Confidence Confidence          `json:"confidence,omitempty"`
	Reason     string              `json:"reason,omitempty"`

	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// RateLimitedPrediction is reported in place of a prediction when the weather API throttles us.
func RateLimitedPrediction() *WeatherPrediction {
	return &WeatherPrediction{
		Error:   "rate_limited",
		Message: "Weather API rate limited",
	}
}

// Entry is one trail's slot in the aggregate response.
type Entry struct {
	Name string `json:"name"`
	StatusResult
	Weather    *WeatherPrediction `json:"weather"`
	Trailheads []Trailhead        `json:"trailheads"`
}

// Response is the aggregate payload returned to clients.
type Response struct {
	Error       string           `json:"error,omitempty"`
	Trails      map[string]Entry `json:"trails"`
	LastUpdated time.Time        `json:"lastUpdated"` // always UTC
}
