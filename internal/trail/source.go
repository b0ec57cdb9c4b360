package trail

import (
	"context"
)

// StatusSource abstracts an unofficial status signal (calendar feed, profile image).
// Implementations never fail hard: every upstream problem is folded into the
// returned StatusResult as StatusUnknown or StatusError.
type StatusSource interface {
	Name() string
	ExtractStatus(ctx context.Context) StatusResult
}

// Forecaster produces tomorrow's prediction for a coordinate. A nil prediction with a
// nil error means weather data is unavailable and should be omitted.
type Forecaster interface {
	Predict(ctx context.Context, at Coordinate) (*WeatherPrediction, error)
}
