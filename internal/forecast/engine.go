package forecast

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/trail-status/internal/common"
	"github.com/i474232898/trail-status/internal/fetch"
	"github.com/i474232898/trail-status/internal/observability"
	"github.com/i474232898/trail-status/internal/trail"
)

// Engine predicts tomorrow's trail status from the weather forecast.
type Engine struct {
	client  *Client
	clock   clockwork.Clock
	loc     *time.Location
	band    Daytime
	rules   []Rule
	logger  *slog.Logger
	metrics *observability.Metrics
}

// EngineConfig carries the injected time settings of an Engine.
type EngineConfig struct {
	Location *time.Location
	Daytime  Daytime
	Rules    []Rule // DefaultRules when empty
}

func NewEngine(client *Client, clock clockwork.Clock, cfg EngineConfig, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Engine{
		client:  client,
		clock:   clock,
		loc:     loc,
		band:    cfg.Daytime,
		rules:   rules,
		logger:  logger,
		metrics: metrics,
	}
}

// Predict returns tomorrow's prediction for the coordinate.
//
// A nil prediction with a nil error means no weather data: no API key, a rejected
// key, no points for tomorrow or any upstream failure other than rate limiting.
// Rate limiting is returned as an error matching fetch.ErrRateLimited.
func (e *Engine) Predict(ctx context.Context, at trail.Coordinate) (*trail.WeatherPrediction, error) {
	points, err := e.client.Forecast(ctx, at)
	switch {
	case err == nil:
	case errors.Is(err, ErrMissingAPIKey):
		e.metrics.ObservePrediction("omitted")
		return nil, nil
	case errors.Is(err, ErrInvalidAPIKey):
		e.logger.Error("weather prediction unavailable", "error", err)
		e.metrics.ObservePrediction("omitted")
		return nil, nil
	case fetch.IsRateLimited(err):
		e.logger.Warn("weather api rate limited", "lat", at.Lat, "lon", at.Lon)
		e.metrics.ObservePrediction("rate_limited")
		return nil, err
	default:
		e.logger.Error("weather fetch failed", "lat", at.Lat, "lon", at.Lon, "error", err)
		e.metrics.ObservePrediction("error")
		return nil, nil
	}

	selected := SelectTomorrow(points, e.clock.Now(), e.loc, e.band)
	if len(selected) == 0 {
		e.logger.Warn("no forecast points for tomorrow", "lat", at.Lat, "lon", at.Lon, "points", len(points))
		e.metrics.ObservePrediction("omitted")
		return nil, nil
	}

	stats := AggregatePoints(selected)
	outcome, rule := Evaluate(e.rules, stats)
	mid := selected[len(selected)/2]

	e.logger.Debug("weather prediction",
		"lat", at.Lat, "lon", at.Lon, "points", len(selected), "rule", rule, "prediction", outcome.Prediction)
	e.metrics.ObservePrediction("predicted")

	return &trail.WeatherPrediction{
		Tomorrow: &trail.TomorrowConditions{
			TempHigh:    common.RoundHalfUp(stats.MaxTemp),
			TempLow:     common.RoundHalfUp(stats.MinTemp),
			Description: mid.Description,
			Icon:        mid.Icon,
			Humidity:    common.RoundHalfUp(mid.Humidity),
			WindSpeed:   common.RoundHalfUp(mid.WindMph),
		},
		Prediction: outcome.Prediction,
		Confidence: outcome.Confidence,
		Reason:     outcome.Reason,
	}, nil
}
