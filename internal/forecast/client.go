package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/trail-status/internal/fetch"
	"github.com/i474232898/trail-status/internal/trail"
)

// DefaultBaseURL is the OpenWeatherMap 5 day / 3 hour forecast endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/forecast"

const mmPerInch = 25.4

var (
	// ErrMissingAPIKey means no credential is configured; predictions are omitted.
	ErrMissingAPIKey = errors.New("openweather api key is not configured")
	// ErrInvalidAPIKey is returned when the provider answers 401.
	ErrInvalidAPIKey = errors.New("openweather api key invalid or not yet activated")
	errCircuitOpen   = errors.New("circuit breaker open")
)

// Client fetches multi-point forecasts from OpenWeatherMap.
type Client struct {
	apiKey  string
	baseURL string
	units   Units
	fetcher *fetch.Fetcher
	circuit *gobreaker.CircuitBreaker
}

func NewClient(fetcher *fetch.Fetcher, apiKey, baseURL string, units Units) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if units != UnitsMetric {
		units = UnitsImperial
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather-forecast",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// Throttling and a rejected key say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || fetch.IsRateLimited(err) || errors.Is(err, ErrInvalidAPIKey)
		},
	})

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		units:   units,
		fetcher: fetcher,
		circuit: cb,
	}
}

type forecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Rain struct {
			ThreeH float64 `json:"3h"`
		} `json:"rain"`
		Snow struct {
			ThreeH float64 `json:"3h"`
		} `json:"snow"`
	} `json:"list"`
}

// Forecast returns every forecast step for the coordinate, oldest first.
func (c *Client) Forecast(ctx context.Context, at trail.Coordinate) ([]Point, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(at.Lon, 'f', -1, 64))
	values.Set("units", string(c.units))
	values.Set("appid", c.apiKey)
	u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())

	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, err := c.fetcher.Get(ctx, u, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, ErrInvalidAPIKey
		}
		if err := fetch.CheckStatus(resp); err != nil {
			return nil, err
		}

		var payload forecastResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode forecast: %w", err)
		}
		return c.normalize(payload), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, err
	}

	points, ok := result.([]Point)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return points, nil
}

func (c *Client) normalize(payload forecastResponse) []Point {
	points := make([]Point, 0, len(payload.List))
	for _, item := range payload.List {
		p := Point{
			Time:     time.Unix(item.Dt, 0).UTC(),
			TempF:    item.Main.Temp,
			Humidity: item.Main.Humidity,
			RainIn:   item.Rain.ThreeH / mmPerInch,
			SnowIn:   item.Snow.ThreeH / mmPerInch,
			WindMph:  item.Wind.Speed,
		}
		if len(item.Weather) > 0 {
			p.Description = item.Weather[0].Description
			p.Icon = item.Weather[0].Icon
		}
		if c.units == UnitsMetric {
			p.TempF = p.TempF*9/5 + 32
			p.WindMph = p.WindMph * 2.236936
		}
		points = append(points, p)
	}
	return points
}
