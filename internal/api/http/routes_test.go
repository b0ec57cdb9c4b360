package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/trail-status/internal/aggregate"
	"github.com/i474232898/trail-status/internal/notify"
	"github.com/i474232898/trail-status/internal/observability"
	"github.com/i474232898/trail-status/internal/trail"
)

var now = time.Date(2026, time.March, 14, 15, 0, 0, 0, time.UTC)

type fixedSource trail.StatusResult

func (fixedSource) Name() string { return "fixed" }

func (s fixedSource) ExtractStatus(context.Context) trail.StatusResult {
	return trail.StatusResult(s)
}

type stalledSource struct{}

func (stalledSource) Name() string { return "stalled" }

func (stalledSource) ExtractStatus(ctx context.Context) trail.StatusResult {
	<-ctx.Done()
	return trail.StatusResult{Status: trail.StatusError}
}

var testTrails = []trail.Config{
	{
		ID: "momba", Name: "MoMBA", Kind: trail.SourceCalendar,
		Coordinate: trail.Coordinate{Lat: 40.05, Lon: -84.22},
		Trailheads: []trail.Trailhead{{Name: "Main Entrance", Address: "4485 Union Rd, Dayton, OH 45424"}},
	},
	{
		ID: "troy", Name: "Troy MTB", Kind: trail.SourceImage,
		Coordinate: trail.Coordinate{Lat: 40.04, Lon: -84.20},
	},
}

type explodingRecorder struct{}

func (explodingRecorder) Process(context.Context, []notify.Observation) ([]notify.Change, error) {
	panic("store unavailable")
}

func newTestApp(t *testing.T, sources map[string]trail.StatusSource, opts aggregate.Options) *fiber.App {
	t.Helper()
	return newTestAppWithRecorder(t, sources, nil, opts)
}

func newTestAppWithRecorder(t *testing.T, sources map[string]trail.StatusSource, recorder aggregate.ChangeRecorder, opts aggregate.Options) *fiber.App {
	t.Helper()
	svc, err := aggregate.NewService(testTrails, sources, nil, recorder,
		clockwork.NewFakeClockAt(now), observability.DiscardLogger(), observability.NewMetricsForTesting(), opts)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, svc)
	return app
}

func healthySources() map[string]trail.StatusSource {
	return map[string]trail.StatusSource{
		"momba": fixedSource{Status: trail.StatusOpen, Description: "Trail OPEN"},
		"troy":  fixedSource{Status: trail.StatusClosed, Description: "Trails are currently closed"},
	}
}

func do(t *testing.T, app *fiber.App, path string) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, healthySources(), aggregate.Options{})

	resp, body := do(t, app, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","service":"trail-status"}`, body)
}

func TestMetrics(t *testing.T) {
	app := newTestApp(t, healthySources(), aggregate.Options{})

	resp, body := do(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "go_goroutines")
}

func TestStatuses(t *testing.T) {
	app := newTestApp(t, healthySources(), aggregate.Options{})

	resp, body := do(t, app, "/api/v1/statuses")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, s-maxage=7200, max-age=7200", resp.Header.Get(fiber.HeaderCacheControl))

	var got trail.Response
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Empty(t, got.Error)
	assert.Equal(t, now, got.LastUpdated)
	require.Len(t, got.Trails, 2)
	assert.Equal(t, trail.StatusOpen, got.Trails["momba"].Status)
	assert.Equal(t, trail.StatusClosed, got.Trails["troy"].Status)
}

func TestStatuses_SlowTrailDoesNotHideOthers(t *testing.T) {
	app := newTestApp(t,
		map[string]trail.StatusSource{
			"momba": fixedSource{Status: trail.StatusOpen, Description: "Trail OPEN"},
			"troy":  stalledSource{},
		},
		aggregate.Options{CycleTimeout: 50 * time.Millisecond})

	resp, body := do(t, app, "/api/v1/statuses")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, s-maxage=7200, max-age=7200", resp.Header.Get(fiber.HeaderCacheControl))

	var got trail.Response
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, trail.StatusOpen, got.Trails["momba"].Status)
	assert.Equal(t, trail.StatusError, got.Trails["troy"].Status)
}

func TestStatuses_TotalFailureIsStill200(t *testing.T) {
	app := newTestAppWithRecorder(t, healthySources(), explodingRecorder{}, aggregate.Options{})

	resp, body := do(t, app, "/api/v1/statuses")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, s-maxage=300, max-age=300", resp.Header.Get(fiber.HeaderCacheControl))
	assert.JSONEq(t, `{
		"error": "Failed to fetch trail statuses",
		"trails": {},
		"lastUpdated": "2026-03-14T15:00:00Z"
	}`, body)
}

func TestStatusesLatest(t *testing.T) {
	app := newTestApp(t, healthySources(), aggregate.Options{})

	resp, body := do(t, app, "/api/v1/statuses/latest")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":true,"message":"no trail statuses collected yet"}`, body)

	_, fresh := do(t, app, "/api/v1/statuses")

	resp, body = do(t, app, "/api/v1/statuses/latest")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, s-maxage=7200, max-age=7200", resp.Header.Get(fiber.HeaderCacheControl))
	assert.JSONEq(t, fresh, body)
}

func TestTrails(t *testing.T) {
	app := newTestApp(t, healthySources(), aggregate.Options{})

	resp, body := do(t, app, "/api/v1/trails")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"trails": [
		{
			"id": "momba", "name": "MoMBA", "kind": "calendar",
			"coordinate": {"lat": 40.05, "lon": -84.22},
			"trailheads": [{"name": "Main Entrance", "address": "4485 Union Rd, Dayton, OH 45424"}]
		},
		{
			"id": "troy", "name": "Troy MTB", "kind": "image",
			"coordinate": {"lat": 40.04, "lon": -84.2},
			"trailheads": []
		}
	]}`, body)
}

func TestTrailByID(t *testing.T) {
	app := newTestApp(t, healthySources(), aggregate.Options{})

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"known trail", "/api/v1/trails/troy", http.StatusOK},
		{"unknown trail", "/api/v1/trails/nope", http.StatusNotFound},
		{"uppercase id", "/api/v1/trails/MOMBA", http.StatusBadRequest},
		{"punctuation", "/api/v1/trails/momba-2", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, app, tt.path)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}

	_, body := do(t, app, "/api/v1/trails/troy")
	assert.JSONEq(t, `{
		"name": "Troy MTB",
		"status": "closed",
		"description": "Trails are currently closed",
		"weather": null,
		"trailheads": []
	}`, body)
}
