package aggregate

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/trail-status/internal/fetch"
	"github.com/i474232898/trail-status/internal/notify"
	"github.com/i474232898/trail-status/internal/observability"
	"github.com/i474232898/trail-status/internal/store"
	"github.com/i474232898/trail-status/internal/trail"
)

var cycleNow = time.Date(2026, time.March, 14, 15, 0, 0, 0, time.UTC)

type stubSource struct {
	name   string
	mu     sync.Mutex
	result trail.StatusResult
	calls  atomic.Int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) ExtractStatus(context.Context) trail.StatusResult {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *stubSource) set(r trail.StatusResult) {
	s.mu.Lock()
	s.result = r
	s.mu.Unlock()
}

type panicSource struct{}

func (panicSource) Name() string { return "panics" }

func (panicSource) ExtractStatus(context.Context) trail.StatusResult { panic("boom") }

type blockingSource struct{}

func (blockingSource) Name() string { return "blocks" }

func (blockingSource) ExtractStatus(ctx context.Context) trail.StatusResult {
	<-ctx.Done()
	return trail.StatusResult{Status: trail.StatusError, Description: "Unable to fetch trail status"}
}

type stubForecaster struct {
	byLat map[float64]*trail.WeatherPrediction
	err   error
}

func (f stubForecaster) Predict(_ context.Context, at trail.Coordinate) (*trail.WeatherPrediction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byLat[at.Lat], nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Change
}

func (r *recordingSender) Send(_ context.Context, c notify.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, c)
	return nil
}

func testTrails() []trail.Config {
	return []trail.Config{
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
}

type fixture struct {
	svc    *Service
	momba  *stubSource
	troy   *stubSource
	sender *recordingSender
	store  *store.MemoryStore
}

func newFixture(t *testing.T, forecaster trail.Forecaster, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		momba:  &stubSource{name: "MoMBA", result: trail.StatusResult{Status: trail.StatusOpen, Description: "Trail OPEN"}},
		troy:   &stubSource{name: "Troy MTB", result: trail.StatusResult{Status: trail.StatusClosed, Description: "Trails are currently closed"}},
		sender: &recordingSender{},
		store:  store.NewMemoryStore(),
	}
	clock := clockwork.NewFakeClockAt(cycleNow)
	logger := observability.DiscardLogger()
	metrics := observability.NewMetricsForTesting()

	notifier := notify.NewNotifier(f.store, f.sender, clock, logger, metrics)
	svc, err := NewService(testTrails(),
		map[string]trail.StatusSource{"momba": f.momba, "troy": f.troy},
		forecaster, notifier, clock, logger, metrics, opts)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestService_Run(t *testing.T) {
	prediction := &trail.WeatherPrediction{
		Prediction: trail.StatusFreezeThaw,
		Confidence: trail.ConfidenceHigh,
		Reason:     "Temps 30°F-38°F (freeze/thaw range)",
	}
	f := newFixture(t, stubForecaster{byLat: map[float64]*trail.WeatherPrediction{40.05: prediction}}, Options{})

	res := f.svc.Run(context.Background())

	assert.False(t, res.Failed)
	assert.Equal(t, 2*time.Hour, res.MaxAge)
	assert.Equal(t, "public, s-maxage=7200, max-age=7200", res.CacheControl())
	assert.Empty(t, res.Response.Error)
	assert.Equal(t, cycleNow, res.Response.LastUpdated)
	require.Len(t, res.Response.Trails, 2)

	momba := res.Response.Trails["momba"]
	assert.Equal(t, "MoMBA", momba.Name)
	assert.Equal(t, trail.StatusOpen, momba.Status)
	assert.Equal(t, "Trail OPEN", momba.Description)
	assert.Equal(t, prediction, momba.Weather)
	assert.Len(t, momba.Trailheads, 1)

	troy := res.Response.Trails["troy"]
	assert.Equal(t, trail.StatusClosed, troy.Status)
	assert.Nil(t, troy.Weather)
	assert.NotNil(t, troy.Trailheads)
}

func TestService_RunJSONShape(t *testing.T) {
	f := newFixture(t, nil, Options{})

	body, err := json.Marshal(f.svc.Run(context.Background()).Response)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"trails": {
			"momba": {
				"name": "MoMBA",
				"status": "open",
				"description": "Trail OPEN",
				"weather": null,
				"trailheads": [{"name": "Main Entrance", "address": "4485 Union Rd, Dayton, OH 45424"}]
			},
			"troy": {
				"name": "Troy MTB",
				"status": "closed",
				"description": "Trails are currently closed",
				"weather": null,
				"trailheads": []
			}
		},
		"lastUpdated": "2026-03-14T15:00:00Z"
	}`, string(body))
}

func TestService_RunNotifiesOnChange(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	f.svc.Run(ctx)
	assert.Empty(t, f.sender.sent)

	f.momba.set(trail.StatusResult{Status: trail.StatusClosed, Description: "Trails CLOSED"})
	f.troy.set(trail.StatusResult{Status: trail.StatusError, Description: "Rate limited - please try again later."})
	f.svc.Run(ctx)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "momba", f.sender.sent[0].TrailID)
	assert.Equal(t, trail.StatusOpen, f.sender.sent[0].Old)
	assert.Equal(t, trail.StatusClosed, f.sender.sent[0].New)

	snap, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]trail.Status{"momba": trail.StatusClosed, "troy": trail.StatusClosed}, snap.Statuses)
}

func TestService_WeatherRateLimited(t *testing.T) {
	f := newFixture(t, stubForecaster{err: &fetch.RateLimitedError{StatusCode: 429}}, Options{})

	res := f.svc.Run(context.Background())

	assert.Equal(t, trail.RateLimitedPrediction(), res.Response.Trails["momba"].Weather)
	assert.Equal(t, trail.RateLimitedPrediction(), res.Response.Trails["troy"].Weather)
}

func TestService_PanickingSourceIsContained(t *testing.T) {
	clock := clockwork.NewFakeClockAt(cycleNow)
	healthy := &stubSource{name: "MoMBA", result: trail.StatusResult{Status: trail.StatusOpen, Description: "Trail OPEN"}}
	svc, err := NewService(testTrails(),
		map[string]trail.StatusSource{"momba": healthy, "troy": panicSource{}},
		nil, nil, clock, observability.DiscardLogger(), nil, Options{})
	require.NoError(t, err)

	res := svc.Run(context.Background())

	assert.False(t, res.Failed)
	assert.Equal(t, trail.StatusOpen, res.Response.Trails["momba"].Status)
	assert.Equal(t, trail.StatusError, res.Response.Trails["troy"].Status)
}

func TestService_CycleDeadlineKeepsFinishedTrails(t *testing.T) {
	clock := clockwork.NewFakeClockAt(cycleNow)
	logger := observability.DiscardLogger()
	metrics := observability.NewMetricsForTesting()
	st := store.NewMemoryStore()
	notifier := notify.NewNotifier(st, &recordingSender{}, clock, logger, metrics)

	fast := &stubSource{name: "MoMBA", result: trail.StatusResult{Status: trail.StatusOpen, Description: "Trail OPEN"}}
	svc, err := NewService(testTrails(),
		map[string]trail.StatusSource{"momba": fast, "troy": blockingSource{}},
		nil, notifier, clock, logger, metrics,
		Options{CycleTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	res := svc.Run(context.Background())

	assert.False(t, res.Failed)
	assert.Empty(t, res.Response.Error)
	assert.Equal(t, "public, s-maxage=7200, max-age=7200", res.CacheControl())
	require.Len(t, res.Response.Trails, 2)
	assert.Equal(t, trail.StatusOpen, res.Response.Trails["momba"].Status)
	assert.Equal(t, trail.StatusError, res.Response.Trails["troy"].Status)

	// The recorder still runs after the cycle deadline; the failed trail is not persisted.
	snap, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Revision)
	assert.Equal(t, map[string]trail.Status{"momba": trail.StatusOpen}, snap.Statuses)

	latest, err := svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, res, latest)
}

type panicRecorder struct{}

func (panicRecorder) Process(context.Context, []notify.Observation) ([]notify.Change, error) {
	panic("recorder exploded")
}

func TestService_PanicOutsideTrailsIsTotalFailure(t *testing.T) {
	f := newFixture(t, nil, Options{})
	svc, err := NewService(testTrails(),
		map[string]trail.StatusSource{"momba": f.momba, "troy": f.troy},
		nil, panicRecorder{}, clockwork.NewFakeClockAt(cycleNow),
		observability.DiscardLogger(), observability.NewMetricsForTesting(), Options{})
	require.NoError(t, err)

	res := svc.Run(context.Background())

	assert.True(t, res.Failed)
	assert.Equal(t, "Failed to fetch trail statuses", res.Response.Error)
	assert.Empty(t, res.Response.Trails)
	assert.NotNil(t, res.Response.Trails)
	assert.Equal(t, "public, s-maxage=300, max-age=300", res.CacheControl())

	_, err = svc.Latest()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestService_Latest(t *testing.T) {
	f := newFixture(t, nil, Options{})

	_, err := f.svc.Latest()
	require.ErrorIs(t, err, ErrNoSnapshot)

	res := f.svc.Run(context.Background())
	latest, err := f.svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, res, latest)
}

func TestService_RunTrail(t *testing.T) {
	f := newFixture(t, nil, Options{})

	entry, err := f.svc.RunTrail(context.Background(), "troy")
	require.NoError(t, err)
	assert.Equal(t, "Troy MTB", entry.Name)
	assert.Equal(t, trail.StatusClosed, entry.Status)
	assert.Equal(t, int32(1), f.troy.calls.Load())
	assert.Zero(t, f.momba.calls.Load())

	// Single-trail checks never record state.
	snap, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Revision)

	_, err = f.svc.RunTrail(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownTrail)
}

func TestNewService_MissingSource(t *testing.T) {
	_, err := NewService(testTrails(), map[string]trail.StatusSource{}, nil, nil,
		clockwork.NewFakeClock(), observability.DiscardLogger(), nil, Options{})
	assert.ErrorContains(t, err, "trail momba has no status source")
}
