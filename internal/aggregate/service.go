package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/trail-status/internal/fetch"
	"github.com/i474232898/trail-status/internal/notify"
	"github.com/i474232898/trail-status/internal/observability"
	"github.com/i474232898/trail-status/internal/trail"
)

var (
	// ErrNoSnapshot is returned by Latest before any cycle has completed.
	ErrNoSnapshot = errors.New("no completed aggregation cycle")
	// ErrUnknownTrail is returned by RunTrail for an id that is not configured.
	ErrUnknownTrail = errors.New("unknown trail")
)

const (
	DefaultCacheMaxAge   = 2 * time.Hour
	DefaultErrorMaxAge   = 5 * time.Minute
	DefaultCycleDeadline = 60 * time.Second
)

const (
	failureMessage   = "Failed to fetch trail statuses"
	panicDescription = "Unable to determine trail status"

	// recordTimeout bounds the change recorder once the cycle deadline may be spent.
	recordTimeout = 15 * time.Second
)

// ChangeRecorder receives every completed cycle's statuses.
type ChangeRecorder interface {
	Process(ctx context.Context, observed []notify.Observation) ([]notify.Change, error)
}

// Options tunes cache lifetimes and the per-cycle deadline.
type Options struct {
	CacheMaxAge      time.Duration
	ErrorCacheMaxAge time.Duration
	CycleTimeout     time.Duration
}

// Result is one cycle's response plus the cache lifetime clients should honor.
type Result struct {
	Response trail.Response
	MaxAge   time.Duration
	Failed   bool
}

// CacheControl renders the shared/private cache directive for the result.
func (r Result) CacheControl() string {
	secs := int(r.MaxAge / time.Second)
	return fmt.Sprintf("public, s-maxage=%d, max-age=%d", secs, secs)
}

// Service runs aggregation cycles over the configured trails.
type Service struct {
	trails     []trail.Config
	sources    map[string]trail.StatusSource
	forecaster trail.Forecaster
	recorder   ChangeRecorder
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	opts       Options

	mu     sync.RWMutex
	latest *Result
}

// NewService wires the orchestrator. Every trail must have a source; forecaster and
// recorder may be nil.
func NewService(
	trails []trail.Config,
	sources map[string]trail.StatusSource,
	forecaster trail.Forecaster,
	recorder ChangeRecorder,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	opts Options,
) (*Service, error) {
	for _, t := range trails {
		if _, ok := sources[t.ID]; !ok {
			return nil, fmt.Errorf("trail %s has no status source", t.ID)
		}
	}
	if opts.CacheMaxAge <= 0 {
		opts.CacheMaxAge = DefaultCacheMaxAge
	}
	if opts.ErrorCacheMaxAge <= 0 {
		opts.ErrorCacheMaxAge = DefaultErrorMaxAge
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = DefaultCycleDeadline
	}
	return &Service{
		trails:     trails,
		sources:    sources,
		forecaster: forecaster,
		recorder:   recorder,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}, nil
}

// Run executes one full cycle: every trail concurrently, then the change recorder,
// then the response. It never returns an error. Trails still running at the cycle
// deadline are cancelled and fail soft inside their own entries; only a panic
// outside the per-trail work yields the empty failure response.
func (s *Service) Run(ctx context.Context) (res Result) {
	cycleID := uuid.NewString()
	logger := s.logger.With("cycle_id", cycleID)
	start := s.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("aggregation cycle panicked", "panic", r)
			res = s.failure()
		}
		s.metrics.ObserveCycle(!res.Failed, s.clock.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	defer cancel()

	logger.Info("aggregation cycle started", "trails", len(s.trails))

	entries := s.collect(ctx, logger, s.trails)
	if err := ctx.Err(); err != nil {
		logger.Warn("aggregation cycle deadline reached; slow trails reported as failed", "error", err)
	}

	if s.recorder != nil {
		recordCtx, cancelRecord := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancelRecord()

		observed := make([]notify.Observation, 0, len(s.trails))
		for _, t := range s.trails {
			observed = append(observed, notify.Observation{TrailID: t.ID, Name: t.Name, Status: entries[t.ID].Status})
		}
		changes, err := s.recorder.Process(recordCtx, observed)
		if err != nil {
			logger.Error("status change detection failed", "error", err)
		} else if len(changes) > 0 {
			logger.Info("trail status changes recorded", "changes", len(changes))
		}
	}

	res = Result{
		Response: trail.Response{Trails: entries, LastUpdated: s.clock.Now().UTC()},
		MaxAge:   s.opts.CacheMaxAge,
	}
	s.mu.Lock()
	s.latest = &res
	s.mu.Unlock()

	logger.Info("aggregation cycle finished", "duration", s.clock.Since(start))
	return res
}

// RunTrail extracts status and prediction for one trail without recording changes.
func (s *Service) RunTrail(ctx context.Context, id string) (trail.Entry, error) {
	cfg, ok := s.trail(id)
	if !ok {
		return trail.Entry{}, fmt.Errorf("%w: %s", ErrUnknownTrail, id)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	defer cancel()

	return s.runTrail(ctx, s.logger, cfg), nil
}

// Latest returns the most recent successful cycle.
func (s *Service) Latest() (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Result{}, ErrNoSnapshot
	}
	return *s.latest, nil
}

// Trails returns the configured trails in configuration order.
func (s *Service) Trails() []trail.Config {
	return s.trails
}

func (s *Service) trail(id string) (trail.Config, bool) {
	for _, t := range s.trails {
		if t.ID == id {
			return t, true
		}
	}
	return trail.Config{}, false
}

func (s *Service) failure() Result {
	return Result{
		Response: trail.Response{
			Error:       failureMessage,
			Trails:      map[string]trail.Entry{},
			LastUpdated: s.clock.Now().UTC(),
		},
		MaxAge: s.opts.ErrorCacheMaxAge,
		Failed: true,
	}
}

// collect fans out one goroutine per trail and waits for all of them.
func (s *Service) collect(ctx context.Context, logger *slog.Logger, trails []trail.Config) map[string]trail.Entry {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		entries = make(map[string]trail.Entry, len(trails))
	)

	for _, t := range trails {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := s.runTrail(ctx, logger, t)

			mu.Lock()
			entries[t.ID] = entry
			mu.Unlock()
		}()
	}

	wg.Wait()
	return entries
}

// runTrail runs status extraction and weather prediction for one trail concurrently.
// A panic in either is contained to this trail.
func (s *Service) runTrail(ctx context.Context, logger *slog.Logger, cfg trail.Config) trail.Entry {
	logger = logger.With("trail", cfg.ID)

	var (
		wg      sync.WaitGroup
		status  trail.StatusResult
		weather *trail.WeatherPrediction
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("status extraction panicked", "panic", r)
				status = trail.StatusResult{Status: trail.StatusError, Description: panicDescription}
			}
		}()
		status = s.sources[cfg.ID].ExtractStatus(ctx)
	}()

	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("weather prediction panicked", "panic", r)
				weather = nil
			}
		}()
		weather = s.predict(ctx, logger, cfg)
	}()

	wg.Wait()

	s.metrics.ObserveTrailStatus(cfg.ID, string(status.Status))
	logger.Debug("trail checked", "status", status.Status)

	trailheads := cfg.Trailheads
	if trailheads == nil {
		trailheads = []trail.Trailhead{}
	}
	return trail.Entry{
		Name:         cfg.Name,
		StatusResult: status,
		Weather:      weather,
		Trailheads:   trailheads,
	}
}

func (s *Service) predict(ctx context.Context, logger *slog.Logger, cfg trail.Config) *trail.WeatherPrediction {
	if s.forecaster == nil {
		return nil
	}
	p, err := s.forecaster.Predict(ctx, cfg.Coordinate)
	if err != nil {
		if fetch.IsRateLimited(err) {
			return trail.RateLimitedPrediction()
		}
		logger.Warn("weather prediction unavailable", "error", err)
		return nil
	}
	return p
}
