package sources

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/trail-status/internal/fetch"
	"github.com/i474232898/trail-status/internal/trail"
)

// Factory builds the StatusSource variant matching a trail's configured kind.
type Factory struct {
	Fetcher *fetch.Fetcher
	Clock   clockwork.Clock
	Loc     *time.Location
	Logger  *slog.Logger
}

func (f Factory) New(cfg trail.Config) (trail.StatusSource, error) {
	switch cfg.Kind {
	case trail.SourceCalendar:
		return NewCalendar(cfg.Name, cfg.Source, f.Fetcher, f.Clock, f.Loc, f.Logger), nil
	case trail.SourceImage:
		return NewImage(cfg.Name, cfg.Source, f.Fetcher, f.Logger), nil
	default:
		return nil, fmt.Errorf("trail %s: unsupported source kind %q", cfg.ID, cfg.Kind)
	}
}

// BuildAll returns one source per trail, keyed by trail id.
func (f Factory) BuildAll(trails []trail.Config) (map[string]trail.StatusSource, error) {
	out := make(map[string]trail.StatusSource, len(trails))
	for _, cfg := range trails {
		src, err := f.New(cfg)
		if err != nil {
			return nil, err
		}
		out[cfg.ID] = src
	}
	return out, nil
}
