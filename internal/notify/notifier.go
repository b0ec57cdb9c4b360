package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/trail-status/internal/observability"
	"github.com/i474232898/trail-status/internal/store"
	"github.com/i474232898/trail-status/internal/trail"
)

// DefaultMaxAttempts bounds how often a cycle reloads after losing the swap.
const DefaultMaxAttempts = 5

// Observation is one trail's freshly computed status.
type Observation struct {
	TrailID string
	Name    string
	Status  trail.Status
}

// Change is a transition between two distinct non-error statuses.
type Change struct {
	ID      string
	TrailID string
	Name    string
	Old     trail.Status
	New     trail.Status
	At      time.Time
}

// Sender delivers one change notification.
type Sender interface {
	Send(ctx context.Context, c Change) error
}

// Notifier diffs observations against the persisted map, commits the new map and
// announces the transitions it committed.
type Notifier struct {
	store       store.Store
	sender      Sender
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	maxAttempts int
}

func NewNotifier(st store.Store, sender Sender, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Notifier {
	return &Notifier{
		store:       st,
		sender:      sender,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Process records observations and sends one notification per committed change.
//
// The persisted map is swapped by revision before anything is sent, so when two
// cycles overlap only the one whose swap lands announces a transition; the other
// reloads and diffs against the winner's map. Delivery failures are logged and
// never returned.
func (n *Notifier) Process(ctx context.Context, observed []Observation) ([]Change, error) {
	var changes []Change

	for attempt := 1; ; attempt++ {
		snap, err := n.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load persisted statuses: %w", err)
		}

		changes = Diff(snap.Statuses, observed, n.clock.Now())
		next := Merge(snap.Statuses, observed)
		if equalStatuses(snap.Statuses, next) {
			break
		}

		err = n.store.CompareAndSwap(ctx, snap.Revision, next)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("save persisted statuses: %w", err)
		}
		n.metrics.ObserveConflict()
		if attempt >= n.maxAttempts {
			return nil, fmt.Errorf("save persisted statuses after %d attempts: %w", attempt, err)
		}
		n.logger.Warn("persisted statuses changed concurrently, retrying", "attempt", attempt)
	}

	for _, c := range changes {
		err := n.sender.Send(ctx, c)
		if errors.Is(err, ErrNotDelivered) {
			n.metrics.ObserveNotification("skipped")
			continue
		}
		if err != nil {
			n.logger.Error("status change notification failed",
				"trail", c.TrailID, "old", c.Old, "new", c.New, "notification_id", c.ID, "error", err)
			n.metrics.ObserveNotification("failed")
			continue
		}
		n.logger.Info("status change notification sent",
			"trail", c.TrailID, "old", c.Old, "new", c.New, "notification_id", c.ID)
		n.metrics.ObserveNotification("sent")
	}
	return changes, nil
}

// Diff returns a Change for every trail that has a prior status different from its
// new, non-error status. Results are ordered by trail id.
func Diff(prev map[string]trail.Status, observed []Observation, at time.Time) []Change {
	var out []Change
	for _, o := range observed {
		old, ok := prev[o.TrailID]
		if !ok || old == o.Status || o.Status == trail.StatusError {
			continue
		}
		out = append(out, Change{
			ID:      uuid.NewString(),
			TrailID: o.TrailID,
			Name:    o.Name,
			Old:     old,
			New:     o.Status,
			At:      at,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrailID < out[j].TrailID })
	return out
}

// Merge overlays every persistable observation on prev. Trails observed in error
// keep their previous value.
func Merge(prev map[string]trail.Status, observed []Observation) map[string]trail.Status {
	next := make(map[string]trail.Status, len(prev)+len(observed))
	for id, s := range prev {
		next[id] = s
	}
	for _, o := range observed {
		if o.Status.Persistable() {
			next[o.TrailID] = o.Status
		}
	}
	return next
}

func equalStatuses(a, b map[string]trail.Status) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
