// Package heartbeat records adapter and classifier run outcomes and derives health from them.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// DefaultWindow is how recent a success must be for a component to count as healthy.
const DefaultWindow = 24 * time.Hour

// State is the derived health of one component.
type State string

// Health states.
const (
	StateHealthy  State = "healthy"
	StateStale    State = "stale"
	StateFailed   State = "failed"
	StateNeverRun State = "never_run"
)

// Label is the operator-facing rendering used by the health command.
func (s State) Label() string {
	switch s {
	case StateHealthy:
		return "OK"
	case StateStale:
		return "STALE"
	case StateFailed:
		return "FAILED"
	default:
		return "NEVER RUN"
	}
}

// Report is the health of one named component.
type Report struct {
	Name      string           `json:"name"`
	State     State            `json:"state"`
	Heartbeat *radar.Heartbeat `json:"heartbeat,omitempty"`
}

// Tracker wraps a HeartbeatStore with the record and health rules.
type Tracker struct {
	store  radar.HeartbeatStore
	clock  radar.Clock
	window time.Duration
	logger *zap.Logger
}

// New constructs a Tracker. A non-positive window falls back to DefaultWindow.
func New(store radar.HeartbeatStore, clock radar.Clock, window time.Duration, logger *zap.Logger) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, clock: clock, window: window, logger: logger.Named("heartbeat")}
}

// Window returns the configured freshness window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Record upserts the outcome of one run. Recording the same outcome twice leaves one row.
func (t *Tracker) Record(ctx context.Context, name string, success bool, errText string, postCount int) error {
	if name == "" {
		return errors.New("heartbeat name is required")
	}
	if success {
		if err := t.store.RecordSuccess(ctx, name, t.clock.Now(), postCount); err != nil {
			return fmt.Errorf("record success: %w", err)
		}
		t.logger.Debug("heartbeat success", zap.String("name", name), zap.Int("posts", postCount))
		return nil
	}
	if errText == "" {
		errText = "unknown error"
	}
	if err := t.store.RecordFailure(ctx, name, errText); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	t.logger.Warn("heartbeat failure", zap.String("name", name), zap.String("error", errText))
	return nil
}

// Health derives the state of each name at now, in the order given.
func (t *Tracker) Health(ctx context.Context, names []string, now time.Time) ([]Report, error) {
	reports := make([]Report, 0, len(names))
	for _, name := range names {
		hb, err := t.store.GetHeartbeat(ctx, name)
		if errors.Is(err, radar.ErrNotFound) {
			reports = append(reports, Report{Name: name, State: StateNeverRun})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("heartbeat %s: %w", name, err)
		}
		row := hb
		reports = append(reports, Report{Name: name, State: t.classify(hb, now), Heartbeat: &row})
	}
	return reports, nil
}

func (t *Tracker) classify(hb radar.Heartbeat, now time.Time) State {
	if hb.LastSuccess == nil {
		return StateFailed
	}
	if now.Sub(*hb.LastSuccess) <= t.window {
		return StateHealthy
	}
	return StateStale
}

// HealthyCount returns how many reports are healthy.
func HealthyCount(reports []Report) int {
	n := 0
	for _, r := range reports {
		if r.State == StateHealthy {
			n++
		}
	}
	return n
}

// Names returns every adapter name followed by the classifier.
func Names() []string {
	names := make([]string, 0, len(radar.AllSources)+1)
	for _, s := range radar.AllSources {
		names = append(names, string(s))
	}
	return append(names, radar.ClassifierName)
}
