// Package source runs the per-platform adapters that turn upstream listings into stored posts.
//
// Every adapter shares one Runner, which loads the active keyword set, applies local keyword
// matching where the upstream does not already filter, assigns ids and ingestion timestamps,
// and inserts through the deduplicating post store. Adapters only walk their bounded window and
// hand normalized candidates back.
package source

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/metrics"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

// ErrRateLimited stops an adapter run when the upstream refuses further requests.
var ErrRateLimited = errors.New("upstream rate limited")

// bodyLimit caps stored post bodies, in runes.
const bodyLimit = 5000

// Emit receives one normalized candidate. Source, SourceID and URL must be set.
type Emit func(ctx context.Context, post radar.Post)

// Adapter walks one upstream for a set of keyword terms.
type Adapter interface {
	Source() radar.Source
	// FiltersUpstream reports whether the upstream query already constrains results to the
	// keyword, in which case candidates skip local matching.
	FiltersUpstream() bool
	// Collect emits candidates. A returned error means the run could not continue.
	Collect(ctx context.Context, terms []string, emit Emit) error
}

// Runner drives adapters against the keyword registry and post store.
type Runner struct {
	keywords radar.KeywordRegistry
	posts    radar.PostStore
	ids      radar.IDGenerator
	clock    radar.Clock
	logger   *zap.Logger
}

// NewRunner wires a Runner.
func NewRunner(
	keywords radar.KeywordRegistry,
	posts radar.PostStore,
	ids radar.IDGenerator,
	clock radar.Clock,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		keywords: keywords,
		posts:    posts,
		ids:      ids,
		clock:    clock,
		logger:   logger.Named("source"),
	}
}

// Run executes one adapter pass and returns the number of newly stored posts.
// When the adapter aborts, the count stored so far is returned with the error.
func (r *Runner) Run(ctx context.Context, adapter Adapter) (int, error) {
	src := string(adapter.Source())
	logger := r.logger.With(zap.String("source", src))

	set, err := r.keywords.ActiveKeywords(ctx)
	if err != nil {
		metrics.ObserveAdapterRun(src, false, 0)
		return 0, fmt.Errorf("load keywords: %w", err)
	}
	terms := set.Terms()
	if len(terms) == 0 {
		logger.Info("no active keywords; skipping run")
		metrics.ObserveAdapterRun(src, true, 0)
		return 0, nil
	}

	var stored, seen, unmatched int
	emit := func(ctx context.Context, post radar.Post) {
		seen++
		if !adapter.FiltersUpstream() && len(radar.MatchKeywords(post.SearchText(), terms)) == 0 {
			unmatched++
			return
		}
		if r.store(ctx, logger, post) {
			stored++
		}
	}

	err = adapter.Collect(ctx, terms, emit)
	logger.Info("adapter run finished",
		zap.Int("candidates", seen),
		zap.Int("unmatched", unmatched),
		zap.Int("stored", stored),
		zap.Error(err),
	)
	metrics.ObserveAdapterRun(src, err == nil, stored)
	if err != nil {
		return stored, fmt.Errorf("%s run: %w", src, err)
	}
	return stored, nil
}

func (r *Runner) store(ctx context.Context, logger *zap.Logger, post radar.Post) bool {
	if post.SourceID == "" {
		logger.Debug("candidate without source id dropped", zap.String("url", post.URL))
		return false
	}
	id, err := r.ids.NewID()
	if err != nil {
		logger.Warn("id generation failed", zap.Error(err))
		return false
	}
	post.ID = id
	post.IngestedAt = r.clock.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = post.IngestedAt
	}
	post.Body = radar.Truncate(post.Body, bodyLimit)

	inserted, err := r.posts.InsertPost(ctx, post)
	if err != nil {
		logger.Warn("insert post failed", zap.String("source_id", post.SourceID), zap.Error(err))
		return false
	}
	if !inserted {
		metrics.ObserveDuplicate(string(post.Source))
		return false
	}
	return true
}
