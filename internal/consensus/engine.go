// Package consensus asks several chat models for monitoring keywords and ranks the merged
// proposals by how many models agree on them.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/mention-radar/internal/llm"
	"github.com/JakeFAU/mention-radar/internal/metrics"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

var (
	// ErrMissingName rejects input without a business name.
	ErrMissingName = errors.New("business name is required")
	// ErrMissingContext rejects input with neither description nor context.
	ErrMissingContext = errors.New("a description or context is required")
)

// Defaults applied by New.
const (
	DefaultTimeout            = 60 * time.Second
	DefaultPreselectThreshold = 2
	DefaultTemperature        = 0.7
	DefaultMaxTokens          = 4000
)

// DefaultModels are queried when none are configured.
var DefaultModels = []string{"openai/gpt-5.2", "anthropic/claude-opus-4.5", "google/gemini-3-pro-preview"}

// Input describes the business to suggest keywords for.
type Input struct {
	Name        string
	Domain      string
	Description string
	Context     string
}

// Validate enforces the required fields.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(in.Description) == "" && strings.TrimSpace(in.Context) == "" {
		return ErrMissingContext
	}
	return nil
}

// Proposal is one keyword as a model returned it.
type Proposal struct {
	Keyword  string `json:"keyword"`
	Category string `json:"category"`
}

// ModelResult is the outcome of querying one model. Err is set when the model contributed nothing.
type ModelResult struct {
	Model     string
	Proposals []Proposal
	Err       error
	Duration  time.Duration
}

// Suggestion is a merged keyword with the models that proposed it.
type Suggestion struct {
	Keyword  string                `json:"keyword"`
	Category radar.KeywordCategory `json:"category"`
	Models   []string              `json:"models"`
	Count    int                   `json:"model_count"`
}

// Result is a ranked suggestion list plus per-model outcomes.
type Result struct {
	Suggestions []Suggestion  `json:"suggestions"`
	Models      []ModelResult `json:"-"`
}

// Failed returns the models that contributed nothing.
func (r Result) Failed() []ModelResult {
	var out []ModelResult
	for _, m := range r.Models {
		if m.Err != nil {
			out = append(out, m)
		}
	}
	return out
}

// Config tunes the engine.
type Config struct {
	Models             []string
	Timeout            time.Duration
	MaxParallel        int
	PreselectThreshold int
	Temperature        float64
	MaxTokens          int
}

// Engine fans a prompt out to every configured model.
type Engine struct {
	cfg    Config
	llm    llm.Completer
	logger *zap.Logger
}

// New wires an Engine, filling unset configuration with defaults.
func New(cfg Config, completer llm.Completer, logger *zap.Logger) (*Engine, error) {
	if completer == nil {
		return nil, errors.New("consensus engine requires an llm client")
	}
	if len(cfg.Models) == 0 {
		cfg.Models = append([]string(nil), DefaultModels...)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = len(cfg.Models)
	}
	if cfg.PreselectThreshold <= 0 {
		cfg.PreselectThreshold = DefaultPreselectThreshold
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, llm: completer, logger: logger.Named("consensus")}, nil
}

// PreselectThreshold is the agreement count at which a suggestion starts selected.
func (e *Engine) PreselectThreshold() int {
	return e.cfg.PreselectThreshold
}

// Suggest queries every model concurrently and merges their proposals. A model that fails or
// times out is recorded in Result.Models and excluded; if all fail the list is empty and the
// error is nil.
func (e *Engine) Suggest(ctx context.Context, in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	prompt := BuildPrompt(in)
	results := make([]ModelResult, len(e.cfg.Models))

	var g errgroup.Group
	g.SetLimit(e.cfg.MaxParallel)
	for i, model := range e.cfg.Models {
		g.Go(func() error {
			results[i] = e.query(ctx, model, prompt)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			e.logger.Warn("model contributed nothing", zap.String("model", r.Model), zap.Error(r.Err))
		}
	}
	return Result{Suggestions: Merge(results), Models: results}, nil
}

func (e *Engine) query(ctx context.Context, model, prompt string) ModelResult {
	start := time.Now()
	result := ModelResult{Model: model}
	defer func() {
		result.Duration = time.Since(start)
	}()

	content, err := e.llm.Complete(ctx, llm.Request{
		Model:       model,
		Prompt:      prompt,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Timeout:     e.cfg.Timeout,
	})
	if err != nil {
		result.Err = fmt.Errorf("query %s: %w", model, err)
		metrics.ObserveModelQuery(model, false)
		return result
	}
	var payload struct {
		Keywords *[]Proposal `json:"keywords"`
	}
	if err := llm.DecodeJSON(content, &payload); err != nil {
		result.Err = fmt.Errorf("decode %s: %w", model, err)
		metrics.ObserveModelQuery(model, false)
		return result
	}
	if payload.Keywords == nil {
		result.Err = fmt.Errorf("decode %s: %w: missing keywords", model, llm.ErrMalformedResponse)
		metrics.ObserveModelQuery(model, false)
		return result
	}
	result.Proposals = *payload.Keywords
	metrics.ObserveModelQuery(model, true)
	return result
}

// Merge combines successful model results. Keywords are keyed by their trimmed text; the first
// category seen wins. Ordering is by descending agreement, then case-insensitive keyword, then
// exact keyword.
func Merge(results []ModelResult) []Suggestion {
	type entry struct {
		keyword  string
		category radar.KeywordCategory
		models   map[string]struct{}
	}
	index := map[string]*entry{}
	var order []*entry
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, p := range r.Proposals {
			text := strings.TrimSpace(p.Keyword)
			if text == "" {
				continue
			}
			e, ok := index[text]
			if !ok {
				e = &entry{
					keyword:  text,
					category: radar.NormalizeCategory(strings.TrimSpace(p.Category)),
					models:   map[string]struct{}{},
				}
				index[text] = e
				order = append(order, e)
			}
			e.models[r.Model] = struct{}{}
		}
	}

	out := make([]Suggestion, 0, len(order))
	for _, e := range order {
		models := make([]string, 0, len(e.models))
		for m := range e.models {
			models = append(models, m)
		}
		sort.Strings(models)
		out = append(out, Suggestion{Keyword: e.keyword, Category: e.category, Models: models, Count: len(models)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		li, lj := strings.ToLower(out[i].Keyword), strings.ToLower(out[j].Keyword)
		if li != lj {
			return li < lj
		}
		return out[i].Keyword < out[j].Keyword
	})
	return out
}
