// Package classifier scores stored posts against the active businesses with a chat model and
// records one verdict per business the model names.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/llm"
	"github.com/JakeFAU/mention-radar/internal/metrics"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

// Fallback policies for verdicts that name no known business.
const (
	FallbackDefaultBusiness = "default_business"
	FallbackUnattributed    = "unattributed"
)

// Config tunes the classifier.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	BatchSize   int
	Fallback    string
	// NotifyTopic receives an Alert for each stored verdict at or above NotifyMinRelevance.
	// Empty disables notifications.
	NotifyTopic        string
	NotifyMinRelevance int
}

// Store is the persistence the classifier needs.
type Store interface {
	ListUnclassified(ctx context.Context, limit int) ([]radar.Post, error)
	ActiveBusinesses(ctx context.Context) ([]radar.Business, error)
	SaveAnalyses(ctx context.Context, analyses []radar.Analysis) error
}

// Deps are the collaborators of a Classifier. Publisher and Logger are optional.
type Deps struct {
	LLM       llm.Completer
	Store     Store
	IDs       radar.IDGenerator
	Clock     radar.Clock
	Publisher radar.Publisher
	Logger    *zap.Logger
}

// Alert is the notification payload for a high-relevance verdict.
type Alert struct {
	AnalysisID        string        `json:"analysis_id"`
	PostID            string        `json:"post_id"`
	Source            radar.Source  `json:"source"`
	URL               string        `json:"url"`
	Title             string        `json:"title,omitempty"`
	BusinessSlug      string        `json:"business_slug,omitempty"`
	BusinessName      string        `json:"business_name,omitempty"`
	RelevanceScore    int           `json:"relevance_score"`
	Urgency           radar.Urgency `json:"urgency"`
	SuggestedResponse string        `json:"suggested_response,omitempty"`
}

// Classifier turns unclassified posts into verdicts.
type Classifier struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates cfg and wires a Classifier.
func New(cfg Config, deps Deps) (*Classifier, error) {
	if deps.LLM == nil || deps.Store == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("classifier requires an llm, store, id generator and clock")
	}
	switch cfg.Fallback {
	case "":
		cfg.Fallback = FallbackDefaultBusiness
	case FallbackDefaultBusiness, FallbackUnattributed:
	default:
		return nil, fmt.Errorf("unknown fallback policy %q", cfg.Fallback)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{cfg: cfg, deps: deps, logger: logger.Named("classifier")}, nil
}

// Run classifies up to BatchSize of the newest unclassified posts and returns how many were
// classified. Per-post failures are skipped; the post stays unclassified for a later run.
func (c *Classifier) Run(ctx context.Context) (int, error) {
	businesses, err := c.deps.Store.ActiveBusinesses(ctx)
	if err != nil {
		return 0, fmt.Errorf("load businesses: %w", err)
	}
	if len(businesses) == 0 {
		c.logger.Info("no active businesses; skipping classification")
		return 0, nil
	}
	posts, err := c.deps.Store.ListUnclassified(ctx, c.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load unclassified posts: %w", err)
	}
	if len(posts) == 0 {
		c.logger.Info("no posts to classify")
		return 0, nil
	}

	c.logger.Info("classifying posts", zap.Int("count", len(posts)))
	classified := 0
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return classified, err
		}
		analyses, err := c.Classify(ctx, post, businesses)
		if err != nil {
			metrics.ObserveClassification("skipped")
			c.logger.Warn("classification skipped", zap.String("post_id", post.ID), zap.Error(err))
			continue
		}
		if err := c.deps.Store.SaveAnalyses(ctx, analyses); err != nil {
			metrics.ObserveClassification("failed")
			c.logger.Error("save analyses failed", zap.String("post_id", post.ID), zap.Error(err))
			continue
		}
		metrics.ObserveClassification("classified")
		classified++
		c.logger.Info("post classified",
			zap.String("post_id", post.ID),
			zap.Int("relevance", analyses[0].RelevanceScore),
			zap.String("post_type", analyses[0].PostType),
			zap.String("urgency", string(analyses[0].Urgency)),
			zap.Int("businesses", len(analyses)),
		)
		c.notify(ctx, post, businesses, analyses)
	}
	return classified, nil
}

// Classify asks the model about one post and returns the verdict rows to store. It does not
// persist anything.
func (c *Classifier) Classify(ctx context.Context, post radar.Post, businesses []radar.Business) ([]radar.Analysis, error) {
	content, err := c.deps.LLM.Complete(ctx, llm.Request{
		Model:       c.cfg.Model,
		Prompt:      BuildPrompt(post, businesses),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Timeout:     c.cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	var verdict Verdict
	if err := llm.DecodeJSON(content, &verdict); err != nil {
		return nil, err
	}
	if err := verdict.validate(); err != nil {
		return nil, err
	}
	return c.apply(post, businesses, verdict)
}

func (c *Classifier) apply(post radar.Post, businesses []radar.Business, v Verdict) ([]radar.Analysis, error) {
	bySlug := make(map[string]radar.Business, len(businesses))
	for _, b := range businesses {
		bySlug[b.Slug] = b
	}

	var targets []string
	seen := map[string]bool{}
	for _, slug := range v.RelevantTo {
		b, ok := bySlug[slug]
		if !ok || seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		targets = append(targets, b.ID)
	}
	if len(targets) == 0 {
		switch c.cfg.Fallback {
		case FallbackUnattributed:
			targets = []string{""}
		default:
			c.logger.Warn("verdict names no known business; attributing to default",
				zap.String("post_id", post.ID),
				zap.Strings("relevant_to", v.RelevantTo),
				zap.String("business", businesses[0].Slug),
			)
			targets = []string{businesses[0].ID}
		}
	}

	keywords := v.KeywordsFound
	if keywords == nil {
		keywords = []string{}
	}
	now := c.deps.Clock.Now()
	out := make([]radar.Analysis, 0, len(targets))
	for _, businessID := range targets {
		id, err := c.deps.IDs.NewID()
		if err != nil {
			return nil, fmt.Errorf("analysis id: %w", err)
		}
		out = append(out, radar.Analysis{
			ID:                id,
			PostID:            post.ID,
			BusinessID:        businessID,
			RelevanceScore:    Clamp(int(*v.RelevanceScore)),
			PostType:          strings.TrimSpace(v.PostType),
			PainScore:         Clamp(int(*v.PainScore)),
			Urgency:           radar.NormalizeUrgency(v.Urgency),
			KeywordsMatched:   append([]string(nil), keywords...),
			Competitor:        optional(v.CompetitorMentioned),
			SuggestedResponse: optional(v.SuggestedResponse),
			Status:            radar.StatusNew,
			AnalyzedAt:        now,
		})
	}
	return out, nil
}

func (c *Classifier) notify(ctx context.Context, post radar.Post, businesses []radar.Business, analyses []radar.Analysis) {
	if c.deps.Publisher == nil || c.cfg.NotifyTopic == "" {
		return
	}
	byID := make(map[string]radar.Business, len(businesses))
	for _, b := range businesses {
		byID[b.ID] = b
	}
	for _, a := range analyses {
		if a.RelevanceScore < c.cfg.NotifyMinRelevance {
			continue
		}
		b := byID[a.BusinessID]
		msgID, err := c.deps.Publisher.Publish(ctx, c.cfg.NotifyTopic, Alert{
			AnalysisID:        a.ID,
			PostID:            post.ID,
			Source:            post.Source,
			URL:               post.URL,
			Title:             post.Title,
			BusinessSlug:      b.Slug,
			BusinessName:      b.Name,
			RelevanceScore:    a.RelevanceScore,
			Urgency:           a.Urgency,
			SuggestedResponse: a.SuggestedResponse,
		})
		if err != nil {
			c.logger.Warn("publish alert failed", zap.String("analysis_id", a.ID), zap.Error(err))
			continue
		}
		c.logger.Debug("alert published", zap.String("message_id", msgID))
	}
}
