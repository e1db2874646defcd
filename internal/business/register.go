// Package business registers monitored businesses and manages their keyword lists.
package business

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// ErrMissingName rejects registrations without a name.
var ErrMissingName = errors.New("business name is required")

// KeywordInput is one keyword supplied at registration time.
type KeywordInput struct {
	Text     string `json:"keyword"`
	Category string `json:"category"`
}

// Registration describes a new business.
type Registration struct {
	Name        string         `json:"name"`
	Domain      string         `json:"domain"`
	Description string         `json:"description"`
	Context     string         `json:"context"`
	Keywords    []KeywordInput `json:"keywords"`
}

// Service wraps a BusinessStore with id and timestamp assignment.
type Service struct {
	store radar.BusinessStore
	ids   radar.IDGenerator
	clock radar.Clock
}

// NewService constructs a Service.
func NewService(store radar.BusinessStore, ids radar.IDGenerator, clock radar.Clock) *Service {
	return &Service{store: store, ids: ids, clock: clock}
}

// Register creates an active business with its slug derived from the name. Keywords with blank
// text are dropped and repeated keywords are stored once.
func (s *Service) Register(ctx context.Context, reg Registration) (radar.Business, error) {
	name := strings.TrimSpace(reg.Name)
	if name == "" {
		return radar.Business{}, ErrMissingName
	}
	slug := radar.Slugify(name)
	if slug == "" {
		return radar.Business{}, radar.ErrEmptySlug
	}
	id, err := s.ids.NewID()
	if err != nil {
		return radar.Business{}, fmt.Errorf("business id: %w", err)
	}
	now := s.clock.Now()
	biz := radar.Business{
		ID:          id,
		Name:        name,
		Slug:        slug,
		Domain:      strings.TrimSpace(reg.Domain),
		Description: strings.TrimSpace(reg.Description),
		Context:     reg.Context,
		Active:      true,
		CreatedAt:   now,
	}

	seen := make(map[string]bool, len(reg.Keywords))
	keywords := make([]radar.Keyword, 0, len(reg.Keywords))
	for _, in := range reg.Keywords {
		text := strings.TrimSpace(in.Text)
		if text == "" || seen[strings.ToLower(text)] {
			continue
		}
		seen[strings.ToLower(text)] = true
		kwID, err := s.ids.NewID()
		if err != nil {
			return radar.Business{}, fmt.Errorf("keyword id: %w", err)
		}
		keywords = append(keywords, radar.Keyword{
			ID:         kwID,
			BusinessID: id,
			Text:       text,
			Category:   radar.NormalizeCategory(in.Category),
			Active:     true,
			CreatedAt:  now,
		})
	}

	if err := s.store.CreateBusiness(ctx, biz, keywords); err != nil {
		return radar.Business{}, fmt.Errorf("create business %s: %w", slug, err)
	}
	biz.KeywordCount = len(keywords)
	return biz, nil
}

// AddKeyword attaches an active keyword to the business identified by slug.
func (s *Service) AddKeyword(ctx context.Context, slug string, in KeywordInput) (radar.Keyword, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return radar.Keyword{}, errors.New("keyword text is required")
	}
	biz, err := s.store.GetBusinessBySlug(ctx, slug)
	if err != nil {
		return radar.Keyword{}, fmt.Errorf("business %s: %w", slug, err)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return radar.Keyword{}, fmt.Errorf("keyword id: %w", err)
	}
	kw := radar.Keyword{
		ID:         id,
		BusinessID: biz.ID,
		Text:       text,
		Category:   radar.NormalizeCategory(in.Category),
		Active:     true,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.AddKeyword(ctx, kw); err != nil {
		return radar.Keyword{}, fmt.Errorf("add keyword: %w", err)
	}
	return kw, nil
}

// Lookup resolves a slug to the business and its keywords.
func (s *Service) Lookup(ctx context.Context, slug string) (radar.Business, []radar.Keyword, error) {
	biz, err := s.store.GetBusinessBySlug(ctx, slug)
	if err != nil {
		return radar.Business{}, nil, fmt.Errorf("business %s: %w", slug, err)
	}
	keywords, err := s.store.ListKeywords(ctx, biz.ID)
	if err != nil {
		return radar.Business{}, nil, fmt.Errorf("keywords %s: %w", slug, err)
	}
	biz.KeywordCount = len(keywords)
	return biz, keywords, nil
}

// SetActive activates or deactivates the business identified by slug.
func (s *Service) SetActive(ctx context.Context, slug string, active bool) error {
	biz, err := s.store.GetBusinessBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("business %s: %w", slug, err)
	}
	if err := s.store.SetBusinessActive(ctx, biz.ID, active); err != nil {
		return fmt.Errorf("set active %s: %w", slug, err)
	}
	return nil
}

// Delete removes the business identified by slug along with its keywords.
func (s *Service) Delete(ctx context.Context, slug string) error {
	biz, err := s.store.GetBusinessBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("business %s: %w", slug, err)
	}
	if err := s.store.DeleteBusiness(ctx, biz.ID); err != nil {
		return fmt.Errorf("delete %s: %w", slug, err)
	}
	return nil
}
