package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// CreateBusiness stores a business and its initial keywords.
func (s *Store) CreateBusiness(_ context.Context, business radar.Business, keywords []radar.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.businesses {
		if existing.Slug == business.Slug {
			return fmt.Errorf("create business %q: %w", business.Slug, radar.ErrDuplicateSlug)
		}
	}
	s.businesses[business.ID] = business
	for _, kw := range keywords {
		kw.BusinessID = business.ID
		s.keywords[kw.ID] = kw
	}
	return nil
}

// GetBusinessBySlug looks up one business.
func (s *Store) GetBusinessBySlug(_ context.Context, slug string) (radar.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.businesses {
		if b.Slug == slug {
			return b, nil
		}
	}
	return radar.Business{}, fmt.Errorf("business %q: %w", slug, radar.ErrNotFound)
}

// ListBusinesses returns every business, newest first, with keyword counts.
func (s *Store) ListBusinesses(_ context.Context) ([]radar.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, kw := range s.keywords {
		counts[kw.BusinessID]++
	}
	out := make([]radar.Business, 0, len(s.businesses))
	for _, b := range s.businesses {
		b.KeywordCount = counts[b.ID]
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

// ActiveBusinesses returns active businesses ordered by name.
func (s *Store) ActiveBusinesses(_ context.Context) ([]radar.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []radar.Business
	for _, b := range s.businesses {
		if b.Active {
			out = append(out, b)
		}
	}
	sortBusinessesByName(out)
	return out, nil
}

// SetBusinessActive toggles a business.
func (s *Store) SetBusinessActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return fmt.Errorf("business %s: %w", id, radar.ErrNotFound)
	}
	b.Active = active
	s.businesses[id] = b
	return nil
}

// DeleteBusiness removes a business and its keywords; its verdicts become unattributed.
func (s *Store) DeleteBusiness(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.businesses[id]; !ok {
		return fmt.Errorf("business %s: %w", id, radar.ErrNotFound)
	}
	delete(s.businesses, id)
	for kwID, kw := range s.keywords {
		if kw.BusinessID == id {
			delete(s.keywords, kwID)
		}
	}
	for aID, a := range s.analyses {
		if a.BusinessID == id {
			a.BusinessID = ""
			s.analyses[aID] = a
		}
	}
	return nil
}

// AddKeyword attaches a keyword to an existing business.
func (s *Store) AddKeyword(_ context.Context, keyword radar.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.businesses[keyword.BusinessID]; !ok {
		return fmt.Errorf("business %s: %w", keyword.BusinessID, radar.ErrNotFound)
	}
	s.keywords[keyword.ID] = keyword
	return nil
}

// ListKeywords returns a business's keywords ordered by category then text.
func (s *Store) ListKeywords(_ context.Context, businessID string) ([]radar.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []radar.Keyword
	for _, kw := range s.keywords {
		if kw.BusinessID == businessID {
			out = append(out, kw)
		}
	}
	sortKeywords(out)
	return out, nil
}

// SetKeywordActive toggles a keyword.
func (s *Store) SetKeywordActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kw, ok := s.keywords[id]
	if !ok {
		return fmt.Errorf("keyword %s: %w", id, radar.ErrNotFound)
	}
	kw.Active = active
	s.keywords[id] = kw
	return nil
}

// DeleteKeyword removes a keyword.
func (s *Store) DeleteKeyword(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keywords[id]; !ok {
		return fmt.Errorf("keyword %s: %w", id, radar.ErrNotFound)
	}
	delete(s.keywords, id)
	return nil
}

// ActiveKeywords maps each active keyword of an active business to the owning slugs.
func (s *Store) ActiveKeywords(_ context.Context) (radar.KeywordSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := radar.KeywordSet{}
	for _, kw := range s.keywords {
		b, ok := s.businesses[kw.BusinessID]
		if !ok || !b.Active || !kw.Active {
			continue
		}
		text := strings.TrimSpace(kw.Text)
		if text == "" {
			continue
		}
		set[text] = appendUnique(set[text], b.Slug)
	}
	for text := range set {
		sort.Strings(set[text])
	}
	return set, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
