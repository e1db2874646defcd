package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

const defaultOpportunityLimit = 50

// SaveAnalyses stores every verdict for one post.
func (s *Store) SaveAnalyses(_ context.Context, analyses []radar.Analysis) error {
	for _, a := range analyses {
		if a.ID == "" || a.PostID == "" {
			return errors.New("analysis id and post id are required")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range analyses {
		if _, ok := s.posts[a.PostID]; !ok {
			return fmt.Errorf("post %s: %w", a.PostID, radar.ErrNotFound)
		}
	}
	for _, a := range analyses {
		s.seq++
		s.analyses[a.ID] = a
		s.analysisAt[a.ID] = s.seq
	}
	return nil
}

// UpdateAnalysisStatus applies a workflow transition.
func (s *Store) UpdateAnalysisStatus(_ context.Context, id string, status radar.AnalysisStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return fmt.Errorf("analysis %s: %w", id, radar.ErrNotFound)
	}
	if !radar.CanTransition(a.Status, status) {
		return fmt.Errorf("analysis %s %s -> %s: %w", id, a.Status, status, radar.ErrInvalidTransition)
	}
	a.Status = status
	s.analyses[id] = a
	return nil
}

// ListOpportunities returns matching verdicts joined with their posts, newest first.
func (s *Store) ListOpportunities(_ context.Context, filter radar.OpportunityFilter) ([]radar.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	minRelevance := filter.MinRelevance
	if minRelevance == 0 {
		minRelevance = radar.HighPriorityRelevance
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOpportunityLimit
	}

	var out []radar.Opportunity
	for _, a := range s.analyses {
		if a.RelevanceScore < minRelevance {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		b := s.businesses[a.BusinessID]
		if filter.BusinessSlug != "" && b.Slug != filter.BusinessSlug {
			continue
		}
		out = append(out, radar.Opportunity{
			Analysis:     a,
			Post:         s.posts[a.PostID],
			BusinessName: b.Name,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].AnalyzedAt, out[j].AnalyzedAt
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return s.analysisAt[out[i].ID] > s.analysisAt[out[j].ID]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats summarizes posts and high-relevance verdicts. "Today" is the UTC calendar day of now.
func (s *Store) Stats(_ context.Context, now time.Time) (radar.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := radar.Stats{
		BySource:   map[string]int{},
		ByBusiness: map[string]int{},
	}
	dayStart := now.UTC().Truncate(24 * time.Hour)
	for _, p := range s.posts {
		stats.TotalPosts++
		stats.BySource[string(p.Source)]++
		if !p.IngestedAt.UTC().Before(dayStart) {
			stats.PostsToday++
		}
	}
	for _, a := range s.analyses {
		if a.RelevanceScore < radar.HighPriorityRelevance {
			continue
		}
		if a.Status == radar.StatusNew {
			stats.HighPriority++
		}
		if b, ok := s.businesses[a.BusinessID]; ok {
			stats.ByBusiness[b.Name]++
		}
	}
	return stats, nil
}
