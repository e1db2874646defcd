package memory

import (
	"context"
	"errors"
	"strings"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// InsertPost stores post unless (source, source id) is already present.
func (s *Store) InsertPost(_ context.Context, post radar.Post) (bool, error) {
	if post.ID == "" || post.SourceID == "" {
		return false, errors.New("post id and source id are required")
	}
	key := postKey{source: post.Source, sourceID: post.SourceID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.postKeys[key]; exists {
		return false, nil
	}
	s.posts[post.ID] = post
	s.postKeys[key] = post.ID
	s.postOrder = append(s.postOrder, post.ID)
	return true, nil
}

// PostExists reports whether the dedup key is taken.
func (s *Store) PostExists(_ context.Context, source radar.Source, sourceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.postKeys[postKey{source: source, sourceID: sourceID}]
	return exists, nil
}

// ListUnclassified returns posts without verdicts, newest ingestion first.
func (s *Store) ListUnclassified(_ context.Context, limit int) ([]radar.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	classified := make(map[string]struct{}, len(s.analyses))
	for _, a := range s.analyses {
		classified[a.PostID] = struct{}{}
	}
	var out []radar.Post
	for _, post := range s.newestFirst() {
		if _, done := classified[post.ID]; done {
			continue
		}
		out = append(out, post)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListPosts filters and pages through posts, newest ingestion first.
func (s *Store) ListPosts(_ context.Context, filter radar.PostFilter) ([]radar.Post, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(filter.Query)
	var matched []radar.Post
	for _, post := range s.newestFirst() {
		if filter.Source != "" && post.Source != filter.Source {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(post.Title), query) &&
			!strings.Contains(strings.ToLower(post.Body), query) {
			continue
		}
		matched = append(matched, post)
	}
	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

// newestFirst orders posts by ingestion time, breaking ties by reverse insertion order.
func (s *Store) newestFirst() []radar.Post {
	out := make([]radar.Post, 0, len(s.postOrder))
	for i := len(s.postOrder) - 1; i >= 0; i-- {
		out = append(out, s.posts[s.postOrder[i]])
	}
	stableSortPosts(out)
	return out
}
