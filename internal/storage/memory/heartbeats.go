package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// RecordSuccess upserts a successful run, clearing the last error.
func (s *Store) RecordSuccess(_ context.Context, name string, at time.Time, postCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := at
	s.heartbeats[name] = radar.Heartbeat{Name: name, LastSuccess: &ts, PostCount: postCount}
	return nil
}

// RecordFailure upserts a failed run, leaving last success and count untouched.
func (s *Store) RecordFailure(_ context.Context, name string, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb := s.heartbeats[name]
	hb.Name = name
	hb.LastError = errText
	s.heartbeats[name] = hb
	return nil
}

// GetHeartbeat returns the row for name or radar.ErrNotFound.
func (s *Store) GetHeartbeat(_ context.Context, name string) (radar.Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hb, ok := s.heartbeats[name]
	if !ok {
		return radar.Heartbeat{}, fmt.Errorf("heartbeat %s: %w", name, radar.ErrNotFound)
	}
	return hb, nil
}

// ListHeartbeats returns every row ordered by name.
func (s *Store) ListHeartbeats(_ context.Context) ([]radar.Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]radar.Heartbeat, 0, len(s.heartbeats))
	for _, hb := range s.heartbeats {
		out = append(out, hb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
