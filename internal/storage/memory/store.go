// Package memory provides in-memory implementations for development and tests.
package memory

import (
	"sync"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// Store implements radar.Store with maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	posts     map[string]radar.Post
	postOrder []string
	postKeys  map[postKey]string

	businesses map[string]radar.Business
	keywords   map[string]radar.Keyword
	analyses   map[string]radar.Analysis
	heartbeats map[string]radar.Heartbeat
	seq        int
	analysisAt map[string]int
}

type postKey struct {
	source   radar.Source
	sourceID string
}

var _ radar.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		posts:      make(map[string]radar.Post),
		postKeys:   make(map[postKey]string),
		businesses: make(map[string]radar.Business),
		keywords:   make(map[string]radar.Keyword),
		analyses:   make(map[string]radar.Analysis),
		heartbeats: make(map[string]radar.Heartbeat),
		analysisAt: make(map[string]int),
	}
}

// Close is a no-op.
func (s *Store) Close() {}
