package radar

import (
	"context"
	"time"
)

// PostStore persists normalized posts with at-most-once semantics per (source, source id).
type PostStore interface {
	// InsertPost returns false when a post with the same dedup key already exists.
	InsertPost(ctx context.Context, post Post) (bool, error)
	PostExists(ctx context.Context, source Source, sourceID string) (bool, error)
	// ListUnclassified returns up to limit posts without any Analysis row, newest ingestion first.
	ListUnclassified(ctx context.Context, limit int) ([]Post, error)
	// ListPosts pages through stored posts, newest ingestion first, and returns the total match count.
	ListPosts(ctx context.Context, filter PostFilter) ([]Post, int, error)
}

// KeywordRegistry exposes the active keyword set.
type KeywordRegistry interface {
	ActiveKeywords(ctx context.Context) (KeywordSet, error)
}

// BusinessStore manages businesses and their keywords.
type BusinessStore interface {
	KeywordRegistry
	CreateBusiness(ctx context.Context, business Business, keywords []Keyword) error
	GetBusinessBySlug(ctx context.Context, slug string) (Business, error)
	ListBusinesses(ctx context.Context) ([]Business, error)
	ActiveBusinesses(ctx context.Context) ([]Business, error)
	SetBusinessActive(ctx context.Context, id string, active bool) error
	DeleteBusiness(ctx context.Context, id string) error
	AddKeyword(ctx context.Context, keyword Keyword) error
	ListKeywords(ctx context.Context, businessID string) ([]Keyword, error)
	SetKeywordActive(ctx context.Context, id string, active bool) error
	DeleteKeyword(ctx context.Context, id string) error
}

// AnalysisStore persists classifier verdicts.
type AnalysisStore interface {
	// SaveAnalyses stores all verdicts for one post atomically.
	SaveAnalyses(ctx context.Context, analyses []Analysis) error
	UpdateAnalysisStatus(ctx context.Context, id string, status AnalysisStatus) error
	ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// HeartbeatStore upserts one row per adapter name.
type HeartbeatStore interface {
	RecordSuccess(ctx context.Context, name string, at time.Time, postCount int) error
	RecordFailure(ctx context.Context, name string, errText string) error
	GetHeartbeat(ctx context.Context, name string) (Heartbeat, error)
	ListHeartbeats(ctx context.Context) ([]Heartbeat, error)
}

// Store bundles every collection; implemented by the memory and postgres providers.
type Store interface {
	PostStore
	BusinessStore
	AnalysisStore
	HeartbeatStore
	Close()
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests used for synthesized source ids.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Publisher delivers a JSON payload to a named topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Archiver keeps raw upstream payloads and returns their location.
type Archiver interface {
	Archive(ctx context.Context, source Source, label string, contentType string, payload []byte) (string, error)
}
