// Package radar defines core types shared across the ingestion, classification,
// and keyword consensus subsystems.
package radar

import (
	"net/http"
	"sort"
	"time"
)

// Source identifies one upstream platform.
type Source string

// Supported upstream sources.
const (
	SourceReddit     Source = "reddit"
	SourceHackerNews Source = "hackernews"
	SourceTikTok     Source = "tiktok"
	SourceInstagram  Source = "instagram"
	SourceTwitter    Source = "twitter"
)

// AllSources lists every adapter in the order the health check reports them.
var AllSources = []Source{SourceReddit, SourceTwitter, SourceHackerNews, SourceTikTok, SourceInstagram}

// ClassifierName is the heartbeat key used by the classification job.
const ClassifierName = "classifier"

// ParseSource validates a raw source name.
func ParseSource(raw string) (Source, bool) {
	for _, s := range AllSources {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

// KeywordCategory is the fixed enumeration of keyword kinds.
type KeywordCategory string

// Keyword categories proposed by the consensus prompt.
const (
	CategoryDirect     KeywordCategory = "direct"
	CategoryPainPoint  KeywordCategory = "pain_point"
	CategoryQuestion   KeywordCategory = "question"
	CategoryCompetitor KeywordCategory = "competitor"
	CategoryIndustry   KeywordCategory = "industry"
)

// Categories lists the keyword categories in display order.
var Categories = []KeywordCategory{
	CategoryDirect,
	CategoryPainPoint,
	CategoryQuestion,
	CategoryCompetitor,
	CategoryIndustry,
}

// NormalizeCategory maps unknown values onto CategoryDirect.
func NormalizeCategory(raw string) KeywordCategory {
	for _, c := range Categories {
		if string(c) == raw {
			return c
		}
	}
	return CategoryDirect
}

// Business is a monitored company.
type Business struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Domain      string    `json:"domain,omitempty"`
	Description string    `json:"description,omitempty"`
	Context     string    `json:"context,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	// KeywordCount is populated by listings only.
	KeywordCount int `json:"keyword_count"`
}

// Keyword belongs to exactly one Business.
type Keyword struct {
	ID         string          `json:"id"`
	BusinessID string          `json:"business_id"`
	Text       string          `json:"keyword"`
	Category   KeywordCategory `json:"category"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// KeywordSet maps active keyword text to the slugs of the businesses that own it.
type KeywordSet map[string][]string

// Terms returns the keyword texts in a stable order.
func (k KeywordSet) Terms() []string {
	out := make([]string, 0, len(k))
	for term := range k {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// Post is a normalized upstream item. Posts are immutable once stored.
type Post struct {
	ID         string    `json:"id"`
	Source     Source    `json:"source"`
	SourceID   string    `json:"source_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body,omitempty"`
	Author     string    `json:"author,omitempty"`
	Community  string    `json:"community,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	IngestedAt time.Time `json:"ingested_at"`
}

// SearchText is the haystack used for local keyword matching.
func (p Post) SearchText() string {
	return p.Title + " " + p.Body
}

// PostFilter narrows ListPosts. Query matches title or body case-insensitively.
type PostFilter struct {
	Query  string
	Source Source
	Limit  int
	Offset int
}

// Urgency grades how soon an opportunity needs a response.
type Urgency string

// Urgency levels.
const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// NormalizeUrgency maps unknown values onto UrgencyLow.
func NormalizeUrgency(raw string) Urgency {
	switch Urgency(raw) {
	case UrgencyHigh, UrgencyMedium, UrgencyLow:
		return Urgency(raw)
	default:
		return UrgencyLow
	}
}

// AnalysisStatus is the workflow state of a verdict.
type AnalysisStatus string

// Workflow states.
const (
	StatusNew      AnalysisStatus = "new"
	StatusReviewed AnalysisStatus = "reviewed"
	StatusActioned AnalysisStatus = "actioned"
	StatusIgnored  AnalysisStatus = "ignored"
)

var allowedTransitions = map[AnalysisStatus][]AnalysisStatus{
	StatusNew:      {StatusReviewed, StatusIgnored},
	StatusReviewed: {StatusActioned},
}

// CanTransition reports whether a verdict may move from one status to another.
func CanTransition(from, to AnalysisStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Analysis is the classifier's verdict for one post and one business.
// BusinessID is empty for unattributed verdicts.
type Analysis struct {
	ID                string         `json:"id"`
	PostID            string         `json:"post_id"`
	BusinessID        string         `json:"business_id,omitempty"`
	RelevanceScore    int            `json:"relevance_score"`
	PostType          string         `json:"post_type"`
	PainScore         int            `json:"pain_score"`
	Urgency           Urgency        `json:"urgency"`
	KeywordsMatched   []string       `json:"keywords_matched"`
	Competitor        string         `json:"competitor_mentioned,omitempty"`
	SuggestedResponse string         `json:"suggested_response,omitempty"`
	Status            AnalysisStatus `json:"status"`
	AnalyzedAt        time.Time      `json:"analyzed_at"`
}

// Opportunity joins a verdict with its post and business for review.
type Opportunity struct {
	Analysis
	Post         Post   `json:"post"`
	BusinessName string `json:"business_name,omitempty"`
}

// OpportunityFilter narrows ListOpportunities.
type OpportunityFilter struct {
	BusinessSlug string
	Status       AnalysisStatus
	MinRelevance int
	Limit        int
}

// Stats summarizes the dataset for dashboards.
type Stats struct {
	TotalPosts   int            `json:"total_posts"`
	PostsToday   int            `json:"posts_today"`
	HighPriority int            `json:"high_priority"`
	BySource     map[string]int `json:"by_source"`
	ByBusiness   map[string]int `json:"by_business"`
}

// HighPriorityRelevance is the relevance score at which a verdict counts as an opportunity.
const HighPriorityRelevance = 7

// Heartbeat is the last known outcome for one adapter or the classifier.
type Heartbeat struct {
	Name        string     `json:"name"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	PostCount   int        `json:"post_count"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}
