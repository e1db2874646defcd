package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

const defaultOpportunityLimit = 50

// SaveAnalyses stores every verdict for one post in one transaction.
func (s *Store) SaveAnalyses(ctx context.Context, analyses []radar.Analysis) error {
	if len(analyses) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, a := range analyses {
			matched := a.KeywordsMatched
			if matched == nil {
				matched = []string{}
			}
			_, err := tx.Exec(ctx, `
INSERT INTO analysis (id, post_id, business_id, relevance_score, post_type, pain_score, urgency,
                      keywords_matched, competitor_mentioned, suggested_response, status, analyzed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
				a.ID,
				a.PostID,
				nullIfEmpty(a.BusinessID),
				a.RelevanceScore,
				a.PostType,
				a.PainScore,
				string(a.Urgency),
				matched,
				a.Competitor,
				a.SuggestedResponse,
				string(a.Status),
				a.AnalyzedAt,
			)
			if err != nil {
				if pgErrorCode(err) == pgForeignKeyViolation {
					return fmt.Errorf("analysis %s for post %s: %w", a.ID, a.PostID, radar.ErrNotFound)
				}
				return fmt.Errorf("insert analysis %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// UpdateAnalysisStatus applies a workflow transition under a row lock.
func (s *Store) UpdateAnalysisStatus(ctx context.Context, id string, status radar.AnalysisStatus) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM analysis WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("analysis %s: %w", id, radar.ErrNotFound)
			}
			return fmt.Errorf("lock analysis %s: %w", id, err)
		}
		from := radar.AnalysisStatus(current)
		if !radar.CanTransition(from, status) {
			return fmt.Errorf("analysis %s %s -> %s: %w", id, from, status, radar.ErrInvalidTransition)
		}
		if _, err := tx.Exec(ctx, `UPDATE analysis SET status = $2 WHERE id = $1`, id, string(status)); err != nil {
			return fmt.Errorf("update analysis %s: %w", id, err)
		}
		return nil
	})
}

// ListOpportunities returns matching verdicts joined with their posts, newest first.
func (s *Store) ListOpportunities(ctx context.Context, filter radar.OpportunityFilter) ([]radar.Opportunity, error) {
	minRelevance := filter.MinRelevance
	if minRelevance == 0 {
		minRelevance = radar.HighPriorityRelevance
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOpportunityLimit
	}

	args := []any{minRelevance}
	conds := []string{"a.relevance_score >= $1"}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if filter.BusinessSlug != "" {
		args = append(args, filter.BusinessSlug)
		conds = append(conds, fmt.Sprintf("b.slug = $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
SELECT a.id, a.post_id, a.business_id, a.relevance_score, a.post_type, a.pain_score, a.urgency,
       a.keywords_matched, a.competitor_mentioned, a.suggested_response, a.status, a.analyzed_at,
       p.id, p.source, p.source_id, p.url, p.title, p.body, p.author, p.community, p.created_at, p.ingested_at,
       COALESCE(b.name, '')
FROM analysis a
JOIN posts p ON p.id = a.post_id
LEFT JOIN businesses b ON b.id = a.business_id
WHERE %s
ORDER BY a.analyzed_at DESC
LIMIT $%d`, strings.Join(conds, " AND "), len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var out []radar.Opportunity
	for rows.Next() {
		var (
			o          radar.Opportunity
			businessID *string
			urgency    string
			status     string
			source     string
		)
		if err := rows.Scan(
			&o.ID, &o.PostID, &businessID, &o.RelevanceScore, &o.PostType, &o.PainScore, &urgency,
			&o.KeywordsMatched, &o.Competitor, &o.SuggestedResponse, &status, &o.AnalyzedAt,
			&o.Post.ID, &source, &o.Post.SourceID, &o.Post.URL, &o.Post.Title, &o.Post.Body,
			&o.Post.Author, &o.Post.Community, &o.Post.CreatedAt, &o.Post.IngestedAt,
			&o.BusinessName,
		); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		o.BusinessID = derefString(businessID)
		o.Urgency = radar.NormalizeUrgency(urgency)
		o.Status = radar.AnalysisStatus(status)
		o.Post.Source = radar.Source(source)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opportunities: %w", err)
	}
	return out, nil
}

// Stats summarizes posts and high-relevance verdicts. "Today" is the UTC calendar day of now.
func (s *Store) Stats(ctx context.Context, now time.Time) (radar.Stats, error) {
	stats := radar.Stats{
		BySource:   map[string]int{},
		ByBusiness: map[string]int{},
	}
	dayStart := now.UTC().Truncate(24 * time.Hour)

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE ingested_at >= $1) FROM posts`, dayStart,
	).Scan(&stats.TotalPosts, &stats.PostsToday)
	if err != nil {
		return radar.Stats{}, fmt.Errorf("count posts: %w", err)
	}

	if err := s.collectCounts(ctx, stats.BySource,
		`SELECT source, COUNT(*) FROM posts GROUP BY source`); err != nil {
		return radar.Stats{}, err
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM analysis WHERE relevance_score >= $1 AND status = $2`,
		radar.HighPriorityRelevance, string(radar.StatusNew),
	).Scan(&stats.HighPriority)
	if err != nil {
		return radar.Stats{}, fmt.Errorf("count high priority: %w", err)
	}

	if err := s.collectCounts(ctx, stats.ByBusiness, `
SELECT b.name, COUNT(*)
FROM analysis a
JOIN businesses b ON b.id = a.business_id
WHERE a.relevance_score >= $1
GROUP BY b.name`, radar.HighPriorityRelevance); err != nil {
		return radar.Stats{}, err
	}
	return stats, nil
}

func (s *Store) collectCounts(ctx context.Context, dst map[string]int, sql string, args ...any) error {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("stats query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan stats row: %w", err)
		}
		dst[key] = count
	}
	return rows.Err()
}
