package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

const postColumns = `id, source, source_id, url, title, body, author, community, created_at, ingested_at`

// InsertPost stores post; the unique (source, source_id) constraint makes concurrent inserts safe.
func (s *Store) InsertPost(ctx context.Context, post radar.Post) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO posts (`+postColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (source, source_id) DO NOTHING`,
		post.ID,
		string(post.Source),
		post.SourceID,
		post.URL,
		post.Title,
		post.Body,
		post.Author,
		post.Community,
		post.CreatedAt,
		post.IngestedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert post %s/%s: %w", post.Source, post.SourceID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// PostExists probes the dedup key.
func (s *Store) PostExists(ctx context.Context, source radar.Source, sourceID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE source = $1 AND source_id = $2)`,
		string(source), sourceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe post %s/%s: %w", source, sourceID, err)
	}
	return exists, nil
}

// ListUnclassified returns posts that have no verdict yet, newest ingestion first.
func (s *Store) ListUnclassified(ctx context.Context, limit int) ([]radar.Post, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+postColumns+`
FROM posts p
WHERE NOT EXISTS (SELECT 1 FROM analysis a WHERE a.post_id = p.id)
ORDER BY p.ingested_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unclassified posts: %w", err)
	}
	return collectPosts(rows)
}

// ListPosts pages through posts matching filter.
func (s *Store) ListPosts(ctx context.Context, filter radar.PostFilter) ([]radar.Post, int, error) {
	where, args := postFilterClause(filter)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM posts%s ORDER BY ingested_at DESC LIMIT $%d OFFSET $%d`,
		postColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func postFilterClause(filter radar.PostFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR body ILIKE $%d)", len(args), len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collectPosts(rows pgx.Rows) ([]radar.Post, error) {
	defer rows.Close()
	var out []radar.Post
	for rows.Next() {
		var (
			p      radar.Post
			source string
		)
		if err := rows.Scan(&p.ID, &source, &p.SourceID, &p.URL, &p.Title, &p.Body,
			&p.Author, &p.Community, &p.CreatedAt, &p.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Source = radar.Source(source)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}
