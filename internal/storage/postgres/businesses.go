package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

const businessColumns = `id, name, slug, domain, description, context, active, created_at`

// CreateBusiness inserts a business and its initial keywords in one transaction.
func (s *Store) CreateBusiness(ctx context.Context, business radar.Business, keywords []radar.Keyword) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO businesses (`+businessColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			business.ID,
			business.Name,
			business.Slug,
			business.Domain,
			business.Description,
			business.Context,
			business.Active,
			business.CreatedAt,
		)
		if err != nil {
			if pgErrorCode(err) == pgUniqueViolation {
				return fmt.Errorf("create business %q: %w", business.Slug, radar.ErrDuplicateSlug)
			}
			return fmt.Errorf("create business %q: %w", business.Slug, err)
		}
		for _, kw := range keywords {
			kw.BusinessID = business.ID
			if err := insertKeyword(ctx, tx, kw); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertKeyword(ctx context.Context, db execer, kw radar.Keyword) error {
	_, err := db.Exec(ctx, `
INSERT INTO keywords (id, business_id, keyword, category, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		kw.ID, kw.BusinessID, kw.Text, string(kw.Category), kw.Active, kw.CreatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("business %s: %w", kw.BusinessID, radar.ErrNotFound)
		}
		return fmt.Errorf("insert keyword %q: %w", kw.Text, err)
	}
	return nil
}

// GetBusinessBySlug looks up one business.
func (s *Store) GetBusinessBySlug(ctx context.Context, slug string) (radar.Business, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug)
	var b radar.Business
	err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.Domain, &b.Description, &b.Context, &b.Active, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return radar.Business{}, fmt.Errorf("business %q: %w", slug, radar.ErrNotFound)
		}
		return radar.Business{}, fmt.Errorf("get business %q: %w", slug, err)
	}
	return b, nil
}

// ListBusinesses returns every business, newest first, with keyword counts.
func (s *Store) ListBusinesses(ctx context.Context) ([]radar.Business, error) {
	rows, err := s.pool.Query(ctx, `
SELECT b.id, b.name, b.slug, b.domain, b.description, b.context, b.active, b.created_at,
       COUNT(k.id) AS keyword_count
FROM businesses b
LEFT JOIN keywords k ON k.business_id = b.id
GROUP BY b.id
ORDER BY b.created_at DESC, b.slug`)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()
	var out []radar.Business
	for rows.Next() {
		var b radar.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug, &b.Domain, &b.Description, &b.Context,
			&b.Active, &b.CreatedAt, &b.KeywordCount); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ActiveBusinesses returns active businesses ordered by name.
func (s *Store) ActiveBusinesses(ctx context.Context) ([]radar.Business, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+businessColumns+` FROM businesses WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list active businesses: %w", err)
	}
	defer rows.Close()
	var out []radar.Business
	for rows.Next() {
		var b radar.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug, &b.Domain, &b.Description, &b.Context,
			&b.Active, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetBusinessActive toggles a business.
func (s *Store) SetBusinessActive(ctx context.Context, id string, active bool) error {
	return s.execOne(ctx, "business", id, `UPDATE businesses SET active = $2 WHERE id = $1`, id, active)
}

// DeleteBusiness removes a business; keywords cascade and verdicts keep a NULL business id.
func (s *Store) DeleteBusiness(ctx context.Context, id string) error {
	return s.execOne(ctx, "business", id, `DELETE FROM businesses WHERE id = $1`, id)
}

// AddKeyword attaches a keyword to an existing business.
func (s *Store) AddKeyword(ctx context.Context, keyword radar.Keyword) error {
	return insertKeyword(ctx, s.pool, keyword)
}

// ListKeywords returns a business's keywords ordered by category then text.
func (s *Store) ListKeywords(ctx context.Context, businessID string) ([]radar.Keyword, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, business_id, keyword, category, active, created_at
FROM keywords
WHERE business_id = $1
ORDER BY category, keyword`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()
	var out []radar.Keyword
	for rows.Next() {
		var (
			kw       radar.Keyword
			category string
		)
		if err := rows.Scan(&kw.ID, &kw.BusinessID, &kw.Text, &category, &kw.Active, &kw.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		kw.Category = radar.NormalizeCategory(category)
		out = append(out, kw)
	}
	return out, rows.Err()
}

// SetKeywordActive toggles a keyword.
func (s *Store) SetKeywordActive(ctx context.Context, id string, active bool) error {
	return s.execOne(ctx, "keyword", id, `UPDATE keywords SET active = $2 WHERE id = $1`, id, active)
}

// DeleteKeyword removes a keyword.
func (s *Store) DeleteKeyword(ctx context.Context, id string) error {
	return s.execOne(ctx, "keyword", id, `DELETE FROM keywords WHERE id = $1`, id)
}

// ActiveKeywords maps each active keyword of an active business to the owning slugs.
func (s *Store) ActiveKeywords(ctx context.Context) (radar.KeywordSet, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT btrim(k.keyword), b.slug
FROM keywords k
JOIN businesses b ON b.id = k.business_id
WHERE k.active AND b.active AND btrim(k.keyword) <> ''
ORDER BY 1, 2`)
	if err != nil {
		return nil, fmt.Errorf("list active keywords: %w", err)
	}
	defer rows.Close()
	set := radar.KeywordSet{}
	for rows.Next() {
		var text, slug string
		if err := rows.Scan(&text, &slug); err != nil {
			return nil, fmt.Errorf("scan active keyword: %w", err)
		}
		set[text] = append(set[text], slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active keywords: %w", err)
	}
	return set, nil
}

func (s *Store) execOne(ctx context.Context, kind, id, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, radar.ErrNotFound)
	}
	return nil
}
