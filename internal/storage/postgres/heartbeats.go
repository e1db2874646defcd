package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// RecordSuccess upserts a successful run, clearing the last error.
func (s *Store) RecordSuccess(ctx context.Context, name string, at time.Time, postCount int) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO heartbeats (scraper_name, last_success, last_error, posts_found)
VALUES ($1, $2, NULL, $3)
ON CONFLICT (scraper_name) DO UPDATE
SET last_success = EXCLUDED.last_success,
    last_error   = NULL,
    posts_found  = EXCLUDED.posts_found`, name, at, postCount)
	if err != nil {
		return fmt.Errorf("record heartbeat success %s: %w", name, err)
	}
	return nil
}

// RecordFailure upserts a failed run, leaving last success and count untouched.
func (s *Store) RecordFailure(ctx context.Context, name string, errText string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO heartbeats (scraper_name, last_error)
VALUES ($1, $2)
ON CONFLICT (scraper_name) DO UPDATE
SET last_error = EXCLUDED.last_error`, name, errText)
	if err != nil {
		return fmt.Errorf("record heartbeat failure %s: %w", name, err)
	}
	return nil
}

// GetHeartbeat returns the row for name or radar.ErrNotFound.
func (s *Store) GetHeartbeat(ctx context.Context, name string) (radar.Heartbeat, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT scraper_name, last_success, last_error, posts_found FROM heartbeats WHERE scraper_name = $1`, name)
	hb, err := scanHeartbeat(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return radar.Heartbeat{}, fmt.Errorf("heartbeat %s: %w", name, radar.ErrNotFound)
		}
		return radar.Heartbeat{}, fmt.Errorf("get heartbeat %s: %w", name, err)
	}
	return hb, nil
}

// ListHeartbeats returns every row ordered by name.
func (s *Store) ListHeartbeats(ctx context.Context) ([]radar.Heartbeat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT scraper_name, last_success, last_error, posts_found FROM heartbeats ORDER BY scraper_name`)
	if err != nil {
		return nil, fmt.Errorf("list heartbeats: %w", err)
	}
	defer rows.Close()
	var out []radar.Heartbeat
	for rows.Next() {
		hb, err := scanHeartbeat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		out = append(out, hb)
	}
	return out, rows.Err()
}

func scanHeartbeat(row pgx.Row) (radar.Heartbeat, error) {
	var (
		hb        radar.Heartbeat
		lastError *string
	)
	if err := row.Scan(&hb.Name, &hb.LastSuccess, &lastError, &hb.PostCount); err != nil {
		return radar.Heartbeat{}, err
	}
	hb.LastError = derefString(lastError)
	return hb, nil
}
