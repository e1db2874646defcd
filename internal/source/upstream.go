package source

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/fetcher/headless"
	"github.com/JakeFAU/mention-radar/internal/metrics"
	"github.com/JakeFAU/mention-radar/internal/policy/ratelimit"
	"github.com/JakeFAU/mention-radar/internal/radar"
	"github.com/JakeFAU/mention-radar/internal/retry"
)

// Upstream bundles the fetch path every adapter shares: pacing, retry and optional raw archival.
type Upstream struct {
	Name    string
	Fetcher radar.Fetcher
	Limiter *ratelimit.Limiter
	Policy  retry.Policy
	// Archive keeps raw listing payloads when set.
	Archive radar.Archiver
	Headers http.Header
	Logger  *zap.Logger
}

// Get fetches url under pacing and retry. Client errors other than 429 are not retried.
func (u *Upstream) Get(ctx context.Context, url string) (radar.FetchResponse, error) {
	policy := u.Policy
	logger := u.logger()
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.ObserveRetry(u.Name)
		logger.Warn("upstream request failed; retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return retry.Value(ctx, policy, func(ctx context.Context) (radar.FetchResponse, error) {
		if u.Limiter != nil {
			if err := u.Limiter.Wait(ctx, u.Name); err != nil {
				return radar.FetchResponse{}, retry.Permanent(err)
			}
		}
		resp, err := u.Fetcher.Fetch(ctx, radar.FetchRequest{URL: url, Headers: u.Headers.Clone()})
		if err != nil {
			if isPermanentStatus(radar.StatusCodeOf(err)) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, headless.ErrDisabled) {
				return radar.FetchResponse{}, retry.Permanent(err)
			}
			return radar.FetchResponse{}, err
		}
		return resp, nil
	})
}

// Archived stores a raw payload when archival is configured. Failures are logged only.
func (u *Upstream) Archived(ctx context.Context, source radar.Source, label string, resp radar.FetchResponse) {
	if u.Archive == nil || len(resp.Body) == 0 {
		return
	}
	contentType := resp.Headers.Get("Content-Type")
	if resp.Rendered {
		contentType = "text/html"
	}
	location, err := u.Archive.Archive(ctx, source, label, contentType, resp.Body)
	if err != nil {
		u.logger().Warn("archive payload failed", zap.String("label", label), zap.Error(err))
		return
	}
	u.logger().Debug("archived payload", zap.String("location", location))
}

func (u *Upstream) logger() *zap.Logger {
	if u.Logger == nil {
		return zap.NewNop()
	}
	return u.Logger
}

func isPermanentStatus(code int) bool {
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError &&
		code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}
