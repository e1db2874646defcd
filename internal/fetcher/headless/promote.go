package headless

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// Detector decides whether a plain response needs rendering.
type Detector interface {
	ShouldPromote(resp radar.FetchResponse) bool
}

// Promoting tries a plain fetch first and re-fetches through the renderer only when the
// detector asks for it.
type Promoting struct {
	plain    radar.Fetcher
	rendered radar.Fetcher
	detector Detector
	logger   *zap.Logger
}

// NewPromoting builds a Promoting fetcher.
func NewPromoting(plain, rendered radar.Fetcher, detector Detector, logger *zap.Logger) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{plain: plain, rendered: rendered, detector: detector, logger: logger}
}

// Fetch implements radar.Fetcher.
func (p *Promoting) Fetch(ctx context.Context, request radar.FetchRequest) (radar.FetchResponse, error) {
	resp, err := p.plain.Fetch(ctx, request)
	if err != nil {
		return radar.FetchResponse{}, fmt.Errorf("plain fetch: %w", err)
	}
	if !p.detector.ShouldPromote(resp) {
		return resp, nil
	}
	p.logger.Debug("promoting to headless render", zap.String("url", request.URL), zap.Int("body_bytes", len(resp.Body)))
	rendered, err := p.rendered.Fetch(ctx, request)
	if err != nil {
		return radar.FetchResponse{}, err
	}
	return rendered, nil
}
