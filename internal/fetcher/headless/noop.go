package headless

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// ErrDisabled is returned when headless rendering is switched off in configuration.
var ErrDisabled = errors.New("headless fetcher disabled")

// Noop stands in for Fetcher when headless rendering is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled.
func (Noop) Fetch(_ context.Context, request radar.FetchRequest) (radar.FetchResponse, error) {
	return radar.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, ErrDisabled)
}
