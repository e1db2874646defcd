package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/mention-radar/internal/radar"
	"github.com/JakeFAU/mention-radar/internal/storage"
)

// Archive keeps raw payloads in memory and returns memory:// URIs.
type Archive struct {
	mu     sync.RWMutex
	clock  radar.Clock
	prefix string
	data   map[string][]byte
}

// NewArchive creates an in-memory archive.
func NewArchive(prefix string, clock radar.Clock) *Archive {
	return &Archive{clock: clock, prefix: prefix, data: make(map[string][]byte)}
}

// Archive stores a copy of payload.
func (a *Archive) Archive(_ context.Context, source radar.Source, label, contentType string, payload []byte) (string, error) {
	object := storage.ObjectPath(a.prefix, source, label, contentType, a.clock.Now())
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[object] = append([]byte(nil), payload...)
	return fmt.Sprintf("memory://%s", object), nil
}

// Objects returns the archived object paths and contents.
func (a *Archive) Objects() map[string][]byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string][]byte, len(a.data))
	for k, v := range a.data {
		out[k] = append([]byte(nil), v...)
	}
	return out
}
