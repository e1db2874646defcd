// Package local archives raw upstream payloads on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/mention-radar/internal/radar"
	"github.com/JakeFAU/mention-radar/internal/storage"
)

// Config captures the parameters for the filesystem archive.
type Config struct {
	// BaseDir is the root directory payloads are written under.
	BaseDir string
	Prefix  string
}

// Archive writes payloads below BaseDir and returns file:// URIs.
type Archive struct {
	baseDir string
	prefix  string
	clock   radar.Clock
}

// New creates the base directory if needed and checks that it is writable.
func New(cfg Config, clock radar.Clock) (*Archive, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &Archive{baseDir: cfg.BaseDir, prefix: cfg.Prefix, clock: clock}, nil
}

// Archive writes payload to a dated path under the base directory.
func (a *Archive) Archive(_ context.Context, source radar.Source, label, contentType string, payload []byte) (string, error) {
	object := storage.ObjectPath(a.prefix, source, label, contentType, a.clock.Now())
	fullPath := filepath.Join(a.baseDir, filepath.FromSlash(object))

	cleanBase := filepath.Clean(a.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, payload, 0o600); err != nil {
		return "", fmt.Errorf("write payload: %w", err)
	}
	return "file://" + fullPath, nil
}
