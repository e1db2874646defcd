// Package storage holds helpers shared by the raw payload archives.
package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

var unsafeLabel = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectPath builds "<prefix>/<source>/YYYY/MM/DD/<unix-nanos>-<label><ext>".
func ObjectPath(prefix string, source radar.Source, label, contentType string, at time.Time) string {
	at = at.UTC()
	label = strings.Trim(unsafeLabel.ReplaceAllString(label, "-"), "-")
	if label == "" {
		label = "payload"
	}
	name := fmt.Sprintf("%d-%s%s", at.UnixNano(), label, extensionFor(contentType))
	return path.Join(prefix, string(source), at.Format("2006/01/02"), name)
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "json"):
		return ".json"
	case strings.Contains(contentType, "html"):
		return ".html"
	default:
		return ".bin"
	}
}
