// Package detector decides when a plain HTTP response must be re-fetched through a headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

const defaultBodyLengthThreshold = 2048

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
	// RequiredMarkers, when set, name payload fragments a usable page carries. A page with any of
	// them is never promoted; a page with none always is.
	RequiredMarkers [][]byte
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int, required ...string) *Heuristic {
	if threshold <= 0 {
		threshold = defaultBodyLengthThreshold
	}
	h := &Heuristic{BodyLengthThreshold: threshold}
	for _, m := range required {
		h.RequiredMarkers = append(h.RequiredMarkers, []byte(m))
	}
	return h
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether resp needs rendering before it can be parsed.
func (h *Heuristic) ShouldPromote(resp radar.FetchResponse) bool {
	if resp.Rendered || resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	if len(h.RequiredMarkers) > 0 {
		return !containsAny(body, h.RequiredMarkers)
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	return containsAny(body, spaMarkers)
}

func containsAny(body []byte, markers [][]byte) bool {
	for _, marker := range markers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover at least a quarter of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered, pos := 0, 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		gt := strings.IndexByte(lower[start:], '>')
		if gt == -1 {
			covered += total - start
			break
		}
		content := start + gt + 1
		next := total
		if end := strings.Index(lower[content:], closeTag); end != -1 {
			next = content + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return total > 0 && covered*100/total >= 25
}
