package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

func page(body string) radar.FetchResponse {
	return radar.FetchResponse{StatusCode: http.StatusOK, Body: []byte(body)}
}

func TestShouldPromoteEmptyBody(t *testing.T) {
	t.Parallel()

	require.True(t, NewHeuristic(100).ShouldPromote(page("")))
}

func TestShouldPromoteSPAMarkers(t *testing.T) {
	t.Parallel()

	require.True(t, NewHeuristic(100).ShouldPromote(page(`<div id="__next"></div>`)))
	require.False(t, NewHeuristic(100).ShouldPromote(page(`<html><body><p>plain article text</p></body></html>`)))
}

func TestShouldPromoteScriptDensity(t *testing.T) {
	t.Parallel()

	require.True(t, NewHeuristic(1000).ShouldPromote(page(`<html><script>var a=1;</script><p>t</p></html>`)))
	require.True(t, NewHeuristic(1000).ShouldPromote(page(`<p>x</p><script src="a.js"`)))

	long := "<p>" + strings.Repeat("text ", 500) + "</p><script>var a=1;</script>"
	require.False(t, NewHeuristic(100).ShouldPromote(page(long)))
}

func TestShouldPromoteSkipsErrorsAndRenderedPages(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(radar.FetchResponse{StatusCode: http.StatusNotFound, Body: []byte("not found")}))
	require.False(t, h.ShouldPromote(radar.FetchResponse{StatusCode: http.StatusOK, Rendered: true}))
}

func TestShouldPromoteRequiredMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0, "SIGI_STATE", "__UNIVERSAL_DATA_FOR_REHYDRATION__")
	require.Equal(t, defaultBodyLengthThreshold, h.BodyLengthThreshold)

	hydrated := `<div id="app"></div><script id="SIGI_STATE">{"ItemModule":{}}</script>`
	require.False(t, h.ShouldPromote(page(hydrated)))
	require.True(t, h.ShouldPromote(page(`<html><body>`+strings.Repeat("shell ", 600)+`</body></html>`)))
}
