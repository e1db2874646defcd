package source

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/JakeFAU/mention-radar/internal/radar"
	"github.com/JakeFAU/mention-radar/internal/retry"
)

type reply struct {
	body   string
	status int
	err    error
}

// fakeFetcher serves canned replies per URL. Multiple replies for one URL are consumed in order,
// with the last one repeating.
type fakeFetcher struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   []radar.FetchRequest
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{replies: map[string][]reply{}}
}

func (f *fakeFetcher) on(url string, replies ...reply) *fakeFetcher {
	f.replies[url] = append(f.replies[url], replies...)
	return f
}

func (f *fakeFetcher) Fetch(_ context.Context, req radar.FetchRequest) (radar.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	queue := f.replies[req.URL]
	if len(queue) == 0 {
		return radar.FetchResponse{}, &radar.StatusError{URL: req.URL, StatusCode: http.StatusNotFound}
	}
	r := queue[0]
	if len(queue) > 1 {
		f.replies[req.URL] = queue[1:]
	}
	if r.err != nil {
		return radar.FetchResponse{}, r.err
	}
	if r.status >= http.StatusBadRequest {
		return radar.FetchResponse{}, &radar.StatusError{URL: req.URL, StatusCode: r.status}
	}
	return radar.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(r.body),
	}, nil
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.URL)
	}
	return out
}

func ok(body string) reply { return reply{body: body, status: http.StatusOK} }

func status(code int) reply { return reply{status: code} }

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func testUpstream(name string, f radar.Fetcher, attempts int) *Upstream {
	policy := retry.New(attempts, time.Second)
	policy.Sleep = noSleep
	return &Upstream{Name: name, Fetcher: f, Policy: policy}
}

// collect runs an adapter directly and gathers what it emits.
func collect(adapter Adapter, terms ...string) ([]radar.Post, error) {
	var out []radar.Post
	err := adapter.Collect(context.Background(), terms, func(_ context.Context, p radar.Post) {
		out = append(out, p)
	})
	return out, err
}
