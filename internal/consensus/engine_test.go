package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mention-radar/internal/llm"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

// modelStub answers per model. A model mapped to hang waits for its own timeout.
type modelStub struct {
	replies map[string]string
	hang    map[string]bool
	fail    map[string]error

	mu       sync.Mutex
	requests []llm.Request
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (m *modelStub) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.peak.Load()
		if n <= peak || m.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	if m.hang[req.Model] {
		ctx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := m.fail[req.Model]; err != nil {
		return "", err
	}
	return m.replies[req.Model], nil
}

func keywordsJSON(t *testing.T, fenced bool, pairs ...string) string {
	t.Helper()
	var payload struct {
		Keywords []Proposal `json:"keywords"`
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		payload.Keywords = append(payload.Keywords, Proposal{Keyword: pairs[i], Category: pairs[i+1]})
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	if fenced {
		return "Here you go:\n```json\n" + string(raw) + "\n```"
	}
	return string(raw)
}

var input = Input{Name: "Acme Sync", Description: "File sync for small teams"}

func TestSuggestRanksByAgreementThenAlphabetically(t *testing.T) {
	t.Parallel()

	stub := &modelStub{replies: map[string]string{
		"a": keywordsJSON(t, true, "File Sync", "direct", "backup", "industry", "apple", "competitor"),
		"b": keywordsJSON(t, false, "  backup ", "pain_point", "File Sync", "direct"),
		"c": keywordsJSON(t, false, "backup", "direct", "zebra", "mystery", "Apple", "competitor"),
	}}
	engine, err := New(Config{Models: []string{"a", "b", "c"}}, stub, nil)
	require.NoError(t, err)

	result, err := engine.Suggest(context.Background(), input)
	require.NoError(t, err)
	require.Empty(t, result.Failed())

	var keywords []string
	for _, s := range result.Suggestions {
		keywords = append(keywords, s.Keyword)
	}
	require.Equal(t, []string{"backup", "File Sync", "Apple", "apple", "zebra"}, keywords)

	require.Equal(t, Suggestion{
		Keyword: "backup", Category: radar.CategoryIndustry, Models: []string{"a", "b", "c"}, Count: 3,
	}, result.Suggestions[0])
	require.Equal(t, []string{"a", "b"}, result.Suggestions[1].Models)
	require.Equal(t, radar.CategoryDirect, result.Suggestions[4].Category)
}

func TestSuggestDegradesWhenOneModelTimesOut(t *testing.T) {
	t.Parallel()

	reply := keywordsJSON(t, false, "sync", "direct", "backup", "direct")
	stub := &modelStub{
		replies: map[string]string{"a": reply, "b": reply},
		hang:    map[string]bool{"c": true},
	}
	engine, err := New(Config{Models: []string{"a", "b", "c"}, Timeout: 50 * time.Millisecond}, stub, nil)
	require.NoError(t, err)

	result, err := engine.Suggest(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 2)
	for _, s := range result.Suggestions {
		require.Equal(t, 2, s.Count)
		require.NotContains(t, s.Models, "c")
	}
	failed := result.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, "c", failed[0].Model)
	require.ErrorIs(t, failed[0].Err, context.DeadlineExceeded)
}

func TestSuggestAllModelsFail(t *testing.T) {
	t.Parallel()

	stub := &modelStub{
		replies: map[string]string{"b": "no json here"},
		fail:    map[string]error{"a": errors.New("api error 500")},
	}
	engine, err := New(Config{Models: []string{"a", "b"}}, stub, nil)
	require.NoError(t, err)

	result, err := engine.Suggest(context.Background(), input)
	require.NoError(t, err)
	require.Empty(t, result.Suggestions)
	require.Len(t, result.Failed(), 2)
	require.ErrorIs(t, result.Models[1].Err, llm.ErrMalformedResponse)
}

func TestSuggestCountsMissingKeywordsAsFailure(t *testing.T) {
	t.Parallel()

	stub := &modelStub{replies: map[string]string{
		"a": keywordsJSON(t, false, "sync", "direct"),
		"b": `{"suggestions":[{"keyword":"sync","category":"direct"}]}`,
		"c": `{"keywords":null}`,
	}}
	engine, err := New(Config{Models: []string{"a", "b", "c"}}, stub, nil)
	require.NoError(t, err)

	result, err := engine.Suggest(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)
	require.Equal(t, 1, result.Suggestions[0].Count)

	failed := result.Failed()
	require.Len(t, failed, 2)
	for _, f := range failed {
		require.ErrorIs(t, f.Err, llm.ErrMalformedResponse)
	}
}

func TestSuggestValidatesInput(t *testing.T) {
	t.Parallel()

	engine, err := New(Config{}, &modelStub{}, nil)
	require.NoError(t, err)

	_, err = engine.Suggest(context.Background(), Input{Description: "x"})
	require.ErrorIs(t, err, ErrMissingName)
	_, err = engine.Suggest(context.Background(), Input{Name: "Acme", Domain: "acme.io"})
	require.ErrorIs(t, err, ErrMissingContext)
	require.NoError(t, Input{Name: "Acme", Context: "free-form notes"}.Validate())
}

func TestSuggestBoundsParallelism(t *testing.T) {
	t.Parallel()

	reply := keywordsJSON(t, false, "sync", "direct")
	stub := &modelStub{
		replies: map[string]string{"a": reply, "b": reply, "c": reply, "d": reply},
		delay:   10 * time.Millisecond,
	}
	engine, err := New(Config{Models: []string{"a", "b", "c", "d"}, MaxParallel: 1}, stub, nil)
	require.NoError(t, err)

	result, err := engine.Suggest(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, 4, result.Suggestions[0].Count)
	require.Equal(t, int32(1), stub.peak.Load())
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	stub := &modelStub{}
	engine, err := New(Config{}, stub, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultModels, engine.cfg.Models)
	require.Equal(t, DefaultPreselectThreshold, engine.PreselectThreshold())

	_, err = engine.Suggest(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, stub.requests, 3)
	for _, req := range stub.requests {
		require.Equal(t, DefaultTimeout, req.Timeout)
		require.InDelta(t, DefaultTemperature, req.Temperature, 1e-9)
		require.Equal(t, DefaultMaxTokens, req.MaxTokens)
		require.Contains(t, req.Prompt, "BUSINESS NAME: Acme Sync")
		require.Contains(t, req.Prompt, "DOMAIN: Not provided")
	}

	_, err = New(Config{}, nil, nil)
	require.Error(t, err)
}
