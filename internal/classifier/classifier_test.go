package classifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mention-radar/internal/clock/fake"
	"github.com/JakeFAU/mention-radar/internal/id/uuid"
	"github.com/JakeFAU/mention-radar/internal/llm"
	pubmemory "github.com/JakeFAU/mention-radar/internal/publisher/memory"
	"github.com/JakeFAU/mention-radar/internal/radar"
	"github.com/JakeFAU/mention-radar/internal/storage/memory"
)

// scriptedLLM returns replies keyed by a substring of the prompt, falling back to def.
type scriptedLLM struct {
	mu      sync.Mutex
	byTitle map[string]string
	errs    map[string]error
	def     string
	prompts []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, req)
	for key, err := range s.errs {
		if strings.Contains(req.Prompt, key) {
			return "", err
		}
	}
	for key, reply := range s.byTitle {
		if strings.Contains(req.Prompt, key) {
			return reply, nil
		}
	}
	return s.def, nil
}

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.Store, posts ...radar.Post) {
	t.Helper()
	ctx := context.Background()
	for _, b := range []radar.Business{
		{ID: "b-zeta", Name: "Zeta Backup", Slug: "zeta-backup", Active: true, CreatedAt: epoch},
		{ID: "b-acme", Name: "Acme Sync", Slug: "acme-sync", Active: true, CreatedAt: epoch.Add(time.Minute)},
		{ID: "b-off", Name: "Dormant", Slug: "dormant", Active: false, CreatedAt: epoch},
	} {
		require.NoError(t, store.CreateBusiness(ctx, b, nil))
	}
	for _, p := range posts {
		inserted, err := store.InsertPost(ctx, p)
		require.NoError(t, err)
		require.True(t, inserted)
	}
}

func post(id, title string, ingested time.Time) radar.Post {
	return radar.Post{
		ID: id, Source: radar.SourceReddit, SourceID: "t3_" + id, URL: "https://old.reddit.com/" + id,
		Title: title, CreatedAt: ingested, IngestedAt: ingested,
	}
}

func newClassifier(t *testing.T, cfg Config, completer llm.Completer, store *memory.Store, pub radar.Publisher) *Classifier {
	t.Helper()
	if cfg.Model == "" {
		cfg.Model = "google/gemini-flash-1.5"
	}
	c, err := New(cfg, Deps{
		LLM:       completer,
		Store:     store,
		IDs:       uuid.New(),
		Clock:     fake.New(epoch.Add(time.Hour)),
		Publisher: pub,
	})
	require.NoError(t, err)
	return c
}

func allOpportunities(t *testing.T, store *memory.Store) []radar.Opportunity {
	t.Helper()
	opps, err := store.ListOpportunities(context.Background(), radar.OpportunityFilter{MinRelevance: 1, Limit: 100})
	require.NoError(t, err)
	return opps
}

func TestClassifierFansOutToNamedBusinesses(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, post("p1", "Need sync and backup", epoch))
	reply := "```json\n" + `{"relevant_to":["acme-sync","zeta-backup","acme-sync","unknown"],"relevance_score":8,
"post_type":"question","pain_score":6,"urgency":"high","keywords_found":["sync"],
"competitor_mentioned":"Dropbox","suggested_response":"Try us","reasoning":"asks for tool"}` + "\n```"
	c := newClassifier(t, Config{}, &scriptedLLM{def: reply}, store, nil)

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	opps := allOpportunities(t, store)
	require.Len(t, opps, 2)
	businesses := map[string]bool{}
	for _, o := range opps {
		businesses[o.BusinessID] = true
		require.Equal(t, 8, o.RelevanceScore)
		require.Equal(t, 6, o.PainScore)
		require.Equal(t, "question", o.PostType)
		require.Equal(t, radar.UrgencyHigh, o.Urgency)
		require.Equal(t, []string{"sync"}, o.KeywordsMatched)
		require.Equal(t, "Dropbox", o.Competitor)
		require.Equal(t, "Try us", o.SuggestedResponse)
		require.Equal(t, radar.StatusNew, o.Status)
		require.Equal(t, epoch.Add(time.Hour), o.AnalyzedAt)
	}
	require.Equal(t, map[string]bool{"b-acme": true, "b-zeta": true}, businesses)

	left, err := store.ListUnclassified(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestClassifierFallbackPolicies(t *testing.T) {
	t.Parallel()

	reply := `{"relevant_to":[],"relevance_score":3,"post_type":"other","pain_score":2,"urgency":"whenever"}`

	t.Run("default business", func(t *testing.T) {
		t.Parallel()
		store := memory.NewStore()
		seed(t, store, post("p1", "hello", epoch))
		c := newClassifier(t, Config{Fallback: FallbackDefaultBusiness}, &scriptedLLM{def: reply}, store, nil)

		n, err := c.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, n)
		opps := allOpportunities(t, store)
		require.Len(t, opps, 1)
		// Active businesses are ordered by name, so "Acme Sync" is first.
		require.Equal(t, "b-acme", opps[0].BusinessID)
		require.Equal(t, radar.UrgencyLow, opps[0].Urgency)
	})

	t.Run("unattributed", func(t *testing.T) {
		t.Parallel()
		store := memory.NewStore()
		seed(t, store, post("p1", "hello", epoch))
		c := newClassifier(t, Config{Fallback: FallbackUnattributed}, &scriptedLLM{def: reply}, store, nil)

		n, err := c.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, n)
		opps := allOpportunities(t, store)
		require.Len(t, opps, 1)
		require.Empty(t, opps[0].BusinessID)
		require.Empty(t, opps[0].BusinessName)
	})
}

func TestClassifierSkipsFailures(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store,
		post("p1", "timeout post", epoch),
		post("p2", "garbage post", epoch.Add(time.Minute)),
		post("p3", "good post", epoch.Add(2*time.Minute)),
		post("p4", "partial post", epoch.Add(3*time.Minute)),
		post("p5", "null score post", epoch.Add(4*time.Minute)),
	)
	completer := &scriptedLLM{
		errs: map[string]error{"timeout post": context.DeadlineExceeded},
		byTitle: map[string]string{
			"garbage post":    "I cannot help with that.",
			"partial post":    `{"relevant_to":["acme-sync"]}`,
			"null score post": `{"relevant_to":["acme-sync"],"relevance_score":null,"post_type":"question","pain_score":4,"urgency":"low"}`,
		},
		def:     `{"relevant_to":["acme-sync"],"post_type":"question","relevance_score":9,"pain_score":9,"urgency":"medium"}`,
	}
	c := newClassifier(t, Config{}, completer, store, nil)

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	left, err := store.ListUnclassified(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, left, 4)
	opps := allOpportunities(t, store)
	require.Len(t, opps, 1)
	require.Equal(t, "p3", opps[0].Post.ID)
}

func TestClassifierBatchTakesNewestFirst(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store,
		post("old", "oldest", epoch),
		post("mid", "middle", epoch.Add(time.Minute)),
		post("new", "newest", epoch.Add(2*time.Minute)),
	)
	completer := &scriptedLLM{def: `{"relevant_to":["acme-sync"],"post_type":"question","relevance_score":5,"pain_score":5,"urgency":"low"}`}
	c := newClassifier(t, Config{BatchSize: 2}, completer, store, nil)

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	left, err := store.ListUnclassified(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, "old", left[0].ID)
}

func TestClassifierNoBusinessesOrPosts(t *testing.T) {
	t.Parallel()

	completer := &scriptedLLM{}
	empty := memory.NewStore()
	n, err := newClassifier(t, Config{}, completer, empty, nil).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	noPosts := memory.NewStore()
	seed(t, noPosts)
	n, err = newClassifier(t, Config{}, completer, noPosts, nil).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, completer.prompts)
}

func TestClassifierClampsScores(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, post("p1", "x", epoch))
	completer := &scriptedLLM{def: `{"relevant_to":["zeta-backup"],"post_type":"question","relevance_score":"12","pain_score":-4,"urgency":"HIGH"}`}

	n, err := newClassifier(t, Config{}, completer, store, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	opps := allOpportunities(t, store)
	require.Len(t, opps, 1)
	require.Equal(t, 10, opps[0].RelevanceScore)
	require.Equal(t, 1, opps[0].PainScore)
	require.Equal(t, radar.UrgencyLow, opps[0].Urgency)
}

func TestClassifierPublishesHighRelevanceAlerts(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seed(t, store, post("p1", "hot lead", epoch), post("p2", "meh", epoch.Add(time.Minute)))
	completer := &scriptedLLM{
		byTitle: map[string]string{"hot lead": `{"relevant_to":["acme-sync"],"post_type":"question","relevance_score":9,"pain_score":8,"urgency":"high"}`},
		def:     `{"relevant_to":["acme-sync"],"post_type":"question","relevance_score":4,"pain_score":2,"urgency":"low"}`,
	}
	pub := pubmemory.New()
	c := newClassifier(t, Config{NotifyTopic: "opportunities", NotifyMinRelevance: 8}, completer, store, pub)

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "opportunities", msgs[0].Topic)
	var alert Alert
	require.NoError(t, msgs[0].Decode(&alert))
	require.Equal(t, "p1", alert.PostID)
	require.Equal(t, "acme-sync", alert.BusinessSlug)
	require.Equal(t, 9, alert.RelevanceScore)
}

func TestNewRejectsUnknownFallback(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Fallback: "discard"}, Deps{
		LLM: &scriptedLLM{}, Store: memory.NewStore(), IDs: uuid.New(), Clock: fake.New(epoch),
	})
	require.Error(t, err)
	_, err = New(Config{}, Deps{})
	require.Error(t, err)
}

func TestBuildPromptListsBusinesses(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt(radar.Post{Source: radar.SourceHackerNews, Title: "Ask HN"}, []radar.Business{
		{Name: "Acme", Slug: "acme", Domain: "acme.io", Description: "sync"},
		{Name: "Zeta", Slug: "zeta"},
	})
	require.Contains(t, prompt, "Source: hackernews")
	require.Contains(t, prompt, "Subreddit/Community: N/A")
	require.Contains(t, prompt, "1. Acme [slug: acme] (acme.io) - sync")
	require.Contains(t, prompt, "2. Zeta [slug: zeta] (no domain) - No description")
}

func TestVerdictOptionalFields(t *testing.T) {
	t.Parallel()

	null := "null"
	name := " Dropbox "
	require.Empty(t, optional(nil))
	require.Empty(t, optional(&null))
	require.Equal(t, "Dropbox", optional(&name))
	require.True(t, errors.Is(llm.DecodeJSON(`{"relevance_score":"abc"}`, &Verdict{}), llm.ErrMalformedResponse))
}

func TestVerdictRequiresScoresTypeAndUrgency(t *testing.T) {
	t.Parallel()

	var v Verdict
	require.NoError(t, llm.DecodeJSON(`{"relevant_to":["acme-sync"],"relevance_score":null,"urgency":" "}`, &v))
	err := v.validate()
	require.ErrorIs(t, err, llm.ErrMalformedResponse)
	require.ErrorContains(t, err, "relevance_score, pain_score, post_type, urgency")

	v = Verdict{}
	require.NoError(t, llm.DecodeJSON(`{"relevance_score":7,"pain_score":"3","post_type":"question","urgency":"whenever"}`, &v))
	require.NoError(t, v.validate())
}
