package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func post(id string, source radar.Source, sourceID string, ingested time.Time) radar.Post {
	return radar.Post{
		ID:         id,
		Source:     source,
		SourceID:   sourceID,
		URL:        "https://example.com/" + sourceID,
		Title:      "title " + sourceID,
		IngestedAt: ingested,
	}
}

func TestInsertPostDeduplicates(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	inserted, err := s.InsertPost(ctx, post("p1", radar.SourceHackerNews, "hn_1", base))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.InsertPost(ctx, post("p2", radar.SourceHackerNews, "hn_1", base))
	require.NoError(t, err)
	require.False(t, inserted)

	inserted, err = s.InsertPost(ctx, post("p3", radar.SourceReddit, "hn_1", base))
	require.NoError(t, err)
	require.True(t, inserted, "dedup key includes the source")

	exists, err := s.PostExists(ctx, radar.SourceHackerNews, "hn_1")
	require.NoError(t, err)
	require.True(t, exists)

	_, total, err := s.ListPosts(ctx, radar.PostFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestInsertPostConcurrentSameKey(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.InsertPost(context.Background(), post(fmt.Sprintf("p%d", i), radar.SourceReddit, "t3_abc", base))
			if err == nil && ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestInsertPostRequiresIDs(t *testing.T) {
	t.Parallel()

	_, err := NewStore().InsertPost(context.Background(), radar.Post{Source: radar.SourceReddit})
	require.Error(t, err)
}

func TestListUnclassifiedNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := s.InsertPost(ctx, post(fmt.Sprintf("p%d", i), radar.SourceReddit, fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	require.NoError(t, s.SaveAnalyses(ctx, []radar.Analysis{{ID: "a1", PostID: "p3", Status: radar.StatusNew}}))

	got, err := s.ListUnclassified(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "p2", got[0].ID)
	require.Equal(t, "p1", got[1].ID)
}

func TestListPostsSearchAndPaging(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	p1 := post("p1", radar.SourceReddit, "r1", base)
	p1.Body = "Need FILE SYNC now"
	p2 := post("p2", radar.SourceHackerNews, "h1", base.Add(time.Minute))
	p2.Title = "file sync tool launch"
	p3 := post("p3", radar.SourceHackerNews, "h2", base.Add(2*time.Minute))
	for _, p := range []radar.Post{p1, p2, p3} {
		_, err := s.InsertPost(ctx, p)
		require.NoError(t, err)
	}

	got, total, err := s.ListPosts(ctx, radar.PostFilter{Query: "file sync"})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "p2", got[0].ID)

	got, total, err = s.ListPosts(ctx, radar.PostFilter{Source: radar.SourceHackerNews, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, got, 1)
	require.Equal(t, "p2", got[0].ID)

	got, _, err = s.ListPosts(ctx, radar.PostFilter{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, got)
}

func seedBusinesses(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateBusiness(ctx,
		radar.Business{ID: "b1", Name: "Zeta Sync", Slug: "zeta-sync", Active: true, CreatedAt: base},
		[]radar.Keyword{
			{ID: "k1", Text: "file sync", Category: radar.CategoryDirect, Active: true},
			{ID: "k2", Text: "dropbox", Category: radar.CategoryCompetitor, Active: true},
			{ID: "k3", Text: "retired", Category: radar.CategoryDirect, Active: false},
		}))
	require.NoError(t, s.CreateBusiness(ctx,
		radar.Business{ID: "b2", Name: "Acme Backup", Slug: "acme-backup", Active: true, CreatedAt: base.Add(time.Hour)},
		[]radar.Keyword{{ID: "k4", Text: "file sync", Category: radar.CategoryIndustry, Active: true}}))
	require.NoError(t, s.CreateBusiness(ctx,
		radar.Business{ID: "b3", Name: "Dormant", Slug: "dormant", Active: false, CreatedAt: base},
		[]radar.Keyword{{ID: "k5", Text: "sleepy", Active: true}}))
}

func TestBusinessesAndKeywords(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	seedBusinesses(t, s)

	err := s.CreateBusiness(ctx, radar.Business{ID: "b9", Slug: "zeta-sync"}, nil)
	require.ErrorIs(t, err, radar.ErrDuplicateSlug)

	set, err := s.ActiveKeywords(ctx)
	require.NoError(t, err)
	require.Equal(t, radar.KeywordSet{
		"file sync": {"acme-backup", "zeta-sync"},
		"dropbox":   {"zeta-sync"},
	}, set)

	active, err := s.ActiveBusinesses(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "Acme Backup", active[0].Name)

	all, err := s.ListBusinesses(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"acme-backup", "dormant", "zeta-sync"}, []string{all[0].Slug, all[1].Slug, all[2].Slug})
	require.Equal(t, 3, all[2].KeywordCount)

	kws, err := s.ListKeywords(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, []string{"dropbox", "file sync", "retired"}, []string{kws[0].Text, kws[1].Text, kws[2].Text})

	require.NoError(t, s.SetKeywordActive(ctx, "k2", false))
	require.NoError(t, s.SetBusinessActive(ctx, "b3", true))
	set, err = s.ActiveKeywords(ctx)
	require.NoError(t, err)
	require.NotContains(t, set, "dropbox")
	require.Contains(t, set, "sleepy")

	require.ErrorIs(t, s.AddKeyword(ctx, radar.Keyword{ID: "k6", BusinessID: "missing"}), radar.ErrNotFound)
	require.ErrorIs(t, s.DeleteKeyword(ctx, "missing"), radar.ErrNotFound)
	require.NoError(t, s.DeleteKeyword(ctx, "k5"))

	got, err := s.GetBusinessBySlug(ctx, "acme-backup")
	require.NoError(t, err)
	require.Equal(t, "b2", got.ID)
	_, err = s.GetBusinessBySlug(ctx, "nope")
	require.ErrorIs(t, err, radar.ErrNotFound)
}

func TestDeleteBusinessCascadesKeywordsAndDetachesVerdicts(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	seedBusinesses(t, s)
	_, err := s.InsertPost(ctx, post("p1", radar.SourceReddit, "r1", base))
	require.NoError(t, err)
	require.NoError(t, s.SaveAnalyses(ctx, []radar.Analysis{{ID: "a1", PostID: "p1", BusinessID: "b1", RelevanceScore: 9, Status: radar.StatusNew}}))

	require.NoError(t, s.DeleteBusiness(ctx, "b1"))
	kws, err := s.ListKeywords(ctx, "b1")
	require.NoError(t, err)
	require.Empty(t, kws)

	ops, err := s.ListOpportunities(ctx, radar.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Empty(t, ops[0].BusinessID)

	require.ErrorIs(t, s.DeleteBusiness(ctx, "b1"), radar.ErrNotFound)
}

func TestAnalysesWorkflowAndOpportunities(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	seedBusinesses(t, s)
	_, err := s.InsertPost(ctx, post("p1", radar.SourceReddit, "r1", base))
	require.NoError(t, err)

	require.ErrorIs(t, s.SaveAnalyses(ctx, []radar.Analysis{{ID: "x", PostID: "missing"}}), radar.ErrNotFound)

	require.NoError(t, s.SaveAnalyses(ctx, []radar.Analysis{
		{ID: "a1", PostID: "p1", BusinessID: "b1", RelevanceScore: 8, Status: radar.StatusNew, AnalyzedAt: base},
		{ID: "a2", PostID: "p1", BusinessID: "b2", RelevanceScore: 8, Status: radar.StatusNew, AnalyzedAt: base.Add(time.Minute)},
		{ID: "a3", PostID: "p1", BusinessID: "b2", RelevanceScore: 3, Status: radar.StatusNew, AnalyzedAt: base},
	}))

	ops, err := s.ListOpportunities(ctx, radar.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, "a2", ops[0].ID)
	require.Equal(t, "Acme Backup", ops[0].BusinessName)
	require.Equal(t, "r1", ops[0].Post.SourceID)

	ops, err = s.ListOpportunities(ctx, radar.OpportunityFilter{BusinessSlug: "zeta-sync"})
	require.NoError(t, err)
	require.Len(t, ops, 1)

	require.ErrorIs(t, s.UpdateAnalysisStatus(ctx, "a1", radar.StatusActioned), radar.ErrInvalidTransition)
	require.NoError(t, s.UpdateAnalysisStatus(ctx, "a1", radar.StatusReviewed))
	require.NoError(t, s.UpdateAnalysisStatus(ctx, "a1", radar.StatusActioned))
	require.ErrorIs(t, s.UpdateAnalysisStatus(ctx, "nope", radar.StatusReviewed), radar.ErrNotFound)

	ops, err = s.ListOpportunities(ctx, radar.OpportunityFilter{Status: radar.StatusNew})
	require.NoError(t, err)
	require.Len(t, ops, 1)

	stats, err := s.Stats(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalPosts)
	require.Equal(t, 1, stats.PostsToday)
	require.Equal(t, 1, stats.HighPriority)
	require.Equal(t, map[string]int{"reddit": 1}, stats.BySource)
	require.Equal(t, map[string]int{"Zeta Sync": 1, "Acme Backup": 1}, stats.ByBusiness)

	stats, err = s.Stats(ctx, base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Zero(t, stats.PostsToday)
}

func TestHeartbeatUpsert(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	_, err := s.GetHeartbeat(ctx, "reddit")
	require.ErrorIs(t, err, radar.ErrNotFound)

	require.NoError(t, s.RecordFailure(ctx, "reddit", "boom"))
	hb, err := s.GetHeartbeat(ctx, "reddit")
	require.NoError(t, err)
	require.Nil(t, hb.LastSuccess)
	require.Equal(t, "boom", hb.LastError)

	require.NoError(t, s.RecordSuccess(ctx, "reddit", base, 4))
	require.NoError(t, s.RecordSuccess(ctx, "reddit", base, 4))
	hb, err = s.GetHeartbeat(ctx, "reddit")
	require.NoError(t, err)
	require.Equal(t, base, *hb.LastSuccess)
	require.Empty(t, hb.LastError)
	require.Equal(t, 4, hb.PostCount)

	require.NoError(t, s.RecordFailure(ctx, "reddit", "later"))
	hb, err = s.GetHeartbeat(ctx, "reddit")
	require.NoError(t, err)
	require.Equal(t, base, *hb.LastSuccess)
	require.Equal(t, 4, hb.PostCount)

	require.NoError(t, s.RecordSuccess(ctx, "classifier", base, 1))
	all, err := s.ListHeartbeats(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "classifier", all[0].Name)
}
