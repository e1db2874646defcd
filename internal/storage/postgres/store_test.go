package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestInsertPostReportsDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	post := radar.Post{
		ID:         "p1",
		Source:     radar.SourceHackerNews,
		SourceID:   "42",
		URL:        "https://news.ycombinator.com/item?id=42",
		Title:      "Ask HN: file sync?",
		CreatedAt:  now,
		IngestedAt: now,
	}
	args := []any{post.ID, "hackernews", "42", post.URL, post.Title, "", "", "", now, now}

	mock.ExpectExec("INSERT INTO posts").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO posts").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.InsertPost(context.Background(), post)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.InsertPost(context.Background(), post)
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostExists(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("reddit", "abc").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.PostExists(context.Background(), radar.SourceReddit, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func postRows(posts ...radar.Post) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "source", "source_id", "url", "title", "body", "author", "community", "created_at", "ingested_at",
	})
	for _, p := range posts {
		rows.AddRow(p.ID, string(p.Source), p.SourceID, p.URL, p.Title, p.Body, p.Author, p.Community,
			p.CreatedAt, p.IngestedAt)
	}
	return rows
}

func TestListUnclassified(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("WHERE NOT EXISTS").
		WithArgs(10).
		WillReturnRows(postRows(radar.Post{
			ID: "p2", Source: radar.SourceReddit, SourceID: "t3_x", URL: "https://old.reddit.com/x",
			CreatedAt: now, IngestedAt: now,
		}))

	posts, err := store.ListUnclassified(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, radar.SourceReddit, posts[0].Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPostsAppliesFilter(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("reddit", "%sync%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("ILIKE").
		WithArgs("reddit", "%sync%", 2, 1).
		WillReturnRows(postRows(
			radar.Post{ID: "a", Source: radar.SourceReddit, SourceID: "1", CreatedAt: now, IngestedAt: now},
			radar.Post{ID: "b", Source: radar.SourceReddit, SourceID: "2", CreatedAt: now, IngestedAt: now},
		))

	posts, total, err := store.ListPosts(context.Background(), radar.PostFilter{
		Query: "sync", Source: radar.SourceReddit, Limit: 2, Offset: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, posts, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBusinessWritesKeywordsInTx(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	biz := radar.Business{ID: "b1", Name: "Acme Sync", Slug: "acme-sync", Active: true, CreatedAt: now}
	kw := radar.Keyword{ID: "k1", Text: "file sync", Category: radar.CategoryDirect, Active: true, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO businesses").
		WithArgs("b1", "Acme Sync", "acme-sync", "", "", "", true, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO keywords").
		WithArgs("k1", "b1", "file sync", "direct", true, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.CreateBusiness(context.Background(), biz, []radar.Keyword{kw}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBusinessDuplicateSlug(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO businesses").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})
	mock.ExpectRollback()

	err := store.CreateBusiness(context.Background(), radar.Business{ID: "b1", Slug: "acme"}, nil)
	require.ErrorIs(t, err, radar.ErrDuplicateSlug)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBusinessBySlugNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM businesses WHERE slug").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "slug", "domain", "description", "context", "active", "created_at",
		}))

	_, err := store.GetBusinessBySlug(context.Background(), "missing")
	require.ErrorIs(t, err, radar.ErrNotFound)
}

func TestDeleteKeywordMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM keywords").
		WithArgs("k9").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := store.DeleteKeyword(context.Background(), "k9")
	require.ErrorIs(t, err, radar.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddKeywordUnknownBusiness(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO keywords").
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})

	err := store.AddKeyword(context.Background(), radar.Keyword{ID: "k1", BusinessID: "nope", Text: "x"})
	require.ErrorIs(t, err, radar.ErrNotFound)
}

func TestActiveKeywordsGroupsSlugs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT DISTINCT").
		WillReturnRows(pgxmock.NewRows([]string{"keyword", "slug"}).
			AddRow("backup", "acme").
			AddRow("backup", "zeta").
			AddRow("file sync", "acme"))

	set, err := store.ActiveKeywords(context.Background())
	require.NoError(t, err)
	require.Equal(t, radar.KeywordSet{
		"backup":    {"acme", "zeta"},
		"file sync": {"acme"},
	}, set)
}

func TestSaveAnalysesNullsEmptyBusiness(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	a := radar.Analysis{
		ID: "a1", PostID: "p1", RelevanceScore: 8, PostType: "question", PainScore: 6,
		Urgency: radar.UrgencyHigh, Status: radar.StatusNew, AnalyzedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO analysis").
		WithArgs("a1", "p1", nil, 8, "question", 6, "high", []string{}, "", "", "new", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveAnalyses(context.Background(), []radar.Analysis{a}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAnalysesRollsBackOnMissingPost(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO analysis").
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})
	mock.ExpectRollback()

	err := store.SaveAnalyses(context.Background(), []radar.Analysis{{ID: "a1", PostID: "gone"}})
	require.ErrorIs(t, err, radar.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAnalysisStatus(t *testing.T) {
	t.Parallel()

	t.Run("allowed", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("a1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("new"))
		mock.ExpectExec("UPDATE analysis SET status").
			WithArgs("a1", "reviewed").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, store.UpdateAnalysisStatus(context.Background(), "a1", radar.StatusReviewed))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("a1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("ignored"))
		mock.ExpectRollback()

		err := store.UpdateAnalysisStatus(context.Background(), "a1", radar.StatusReviewed)
		require.ErrorIs(t, err, radar.ErrInvalidTransition)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("zz").
			WillReturnRows(pgxmock.NewRows([]string{"status"}))
		mock.ExpectRollback()

		err := store.UpdateAnalysisStatus(context.Background(), "zz", radar.StatusReviewed)
		require.ErrorIs(t, err, radar.ErrNotFound)
	})
}

func TestListOpportunitiesDefaults(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	cols := []string{
		"id", "post_id", "business_id", "relevance_score", "post_type", "pain_score", "urgency",
		"keywords_matched", "competitor_mentioned", "suggested_response", "status", "analyzed_at",
		"pid", "source", "source_id", "url", "title", "body", "author", "community", "created_at", "ingested_at",
		"name",
	}
	var nilBusiness *string
	mock.ExpectQuery("FROM analysis a").
		WithArgs(radar.HighPriorityRelevance, 50).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"a1", "p1", nilBusiness, 9, "question", 7, "urgent?", []string{"sync"}, "", "try us", "new", now,
			"p1", "reddit", "t3_1", "https://old.reddit.com/1", "title", "body", "bob", "selfhosted", now, now,
			"",
		))

	opps, err := store.ListOpportunities(context.Background(), radar.OpportunityFilter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	require.Empty(t, opps[0].BusinessID)
	require.Equal(t, radar.UrgencyLow, opps[0].Urgency)
	require.Equal(t, radar.SourceReddit, opps[0].Post.Source)
	require.Equal(t, []string{"sync"}, opps[0].KeywordsMatched)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsUsesUTCDayStart(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 6, 15, 30, 0, 0, time.UTC)
	dayStart := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FILTER").
		WithArgs(dayStart).
		WillReturnRows(pgxmock.NewRows([]string{"total", "today"}).AddRow(10, 4))
	mock.ExpectQuery("GROUP BY source").
		WillReturnRows(pgxmock.NewRows([]string{"source", "count"}).AddRow("reddit", 6).AddRow("hackernews", 4))
	mock.ExpectQuery("status = ").
		WithArgs(radar.HighPriorityRelevance, "new").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("GROUP BY b.name").
		WithArgs(radar.HighPriorityRelevance).
		WillReturnRows(pgxmock.NewRows([]string{"name", "count"}).AddRow("Acme", 3))

	stats, err := store.Stats(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, radar.Stats{
		TotalPosts:   10,
		PostsToday:   4,
		HighPriority: 2,
		BySource:     map[string]int{"reddit": 6, "hackernews": 4},
		ByBusiness:   map[string]int{"Acme": 3},
	}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHeartbeatUpserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO heartbeats").
		WithArgs("reddit", at, 12).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO heartbeats").
		WithArgs("twitter", "boom").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordSuccess(context.Background(), "reddit", at, 12))
	require.NoError(t, store.RecordFailure(context.Background(), "twitter", "boom"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHeartbeat(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	errText := "timeout"
	mock.ExpectQuery("FROM heartbeats WHERE scraper_name").
		WithArgs("reddit").
		WillReturnRows(pgxmock.NewRows([]string{"scraper_name", "last_success", "last_error", "posts_found"}).
			AddRow("reddit", &at, &errText, 5))
	mock.ExpectQuery("FROM heartbeats WHERE scraper_name").
		WithArgs("tiktok").
		WillReturnError(errors.New("connection reset"))

	hb, err := store.GetHeartbeat(context.Background(), "reddit")
	require.NoError(t, err)
	require.Equal(t, "timeout", hb.LastError)
	require.NotNil(t, hb.LastSuccess)
	require.True(t, at.Equal(*hb.LastSuccess))
	require.Equal(t, 5, hb.PostCount)

	_, err = store.GetHeartbeat(context.Background(), "tiktok")
	require.Error(t, err)
	require.NotErrorIs(t, err, radar.ErrNotFound)
}
