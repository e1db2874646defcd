package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/hash/sha256"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

// Reddit searches the legacy HTML interface once per keyword for the past week, newest first.
type Reddit struct {
	up      *Upstream
	baseURL string
	limit   int
	clock   radar.Clock
	logger  *zap.Logger
}

// NewReddit builds the forum adapter.
func NewReddit(up *Upstream, baseURL string, limit int, clock radar.Clock, logger *zap.Logger) *Reddit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reddit{
		up:      up,
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		clock:   clock,
		logger:  logger.Named("reddit"),
	}
}

// Source implements Adapter.
func (r *Reddit) Source() radar.Source { return radar.SourceReddit }

// FiltersUpstream implements Adapter.
func (r *Reddit) FiltersUpstream() bool { return true }

// Collect implements Adapter.
func (r *Reddit) Collect(ctx context.Context, terms []string, emit Emit) error {
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := fmt.Sprintf("%s/search?q=%s&sort=new&t=week", r.baseURL, url.QueryEscape(term))
		resp, err := r.up.Get(ctx, target)
		if err != nil {
			r.logger.Warn("search failed", zap.String("keyword", term), zap.Error(err))
			continue
		}
		r.up.Archived(ctx, radar.SourceReddit, "search-"+term, resp)

		posts, err := r.parse(resp.Body)
		if err != nil {
			r.logger.Warn("parse search page failed", zap.String("keyword", term), zap.Error(err))
			continue
		}
		for _, post := range posts {
			emit(ctx, post)
		}
	}
	return nil
}

// parse extracts result rows. Listing timestamps are relative on this interface, so the
// origin time is the scrape time.
func (r *Reddit) parse(body []byte) ([]radar.Post, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	now := r.clock.Now()
	var posts []radar.Post
	doc.Find("div.thing").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if r.limit > 0 && len(posts) >= r.limit {
			return false
		}
		title := strings.TrimSpace(s.Find("a.title").First().Text())
		if title == "" {
			return true
		}
		author := s.AttrOr("data-author", "")
		sourceID := s.AttrOr("data-fullname", "")
		if sourceID == "" {
			sourceID = sha256.ShortID("reddit", title, author)
		}
		link, _ := s.Find("a.comments").First().Attr("href")
		if link == "" {
			link = s.AttrOr("data-permalink", s.AttrOr("data-url", ""))
		}
		posts = append(posts, radar.Post{
			Source:    radar.SourceReddit,
			SourceID:  sourceID,
			URL:       r.absolute(link),
			Title:     title,
			Body:      strings.TrimSpace(s.Find(".expando .usertext-body").First().Text()),
			Author:    author,
			Community: s.AttrOr("data-subreddit", ""),
			CreatedAt: now,
		})
		return true
	})
	return posts, nil
}

func (r *Reddit) absolute(link string) string {
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return r.baseURL + "/" + strings.TrimLeft(link, "/")
}
