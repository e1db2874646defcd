package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

const hnItemURL = "https://news.ycombinator.com/item?id="

// HackerNews reads the newest-story listing and then each story, matching keywords locally.
type HackerNews struct {
	up      *Upstream
	baseURL string
	limit   int
	logger  *zap.Logger
}

type hnItem struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	By      string `json:"by"`
	Time    int64  `json:"time"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	URL     string `json:"url"`
	Deleted bool   `json:"deleted"`
	Dead    bool   `json:"dead"`
}

// NewHackerNews builds the link-aggregator adapter. limit bounds the listing window.
func NewHackerNews(up *Upstream, baseURL string, limit int, logger *zap.Logger) *HackerNews {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HackerNews{
		up:      up,
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		logger:  logger.Named("hackernews"),
	}
}

// Source implements Adapter.
func (h *HackerNews) Source() radar.Source { return radar.SourceHackerNews }

// FiltersUpstream implements Adapter.
func (h *HackerNews) FiltersUpstream() bool { return false }

// Collect implements Adapter. A listing failure aborts the run.
func (h *HackerNews) Collect(ctx context.Context, _ []string, emit Emit) error {
	resp, err := h.up.Get(ctx, h.baseURL+"/newstories.json")
	if err != nil {
		return fmt.Errorf("fetch story listing: %w", err)
	}
	h.up.Archived(ctx, radar.SourceHackerNews, "newstories", resp)

	var ids []int64
	if err := json.Unmarshal(resp.Body, &ids); err != nil {
		return fmt.Errorf("decode story listing: %w", err)
	}
	if h.limit > 0 && len(ids) > h.limit {
		ids = ids[:h.limit]
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && i%100 == 0 {
			h.logger.Info("progress", zap.Int("checked", i), zap.Int("total", len(ids)))
		}
		item, err := h.item(ctx, id)
		if err != nil {
			h.logger.Debug("item fetch failed", zap.Int64("id", id), zap.Error(err))
			continue
		}
		if item == nil || item.Deleted || item.Dead || item.Type != "story" {
			continue
		}
		emit(ctx, h.normalize(*item))
	}
	return nil
}

func (h *HackerNews) item(ctx context.Context, id int64) (*hnItem, error) {
	resp, err := h.up.Get(ctx, fmt.Sprintf("%s/item/%d.json", h.baseURL, id))
	if err != nil {
		return nil, err
	}
	var item *hnItem
	if err := json.Unmarshal(resp.Body, &item); err != nil {
		return nil, fmt.Errorf("decode item %d: %w", id, err)
	}
	return item, nil
}

func (h *HackerNews) normalize(item hnItem) radar.Post {
	id := strconv.FormatInt(item.ID, 10)
	link := item.URL
	if link == "" {
		link = hnItemURL + id
	}
	post := radar.Post{
		Source:   radar.SourceHackerNews,
		SourceID: "hn_" + id,
		URL:      link,
		Title:    item.Title,
		Body:     htmlText(item.Text),
		Author:   item.By,
	}
	if item.Time > 0 {
		post.CreatedAt = time.Unix(item.Time, 0).UTC()
	}
	return post
}

// htmlText flattens the small HTML fragments the item API returns.
func htmlText(fragment string) string {
	if fragment == "" {
		return ""
	}
	fragment = strings.ReplaceAll(fragment, "<p>", "\n<p>")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.TrimSpace(doc.Text())
}
