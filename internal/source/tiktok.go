package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/fetcher/headless"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

// TikTokStateScripts are the script ids that carry page state on hashtag pages, newest layout first.
var TikTokStateScripts = []string{"__UNIVERSAL_DATA_FOR_REHYDRATION__", "SIGI_STATE"}

// TikTok fetches hashtag pages (rendering them when needed) and reads videos from the embedded state.
type TikTok struct {
	up      *Upstream
	baseURL string
	limit   int
	logger  *zap.Logger
}

type tiktokVideo struct {
	ID         string
	Desc       string
	Author     string
	CreateTime int64
}

// NewTikTok builds the short-video adapter. up.Fetcher should render JavaScript.
func NewTikTok(up *Upstream, baseURL string, limit int, logger *zap.Logger) *TikTok {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TikTok{
		up:      up,
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		logger:  logger.Named("tiktok"),
	}
}

// Source implements Adapter.
func (t *TikTok) Source() radar.Source { return radar.SourceTikTok }

// FiltersUpstream implements Adapter.
func (t *TikTok) FiltersUpstream() bool { return true }

// Hashtag turns a keyword into the tag segment used in page URLs.
func Hashtag(keyword string) string {
	tag := strings.TrimPrefix(strings.TrimSpace(keyword), "#")
	return strings.Join(strings.Fields(tag), "")
}

// Collect implements Adapter. A page that needs rendering while the renderer is disabled aborts the run.
func (t *TikTok) Collect(ctx context.Context, terms []string, emit Emit) error {
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return err
		}
		tag := Hashtag(term)
		if tag == "" {
			continue
		}
		resp, err := t.up.Get(ctx, t.baseURL+"/tag/"+url.PathEscape(tag))
		if err != nil {
			if errors.Is(err, headless.ErrDisabled) {
				return err
			}
			t.logger.Warn("hashtag page failed", zap.String("hashtag", tag), zap.Error(err))
			continue
		}
		t.up.Archived(ctx, radar.SourceTikTok, "tag-"+tag, resp)

		videos, err := parseTikTokVideos(resp.Body, t.limit)
		if err != nil {
			t.logger.Warn("hashtag page unreadable", zap.String("hashtag", tag), zap.Error(err))
			continue
		}
		for _, v := range videos {
			emit(ctx, t.normalize(tag, v))
		}
	}
	return nil
}

func (t *TikTok) normalize(tag string, v tiktokVideo) radar.Post {
	post := radar.Post{
		Source:    radar.SourceTikTok,
		SourceID:  "tiktok_" + v.ID,
		URL:       fmt.Sprintf("%s/@%s/video/%s", t.baseURL, v.Author, v.ID),
		Body:      v.Desc,
		Author:    v.Author,
		Community: tag,
	}
	if v.CreateTime > 0 {
		post.CreatedAt = time.Unix(v.CreateTime, 0).UTC()
	}
	return post
}

func parseTikTokVideos(page []byte, limit int) ([]tiktokVideo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var raw string
	for _, id := range TikTokStateScripts {
		if text := strings.TrimSpace(doc.Find("script#" + id).First().Text()); text != "" {
			raw = text
			break
		}
	}
	if raw == "" {
		return nil, errors.New("no embedded page state")
	}
	var state any
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode page state: %w", err)
	}
	w := videoWalker{limit: limit, seen: map[string]bool{}}
	w.walk(state)
	return w.out, nil
}

// videoWalker finds video-shaped objects anywhere in the page state. Object keys are visited
// in sorted order so results are deterministic.
type videoWalker struct {
	limit int
	seen  map[string]bool
	out   []tiktokVideo
}

func (w *videoWalker) full() bool {
	return w.limit > 0 && len(w.out) >= w.limit
}

func (w *videoWalker) walk(node any) {
	if w.full() {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		if video, ok := asVideo(v); ok {
			if !w.seen[video.ID] {
				w.seen[video.ID] = true
				w.out = append(w.out, video)
			}
			return
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.walk(v[k])
		}
	case []any:
		for _, item := range v {
			w.walk(item)
		}
	}
}

func asVideo(m map[string]any) (tiktokVideo, bool) {
	id, _ := m["id"].(string)
	_, hasDesc := m["desc"]
	created, hasCreated := m["createTime"]
	if id == "" || !hasDesc || !hasCreated {
		return tiktokVideo{}, false
	}
	video := tiktokVideo{ID: id}
	video.Desc, _ = m["desc"].(string)
	switch a := m["author"].(type) {
	case string:
		video.Author = a
	case map[string]any:
		video.Author, _ = a["uniqueId"].(string)
	}
	switch c := created.(type) {
	case float64:
		video.CreateTime = int64(c)
	case string:
		video.CreateTime, _ = strconv.ParseInt(c, 10, 64)
	}
	return video, true
}
