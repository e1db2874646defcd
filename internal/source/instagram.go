package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

const (
	instagramMaxTagLength = 50
	instagramAppID        = "936619743392459"
)

// Instagram reads hashtag listings from the web tag-info endpoint.
type Instagram struct {
	up      *Upstream
	baseURL string
	limit   int
	logger  *zap.Logger
}

type igTagInfo struct {
	Data struct {
		Top    igSection `json:"top"`
		Recent igSection `json:"recent"`
	} `json:"data"`
}

type igSection struct {
	Sections []struct {
		LayoutContent struct {
			Medias []struct {
				Media igMedia `json:"media"`
			} `json:"medias"`
		} `json:"layout_content"`
	} `json:"sections"`
}

type igMedia struct {
	Code    string `json:"code"`
	TakenAt int64  `json:"taken_at"`
	User    struct {
		Username string `json:"username"`
	} `json:"user"`
	Caption *struct {
		Text string `json:"text"`
	} `json:"caption"`
}

// NewInstagram builds the image-sharing adapter.
func NewInstagram(up *Upstream, baseURL string, limit int, logger *zap.Logger) *Instagram {
	if logger == nil {
		logger = zap.NewNop()
	}
	if up.Headers == nil {
		up.Headers = http.Header{}
	}
	up.Headers.Set("X-IG-App-ID", instagramAppID)
	return &Instagram{
		up:      up,
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		logger:  logger.Named("instagram"),
	}
}

// Source implements Adapter.
func (i *Instagram) Source() radar.Source { return radar.SourceInstagram }

// FiltersUpstream implements Adapter.
func (i *Instagram) FiltersUpstream() bool { return true }

// InstagramTag returns the hashtag for keyword, or false when the keyword cannot be a tag.
func InstagramTag(keyword string) (string, bool) {
	tag := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(keyword), "#"))
	if tag == "" || strings.Contains(tag, " ") || utf8.RuneCountInString(tag) > instagramMaxTagLength {
		return "", false
	}
	return tag, true
}

// Collect implements Adapter. A 429 stops the whole run with ErrRateLimited.
func (i *Instagram) Collect(ctx context.Context, terms []string, emit Emit) error {
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return err
		}
		tag, ok := InstagramTag(term)
		if !ok {
			i.logger.Debug("keyword skipped", zap.String("keyword", term))
			continue
		}
		resp, err := i.up.Get(ctx, i.baseURL+"/api/v1/tags/web_info/?tag_name="+url.QueryEscape(tag))
		if err != nil {
			if radar.StatusCodeOf(err) == http.StatusTooManyRequests {
				return fmt.Errorf("hashtag %s: %w", tag, ErrRateLimited)
			}
			i.logger.Warn("hashtag listing failed", zap.String("hashtag", tag), zap.Error(err))
			continue
		}
		i.up.Archived(ctx, radar.SourceInstagram, "tag-"+tag, resp)

		var info igTagInfo
		if err := json.Unmarshal(resp.Body, &info); err != nil {
			i.logger.Warn("hashtag listing unreadable", zap.String("hashtag", tag), zap.Error(err))
			continue
		}
		for _, post := range i.posts(tag, info) {
			emit(ctx, post)
		}
	}
	return nil
}

func (i *Instagram) posts(tag string, info igTagInfo) []radar.Post {
	seen := map[string]bool{}
	var out []radar.Post
	for _, section := range []igSection{info.Data.Top, info.Data.Recent} {
		for _, s := range section.Sections {
			for _, m := range s.LayoutContent.Medias {
				if i.limit > 0 && len(out) >= i.limit {
					return out
				}
				media := m.Media
				if media.Code == "" || seen[media.Code] {
					continue
				}
				seen[media.Code] = true
				post := radar.Post{
					Source:    radar.SourceInstagram,
					SourceID:  "instagram_" + media.Code,
					URL:       fmt.Sprintf("%s/p/%s/", i.baseURL, media.Code),
					Author:    media.User.Username,
					Community: tag,
				}
				if media.Caption != nil {
					post.Body = radar.Truncate(media.Caption.Text, bodyLimit)
				}
				if media.TakenAt > 0 {
					post.CreatedAt = time.Unix(media.TakenAt, 0).UTC()
				}
				out = append(out, post)
			}
		}
	}
	return out
}
