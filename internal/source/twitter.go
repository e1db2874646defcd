package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// Twitter runs one recent search per keyword. Without a bearer token it does nothing.
type Twitter struct {
	up      *Upstream
	baseURL string
	limit   int
	enabled bool
	logger  *zap.Logger
}

type tweetSearch struct {
	Data []struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		AuthorID  string    `json:"author_id"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// NewTwitter builds the microblog adapter.
func NewTwitter(up *Upstream, baseURL, bearerToken string, limit int, logger *zap.Logger) *Twitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bearerToken != "" {
		if up.Headers == nil {
			up.Headers = http.Header{}
		}
		up.Headers.Set("Authorization", "Bearer "+bearerToken)
	}
	return &Twitter{
		up:      up,
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   clampInt(limit, 10, 100),
		enabled: bearerToken != "",
		logger:  logger.Named("twitter"),
	}
}

// Source implements Adapter.
func (t *Twitter) Source() radar.Source { return radar.SourceTwitter }

// FiltersUpstream implements Adapter.
func (t *Twitter) FiltersUpstream() bool { return true }

// Collect implements Adapter.
func (t *Twitter) Collect(ctx context.Context, terms []string, emit Emit) error {
	if !t.enabled {
		t.logger.Info("no bearer token configured; skipping")
		return nil
	}
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := url.Values{}
		q.Set("query", term)
		q.Set("max_results", fmt.Sprint(t.limit))
		q.Set("tweet.fields", "created_at,author_id")
		q.Set("expansions", "author_id")
		q.Set("user.fields", "username")
		resp, err := t.up.Get(ctx, t.baseURL+"/tweets/search/recent?"+q.Encode())
		if err != nil {
			t.logger.Warn("search failed", zap.String("keyword", term), zap.Error(err))
			continue
		}
		t.up.Archived(ctx, radar.SourceTwitter, "search-"+term, resp)

		var result tweetSearch
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			t.logger.Warn("search response unreadable", zap.String("keyword", term), zap.Error(err))
			continue
		}
		users := make(map[string]string, len(result.Includes.Users))
		for _, u := range result.Includes.Users {
			users[u.ID] = u.Username
		}
		for _, tweet := range result.Data {
			if tweet.ID == "" {
				continue
			}
			emit(ctx, radar.Post{
				Source:    radar.SourceTwitter,
				SourceID:  "twitter_" + tweet.ID,
				URL:       "https://twitter.com/i/web/status/" + tweet.ID,
				Body:      tweet.Text,
				Author:    users[tweet.AuthorID],
				CreatedAt: tweet.CreatedAt.UTC(),
			})
		}
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
