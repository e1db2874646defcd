package memory

import (
	"sort"
	"strings"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

func stableSortPosts(posts []radar.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].IngestedAt.After(posts[j].IngestedAt)
	})
}

func sortKeywords(keywords []radar.Keyword) {
	sort.SliceStable(keywords, func(i, j int) bool {
		if keywords[i].Category != keywords[j].Category {
			return keywords[i].Category < keywords[j].Category
		}
		return keywords[i].Text < keywords[j].Text
	})
}

func sortBusinessesByName(businesses []radar.Business) {
	sort.SliceStable(businesses, func(i, j int) bool {
		return strings.ToLower(businesses[i].Name) < strings.ToLower(businesses[j].Name)
	})
}
