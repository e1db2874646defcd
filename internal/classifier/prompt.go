package classifier

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// BuildPrompt renders the single-post classification prompt.
func BuildPrompt(post radar.Post, businesses []radar.Business) string {
	var list strings.Builder
	for i, b := range businesses {
		domain := b.Domain
		if domain == "" {
			domain = "no domain"
		}
		description := b.Description
		if description == "" {
			description = "No description"
		}
		fmt.Fprintf(&list, "%d. %s [slug: %s] (%s) - %s\n", i+1, b.Name, b.Slug, domain, description)
	}

	return fmt.Sprintf(`You are analyzing a social media post to determine if it's a business opportunity.

POST:
Source: %s
Subreddit/Community: %s
Title: %s
Body: %s
Author: %s

BUSINESSES TO MATCH:
%s
Return JSON only, no other text:
{
  "relevant_to": ["business_slug"],
  "relevance_score": 1-10,
  "post_type": "pain_point|question|recommendation_request|competitor_complaint|other",
  "pain_score": 1-10,
  "urgency": "high|medium|low",
  "keywords_found": ["keyword1", "keyword2"],
  "competitor_mentioned": "competitor name or null",
  "suggested_response": "Helpful response suggestion or null",
  "reasoning": "Brief explanation"
}

Be conservative with scores. Only 7+ if genuine business opportunity.`,
		post.Source,
		orNA(post.Community),
		orNA(post.Title),
		orNA(post.Body),
		orNA(post.Author),
		list.String(),
	)
}
