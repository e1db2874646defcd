package consensus

import "fmt"

func orNotProvided(s string) string {
	if s == "" {
		return "Not provided"
	}
	return s
}

// BuildPrompt renders the keyword suggestion prompt for a business.
func BuildPrompt(in Input) string {
	return fmt.Sprintf(`You are helping set up social media monitoring for a business. Based on the business information below, suggest keywords and phrases to monitor on social media (Reddit, Twitter, TikTok, Instagram, Hacker News).

BUSINESS NAME: %s
DOMAIN: %s

DESCRIPTION:
%s

ADDITIONAL DOCUMENTS/CONTEXT:
%s

Generate keywords in these categories:
1. "direct" - Direct product/service terms (what the business offers)
2. "pain_point" - Problem phrases (what pain points customers have that this solves)
3. "question" - Question phrases (how people ask for help with this)
4. "competitor" - Competitor names (known alternatives in this space)
5. "industry" - Industry terms (general category terms)

Return JSON only, no other text:
{
  "keywords": [
    {"keyword": "example phrase", "category": "direct"},
    {"keyword": "another phrase", "category": "pain_point"},
    ...
  ]
}

Generate 20-40 keywords. Focus on phrases people actually type when looking for help, not marketing speak. Include common misspellings if relevant. Be thorough.`,
		in.Name,
		orNotProvided(in.Domain),
		orNotProvided(in.Description),
		orNotProvided(in.Context),
	)
}
