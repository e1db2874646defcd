package radar

import "strings"

// MatchKeywords returns the keywords that appear in text, case-insensitively, in input order.
func MatchKeywords(text string, keywords []string) []string {
	if text == "" || len(keywords) == 0 {
		return nil
	}
	haystack := strings.ToLower(text)
	var matched []string
	for _, kw := range keywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, needle) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// Truncate caps s at limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
