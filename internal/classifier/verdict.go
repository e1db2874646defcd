package classifier

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/mention-radar/internal/llm"
)

// Verdict is the model's JSON reply.
type Verdict struct {
	RelevantTo          []string `json:"relevant_to"`
	RelevanceScore      *score   `json:"relevance_score"`
	PostType            string   `json:"post_type"`
	PainScore           *score   `json:"pain_score"`
	Urgency             string   `json:"urgency"`
	KeywordsFound       []string `json:"keywords_found"`
	CompetitorMentioned *string  `json:"competitor_mentioned"`
	SuggestedResponse   *string  `json:"suggested_response"`
	Reasoning           string   `json:"reasoning"`
}

// validate rejects verdicts missing a field every Analysis row needs.
func (v Verdict) validate() error {
	var missing []string
	if v.RelevanceScore == nil {
		missing = append(missing, "relevance_score")
	}
	if v.PainScore == nil {
		missing = append(missing, "pain_score")
	}
	if strings.TrimSpace(v.PostType) == "" {
		missing = append(missing, "post_type")
	}
	if strings.TrimSpace(v.Urgency) == "" {
		missing = append(missing, "urgency")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", llm.ErrMalformedResponse, strings.Join(missing, ", "))
	}
	return nil
}

// score accepts integers, floats and numeric strings, clamped to 1..10. A JSON null leaves the
// pointer field nil.
type score int

func (s *score) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" {
		return fmt.Errorf("score is empty")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("score %s: %w", raw, err)
	}
	*s = score(Clamp(int(math.Round(f))))
	return nil
}

// Clamp bounds a score to 1..10.
func Clamp(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// optional turns the model's "null"-ish strings into empty values.
func optional(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "null", "none", "n/a":
		return ""
	}
	return v
}
