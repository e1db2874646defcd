package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON strips a markdown fence from model output. A ```json fence wins over a bare one;
// unfenced content is returned trimmed.
func ExtractJSON(content string) string {
	if _, after, ok := strings.Cut(content, "```json"); ok {
		inner, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(inner)
	}
	if _, after, ok := strings.Cut(content, "```"); ok {
		inner, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(inner)
	}
	return strings.TrimSpace(content)
}

// DecodeJSON extracts and decodes model output into v.
func DecodeJSON(content string, v any) error {
	raw := ExtractJSON(content)
	if raw == "" {
		return fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
