package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// ErrUnknownKeyword is returned when toggling a keyword the session does not hold.
var ErrUnknownKeyword = errors.New("keyword is not part of this session")

// Session holds one round of suggestions and the operator's selection.
// It is not safe for concurrent use.
type Session struct {
	suggestions []Suggestion
	selected    map[string]bool
}

// NewSession builds a session, pre-selecting suggestions with at least threshold models.
func NewSession(result Result, threshold int) *Session {
	s := &Session{
		suggestions: append([]Suggestion(nil), result.Suggestions...),
		selected:    make(map[string]bool, len(result.Suggestions)),
	}
	for _, sg := range s.suggestions {
		if threshold > 0 && sg.Count >= threshold {
			s.selected[sg.Keyword] = true
		}
	}
	return s
}

// Suggestions returns every suggestion in display order.
func (s *Session) Suggestions() []Suggestion {
	return append([]Suggestion(nil), s.suggestions...)
}

// IsSelected reports whether keyword is selected.
func (s *Session) IsSelected(keyword string) bool {
	return s.selected[keyword]
}

// Toggle flips keyword and returns its new state.
func (s *Session) Toggle(keyword string) (bool, error) {
	if !s.has(keyword) {
		return false, fmt.Errorf("toggle %q: %w", keyword, ErrUnknownKeyword)
	}
	s.selected[keyword] = !s.selected[keyword]
	return s.selected[keyword], nil
}

// SelectCategory sets every suggestion in category to on and returns how many changed.
func (s *Session) SelectCategory(category radar.KeywordCategory, on bool) int {
	changed := 0
	for _, sg := range s.suggestions {
		if sg.Category != category || s.selected[sg.Keyword] == on {
			continue
		}
		s.selected[sg.Keyword] = on
		changed++
	}
	return changed
}

// AddCustom appends an operator-entered keyword, selected. Re-adding an existing keyword
// only selects it.
func (s *Session) AddCustom(keyword string, category radar.KeywordCategory) error {
	text := strings.TrimSpace(keyword)
	if text == "" {
		return errors.New("keyword is empty")
	}
	if !s.has(text) {
		s.suggestions = append(s.suggestions, Suggestion{Keyword: text, Category: radar.NormalizeCategory(string(category))})
	}
	s.selected[text] = true
	return nil
}

// Selected returns the selected suggestions in display order.
func (s *Session) Selected() []Suggestion {
	var out []Suggestion
	for _, sg := range s.suggestions {
		if s.selected[sg.Keyword] {
			out = append(out, sg)
		}
	}
	return out
}

func (s *Session) has(keyword string) bool {
	for _, sg := range s.suggestions {
		if sg.Keyword == keyword {
			return true
		}
	}
	return false
}

// Import writes selected suggestions as active keywords of businessID and returns how many were
// added. Keywords the business already has (case-insensitively) are skipped.
func Import(
	ctx context.Context,
	store radar.BusinessStore,
	ids radar.IDGenerator,
	clock radar.Clock,
	businessID string,
	selected []Suggestion,
) (int, error) {
	existing, err := store.ListKeywords(ctx, businessID)
	if err != nil {
		return 0, fmt.Errorf("list keywords: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, kw := range existing {
		have[strings.ToLower(kw.Text)] = true
	}

	added := 0
	for _, sg := range selected {
		key := strings.ToLower(sg.Keyword)
		if have[key] {
			continue
		}
		id, err := ids.NewID()
		if err != nil {
			return added, fmt.Errorf("keyword id: %w", err)
		}
		err = store.AddKeyword(ctx, radar.Keyword{
			ID:         id,
			BusinessID: businessID,
			Text:       sg.Keyword,
			Category:   sg.Category,
			Active:     true,
			CreatedAt:  clock.Now(),
		})
		if err != nil {
			return added, fmt.Errorf("add keyword %q: %w", sg.Keyword, err)
		}
		have[key] = true
		added++
	}
	return added, nil
}
