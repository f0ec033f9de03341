package list

import (
	"fmt"
	"strings"
	"time"

	"listkeep/internal/storage"
	"listkeep/internal/translate"
)

// Response is the payload returned for one processed request. Items is
// populated for query outcomes only; Suggestion only when the translator
// offered one and the outcome is a success.
type Response struct {
	Outcome    Outcome         `json:"outcome"`
	Message    string          `json:"message"`
	ItemID     int64           `json:"item_id,omitempty"`
	Items      []ItemView      `json:"items,omitempty"`
	Suggestion *SuggestionView `json:"suggestion,omitempty"`
}

// ItemView is the wire shape of one stored item.
type ItemView struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// SuggestionView carries the translator's optional follow-up prompt.
type SuggestionView struct {
	Message string   `json:"message"`
	Items   []string `json:"items,omitempty"`
}

// RequestView is the wire shape of one history entry.
type RequestView struct {
	Input     string    `json:"input"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func itemViews(items []storage.Item) []ItemView {
	views := make([]ItemView, len(items))
	for i, it := range items {
		views[i] = ItemView{ID: it.ID, Content: it.Content}
	}
	return views
}

// attachSuggestion adds the translator's suggestion to a success response.
// Conflicted, rejected and failed outcomes never carry one.
func attachSuggestion(resp Response, sug *translate.Suggestion) Response {
	if sug == nil || !resp.Outcome.Success() {
		return resp
	}
	resp.Suggestion = &SuggestionView{Message: sug.Message, Items: sug.Items}
	return resp
}

// queryMessage renders the list as a sentence: a fixed phrase when empty,
// singular for one item, comma-joined quoted contents otherwise.
func queryMessage(items []storage.Item) string {
	switch len(items) {
	case 0:
		return "You have no items on your list."
	case 1:
		return fmt.Sprintf("You have one item on your list: %q.", items[0].Content)
	default:
		quoted := make([]string, len(items))
		for i, it := range items {
			quoted[i] = fmt.Sprintf("%q", it.Content)
		}
		return fmt.Sprintf("You have %d items on your list: %s.", len(items), strings.Join(quoted, ", "))
	}
}
