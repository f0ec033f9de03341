package translate

import (
	"fmt"
	"strings"

	"listkeep/internal/llm"
)

const systemPromptTemplate = `You are the request translator for a personal item list (a shopping or to-do list). Convert the user's natural language request into a single JSON object conforming to the provided schema. Output ONLY that JSON object, with no other text, prose, or markdown.

Rules:
1. The object may populate these top-level keys: "database_operation", "ambiguous_request", "suggestion".
2. When the request is clear, populate "database_operation" with the correct action (INSERT, UPDATE, DELETE, or QUERY) on the "items" table.
3. When an UPDATE or DELETE target is ambiguous (for example "delete milk" while the list contains "buy milk" and "get whole milk"), populate ONLY "ambiguous_request" with a helpful message asking for clarification.
4. Treat simple requests like "get bread" as an INSERT.
5. After an INSERT you may also populate "suggestion" with related items and a friendly message (for example, adding "hot dogs" could suggest "hot dog buns", "ketchup", "mustard"). Never provide suggestions for UPDATE, DELETE, or QUERY.
6. Your ONLY job is managing this item list. For anything else (creating accounts, changing passwords, general conversation), populate ONLY "ambiguous_request" with a message explaining that you can only manage the item list.

For UPDATE and DELETE, the "where" content MUST be the exact content of an item on the user's current list.`

const noItemsContext = "The user currently has no items."

// BuildPrompt constructs the chat messages for translating userText, given
// the exact contents of the user's current items.
func BuildPrompt(userText string, items []string) []llm.Message {
	var sb strings.Builder
	sb.WriteString(systemPromptTemplate)
	sb.WriteString("\n\n")

	if len(items) == 0 {
		sb.WriteString(noItemsContext)
	} else {
		sb.WriteString("Here is the user's current list of items. Use it to resolve ambiguity and to find the exact content for UPDATE and DELETE targets:\n")
		for _, item := range items {
			fmt.Fprintf(&sb, "- %q\n", item)
		}
	}

	return []llm.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: userText},
	}
}

// ResponseSchema describes the JSON object the model must return. It is
// passed to the backend as a structured-output constraint.
func ResponseSchema() *llm.Schema {
	content := func(desc string) *llm.Schema {
		return &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"content": {Type: "string", Description: desc},
			},
			Required: []string{"content"},
		}
	}

	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"database_operation": {
				Type:        "object",
				Description: "A valid list operation to execute.",
				Properties: map[string]*llm.Schema{
					"action": {
						Type:        "string",
						Description: "The action to perform.",
						Enum:        []string{"INSERT", "UPDATE", "DELETE", "QUERY"},
					},
					"table": {
						Type:        "string",
						Description: "The table to act on; always 'items'.",
						Enum:        []string{"items"},
					},
					"data":  content("The content of the new item for INSERT, or the new content for UPDATE."),
					"where": content("The exact content of the item to update or delete. Must match an item from the user's current list."),
				},
				Required: []string{"action", "table"},
			},
			"ambiguous_request": {
				Type:        "object",
				Description: "A request for user clarification when the input is ambiguous or out of scope.",
				Properties: map[string]*llm.Schema{
					"message": {Type: "string", Description: "A helpful message asking the user for clarification."},
				},
				Required: []string{"message"},
			},
			"suggestion": {
				Type:        "object",
				Description: "Optional related items to offer after an INSERT.",
				Properties: map[string]*llm.Schema{
					"message": {Type: "string", Description: "A friendly message introducing the suggestions."},
					"items": {
						Type:        "array",
						Description: "Suggested items for the user to add.",
						Items:       &llm.Schema{Type: "string"},
					},
				},
				Required: []string{"message", "items"},
			},
		},
	}
}
