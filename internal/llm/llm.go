// Package llm abstracts the chat model backends that power request translation.
package llm

import "context"

// Message represents one turn of a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema describes the expected JSON output structure for structured chat
// responses. It marshals directly to a JSON Schema fragment, which is the
// format Ollama accepts; the Gemini backend converts it to the SDK's type.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Chatter is a chat-capable model backend that can constrain its output to a
// JSON schema. Implementations carry their own model name and endpoint.
type Chatter interface {
	// Name identifies the backend and model, e.g. "ollama/llama3.2".
	Name() string

	// Chat sends the conversation and returns the raw assistant response.
	// When schema is non-nil the backend requests schema-constrained output.
	Chat(ctx context.Context, messages []Message, schema *Schema) (string, error)
}
