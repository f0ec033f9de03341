// Package translate turns natural language requests into validated list
// operations by way of an external language model.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"listkeep/internal/llm"
)

// ErrUnavailable wraps every translation failure: no backend configured, the
// model unreachable, or model output that fails validation. Callers that need
// to distinguish translation failures from their own faults match on it with
// errors.Is.
var ErrUnavailable = errors.New("translation unavailable")

// Translator converts user text into a validated Result using a model backend.
type Translator struct {
	chatter llm.Chatter
}

// NewTranslator creates a Translator. A nil chatter is allowed and makes every
// Translate call fail fast with ErrUnavailable, matching a deployment with no
// model configured.
func NewTranslator(chatter llm.Chatter) *Translator {
	return &Translator{chatter: chatter}
}

// Configured reports whether a model backend is wired in.
func (t *Translator) Configured() bool {
	return t.chatter != nil
}

// Backend returns the backend identifier, or "none" when unconfigured.
func (t *Translator) Backend() string {
	if t.chatter == nil {
		return "none"
	}
	return t.chatter.Name()
}

// Translate invokes the model exactly once and validates its output. items
// must hold the exact stored content of the user's current items, in order;
// it is rendered into the prompt so the model can resolve which item a
// request refers to. A Result is returned only if it carries an operation or
// an ambiguity; anything else is a failure.
func (t *Translator) Translate(ctx context.Context, userText string, items []string) (Result, error) {
	if t.chatter == nil {
		return Result{}, fmt.Errorf("%w: no model backend configured", ErrUnavailable)
	}

	raw, err := t.chatter.Chat(ctx, BuildPrompt(userText, items), ResponseSchema())
	if err != nil {
		slog.Warn("translation chat failed", "backend", t.chatter.Name(), "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	res, err := ParseResult([]byte(raw))
	if err != nil {
		slog.Warn("model output failed validation", "backend", t.chatter.Name(), "error", err, "response", raw)
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if res.Operation() == nil && res.Ambiguity() == nil {
		slog.Warn("model returned neither an operation nor a clarification", "backend", t.chatter.Name(), "response", raw)
		return Result{}, fmt.Errorf("%w: model returned neither an operation nor a clarification", ErrUnavailable)
	}

	return res, nil
}
