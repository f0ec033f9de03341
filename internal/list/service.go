// Package list implements the natural-language list engine: it reads the
// owner's items, asks the translator for a structured operation, applies
// that operation inside a single transaction, and shapes the result into a
// client response.
package list

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"listkeep/internal/storage"
	"listkeep/internal/translate"
)

const (
	msgNoText      = "No text provided."
	msgInternal    = "Something went wrong while processing the request."
	msgUnavailable = "The language model is currently unavailable. Please try again later."
)

// Service processes natural-language requests against per-user lists.
type Service struct {
	store      *storage.Store
	translator *translate.Translator
}

func NewService(store *storage.Store, translator *translate.Translator) *Service {
	return &Service{store: store, translator: translator}
}

// ProcessRequest turns one free-text request into a list operation and
// applies it. It never returns an error; every failure mode maps to an
// outcome code on the response. Each request is recorded in the owner's
// history regardless of outcome.
func (s *Service) ProcessRequest(ctx context.Context, owner, text string) Response {
	text = strings.TrimSpace(text)
	if text == "" {
		resp := Response{Outcome: OutcomeBadRequest, Message: msgNoText}
		s.saveHistory(owner, text, resp)
		return resp
	}

	resp, recorded := s.process(ctx, owner, text)
	if !recorded {
		s.saveHistory(owner, text, resp)
	}
	return resp
}

// process runs the transactional part of a request. The returned bool
// reports whether the request was already recorded inside a committed
// transaction; rolled-back outcomes are recorded by the caller afterwards.
func (s *Service) process(ctx context.Context, owner, text string) (Response, bool) {
	tx, err := s.store.BeginList()
	if err != nil {
		slog.Error("beginning list transaction", "error", err)
		return Response{Outcome: OutcomeError, Message: msgInternal}, false
	}
	defer tx.Rollback()

	items, err := tx.Items(owner)
	if err != nil {
		slog.Error("reading items", "error", err)
		return Response{Outcome: OutcomeError, Message: msgInternal}, false
	}
	contents := make([]string, len(items))
	for i, it := range items {
		contents[i] = it.Content
	}

	res, err := s.translator.Translate(ctx, text, contents)
	if err != nil {
		return Response{Outcome: OutcomeUnavailable, Message: msgUnavailable}, false
	}

	if amb := res.Ambiguity(); amb != nil {
		return Response{Outcome: OutcomeAmbiguous, Message: amb.Message}, false
	}

	return s.finish(tx, owner, text, items, res.Operation(), res.Suggestion())
}

// Apply runs an already-structured operation through the same transactional
// pipeline as a translated request, recording it in history under the given
// input label. Used by callers that bypass translation, like MCP tools.
func (s *Service) Apply(owner, input string, op translate.Operation) Response {
	resp, recorded := s.applyTx(owner, input, op)
	if !recorded {
		s.saveHistory(owner, input, resp)
	}
	return resp
}

func (s *Service) applyTx(owner, input string, op translate.Operation) (Response, bool) {
	tx, err := s.store.BeginList()
	if err != nil {
		slog.Error("beginning list transaction", "error", err)
		return Response{Outcome: OutcomeError, Message: msgInternal}, false
	}
	defer tx.Rollback()

	items, err := tx.Items(owner)
	if err != nil {
		slog.Error("reading items", "error", err)
		return Response{Outcome: OutcomeError, Message: msgInternal}, false
	}
	return s.finish(tx, owner, input, items, op, nil)
}

// finish dispatches the operation and settles the transaction: committed
// outcomes get their history row inside the transaction, everything else is
// left for the caller's deferred rollback.
func (s *Service) finish(tx *storage.ListTx, owner, input string, items []storage.Item, op translate.Operation, sug *translate.Suggestion) (Response, bool) {
	resp := s.dispatch(tx, owner, items, op)
	if !resp.Outcome.Committed() {
		return resp, false
	}
	resp = attachSuggestion(resp, sug)

	if err := tx.LogRequest(s.record(owner, input, resp)); err != nil {
		slog.Error("recording request", "error", err)
		return Response{Outcome: OutcomeError, Message: msgInternal}, false
	}
	if err := tx.Commit(); err != nil {
		slog.Error("committing list transaction", "error", err)
		return Response{Outcome: OutcomeError, Message: msgInternal}, false
	}
	return resp, true
}

func (s *Service) dispatch(tx *storage.ListTx, owner string, items []storage.Item, op translate.Operation) Response {
	switch op := op.(type) {
	case translate.Insert:
		return s.handleInsert(tx, owner, items, op)
	case translate.Update:
		return s.handleUpdate(tx, owner, items, op)
	case translate.Delete:
		return s.handleDelete(tx, owner, items, op)
	case translate.Query:
		return s.handleQuery(items)
	default:
		slog.Error("unhandled operation", "type", fmt.Sprintf("%T", op))
		return Response{Outcome: OutcomeError, Message: msgInternal}
	}
}

func (s *Service) handleInsert(tx *storage.ListTx, owner string, items []storage.Item, op translate.Insert) Response {
	content := strings.TrimSpace(op.Content)
	if content == "" {
		return Response{Outcome: OutcomeBadRequest, Message: "No content provided for the new item."}
	}
	key := normalize(content)
	for _, it := range items {
		if normalize(it.Content) == key {
			return Response{
				Outcome: OutcomeConflict,
				Message: fmt.Sprintf("%q is already on your list.", it.Content),
				ItemID:  it.ID,
			}
		}
	}
	item, err := tx.InsertItem(owner, content)
	if err != nil {
		slog.Error("inserting item", "error", err)
		return Response{Outcome: OutcomeError, Message: msgInternal}
	}
	return Response{
		Outcome: OutcomeCreated,
		Message: fmt.Sprintf("Added %q to your list.", content),
		ItemID:  item.ID,
	}
}

func (s *Service) handleUpdate(tx *storage.ListTx, owner string, items []storage.Item, op translate.Update) Response {
	if strings.TrimSpace(op.Target) == "" || strings.TrimSpace(op.Content) == "" {
		return Response{Outcome: OutcomeBadRequest, Message: "An update needs both the existing item and its new content."}
	}
	match := findExact(items, op.Target)
	if match == nil {
		return Response{Outcome: OutcomeNotFound, Message: "No item found with that content to update."}
	}
	key := normalize(op.Content)
	for _, it := range items {
		if it.ID != match.ID && normalize(it.Content) == key {
			return Response{
				Outcome: OutcomeConflict,
				Message: fmt.Sprintf("%q is already on your list.", it.Content),
				ItemID:  it.ID,
			}
		}
	}
	if err := tx.UpdateItemContent(owner, match.ID, op.Content); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Response{Outcome: OutcomeNotFound, Message: "No item found with that content to update."}
		}
		slog.Error("updating item", "error", err)
		return Response{Outcome: OutcomeError, Message: msgInternal}
	}
	return Response{
		Outcome: OutcomeUpdated,
		Message: fmt.Sprintf("Updated %q to %q.", op.Target, op.Content),
		ItemID:  match.ID,
	}
}

func (s *Service) handleDelete(tx *storage.ListTx, owner string, items []storage.Item, op translate.Delete) Response {
	if strings.TrimSpace(op.Target) == "" {
		return Response{Outcome: OutcomeBadRequest, Message: "No item specified to remove."}
	}
	match := findExact(items, op.Target)
	if match == nil {
		return Response{Outcome: OutcomeNotFound, Message: "No item found with that content to delete."}
	}
	if err := tx.DeleteItem(owner, match.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Response{Outcome: OutcomeNotFound, Message: "No item found with that content to delete."}
		}
		slog.Error("deleting item", "error", err)
		return Response{Outcome: OutcomeError, Message: msgInternal}
	}
	return Response{
		Outcome: OutcomeDeleted,
		Message: fmt.Sprintf("Removed %q from your list.", op.Target),
		ItemID:  match.ID,
	}
}

func (s *Service) handleQuery(items []storage.Item) Response {
	return Response{
		Outcome: OutcomeQuery,
		Message: queryMessage(items),
		Items:   itemViews(items),
	}
}

// findExact returns the item whose stored content equals target exactly, or
// nil. Uniqueness of normalized content guarantees at most one match.
func findExact(items []storage.Item, target string) *storage.Item {
	for i := range items {
		if items[i].Content == target {
			return &items[i]
		}
	}
	return nil
}

// normalize produces the comparison key for duplicate detection.
func normalize(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}

func (s *Service) record(owner, text string, resp Response) storage.RequestRecord {
	return storage.RequestRecord{
		ID:        uuid.NewString(),
		UserID:    owner,
		Input:     text,
		Outcome:   string(resp.Outcome),
		Detail:    resp.Message,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Service) saveHistory(owner, text string, resp Response) {
	if err := s.store.SaveRequest(s.record(owner, text, resp)); err != nil {
		slog.Warn("recording request outside transaction", "error", err)
	}
}

// Items returns the owner's list in insertion order.
func (s *Service) Items(owner string) ([]ItemView, error) {
	items, err := s.store.ListItems(owner)
	if err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	return itemViews(items), nil
}

// History returns the owner's most recent requests, newest first.
func (s *Service) History(owner string, limit int) ([]RequestView, error) {
	recs, err := s.store.GetRecentRequests(owner, limit)
	if err != nil {
		return nil, fmt.Errorf("reading request history: %w", err)
	}
	views := make([]RequestView, len(recs))
	for i, r := range recs {
		views[i] = RequestView{
			Input:     r.Input,
			Outcome:   Outcome(r.Outcome),
			Detail:    r.Detail,
			CreatedAt: r.CreatedAt,
		}
	}
	return views, nil
}

// ImportResult summarizes one bulk import.
type ImportResult struct {
	Added   int        `json:"added"`
	Skipped int        `json:"skipped"`
	Items   []ItemView `json:"items,omitempty"`
}

// ImportItems inserts the given contents in one transaction, skipping
// entries already on the list as well as duplicates within the batch.
// Blank entries are ignored.
func (s *Service) ImportItems(owner string, contents []string) (ImportResult, error) {
	tx, err := s.store.BeginList()
	if err != nil {
		return ImportResult{}, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := tx.Items(owner)
	if err != nil {
		return ImportResult{}, fmt.Errorf("reading items: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, it := range existing {
		seen[normalize(it.Content)] = true
	}

	var result ImportResult
	for _, content := range contents {
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		key := normalize(content)
		if seen[key] {
			result.Skipped++
			continue
		}
		item, err := tx.InsertItem(owner, content)
		if err != nil {
			return ImportResult{}, fmt.Errorf("inserting %q: %w", content, err)
		}
		seen[key] = true
		result.Added++
		result.Items = append(result.Items, ItemView{ID: item.ID, Content: item.Content})
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("committing import: %w", err)
	}
	return result, nil
}
