package translate

import (
	"encoding/json"
	"fmt"
)

// Operation is one of the four structured list operations a request can
// translate to. The concrete types below are the only implementations, so a
// type switch over them is exhaustive.
type Operation interface {
	isOperation()
}

// Insert adds a new item with the given content.
type Insert struct {
	Content string
}

// Update rewrites the item whose stored content equals Target exactly.
type Update struct {
	Content string
	Target  string
}

// Delete removes the item whose stored content equals Target exactly.
type Delete struct {
	Target string
}

// Query reads the whole list. It carries no payload.
type Query struct{}

func (Insert) isOperation() {}
func (Update) isOperation() {}
func (Delete) isOperation() {}
func (Query) isOperation()  {}

// Ambiguity is the model's refusal to guess: a clarification question for the
// user instead of an operation.
type Ambiguity struct {
	Message string
}

// Suggestion is an optional list of related items the model offers alongside
// an insert.
type Suggestion struct {
	Message string
	Items   []string
}

// Result is a validated translation outcome. It holds at most one of
// {operation, ambiguity} plus an optional suggestion; an ambiguity excludes
// both of the others. The only way to obtain one is through NewResult or
// ParseResult, so downstream code never re-checks the invariant.
type Result struct {
	op         Operation
	ambiguity  *Ambiguity
	suggestion *Suggestion
}

// NewResult builds a Result, enforcing that an ambiguity is never accompanied
// by an operation or a suggestion.
func NewResult(op Operation, amb *Ambiguity, sug *Suggestion) (Result, error) {
	if amb != nil && (op != nil || sug != nil) {
		return Result{}, fmt.Errorf("ambiguous_request cannot be combined with an operation or suggestion")
	}
	return Result{op: op, ambiguity: amb, suggestion: sug}, nil
}

func (r Result) Operation() Operation { return r.op }

func (r Result) Ambiguity() *Ambiguity { return r.ambiguity }

func (r Result) Suggestion() *Suggestion { return r.suggestion }

// Wire-level shapes. These mirror the JSON contract the model is prompted
// (and schema-constrained) to produce.

type wireResponse struct {
	DatabaseOperation *wireOperation  `json:"database_operation"`
	AmbiguousRequest  *wireAmbiguity  `json:"ambiguous_request"`
	Suggestion        *wireSuggestion `json:"suggestion"`
}

type wireOperation struct {
	Action string       `json:"action"`
	Table  string       `json:"table"`
	Data   *wireContent `json:"data"`
	Where  *wireContent `json:"where"`
}

type wireContent struct {
	Content string `json:"content"`
}

type wireAmbiguity struct {
	Message string `json:"message"`
}

type wireSuggestion struct {
	Message string   `json:"message"`
	Items   []string `json:"items"`
}

// ParseResult validates raw model output against the response contract and
// returns a Result. Unknown actions, a wrong table, payload shapes that do
// not match the declared action, and exclusivity violations are all failures;
// a partially-valid operation is never returned.
func ParseResult(raw []byte) (Result, error) {
	var w wireResponse
	if err := json.Unmarshal(raw, &w); err != nil {
		return Result{}, fmt.Errorf("parsing model output: %w", err)
	}

	var op Operation
	if w.DatabaseOperation != nil {
		parsed, err := parseOperation(w.DatabaseOperation)
		if err != nil {
			return Result{}, err
		}
		op = parsed
	}

	var amb *Ambiguity
	if w.AmbiguousRequest != nil {
		if w.AmbiguousRequest.Message == "" {
			return Result{}, fmt.Errorf("ambiguous_request is missing its message")
		}
		amb = &Ambiguity{Message: w.AmbiguousRequest.Message}
	}

	var sug *Suggestion
	if w.Suggestion != nil {
		sug = &Suggestion{Message: w.Suggestion.Message, Items: w.Suggestion.Items}
	}

	return NewResult(op, amb, sug)
}

func parseOperation(w *wireOperation) (Operation, error) {
	if w.Table != "items" {
		return nil, fmt.Errorf("operation targets unknown table %q", w.Table)
	}

	switch w.Action {
	case "INSERT":
		if w.Data == nil {
			return nil, fmt.Errorf("INSERT requires a data clause")
		}
		if w.Where != nil {
			return nil, fmt.Errorf("INSERT does not take a where clause")
		}
		return Insert{Content: w.Data.Content}, nil

	case "UPDATE":
		if w.Data == nil || w.Where == nil {
			return nil, fmt.Errorf("UPDATE requires both data and where clauses")
		}
		return Update{Content: w.Data.Content, Target: w.Where.Content}, nil

	case "DELETE":
		if w.Where == nil {
			return nil, fmt.Errorf("DELETE requires a where clause")
		}
		if w.Data != nil {
			return nil, fmt.Errorf("DELETE does not take a data clause")
		}
		return Delete{Target: w.Where.Content}, nil

	case "QUERY":
		if w.Data != nil || w.Where != nil {
			return nil, fmt.Errorf("QUERY takes no data or where clause")
		}
		return Query{}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", w.Action)
	}
}
