package list

// Outcome classifies the result of one processed request. The zero value is
// not a valid outcome.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeUpdated     Outcome = "updated"
	OutcomeDeleted     Outcome = "deleted"
	OutcomeQuery       Outcome = "query"
	OutcomeConflict    Outcome = "conflict"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeAmbiguous   Outcome = "rejected_ambiguous"
	OutcomeBadRequest  Outcome = "bad_request"
	OutcomeUnavailable Outcome = "translation_unavailable"
	OutcomeError       Outcome = "internal_error"
)

// Success reports whether the outcome completed a list operation. Conflict
// and not-found commit their transaction but are not successes.
func (o Outcome) Success() bool {
	switch o {
	case OutcomeCreated, OutcomeUpdated, OutcomeDeleted, OutcomeQuery:
		return true
	}
	return false
}

// Committed reports whether a request with this outcome keeps its
// transaction. Rejections that never touched storage, and failures that may
// have, both roll back.
func (o Outcome) Committed() bool {
	switch o {
	case OutcomeCreated, OutcomeUpdated, OutcomeDeleted, OutcomeQuery, OutcomeConflict, OutcomeNotFound:
		return true
	}
	return false
}
