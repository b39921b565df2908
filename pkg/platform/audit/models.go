package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Kind classifies a completed workflow action shown in the session log.
type Kind string

const (
	KindEmployeeCreate     Kind = "EMPLOYEE_CREATE"
	KindEmployeeEdit       Kind = "EMPLOYEE_EDIT"
	KindEmployeeMove       Kind = "EMPLOYEE_MOVE"
	KindEmployeeTerminate  Kind = "EMPLOYEE_TERMINATE"
	KindOrganisationCreate Kind = "ORGANISATION_CREATE"
	KindOrganisationEdit   Kind = "ORGANISATION_EDIT"
	KindOrganisationMove   Kind = "ORGANISATION_MOVE"

	// KindError records a failed submission together with the raw error payload.
	KindError Kind = "ERROR"
)

// IsSuccess reports whether the kind records a successful submission.
func (k Kind) IsSuccess() bool {
	return k != KindError && k != ""
}

// Entry is one line of the audit log. Entries are appended once and never
// mutated; Seq reflects insertion order within a log.
type Entry struct {
	Seq       uint64          `json:"seq"`
	Kind      Kind            `json:"type"`
	SubjectID string          `json:"value,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store is an append-only, insertion-ordered log.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// Recent returns the last n entries, oldest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	All(ctx context.Context) ([]Entry, error)
}
