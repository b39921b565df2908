package models

import "encoding/json"

// Failure describes a submission that did not succeed. Application errors
// come from a resolved response carrying error=true; transport errors from a
// non-2xx status or a failed connection.
type Failure struct {
	ErrorKey    string          `json:"error_key,omitempty"`
	Description string          `json:"description,omitempty"`
	Status      int             `json:"status,omitempty"`
	Transport   bool            `json:"transport,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Outcome is the result of a workflow submission. Exactly one of ID and
// Failure is set.
type Outcome struct {
	ID      string   `json:"uuid,omitempty"`
	Failure *Failure `json:"error,omitempty"`
}

func (o Outcome) OK() bool { return o.Failure == nil }
