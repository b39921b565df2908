package models

import (
	"encoding/json"
	"fmt"
	"maps"

	dErrors "moflow/pkg/domain-errors"
)

// DetailKind is the type discriminator of a detail record.
type DetailKind string

const (
	DetailEngagement  DetailKind = "engagement"
	DetailAddress     DetailKind = "address"
	DetailAssociation DetailKind = "association"
	DetailRole        DetailKind = "role"
	DetailITSystem    DetailKind = "it"
	DetailManager     DetailKind = "manager"
	DetailLeave       DetailKind = "leave"
)

// DetailKinds is the order in which staged records are flattened into a
// payload.
var DetailKinds = []DetailKind{
	DetailEngagement,
	DetailAddress,
	DetailAssociation,
	DetailRole,
	DetailITSystem,
	DetailManager,
	DetailLeave,
}

func ParseDetailKind(s string) (DetailKind, error) {
	for _, k := range DetailKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown detail kind %q", s))
}

// Validity is the half-open interval [from, to) a fact is effective over.
// A nil To means open-ended.
type Validity struct {
	From string  `json:"from" validate:"required,isodate"`
	To   *string `json:"to" validate:"omitempty,isodate"`
}

func (v *Validity) Clone() *Validity {
	if v == nil {
		return nil
	}
	out := &Validity{From: v.From}
	if v.To != nil {
		to := *v.To
		out.To = &to
	}
	return out
}

// Ref points at another MO object.
type Ref struct {
	UUID string `json:"uuid" validate:"required,uuid"`
	Name string `json:"name,omitempty"`
}

// DetailRecord is one typed, time-bounded fact attached to an entity.
// Key is a client-side handle used to replace a staged record; it is not
// sent to the remote API.
type DetailRecord struct {
	Key      string
	Type     DetailKind
	UUID     string
	Validity *Validity
	Fields   map[string]any
}

var reservedFields = []string{"key", "type", "uuid", "validity"}

func (r DetailRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	for _, k := range reservedFields {
		delete(out, k)
	}
	out["type"] = r.Type
	if r.UUID != "" {
		out["uuid"] = r.UUID
	}
	if r.Validity != nil {
		out["validity"] = r.Validity
	}
	return json.Marshal(out)
}

func (r *DetailRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var rec DetailRecord
	if v, ok := raw["key"]; ok {
		if err := json.Unmarshal(v, &rec.Key); err != nil {
			return fmt.Errorf("key: %w", err)
		}
	}
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &rec.Type); err != nil {
			return fmt.Errorf("type: %w", err)
		}
	}
	if v, ok := raw["uuid"]; ok {
		if err := json.Unmarshal(v, &rec.UUID); err != nil {
			return fmt.Errorf("uuid: %w", err)
		}
	}
	if v, ok := raw["validity"]; ok && string(v) != "null" {
		rec.Validity = &Validity{}
		if err := json.Unmarshal(v, rec.Validity); err != nil {
			return fmt.Errorf("validity: %w", err)
		}
	}
	for _, k := range reservedFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		rec.Fields = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			rec.Fields[k] = val
		}
	}
	*r = rec
	return nil
}

// Clone returns a copy that shares no mutable state with r.
func (r DetailRecord) Clone() DetailRecord {
	out := r
	out.Validity = r.Validity.Clone()
	out.Fields = cloneFields(r.Fields)
	return out
}

func cloneFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := maps.Clone(in)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		c := make([]any, len(t))
		for i := range t {
			c[i] = cloneValue(t[i])
		}
		return c
	default:
		return v
	}
}
