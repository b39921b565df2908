package models

import "encoding/json"

// CreateEmployeePayload is the body of POST /service/e/create.
type CreateEmployeePayload struct {
	Name    string         `json:"name"`
	CPRNo   string         `json:"cpr_no,omitempty"`
	Org     *Ref           `json:"org,omitempty"`
	Details []DetailRecord `json:"details"`
}

// CreateOrgUnitPayload is the body of POST /service/ou/create.
type CreateOrgUnitPayload struct {
	Name        string         `json:"name"`
	Parent      *Ref           `json:"parent,omitempty"`
	OrgUnitType *Ref           `json:"org_unit_type,omitempty"`
	Validity    *Validity      `json:"validity,omitempty"`
	Details     []DetailRecord `json:"details"`
}

// EditRequest is one element of an edit call body.
type EditRequest struct {
	Type     string          `json:"type"`
	UUID     string          `json:"uuid,omitempty"`
	Person   *Ref            `json:"person,omitempty"`
	OrgUnit  *Ref            `json:"org_unit,omitempty"`
	Original json.RawMessage `json:"original,omitempty"`
	Data     map[string]any  `json:"data"`
}

// TerminatePayload is the body of POST /service/e/{uuid}/terminate.
type TerminatePayload struct {
	Validity struct {
		To string `json:"to"`
	} `json:"validity"`
}

// BuildEmployeeCreate assembles the create payload from a draft snapshot.
func BuildEmployeeCreate(d *Draft) CreateEmployeePayload {
	return CreateEmployeePayload{
		Name:    d.Identity.Name,
		CPRNo:   d.Identity.CPRNo,
		Org:     cloneRef(d.Identity.Org),
		Details: d.Flatten(),
	}
}

func BuildOrgUnitCreate(d *Draft) CreateOrgUnitPayload {
	return CreateOrgUnitPayload{
		Name:        d.Identity.Name,
		Parent:      cloneRef(d.Identity.Parent),
		OrgUnitType: cloneRef(d.Identity.OrgUnitType),
		Validity:    d.Identity.Validity.Clone(),
		Details:     d.Flatten(),
	}
}

// BuildEdits turns a draft into edit requests against the entity subject.
// Identity changes become one request of the entity's own type; staged
// details carrying a uuid edit that detail, the rest are created on the
// entity.
func BuildEdits(d *Draft, subject string) []EditRequest {
	subj := &Ref{UUID: subject}
	out := make([]EditRequest, 0)
	if id := identityData(d); len(id) > 0 {
		req := EditRequest{Type: d.Entity.ObjectType(), UUID: subject, Data: id}
		out = append(out, req)
	}
	for _, rec := range d.Flatten() {
		data := make(map[string]any, len(rec.Fields)+1)
		for k, v := range rec.Fields {
			data[k] = v
		}
		if rec.Validity != nil {
			data["validity"] = rec.Validity
		}
		req := EditRequest{Type: string(rec.Type), UUID: rec.UUID, Data: data}
		attachSubject(&req, d.Entity, subj)
		out = append(out, req)
	}
	return out
}

func identityData(d *Draft) map[string]any {
	data := map[string]any{}
	if d.Identity.Name != "" {
		data["name"] = d.Identity.Name
	}
	switch d.Entity {
	case EntityEmployee:
		if d.Identity.CPRNo != "" {
			data["cpr_no"] = d.Identity.CPRNo
		}
	case EntityOrgUnit:
		if d.Identity.Parent != nil {
			data["parent"] = d.Identity.Parent
		}
		if d.Identity.OrgUnitType != nil {
			data["org_unit_type"] = d.Identity.OrgUnitType
		}
	default:
		panic(ErrUnknownEntityKind(d.Entity))
	}
	if len(data) > 0 && d.Identity.Validity != nil {
		data["validity"] = d.Identity.Validity
	}
	return data
}

func attachSubject(req *EditRequest, kind EntityKind, subj *Ref) {
	switch kind {
	case EntityEmployee:
		req.Person = subj
	case EntityOrgUnit:
		req.OrgUnit = subj
	default:
		panic(ErrUnknownEntityKind(kind))
	}
}

// EmployeeMove moves one engagement of an employee to another unit.
type EmployeeMove struct {
	EmployeeUUID   string          `json:"employee_uuid" validate:"required,uuid"`
	EngagementUUID string          `json:"engagement_uuid" validate:"required,uuid"`
	OrgUnit        Ref             `json:"org_unit" validate:"required"`
	From           string          `json:"from" validate:"required,isodate"`
	Original       json.RawMessage `json:"original,omitempty"`
}

func (m EmployeeMove) Request() EditRequest {
	return EditRequest{
		Type:     string(DetailEngagement),
		UUID:     m.EngagementUUID,
		Person:   &Ref{UUID: m.EmployeeUUID},
		Original: m.Original,
		Data: map[string]any{
			"org_unit": Ref{UUID: m.OrgUnit.UUID},
			"validity": Validity{From: m.From},
		},
	}
}

// OrgUnitMove gives an org unit a new parent from a date.
type OrgUnitMove struct {
	Unit      Ref    `json:"unit" validate:"required"`
	NewParent Ref    `json:"new_parent" validate:"required"`
	From      string `json:"from" validate:"required,isodate"`
}

func (m OrgUnitMove) Request() EditRequest {
	return EditRequest{
		Type: EntityOrgUnit.ObjectType(),
		UUID: m.Unit.UUID,
		Data: map[string]any{
			"parent":   Ref{UUID: m.NewParent.UUID},
			"uuid":     m.Unit.UUID,
			"validity": Validity{From: m.From},
		},
	}
}

// EmployeeTermination ends every active relation of an employee at To.
type EmployeeTermination struct {
	EmployeeUUID string `json:"employee_uuid" validate:"required,uuid"`
	To           string `json:"to" validate:"required,isodate"`
}

func (t EmployeeTermination) Payload() TerminatePayload {
	var p TerminatePayload
	p.Validity.To = t.To
	return p
}
