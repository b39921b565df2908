package models

import (
	"maps"
	"slices"
)

// Identity holds the base fields of the entity being staged. Employees use
// Name and CPRNo; org units use Name, Parent, OrgUnitType and Validity.
type Identity struct {
	UUID        string    `json:"uuid,omitempty"`
	Name        string    `json:"name"`
	CPRNo       string    `json:"cpr_no,omitempty"`
	Org         *Ref      `json:"org,omitempty"`
	Parent      *Ref      `json:"parent,omitempty"`
	OrgUnitType *Ref      `json:"org_unit_type,omitempty"`
	Validity    *Validity `json:"validity,omitempty"`
}

func (i Identity) IsZero() bool {
	return i.UUID == "" && i.Name == "" && i.CPRNo == "" &&
		i.Org == nil && i.Parent == nil && i.OrgUnitType == nil && i.Validity == nil
}

func (i Identity) Clone() Identity {
	out := i
	out.Org = cloneRef(i.Org)
	out.Parent = cloneRef(i.Parent)
	out.OrgUnitType = cloneRef(i.OrgUnitType)
	out.Validity = i.Validity.Clone()
	return out
}

func cloneRef(r *Ref) *Ref {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Draft is the mutable staging area for one entity. It is not safe for
// concurrent use; workflow.Store serializes access.
type Draft struct {
	Entity   EntityKind                    `json:"-"`
	Identity Identity                      `json:"identity"`
	Details  map[DetailKind][]DetailRecord `json:"details"`
}

func NewDraft(kind EntityKind) *Draft {
	return &Draft{Entity: kind, Details: map[DetailKind][]DetailRecord{}}
}

// Stage inserts rec under kind, replacing a staged record with the same key.
// Records without a key are always appended.
func (d *Draft) Stage(kind DetailKind, rec DetailRecord) {
	rec.Type = kind
	recs := d.Details[kind]
	if rec.Key != "" {
		for i := range recs {
			if recs[i].Key == rec.Key {
				recs[i] = rec
				return
			}
		}
	}
	d.Details[kind] = append(recs, rec)
}

// StageAll replaces the whole sequence staged under kind.
func (d *Draft) StageAll(kind DetailKind, recs []DetailRecord) {
	if len(recs) == 0 {
		delete(d.Details, kind)
		return
	}
	out := make([]DetailRecord, len(recs))
	for i, r := range recs {
		r.Type = kind
		out[i] = r
	}
	d.Details[kind] = out
}

// Reset clears identity and every staged kind.
func (d *Draft) Reset() {
	d.Identity = Identity{}
	clear(d.Details)
}

// IsEmpty reports whether identity and every staged kind are empty.
func (d Draft) IsEmpty() bool {
	if !d.Identity.IsZero() {
		return false
	}
	for _, recs := range d.Details {
		if len(recs) > 0 {
			return false
		}
	}
	return true
}

func (d Draft) Clone() Draft {
	out := Draft{Entity: d.Entity, Identity: d.Identity.Clone(), Details: make(map[DetailKind][]DetailRecord, len(d.Details))}
	for k, recs := range d.Details {
		c := make([]DetailRecord, len(recs))
		for i := range recs {
			c[i] = recs[i].Clone()
		}
		out.Details[k] = c
	}
	return out
}

// DefaultValidity is the interval inherited by staged records that carry
// none: the first engagement's validity for employees, the unit's own
// validity for org units.
func (d Draft) DefaultValidity() *Validity {
	if d.Entity == EntityOrgUnit && d.Identity.Validity != nil {
		return d.Identity.Validity
	}
	for _, e := range d.Details[DetailEngagement] {
		if e.Validity != nil {
			return e.Validity
		}
	}
	return nil
}

// Flatten returns the staged records in payload order with missing validity
// filled from DefaultValidity. The draft itself is not modified.
func (d Draft) Flatten() []DetailRecord {
	def := d.DefaultValidity()
	out := make([]DetailRecord, 0)
	for _, k := range d.orderedKinds() {
		for _, r := range d.Details[k] {
			c := r.Clone()
			if c.Validity == nil {
				c.Validity = def.Clone()
			}
			out = append(out, c)
		}
	}
	return out
}

func (d Draft) orderedKinds() []DetailKind {
	kinds := slices.Clone(DetailKinds)
	for _, k := range slices.Sorted(maps.Keys(d.Details)) {
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
