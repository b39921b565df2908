package models

import (
	"fmt"
	"strings"

	dErrors "moflow/pkg/domain-errors"
	audit "moflow/pkg/platform/audit"
)

// EntityKind selects which remote endpoints, audit kinds and notification
// service a workflow uses. Every switch over EntityKind is exhaustive; an
// unknown value is a programming error.
type EntityKind int

const (
	EntityEmployee EntityKind = iota + 1
	EntityOrgUnit
)

// EntityKinds lists every variant.
var EntityKinds = []EntityKind{EntityEmployee, EntityOrgUnit}

// ParseEntityKind accepts the names used in API paths.
func ParseEntityKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "employee", "e":
		return EntityEmployee, nil
	case "organisation", "org_unit", "ou":
		return EntityOrgUnit, nil
	}
	return 0, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown entity kind %q", s))
}

func (k EntityKind) String() string {
	switch k {
	case EntityEmployee:
		return "employee"
	case EntityOrgUnit:
		return "organisation"
	}
	panic(ErrUnknownEntityKind(k))
}

// PathSegment is the remote API segment: /service/{e|ou}/...
func (k EntityKind) PathSegment() string {
	switch k {
	case EntityEmployee:
		return "e"
	case EntityOrgUnit:
		return "ou"
	}
	panic(ErrUnknownEntityKind(k))
}

// NotifyService is the service part of a change notification topic.
func (k EntityKind) NotifyService() string {
	switch k {
	case EntityEmployee:
		return "employee"
	case EntityOrgUnit:
		return "org_unit"
	}
	panic(ErrUnknownEntityKind(k))
}

// ObjectType is the object type used when the entity itself changes.
func (k EntityKind) ObjectType() string {
	switch k {
	case EntityEmployee:
		return "employee"
	case EntityOrgUnit:
		return "org_unit"
	}
	panic(ErrUnknownEntityKind(k))
}

func (k EntityKind) CreateAuditKind() audit.Kind {
	switch k {
	case EntityEmployee:
		return audit.KindEmployeeCreate
	case EntityOrgUnit:
		return audit.KindOrganisationCreate
	}
	panic(ErrUnknownEntityKind(k))
}

func (k EntityKind) EditAuditKind() audit.Kind {
	switch k {
	case EntityEmployee:
		return audit.KindEmployeeEdit
	case EntityOrgUnit:
		return audit.KindOrganisationEdit
	}
	panic(ErrUnknownEntityKind(k))
}

func (k EntityKind) MoveAuditKind() audit.Kind {
	switch k {
	case EntityEmployee:
		return audit.KindEmployeeMove
	case EntityOrgUnit:
		return audit.KindOrganisationMove
	}
	panic(ErrUnknownEntityKind(k))
}

// ErrUnknownEntityKind is the panic value for a switch over an unknown kind.
func ErrUnknownEntityKind(k EntityKind) error {
	return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unknown entity kind %d", int(k)))
}
