// Package domain holds typed identifiers shared across modules.
//
// Typed IDs keep employee, org-unit and session identifiers from being mixed
// up at compile time. Parse functions are the only trust-boundary entry point.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "moflow/pkg/domain-errors"
)

type (
	EmployeeID uuid.UUID
	OrgUnitID  uuid.UUID
	DetailID   uuid.UUID
	SessionID  uuid.UUID
)

func (id EmployeeID) String() string { return uuid.UUID(id).String() }
func (id EmployeeID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id OrgUnitID) String() string  { return uuid.UUID(id).String() }
func (id OrgUnitID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DetailID) String() string   { return uuid.UUID(id).String() }
func (id DetailID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) String() string  { return uuid.UUID(id).String() }
func (id SessionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func ParseEmployeeID(s string) (EmployeeID, error) {
	u, err := parseUUID(s, "employee id")
	return EmployeeID(u), err
}

func ParseOrgUnitID(s string) (OrgUnitID, error) {
	u, err := parseUUID(s, "org unit id")
	return OrgUnitID(u), err
}

func ParseDetailID(s string) (DetailID, error) {
	u, err := parseUUID(s, "detail id")
	return DetailID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs.
func parseUUID(s, what string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be nil")
	}
	return u, nil
}
