package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
//   - ErrNotFound: session, dialog or draft does not exist
//   - ErrInvalidState: dialog or draft in the wrong state for the operation
//   - ErrBusy: a submission is already in flight
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrBusy         = errors.New("busy")
	ErrUnavailable  = errors.New("unavailable")
)
