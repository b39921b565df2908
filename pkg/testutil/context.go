package testutil

import (
	"net/http"

	"github.com/google/uuid"
)

// SessionHeader is the header the API reads the UI session from.
const SessionHeader = "X-Session-ID"

// WithSession sets the session header on req and returns it.
func WithSession(req *http.Request, sessionID string) *http.Request {
	req.Header.Set(SessionHeader, sessionID)
	return req
}

// NewSessionID returns a fresh session identifier for a test.
func NewSessionID() string {
	return uuid.NewString()
}
