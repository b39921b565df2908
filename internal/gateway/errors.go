package gateway

import (
	"encoding/json"
	"fmt"
)

// AppError is the application-level error object the remote API returns in
// place of an identifier: {"error": true, "error_key": "...", ...}.
type AppError struct {
	ErrorKey    string          `json:"error_key"`
	Description string          `json:"description,omitempty"`
	Status      int             `json:"status,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

func (e *AppError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.ErrorKey, e.Description)
	}
	return e.ErrorKey
}

func parseAppError(body []byte) (*AppError, bool) {
	var envelope struct {
		Error bool `json:"error"`
		AppError
	}
	if err := json.Unmarshal(body, &envelope); err != nil || !envelope.Error {
		return nil, false
	}
	appErr := envelope.AppError
	appErr.Raw = append(json.RawMessage(nil), body...)
	return &appErr, true
}

// TransportError is returned when the call did not produce a 2xx response:
// the server answered with another status, the connection failed or the
// context expired. Body holds whatever the server sent, if anything.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("gateway: %s %s: status %d", e.Method, e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AppError extracts an application error from the response body. The
// remote API answers most rejected submissions with a 4xx status and the
// same error object a resolved call would carry.
func (e *TransportError) AppError() (*AppError, bool) {
	if len(e.Body) == 0 {
		return nil, false
	}
	return parseAppError(e.Body)
}

// Payload is the raw failure as JSON: the body itself when the server sent
// JSON, otherwise a small object describing the failure.
func (e *TransportError) Payload() json.RawMessage {
	if len(e.Body) > 0 && json.Valid(e.Body) {
		return append(json.RawMessage(nil), e.Body...)
	}
	desc := map[string]any{"status": e.StatusCode}
	if len(e.Body) > 0 {
		desc["body"] = string(e.Body)
	}
	if e.Err != nil {
		desc["message"] = e.Err.Error()
	}
	raw, _ := json.Marshal(desc)
	return raw
}
