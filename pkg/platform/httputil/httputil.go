// Package httputil centralizes JSON responses and domain error translation.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "moflow/pkg/domain-errors"
	"moflow/pkg/platform/sentinel"
)

// maxBodyBytes bounds request bodies accepted by DecodeJSON.
const maxBodyBytes = 1 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes a request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// WriteError maps err to a status and a stable error envelope. Internal
// errors never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := codeFor(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if de, ok := dErrors.As(err); ok {
			body["error_description"] = de.Message
		} else {
			body["error_description"] = err.Error()
		}
	}
	WriteJSON(w, StatusFor(code), body)
}

// StatusOf returns the status WriteError would answer err with.
func StatusOf(err error) int {
	return StatusFor(codeFor(err))
}

func codeFor(err error) dErrors.Code {
	if _, ok := dErrors.As(err); ok {
		return dErrors.CodeOf(err)
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.CodeNotFound
	case errors.Is(err, sentinel.ErrInvalidState), errors.Is(err, sentinel.ErrBusy):
		return dErrors.CodeConflict
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.CodeUnavailable
	}
	return dErrors.CodeInternal
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeValidation:
		return http.StatusUnprocessableEntity
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
