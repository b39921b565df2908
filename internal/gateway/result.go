package gateway

import (
	"encoding/json"
	"fmt"

	dErrors "moflow/pkg/domain-errors"
)

// Result is a resolved (2xx) response. Data is either an identifier, a
// sequence of identifiers or an application error object.
type Result struct {
	StatusCode int
	Data       json.RawMessage
}

// Failure reports the application error carried by a resolved response.
func (r Result) Failure() (*AppError, bool) {
	return parseAppError(r.Data)
}

// Identifier returns the created or edited object's uuid. When the remote
// API answers with a sequence the first element is used.
func (r Result) Identifier() (string, error) {
	var single string
	if err := json.Unmarshal(r.Data, &single); err == nil {
		if single == "" {
			return "", dErrors.New(dErrors.CodeInternal, "gateway: empty identifier")
		}
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(r.Data, &many); err == nil {
		if len(many) == 0 || many[0] == "" {
			return "", dErrors.New(dErrors.CodeInternal, "gateway: empty identifier list")
		}
		return many[0], nil
	}
	var obj struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(r.Data, &obj); err == nil && obj.UUID != "" {
		return obj.UUID, nil
	}
	return "", dErrors.New(dErrors.CodeInternal, fmt.Sprintf("gateway: unexpected response %s", truncate(r.Data, 128)))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
