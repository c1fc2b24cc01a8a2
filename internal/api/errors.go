// Package api is the typed client for the agent endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrConfirmationToken is returned when the agent rejects an import token
// as unknown, expired or already used.
var ErrConfirmationToken = errors.New("import token rejected")

// Error is a non-2xx agent reply. Message is the server-provided text,
// surfaced to the user verbatim.
type Error struct {
	Op      string
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

// Unwrap exposes the error category, if any.
func (e *Error) Unwrap() error {
	return e.kind
}

// UserMessage returns the text to show to the user.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func decodeError(op string, resp *http.Response, body []byte, fallback string) *Error {
	e := &Error{Op: op, Status: resp.StatusCode, Message: fallback}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		e.Message = payload.Error
	}
	return e
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
