package backend

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	// Message is the server's message field, or its error field when the
	// message is empty.
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned status %d, body: %s", e.StatusCode, e.Body)
}

// ServerMessage returns the message the backend put in the response body.
func (e *APIError) ServerMessage() string {
	return e.Message
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}

	var payload ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	}
	return apiErr
}
