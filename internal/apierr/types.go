// Package apierr defines the gateway's error taxonomy and the wire envelopes
// used when surfacing failures to clients.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoCredentials is returned when the pool has no eligible credential:
// none configured, or all disabled / cooling down.
var ErrNoCredentials = errors.New("no credentials available")

// APIError represents a standardized error surfaced to clients.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
	Type       string
	Details    map[string]interface{}
}

func New(httpStatus int, code, errType, message string) *APIError {
	return &APIError{HTTPStatus: httpStatus, Code: code, Type: errType, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	e.Details = details
	return e
}

// Envelope is the uniform error body: a single "error" object carrying the
// message, a coarse type, and the HTTP status as numeric code. Streaming
// responses emit the same envelope as one SSE data event.
type Envelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// ToEnvelopeJSON renders the uniform envelope.
func (e *APIError) ToEnvelopeJSON() []byte {
	var env Envelope
	env.Error.Message = e.Message
	env.Error.Type = e.Type
	env.Error.Code = e.HTTPStatus
	b, err := json.Marshal(env)
	if err != nil {
		return []byte(`{"error":{"message":"internal error","type":"api_error","code":500}}`)
	}
	return b
}

// EnvelopeJSON builds the uniform envelope directly from parts.
func EnvelopeJSON(status int, message string) []byte {
	return New(status, "", "api_error", message).ToEnvelopeJSON()
}

func (e *APIError) IsRetryable() bool {
	switch e.HTTPStatus {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusRequestTimeout:
		return true
	}
	switch e.Code {
	case "timeout", "connection_error", "network_error", "dns_error":
		return true
	}
	return false
}

func (e *APIError) IsAuthFailure() bool {
	switch e.HTTPStatus {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
