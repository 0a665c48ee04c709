package executor

import (
	"fmt"
)

// ValidationError means the task shape was rejected before any request
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid task: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ImageReadError means a referenced image could not be read or encoded
type ImageReadError struct {
	Err error
}

func (e *ImageReadError) Error() string {
	return "image read failed: " + e.Err.Error()
}

func (e *ImageReadError) Unwrap() error { return e.Err }

// NetworkError means the request could not be sent or its reply not received
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "request failed: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-2xx reply or a reply carrying an error object
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: status %d, body: %s", e.StatusCode, e.Body)
}

// ParseError means a 2xx reply body was not a chat completion
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "failed to parse response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }
