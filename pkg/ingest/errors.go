// Package ingest turns vault notes into knowledge graph episodes.
package ingest

import "errors"

// Common ingestion errors
var (
	// ErrEmptyExtraction indicates the extractor returned no usable output
	ErrEmptyExtraction = errors.New("extraction returned no entities or edges")
)

// RateLimitError represents an API rate limit error with optional custom message
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit exceeded. Please try again later"
	}
	return e.Message
}

// Is implements errors.Is support for RateLimitError.
// This allows errors.Is(err, &RateLimitError{}) to work with wrapped errors.
func (e *RateLimitError) Is(target error) bool {
	_, ok := target.(*RateLimitError)
	return ok
}

// NewRateLimitError creates a new rate limit error with optional custom message
func NewRateLimitError(message ...string) *RateLimitError {
	err := &RateLimitError{}
	if len(message) > 0 {
		err.Message = message[0]
	}
	return err
}

// InfrastructureError represents a provider-side outage, such as a gateway
// returning an HTML error page instead of a completion. Syncs abort when one
// is seen.
type InfrastructureError struct {
	Message string
}

func (e *InfrastructureError) Error() string {
	if e.Message == "" {
		return "service provider infrastructure issue"
	}
	return e.Message
}

// Is implements errors.Is support for InfrastructureError.
func (e *InfrastructureError) Is(target error) bool {
	_, ok := target.(*InfrastructureError)
	return ok
}

// NewInfrastructureError creates a new infrastructure error
func NewInfrastructureError(message string) *InfrastructureError {
	return &InfrastructureError{Message: message}
}
