package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeInvalidSignature  = "INVALID_SIGNATURE"
	ErrCodeMalformedEvent    = "MALFORMED_EVENT"
	ErrCodeTransitionSkipped = "TRANSITION_SKIPPED"
	ErrCodePersistence       = "PERSISTENCE_ERROR"
	ErrCodeUpstream          = "UPSTREAM_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Error constructors

// NewConfigurationError reports a missing secret, credential or connection.
func NewConfigurationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConfiguration,
		Message: msg,
	}
}

// NewInvalidSignatureError wraps a webhook signature verification failure.
func NewInvalidSignatureError(err error) error {
	return &DomainError{
		Code:    ErrCodeInvalidSignature,
		Message: "webhook signature verification failed",
		Err:     err,
	}
}

// NewMalformedEventError wraps a payload that verified but could not be parsed.
func NewMalformedEventError(err error) error {
	return &DomainError{
		Code:    ErrCodeMalformedEvent,
		Message: "webhook payload is not a valid event",
		Err:     err,
	}
}

// NewTransitionSkippedError marks a recognized event that lacks the data
// needed to apply its transition.
func NewTransitionSkippedError(eventType, reason string) error {
	return &DomainError{
		Code:    ErrCodeTransitionSkipped,
		Message: fmt.Sprintf("%s skipped: %s", eventType, reason),
	}
}

// NewPersistenceError wraps a failed database read or write.
func NewPersistenceError(op string, err error) error {
	return &DomainError{
		Code:    ErrCodePersistence,
		Message: op,
		Err:     err,
	}
}

// NewUpstreamError wraps a failed call to the payment provider.
func NewUpstreamError(op string, err error) error {
	return &DomainError{
		Code:    ErrCodeUpstream,
		Message: op,
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(msg string) error {
	return &DomainError{
		Code:    ErrCodeUnauthorized,
		Message: msg,
	}
}

// Helper functions to check error types

func hasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsInvalidSignature checks if the error is a signature verification error
func IsInvalidSignature(err error) bool { return hasCode(err, ErrCodeInvalidSignature) }

// IsMalformedEvent checks if the error is a malformed event error
func IsMalformedEvent(err error) bool { return hasCode(err, ErrCodeMalformedEvent) }

// IsTransitionSkipped checks if the error is a skipped transition
func IsTransitionSkipped(err error) bool { return hasCode(err, ErrCodeTransitionSkipped) }

// IsPersistence checks if the error is a persistence error
func IsPersistence(err error) bool { return hasCode(err, ErrCodePersistence) }

// IsUpstream checks if the error is a payment provider error
func IsUpstream(err error) bool { return hasCode(err, ErrCodeUpstream) }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool { return hasCode(err, ErrCodeUnauthorized) }

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}
