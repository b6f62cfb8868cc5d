package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code and message, so a sentinel
// matches any error built from it with a cause attached.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// Wrap returns a copy of e with err attached as the cause.
func (e *DomainError) Wrap(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeAlreadyExists      = "ALREADY_EXISTS"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeRetrievalExhausted = "RETRIEVAL_EXHAUSTED"
	ErrCodeExecution          = "EXECUTION_ERROR"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeInvalidOperation   = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidStatus        = NewDomainError(ErrCodeValidation, "invalid research status")
)

// Not found errors
var (
	ErrRequestNotFound = NewDomainError(ErrCodeNotFound, "research request not found")
	ErrRecordNotFound  = NewDomainError(ErrCodeNotFound, "research record not found")
	ErrTeamNotFound    = NewDomainError(ErrCodeNotFound, "team not found")
	ErrUserNotFound    = NewDomainError(ErrCodeNotFound, "user not found")
)

// Already exists errors
var (
	ErrTeamAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "team already exists")
	ErrUserAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "user already exists")
)

// Processing errors
var (
	ErrMissingCredentials  = NewDomainError(ErrCodeConfiguration, "model credentials not configured for team")
	ErrRetrievalExhausted  = NewDomainError(ErrCodeRetrievalExhausted, "no chunks retrieved for document")
	ErrQueryExecution      = NewDomainError(ErrCodeExecution, "query execution failed")
	ErrSynthesis           = NewDomainError(ErrCodeExecution, "summary synthesis failed")
	ErrRequestNotClaimable = NewDomainError(ErrCodeInvalidOperation, "research request status changed under the claim")
	ErrExportNotConfigured = NewDomainError(ErrCodeInvalidOperation, "record export storage not configured")
)
