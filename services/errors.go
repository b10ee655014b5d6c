package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeTokenService ErrorType = "token_service"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// Machine-readable codes returned to clients alongside the HTTP status
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodePrincipalNotFound   = "PRINCIPAL_NOT_FOUND"
	CodePrincipalInactive   = "PRINCIPAL_INACTIVE"
	CodeForbidden           = "FORBIDDEN"
	CodeIncompleteProfile   = "INCOMPLETE_PROFILE"
	CodeAccountDisabled     = "ACCOUNT_DISABLED"
	CodeNotFound            = "NOT_FOUND"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeConflict            = "CONFLICT"
	CodeTokenServiceFailure = "TOKEN_SERVICE_FAILURE"
	CodeInternal            = "INTERNAL_ERROR"
	CodeProviderFailure     = "PROVIDER_FAILURE"
)

// DomainError represents a structured error with additional context.
// Code narrows Type: two errors of the same Type but different Codes are
// distinguishable with errors.Is.
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. A target without a Code matches on Type alone.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// WithDetail adds a detail to the error. Call it on a fresh error, never on a sentinel.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e carrying err as its cause
func (e *DomainError) Wrap(err error) *DomainError {
	c := e.clone()
	c.Err = err
	return c
}

// WithMessage returns a copy of e with a different client-facing message
func (e *DomainError) WithMessage(message string) *DomainError {
	c := e.clone()
	c.Message = message
	return c
}

func (e *DomainError) clone() *DomainError {
	details := make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		details[k] = v
	}
	return &DomainError{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: details,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// NewCodedError creates a domain error with a client-facing code
func NewCodedError(errType ErrorType, code, message string) *DomainError {
	e := NewDomainError(errType, message, nil)
	e.Code = code
	return e
}

// Domain error variables

var (
	// Authentication errors
	ErrUnauthenticated     = NewCodedError(ErrorTypeUnauthorized, CodeUnauthenticated, "Access token required")
	ErrTokenExpired        = NewCodedError(ErrorTypeUnauthorized, CodeTokenExpired, "Token expired")
	ErrMalformedToken      = NewCodedError(ErrorTypeUnauthorized, CodeInvalidToken, "Invalid token")
	ErrRefreshTokenInvalid = NewCodedError(ErrorTypeUnauthorized, CodeInvalidRefreshToken, "Invalid refresh token")
	ErrPrincipalNotFound   = NewCodedError(ErrorTypeUnauthorized, CodePrincipalNotFound, "Invalid token or user not active")
	ErrPrincipalInactive   = NewCodedError(ErrorTypeUnauthorized, CodePrincipalInactive, "Invalid token or user not active")

	// Permission errors
	ErrForbidden         = NewCodedError(ErrorTypeForbidden, CodeForbidden, "Insufficient permissions")
	ErrAccessDenied      = NewCodedError(ErrorTypeForbidden, CodeForbidden, "Access denied: insufficient permissions")
	ErrIncompleteProfile = NewCodedError(ErrorTypeForbidden, CodeIncompleteProfile, "Profile must be more complete to perform this action")
	ErrAccountDisabled   = NewCodedError(ErrorTypeForbidden, CodeAccountDisabled, "Account is disabled")

	// Not found errors
	ErrUserNotFound = NewCodedError(ErrorTypeNotFound, CodeNotFound, "User not found")

	// Validation errors
	ErrInvalidInput = NewCodedError(ErrorTypeValidation, CodeValidationFailed, "Validation failed")
	ErrInvalidID    = NewCodedError(ErrorTypeValidation, CodeValidationFailed, "Invalid user ID")

	// Rate limit errors
	ErrRateLimitExceeded = NewCodedError(ErrorTypeRateLimit, CodeRateLimited, "Too many authentication attempts. Please try again later.")

	// Conflict errors
	ErrConflict          = NewCodedError(ErrorTypeConflict, CodeConflict, "resource already exists")
	ErrDuplicateEmail    = NewCodedError(ErrorTypeConflict, CodeConflict, "email already exists")
	ErrDuplicateGoogleID = NewCodedError(ErrorTypeConflict, CodeConflict, "google account already linked")

	// Token service errors
	ErrTokenIssuance = NewCodedError(ErrorTypeTokenService, CodeTokenServiceFailure, "Token generation failed")
	ErrTokenStore    = NewCodedError(ErrorTypeTokenService, CodeTokenServiceFailure, "Token store unavailable")

	// Internal errors
	ErrInternal = NewCodedError(ErrorTypeInternal, CodeInternal, "internal server error")

	// External provider errors
	ErrProviderExchange = NewCodedError(ErrorTypeExternal, CodeProviderFailure, "identity provider exchange failed")
)

// Error type checking helper functions

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return hasType(err, ErrorTypeForbidden)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsTokenServiceError checks if an error is a signing or token persistence failure
func IsTokenServiceError(err error) bool {
	return hasType(err, ErrorTypeTokenService)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return hasType(err, ErrorTypeExternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the client code of a domain error, or empty string
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorMessage returns the client-facing message of a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	e := NewDomainError(ErrorTypeInternal, message, err)
	e.Code = CodeInternal
	return e
}
