// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package errors provides the coded error type shared by the verifier, the
// authorization gate and the HTTP boundary.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Authentication errors
	ErrCodeMissingToken         ErrorCode = "MISSING_TOKEN"
	ErrCodeTokenMalformed       ErrorCode = "TOKEN_MALFORMED"
	ErrCodeKeyResolution        ErrorCode = "KEY_RESOLUTION"
	ErrCodeSignatureInvalid     ErrorCode = "SIGNATURE_INVALID"
	ErrCodeUnsupportedAlgorithm ErrorCode = "UNSUPPORTED_ALGORITHM"
	ErrCodeTokenExpired         ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInvalidIssuer        ErrorCode = "INVALID_ISSUER"
	ErrCodeInvalidClient        ErrorCode = "INVALID_CLIENT"
	ErrCodeInvalidToken         ErrorCode = "INVALID_TOKEN"

	// Authorization errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// Identity provider errors
	ErrCodeJWKSUnavailable ErrorCode = "JWKS_UNAVAILABLE"
	ErrCodeProviderError   ErrorCode = "PROVIDER_ERROR"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Routing and internal errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Messages returned to HTTP callers. Verification failures share one
// generic message so callers cannot tell which check failed.
const (
	MsgAccessTokenRequired = "Access token required"
	MsgInvalidTokenFormat  = "Invalid token format"
	MsgInvalidClient       = "Invalid client"
	MsgInvalidToken        = "Invalid or expired token"
	MsgNotAuthenticated    = "User not authenticated"
	MsgEndpointNotFound    = "Endpoint not found"
	MsgInternal            = "Internal server error"
	MsgPanic               = "Something went wrong!"
)

// ReportSmithError represents a standardized error with context
type ReportSmithError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"http_status"`
	TraceID    string                 `json:"trace_id,omitempty"`
}

// Error implements the error interface
func (e *ReportSmithError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ReportSmithError) Unwrap() error {
	return e.Cause
}

// WithDetails adds additional context to the error
func (e *ReportSmithError) WithDetails(key string, value interface{}) *ReportSmithError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithTraceID adds a trace ID to the error
func (e *ReportSmithError) WithTraceID(traceID string) *ReportSmithError {
	e.TraceID = traceID
	return e
}

// New creates a new ReportSmithError with the given code and message
func New(code ErrorCode, message string) *ReportSmithError {
	return &ReportSmithError{
		Code:       code,
		Message:    message,
		HTTPStatus: getHTTPStatus(code),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *ReportSmithError {
	return &ReportSmithError{
		Code:       code,
		Message:    message,
		Cause:      err,
		HTTPStatus: getHTTPStatus(code),
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ReportSmithError {
	return &ReportSmithError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Cause:      err,
		HTTPStatus: getHTTPStatus(code),
	}
}

// getHTTPStatus returns the appropriate HTTP status code for an error code
func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeMissingToken, ErrCodeTokenMalformed, ErrCodeKeyResolution, ErrCodeSignatureInvalid,
		ErrCodeUnsupportedAlgorithm, ErrCodeTokenExpired, ErrCodeInvalidIssuer, ErrCodeInvalidClient,
		ErrCodeInvalidToken, ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeJWKSUnavailable, ErrCodeProviderError:
		return http.StatusServiceUnavailable
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// As returns the first ReportSmithError in err's chain
func As(err error) (*ReportSmithError, bool) {
	var rsErr *ReportSmithError
	if stderrors.As(err, &rsErr) {
		return rsErr, true
	}
	return nil, false
}

// IsReportSmithError checks if an error is a ReportSmithError
func IsReportSmithError(err error) bool {
	_, ok := As(err)
	return ok
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	if rsErr, ok := As(err); ok {
		return rsErr.Code
	}
	return ErrCodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error
func GetHTTPStatus(err error) int {
	if rsErr, ok := As(err); ok {
		return rsErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetTraceID extracts the trace ID from an error
func GetTraceID(err error) string {
	if rsErr, ok := As(err); ok {
		return rsErr.TraceID
	}
	return ""
}

// PublicMessage returns the message that may be shown to an HTTP caller.
// Only the missing token, malformed token and client binding failures get
// a specific message; every other authentication failure is generic.
// Forbidden errors carry their own message because they name the missing role.
func PublicMessage(err error) string {
	rsErr, ok := As(err)
	if !ok {
		return MsgInternal
	}

	switch rsErr.Code {
	case ErrCodeMissingToken:
		return MsgAccessTokenRequired
	case ErrCodeTokenMalformed:
		return MsgInvalidTokenFormat
	case ErrCodeInvalidClient:
		return MsgInvalidClient
	case ErrCodeUnauthorized:
		return MsgNotAuthenticated
	case ErrCodeForbidden:
		return rsErr.Message
	case ErrCodeNotFound:
		return MsgEndpointNotFound
	case ErrCodeKeyResolution, ErrCodeSignatureInvalid, ErrCodeUnsupportedAlgorithm,
		ErrCodeTokenExpired, ErrCodeInvalidIssuer, ErrCodeInvalidToken, ErrCodeJWKSUnavailable:
		return MsgInvalidToken
	default:
		return MsgInternal
	}
}

// PublicStatus returns the HTTP status paired with PublicMessage. Key set
// outages surface as 401 like every other verification failure.
func PublicStatus(err error) int {
	rsErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if rsErr.Code == ErrCodeJWKSUnavailable {
		return http.StatusUnauthorized
	}
	return rsErr.HTTPStatus
}

// Common error constructors for frequently used errors

// NewMissingToken creates a missing token error
func NewMissingToken(message string) *ReportSmithError {
	return New(ErrCodeMissingToken, message)
}

// NewUnauthorized creates an unauthorized error
func NewUnauthorized(message string) *ReportSmithError {
	return New(ErrCodeUnauthorized, message)
}

// NewForbidden creates a forbidden error
func NewForbidden(message string) *ReportSmithError {
	return New(ErrCodeForbidden, message)
}

// NewInvalidToken creates an invalid token error
func NewInvalidToken(message string) *ReportSmithError {
	return New(ErrCodeInvalidToken, message)
}

// NewInvalidConfig creates an invalid config error
func NewInvalidConfig(message string) *ReportSmithError {
	return New(ErrCodeInvalidConfig, message)
}

// NewNotFound creates a not found error
func NewNotFound(message string) *ReportSmithError {
	return New(ErrCodeNotFound, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *ReportSmithError {
	return New(ErrCodeInternal, message)
}
