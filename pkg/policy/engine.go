// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package policy decides whether an authenticated caller may use a resource.
// The decision is driven by the Keycloak realm roles in the caller's claims.
package policy

import (
	"context"
	"errors"
	"fmt"

	rserrors "github.com/openchami/reportsmith/pkg/errors"
	"github.com/openchami/reportsmith/pkg/token"
)

// DefaultRequiredRole is the realm role that grants access to reports
const DefaultRequiredRole = "prothetic_user"

var (
	// ErrUnauthenticated indicates no verified claim set was supplied
	ErrUnauthenticated = errors.New("caller is not authenticated")

	// ErrMissingRole indicates the caller lacks the required role
	ErrMissingRole = errors.New("required role missing")
)

// Request is a single authorization question
type Request struct {
	// Claims is the verified claim set; nil means unauthenticated
	Claims *token.Claims
	// Resource is the request path
	Resource string
	// Action is the HTTP method
	Action string
}

// Decision is the outcome of evaluating a Request
type Decision struct {
	Allowed bool `json:"allowed"`
	// Role is the role that granted access, or the role that was required
	Role   string `json:"role,omitempty"`
	Engine string `json:"engine"`
}

// Engine evaluates authorization requests. Implementations must be safe for
// concurrent use.
//
// A denied request returns a non-nil Decision with Allowed false together
// with an error carrying the FORBIDDEN or UNAUTHORIZED code. Any other
// error is an evaluation failure.
type Engine interface {
	Evaluate(ctx context.Context, req *Request) (*Decision, error)
}

// Authorize requires claims to be present and to carry requiredRole among
// the realm roles.
func Authorize(claims *token.Claims, requiredRole string) error {
	if claims == nil {
		return NotAuthenticatedError()
	}
	if !claims.HasRealmRole(requiredRole) {
		return MissingRoleError(requiredRole)
	}
	return nil
}

// NotAuthenticatedError is returned when no claim set reached the gate
func NotAuthenticatedError() *rserrors.ReportSmithError {
	return rserrors.Wrap(ErrUnauthenticated, rserrors.ErrCodeUnauthorized, rserrors.MsgNotAuthenticated)
}

// MissingRoleError is returned when the caller lacks role. Its message is
// shown to the caller.
func MissingRoleError(role string) *rserrors.ReportSmithError {
	return rserrors.Wrap(ErrMissingRole, rserrors.ErrCodeForbidden, fmt.Sprintf("Role '%s' required", role)).
		WithDetails("required_role", role)
}

// EngineName returns a printable name for engine
func EngineName(engine Engine) string {
	if named, ok := engine.(interface{ GetName() string }); ok {
		return named.GetName()
	}
	return fmt.Sprintf("%T", engine)
}
