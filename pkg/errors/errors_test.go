// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = stderrors.New("sentinel")

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(errSentinel, ErrCodeTokenExpired, "token expired")

	assert.True(t, stderrors.Is(err, errSentinel))
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatus)
	assert.Contains(t, err.Error(), "TOKEN_EXPIRED")
	assert.Contains(t, err.Error(), "sentinel")
}

func TestAsFindsWrappedError(t *testing.T) {
	inner := New(ErrCodeForbidden, "Role 'admin' required")
	outer := fmt.Errorf("authorize: %w", inner)

	rsErr, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, ErrCodeForbidden, rsErr.Code)
	assert.Equal(t, ErrCodeForbidden, GetErrorCode(outer))
	assert.Equal(t, http.StatusForbidden, GetHTTPStatus(outer))
	assert.True(t, IsReportSmithError(outer))
	assert.False(t, IsReportSmithError(errSentinel))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(errSentinel))
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantMsg    string
		wantStatus int
	}{
		{"missing token", NewMissingToken("no header"), MsgAccessTokenRequired, http.StatusUnauthorized},
		{"malformed", New(ErrCodeTokenMalformed, "bad segments"), MsgInvalidTokenFormat, http.StatusUnauthorized},
		{"invalid client", New(ErrCodeInvalidClient, "azp mismatch"), MsgInvalidClient, http.StatusUnauthorized},
		{"expired", New(ErrCodeTokenExpired, "exp in the past"), MsgInvalidToken, http.StatusUnauthorized},
		{"issuer", New(ErrCodeInvalidIssuer, "iss mismatch"), MsgInvalidToken, http.StatusUnauthorized},
		{"algorithm", New(ErrCodeUnsupportedAlgorithm, "HS256"), MsgInvalidToken, http.StatusUnauthorized},
		{"key set outage", New(ErrCodeJWKSUnavailable, "dial tcp"), MsgInvalidToken, http.StatusUnauthorized},
		{"no claims", NewUnauthorized("no claims"), MsgNotAuthenticated, http.StatusUnauthorized},
		{"forbidden", NewForbidden("Role 'prothetic_user' required"), "Role 'prothetic_user' required", http.StatusForbidden},
		{"not found", NewNotFound("/nope"), MsgEndpointNotFound, http.StatusNotFound},
		{"plain error", errSentinel, MsgInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, PublicMessage(tt.err))
			assert.Equal(t, tt.wantStatus, PublicStatus(tt.err))
		})
	}
}

func TestWithDetails(t *testing.T) {
	err := NewForbidden("Role 'x' required").WithDetails("required_role", "x").WithTraceID("abc")

	assert.Equal(t, "x", err.Details["required_role"])
	assert.Equal(t, "abc", GetTraceID(err))
}
