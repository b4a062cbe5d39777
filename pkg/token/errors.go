// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package token

import (
	"errors"

	"github.com/openchami/reportsmith/pkg/keys"
)

var (
	// ErrMalformedToken indicates the token could not be split or decoded
	ErrMalformedToken = errors.New("malformed token")

	// ErrUnsupportedAlgorithm indicates the header declares an algorithm other than RS256
	ErrUnsupportedAlgorithm = keys.ErrUnsupportedAlgorithm

	// ErrMissingKeyID indicates the header has no kid
	ErrMissingKeyID = errors.New("token header has no key ID")

	// ErrKeyResolution indicates no signing key could be obtained for the kid
	ErrKeyResolution = errors.New("signing key could not be resolved")

	// ErrSignatureInvalid indicates the signature does not match the resolved key
	ErrSignatureInvalid = errors.New("invalid token signature")

	// ErrTokenExpired indicates that the token has expired or has no exp claim
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenNotValidYet indicates that the token is not yet valid
	ErrTokenNotValidYet = errors.New("token is not yet valid")

	// ErrInvalidIssuer indicates the issuer is not accepted
	ErrInvalidIssuer = errors.New("issuer not accepted")

	// ErrInvalidClient indicates the token was not issued to an accepted client
	ErrInvalidClient = errors.New("client not accepted")

	// ErrInvalidToken covers any other verification failure
	ErrInvalidToken = errors.New("invalid token")
)
