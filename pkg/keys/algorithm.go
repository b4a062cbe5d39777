// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package keys

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AcceptedAlgorithm is the only signature algorithm accepted for access tokens
const AcceptedAlgorithm = "RS256"

// AcceptedAlgorithms is the list form of AcceptedAlgorithm for jwt.WithValidMethods
var AcceptedAlgorithms = []string{AcceptedAlgorithm}

// ValidateAlgorithm rejects every algorithm other than RS256, including
// "none", HMAC variants and other RSA modes.
func ValidateAlgorithm(alg string) error {
	if alg != AcceptedAlgorithm {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	return nil
}

// SigningMethod returns the jwt signing method matching AcceptedAlgorithm
func SigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}
