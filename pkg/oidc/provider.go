// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package oidc describes the identity provider endpoints reportsmith relies on.
package oidc

import (
	"context"
	"fmt"
)

// ProviderMetadata is the subset of the OpenID Connect discovery document
// reportsmith uses.
type ProviderMetadata struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                    string   `json:"token_endpoint,omitempty"`
	IntrospectionEndpoint            string   `json:"introspection_endpoint,omitempty"`
	JWKSURI                          string   `json:"jwks_uri"`
	ScopesSupported                  []string `json:"scopes_supported,omitempty"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// Validate checks the fields reportsmith cannot work without
func (m *ProviderMetadata) Validate() error {
	if m.Issuer == "" {
		return fmt.Errorf("missing required field: issuer")
	}
	if m.JWKSURI == "" {
		return fmt.Errorf("missing required field: jwks_uri")
	}
	return nil
}

// Provider is an identity provider that publishes its metadata and signing keys
type Provider interface {
	// GetProviderMetadata fetches the discovery document
	GetProviderMetadata(ctx context.Context) (*ProviderMetadata, error)

	// IssuerURL is the iss value of tokens the provider issues
	IssuerURL() string

	// JWKSURL is where the provider publishes its signing keys
	JWKSURL() string
}
