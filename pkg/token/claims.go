// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package token verifies Keycloak access tokens and mints tokens of the same
// shape for local development and tests.
package token

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Access is a list of roles granted in a realm or client
type Access struct {
	Roles []string `json:"roles,omitempty"`
}

// Claims is the claim set of a Keycloak access token.
//
// Registered claims come from jwt.RegisteredClaims. The remaining fields are
// the OpenID Connect profile claims and the Keycloak extensions that carry
// the authorized party and role grants.
type Claims struct {
	jwt.RegisteredClaims

	// AuthorizedParty is the client the token was issued to ("azp")
	AuthorizedParty string `json:"azp,omitempty"`

	// RealmAccess holds the realm roles; these drive authorization
	RealmAccess Access `json:"realm_access,omitzero"`

	// ResourceAccess holds client roles keyed by client id
	ResourceAccess map[string]Access `json:"resource_access,omitempty"`

	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`

	// Type is the Keycloak token type, "Bearer" for access tokens
	Type string `json:"typ,omitempty"`

	// Scope is the space separated list of granted scopes
	Scope string `json:"scope,omitempty"`

	SessionID string `json:"sid,omitempty"`
}

// NewClaims creates claims valid for one hour from now
func NewClaims() *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Type: "Bearer",
	}
}

// RealmRoles returns the realm roles granted to the caller
func (c *Claims) RealmRoles() []string {
	if c == nil {
		return nil
	}
	return c.RealmAccess.Roles
}

// HasRealmRole reports whether role is among the realm roles
func (c *Claims) HasRealmRole(role string) bool {
	return slices.Contains(c.RealmRoles(), role)
}

// ClientRoles returns the roles granted for a specific client
func (c *Claims) ClientRoles(clientID string) []string {
	if c == nil || c.ResourceAccess == nil {
		return nil
	}
	return c.ResourceAccess[clientID].Roles
}

// Username returns preferred_username, falling back to the subject
func (c *Claims) Username() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}
