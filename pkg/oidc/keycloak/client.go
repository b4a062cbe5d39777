// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package keycloak derives Keycloak realm endpoints and reads realm discovery.
package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openchami/reportsmith/pkg/oidc"
)

// DefaultTimeout bounds discovery requests
const DefaultTimeout = 10 * time.Second

// Client implements oidc.Provider for a single Keycloak realm
type Client struct {
	baseURL    string
	realm      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for discovery
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Keycloak client for realm at baseURL
func NewClient(baseURL, realm string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		realm:      realm,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ oidc.Provider = (*Client)(nil)

// RealmURL returns <base>/realms/<realm>
func RealmURL(baseURL, realm string) string {
	return fmt.Sprintf("%s/realms/%s", strings.TrimRight(baseURL, "/"), realm)
}

// Realm returns the realm name
func (c *Client) Realm() string {
	return c.realm
}

// IssuerURL returns the issuer Keycloak stamps on tokens requested through baseURL
func (c *Client) IssuerURL() string {
	return RealmURL(c.baseURL, c.realm)
}

// JWKSURL returns the realm certs endpoint
func (c *Client) JWKSURL() string {
	return c.IssuerURL() + "/protocol/openid-connect/certs"
}

// DiscoveryURL returns the realm's well-known configuration endpoint
func (c *Client) DiscoveryURL() string {
	return c.IssuerURL() + "/.well-known/openid-configuration"
}

// GetProviderMetadata returns Keycloak's OIDC provider metadata
func (c *Client) GetProviderMetadata(ctx context.Context) (*oidc.ProviderMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DiscoveryURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get provider metadata with status: %d", resp.StatusCode)
	}

	var metadata oidc.ProviderMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	return &metadata, nil
}
