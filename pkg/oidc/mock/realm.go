// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package mock runs an in-process Keycloak realm for tests. It publishes a
// JWKS and a discovery document and mints RS256 access tokens signed by the
// published key.
package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/openchami/reportsmith/pkg/keys"
	"github.com/openchami/reportsmith/pkg/oidc"
	"github.com/openchami/reportsmith/pkg/oidc/keycloak"
	"github.com/openchami/reportsmith/pkg/token"
)

// DefaultRealm is the realm name used when NewRealm is given none
const DefaultRealm = "reports-realm"

// Realm is a fake Keycloak realm backed by httptest.Server
type Realm struct {
	server  *httptest.Server
	client  *keycloak.Client
	name    string
	fetches atomic.Int64

	mu          sync.RWMutex
	signer      *keys.KeyManager
	published   []*keys.KeyManager
	unavailable bool
	clientID    string
}

// NewRealm starts a realm with one published signing key
func NewRealm(name string) (*Realm, error) {
	if name == "" {
		name = DefaultRealm
	}

	km := keys.NewKeyManager()
	if err := km.GenerateRSAKeyPair(); err != nil {
		return nil, err
	}

	r := &Realm{
		name:      name,
		signer:    km,
		published: []*keys.KeyManager{km},
		clientID:  "reports-frontend",
	}

	router := chi.NewRouter()
	router.Route("/realms/{realm}", func(rt chi.Router) {
		rt.Get("/protocol/openid-connect/certs", r.serveCerts)
		rt.Get("/.well-known/openid-configuration", r.serveDiscovery)
	})
	r.server = httptest.NewServer(router)
	r.client = keycloak.NewClient(r.server.URL, name)

	return r, nil
}

// Close shuts the realm server down
func (r *Realm) Close() {
	r.server.Close()
}

// URL returns the Keycloak base URL
func (r *Realm) URL() string {
	return r.server.URL
}

// Name returns the realm name
func (r *Realm) Name() string {
	return r.name
}

// Issuer returns the iss value of minted tokens
func (r *Realm) Issuer() string {
	return r.client.IssuerURL()
}

// JWKSURL returns the certs endpoint
func (r *Realm) JWKSURL() string {
	return r.client.JWKSURL()
}

// KeyID returns the kid of the current signing key
func (r *Realm) KeyID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.signer.KeyID()
}

// Fetches returns how many times the certs endpoint was read
func (r *Realm) Fetches() int64 {
	return r.fetches.Load()
}

// SetAvailable makes the certs endpoint fail with 503 when false
func (r *Realm) SetAvailable(available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = !available
}

// RotateKey generates a new signing key. The previous key stays published
// unless retire is true.
func (r *Realm) RotateKey(retire bool) error {
	km := keys.NewKeyManager()
	if err := km.GenerateRSAKeyPair(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if retire {
		r.published = nil
	}
	r.signer = km
	r.published = append(r.published, km)
	return nil
}

type mintConfig struct {
	mutate     []func(*token.Claims)
	extra      map[string]interface{}
	method     jwt.SigningMethod
	signingKey interface{}
	kid        *string
	signer     *keys.KeyManager
}

// MintOption adjusts a minted token
type MintOption func(*mintConfig)

// WithRoles sets the realm roles
func WithRoles(roles ...string) MintOption {
	return WithClaims(func(c *token.Claims) { c.RealmAccess.Roles = roles })
}

// WithClient sets azp
func WithClient(clientID string) MintOption {
	return WithClaims(func(c *token.Claims) { c.AuthorizedParty = clientID })
}

// WithAudience sets aud
func WithAudience(aud ...string) MintOption {
	return WithClaims(func(c *token.Claims) { c.Audience = aud })
}

// WithIssuer overrides iss
func WithIssuer(issuer string) MintOption {
	return WithClaims(func(c *token.Claims) { c.Issuer = issuer })
}

// WithExpiry sets exp
func WithExpiry(exp time.Time) MintOption {
	return WithClaims(func(c *token.Claims) {
		c.ExpiresAt = jwt.NewNumericDate(exp)
		if c.IssuedAt != nil && c.IssuedAt.After(exp) {
			c.IssuedAt = jwt.NewNumericDate(exp.Add(-time.Minute))
			c.NotBefore = c.IssuedAt
		}
	})
}

// WithClaims applies an arbitrary change to the claims
func WithClaims(mutate func(*token.Claims)) MintOption {
	return func(mc *mintConfig) {
		mc.mutate = append(mc.mutate, mutate)
	}
}

// WithExtraClaims adds top level claims outside token.Claims
func WithExtraClaims(extra map[string]interface{}) MintOption {
	return func(mc *mintConfig) {
		mc.extra = extra
	}
}

// WithSigningMethod signs with method and key instead of the realm's RS256 key
func WithSigningMethod(method jwt.SigningMethod, key interface{}) MintOption {
	return func(mc *mintConfig) {
		mc.method = method
		mc.signingKey = key
	}
}

// WithKeyID overrides the kid header; an empty string removes it
func WithKeyID(kid string) MintOption {
	return func(mc *mintConfig) {
		mc.kid = &kid
	}
}

// WithUnpublishedKey signs with a fresh key that is not in the JWKS
func WithUnpublishedKey() MintOption {
	return func(mc *mintConfig) {
		km := keys.NewKeyManager()
		if err := km.GenerateRSAKeyPair(); err == nil {
			mc.signer = km
		}
	}
}

// Mint returns a signed access token for user alice with the
// prothetic_user role, adjusted by opts.
func (r *Realm) Mint(opts ...MintOption) (string, error) {
	r.mu.RLock()
	mc := &mintConfig{signer: r.signer}
	clientID := r.clientID
	r.mu.RUnlock()

	for _, opt := range opts {
		opt(mc)
	}

	claims := token.NewClaims()
	claims.Issuer = r.Issuer()
	claims.Subject = "f2c6e1c4-0d1e-4f0b-9b7a-3c1f4c6b2a10"
	claims.AuthorizedParty = clientID
	claims.PreferredUsername = "alice"
	claims.Email = "alice@example.com"
	claims.EmailVerified = true
	claims.Name = "Alice Example"
	claims.RealmAccess.Roles = []string{"prothetic_user", "offline_access"}
	claims.Scope = "openid profile email"
	for _, mutate := range mc.mutate {
		mutate(claims)
	}

	if mc.method == nil && mc.kid == nil && mc.extra == nil {
		return token.NewTokenManager(mc.signer, r.Issuer(), clientID).GenerateToken(claims)
	}

	var body jwt.Claims = claims
	if mc.extra != nil {
		body = &token.ExtendedClaims{Claims: claims, AdditionalClaims: mc.extra}
	}

	method, key := mc.method, mc.signingKey
	if method == nil {
		privateKey, err := mc.signer.GetRSAPrivateKey()
		if err != nil {
			return "", err
		}
		method, key = keys.SigningMethod(), privateKey
	}

	tok := jwt.NewWithClaims(method, body)
	tok.Header["kid"] = mc.signer.KeyID()
	if mc.kid != nil {
		if *mc.kid == "" {
			delete(tok.Header, "kid")
		} else {
			tok.Header["kid"] = *mc.kid
		}
	}
	return tok.SignedString(key)
}

// MustMint is Mint for tests that cannot proceed without a token
func (r *Realm) MustMint(opts ...MintOption) string {
	raw, err := r.Mint(opts...)
	if err != nil {
		panic(fmt.Sprintf("mock realm: mint token: %v", err))
	}
	return raw
}

func (r *Realm) serveCerts(w http.ResponseWriter, req *http.Request) {
	r.fetches.Add(1)
	if chi.URLParam(req, "realm") != r.name {
		http.Error(w, `{"error":"Realm does not exist"}`, http.StatusNotFound)
		return
	}

	r.mu.RLock()
	unavailable := r.unavailable
	published := append([]*keys.KeyManager(nil), r.published...)
	r.mu.RUnlock()

	if unavailable {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	set := jwk.NewSet()
	for _, km := range published {
		key, err := km.PublicJWK()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := set.AddKey(key); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

func (r *Realm) serveDiscovery(w http.ResponseWriter, req *http.Request) {
	if chi.URLParam(req, "realm") != r.name {
		http.Error(w, `{"error":"Realm does not exist"}`, http.StatusNotFound)
		return
	}

	issuer := r.Issuer()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(oidc.ProviderMetadata{
		Issuer:                           issuer,
		AuthorizationEndpoint:            issuer + "/protocol/openid-connect/auth",
		TokenEndpoint:                    issuer + "/protocol/openid-connect/token",
		IntrospectionEndpoint:            issuer + "/protocol/openid-connect/token/introspect",
		JWKSURI:                          r.JWKSURL(),
		ScopesSupported:                  []string{"openid", "profile", "email"},
		IDTokenSigningAlgValuesSupported: []string{keys.AcceptedAlgorithm},
	})
}
