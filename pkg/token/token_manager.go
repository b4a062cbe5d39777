// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package token

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/openchami/reportsmith/pkg/keys"
)

// DefaultTokenLifetime matches the Keycloak default access token lifespan
const DefaultTokenLifetime = 5 * time.Minute

// TokenManager mints RS256 access tokens shaped like the ones Keycloak
// issues. It backs the local realm used in tests and by generate-token.
type TokenManager struct {
	keyManager *keys.KeyManager
	issuer     string
	clientID   string
	lifetime   time.Duration
}

// NewTokenManager creates a new TokenManager instance
func NewTokenManager(keyManager *keys.KeyManager, issuer, clientID string) *TokenManager {
	return &TokenManager{
		keyManager: keyManager,
		issuer:     issuer,
		clientID:   clientID,
		lifetime:   DefaultTokenLifetime,
	}
}

// SetLifetime changes the lifetime applied to claims without exp
func (tm *TokenManager) SetLifetime(lifetime time.Duration) {
	tm.lifetime = lifetime
}

// Issuer returns the iss value stamped on minted tokens
func (tm *TokenManager) Issuer() string {
	return tm.issuer
}

// GetKeyManager returns the underlying KeyManager instance
func (tm *TokenManager) GetKeyManager() *keys.KeyManager {
	return tm.keyManager
}

// GenerateToken signs claims, filling iss, azp, iat, exp and jti when unset
func (tm *TokenManager) GenerateToken(claims *Claims) (string, error) {
	return tm.GenerateTokenWithClaims(claims, nil)
}

// ExtendedClaims adds arbitrary top level claims to Claims
type ExtendedClaims struct {
	*Claims
	AdditionalClaims map[string]interface{} `json:"-"`
}

// MarshalJSON implements custom JSON marshaling to include additional claims
func (ec *ExtendedClaims) MarshalJSON() ([]byte, error) {
	baseJSON, err := json.Marshal(ec.Claims)
	if err != nil {
		return nil, err
	}

	var baseMap map[string]interface{}
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}
	for key, value := range ec.AdditionalClaims {
		baseMap[key] = value
	}
	return json.Marshal(baseMap)
}

// GenerateTokenWithClaims signs claims merged with additionalClaims. The
// additional claims override fields of the same name.
func (tm *TokenManager) GenerateTokenWithClaims(claims *Claims, additionalClaims map[string]interface{}) (string, error) {
	if claims == nil {
		claims = NewClaims()
	}
	tm.fillDefaults(claims)

	if claims.ID == "" {
		jti, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("failed to generate JTI: %w", err)
		}
		claims.ID = jti.String()
	}

	var body jwt.Claims = claims
	if len(additionalClaims) > 0 {
		body = &ExtendedClaims{Claims: claims, AdditionalClaims: additionalClaims}
	}
	return tm.sign(body)
}

func (tm *TokenManager) fillDefaults(claims *Claims) {
	now := time.Now()
	if claims.Issuer == "" {
		claims.Issuer = tm.issuer
	}
	if claims.AuthorizedParty == "" {
		claims.AuthorizedParty = tm.clientID
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(tm.lifetime))
	}
	if claims.Type == "" {
		claims.Type = "Bearer"
	}
}

func (tm *TokenManager) sign(claims jwt.Claims) (string, error) {
	privateKey, err := tm.keyManager.GetRSAPrivateKey()
	if err != nil {
		return "", fmt.Errorf("failed to get private key: %w", err)
	}

	token := jwt.NewWithClaims(keys.SigningMethod(), claims)
	token.Header["kid"] = tm.keyManager.KeyID()

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
