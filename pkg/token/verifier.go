// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	rserrors "github.com/openchami/reportsmith/pkg/errors"
	"github.com/openchami/reportsmith/pkg/keys"
	"github.com/openchami/reportsmith/pkg/logging"
)

// ClientCheck selects how a token is bound to the accepted clients
type ClientCheck string

const (
	// ClientCheckAuthorizedParty requires azp to be an accepted client
	ClientCheckAuthorizedParty ClientCheck = "azp"
	// ClientCheckAudience requires aud to contain an accepted client
	ClientCheckAudience ClientCheck = "aud"
	// ClientCheckNone skips client binding
	ClientCheckNone ClientCheck = "none"
)

// ParseClientCheck parses a client check mode name
func ParseClientCheck(s string) (ClientCheck, error) {
	switch mode := ClientCheck(strings.ToLower(strings.TrimSpace(s))); mode {
	case ClientCheckAuthorizedParty, ClientCheckAudience, ClientCheckNone:
		return mode, nil
	case "":
		return ClientCheckAuthorizedParty, nil
	default:
		return "", fmt.Errorf("unknown client check %q (want azp, aud or none)", s)
	}
}

// KeyResolver returns the public key for a key ID. keys.Resolver implements it.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// VerifierConfig configures a Verifier
type VerifierConfig struct {
	// Issuers lists the accepted iss values; at least one is required
	Issuers []string
	// ClientCheck selects the client binding mode, azp when empty
	ClientCheck ClientCheck
	// AllowedClients lists the accepted client ids
	AllowedClients []string
	// Leeway tolerates clock skew on exp and nbf
	Leeway time.Duration
}

// Verifier checks access tokens and returns their claims
type Verifier struct {
	resolver KeyResolver
	config   VerifierConfig
	parser   *jwt.Parser
}

// NewVerifier creates a Verifier using resolver for signing keys
func NewVerifier(resolver KeyResolver, config VerifierConfig) (*Verifier, error) {
	if resolver == nil {
		return nil, fmt.Errorf("key resolver is required")
	}
	if len(config.Issuers) == 0 {
		return nil, fmt.Errorf("at least one issuer is required")
	}
	if config.ClientCheck == "" {
		config.ClientCheck = ClientCheckAuthorizedParty
	}
	if _, err := ParseClientCheck(string(config.ClientCheck)); err != nil {
		return nil, err
	}
	if config.ClientCheck != ClientCheckNone && len(config.AllowedClients) == 0 {
		return nil, fmt.Errorf("allowed clients are required for client check %q", config.ClientCheck)
	}

	return &Verifier{
		resolver: resolver,
		config:   config,
		parser: jwt.NewParser(
			jwt.WithValidMethods(keys.AcceptedAlgorithms),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(config.Leeway),
		),
	}, nil
}

// Config returns the verifier configuration
func (v *Verifier) Config() VerifierConfig {
	return v.config
}

// Verify checks the token's structure, algorithm, signature, lifetime,
// issuer and client binding, in that order, and returns its claims. Every
// failure is a *errors.ReportSmithError wrapping one of the package
// sentinels.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	header, err := v.decodeHeader(raw)
	if err != nil {
		return nil, err
	}

	alg, _ := header["alg"].(string)
	if err := keys.ValidateAlgorithm(alg); err != nil {
		return nil, rserrors.Wrap(err, rserrors.ErrCodeUnsupportedAlgorithm, "unsupported token algorithm").
			WithDetails("alg", alg)
	}

	kid, _ := header["kid"].(string)
	if kid == "" {
		return nil, rserrors.Wrap(ErrMissingKeyID, rserrors.ErrCodeKeyResolution, "token has no key ID")
	}

	publicKey, err := v.resolver.Resolve(ctx, kid)
	if err != nil {
		code := rserrors.ErrCodeKeyResolution
		if errors.Is(err, keys.ErrJWKSUnavailable) {
			code = rserrors.ErrCodeJWKSUnavailable
		}
		return nil, rserrors.Wrap(fmt.Errorf("%w: %w", ErrKeyResolution, err), code, "signing key could not be resolved").
			WithDetails("kid", kid)
	}

	claims := &Claims{}
	_, err = v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return publicKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err).WithDetails("kid", kid)
	}

	if !slices.Contains(v.config.Issuers, claims.Issuer) {
		return nil, rserrors.Wrap(ErrInvalidIssuer, rserrors.ErrCodeInvalidIssuer, "issuer not accepted").
			WithDetails("issuer", claims.Issuer)
	}

	if err := v.checkClient(claims); err != nil {
		return nil, err
	}

	logger := logging.LoggerFromContextWithComponent(ctx, "verifier")
	logger.Debug().
		Str("subject", claims.Subject).
		Str("azp", claims.AuthorizedParty).
		Str("kid", kid).
		Msg("token verified")

	return claims, nil
}

// decodeHeader reads the header without verifying anything
func (v *Verifier) decodeHeader(raw string) (map[string]interface{}, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err == nil {
		return unverified.Header, nil
	}

	// An algorithm the jwt library does not know at all still decodes
	// structurally; report it as unsupported rather than malformed.
	if errors.Is(err, jwt.ErrTokenUnverifiable) && unverified != nil {
		alg, _ := unverified.Header["alg"].(string)
		return nil, rserrors.Wrap(fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg),
			rserrors.ErrCodeUnsupportedAlgorithm, "unsupported token algorithm").WithDetails("alg", alg)
	}
	return nil, rserrors.Wrap(fmt.Errorf("%w: %w", ErrMalformedToken, err), rserrors.ErrCodeTokenMalformed, "token could not be decoded")
}

func (v *Verifier) checkClient(claims *Claims) error {
	switch v.config.ClientCheck {
	case ClientCheckNone:
		return nil
	case ClientCheckAudience:
		for _, aud := range claims.Audience {
			if slices.Contains(v.config.AllowedClients, aud) {
				return nil
			}
		}
		return rserrors.Wrap(ErrInvalidClient, rserrors.ErrCodeInvalidClient, "audience not accepted").
			WithDetails("audience", []string(claims.Audience))
	default:
		if slices.Contains(v.config.AllowedClients, claims.AuthorizedParty) {
			return nil
		}
		return rserrors.Wrap(ErrInvalidClient, rserrors.ErrCodeInvalidClient, "authorized party not accepted").
			WithDetails("azp", claims.AuthorizedParty)
	}
}

// classifyParseError maps jwt library errors onto the package sentinels
func classifyParseError(err error) *rserrors.ReportSmithError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return rserrors.Wrap(fmt.Errorf("%w: %w", ErrMalformedToken, err), rserrors.ErrCodeTokenMalformed, "token could not be decoded")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return rserrors.Wrap(fmt.Errorf("%w: %w", ErrSignatureInvalid, err), rserrors.ErrCodeSignatureInvalid, "token signature is invalid")
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return rserrors.Wrap(fmt.Errorf("%w: %w", ErrTokenExpired, err), rserrors.ErrCodeTokenExpired, "token has expired")
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return rserrors.Wrap(fmt.Errorf("%w: %w", ErrTokenNotValidYet, err), rserrors.ErrCodeInvalidToken, "token is not yet valid")
	default:
		return rserrors.Wrap(fmt.Errorf("%w: %w", ErrInvalidToken, err), rserrors.ErrCodeInvalidToken, "token is invalid")
	}
}
