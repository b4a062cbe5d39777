// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/openchami/reportsmith/pkg/keys"
	"github.com/openchami/reportsmith/pkg/oidc/keycloak"
	"github.com/openchami/reportsmith/pkg/reportservice"
	"github.com/openchami/reportsmith/pkg/token"
	"github.com/spf13/cobra"
)

var mintFlags struct {
	keyFile  string
	jwksOut  string
	issuer   string
	clientID string
	subject  string
	username string
	email    string
	roles    []string
	audience []string
	lifetime time.Duration
}

// mintTokenCmd signs a Keycloak shaped token with a local key. Point
// serve --jwks-url and --issuer at the written key set to use it.
var mintTokenCmd = &cobra.Command{
	Use:   "mint-token",
	Short: "Sign a test access token with a local key",
	RunE: func(cmd *cobra.Command, args []string) error {
		km := keys.NewKeyManager()
		if _, err := os.Stat(mintFlags.keyFile); err == nil {
			if err := km.LoadPrivateKey(mintFlags.keyFile); err != nil {
				return fmt.Errorf("failed to load private key: %w", err)
			}
		} else {
			if err := km.GenerateRSAKeyPair(); err != nil {
				return fmt.Errorf("failed to generate key pair: %w", err)
			}
			if err := km.SavePrivateKey(mintFlags.keyFile); err != nil {
				return fmt.Errorf("failed to save private key: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Generated new private key: %s\n", mintFlags.keyFile)
		}

		if mintFlags.jwksOut != "" {
			if err := writeJWKS(km, mintFlags.jwksOut); err != nil {
				return err
			}
		}

		claims := token.NewClaims()
		claims.Subject = mintFlags.subject
		claims.PreferredUsername = mintFlags.username
		claims.Email = mintFlags.email
		claims.RealmAccess.Roles = mintFlags.roles
		claims.Audience = mintFlags.audience
		claims.ExpiresAt = nil

		tm := token.NewTokenManager(km, mintFlags.issuer, mintFlags.clientID)
		tm.SetLifetime(mintFlags.lifetime)
		raw, err := tm.GenerateToken(claims)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), raw)
		return nil
	},
}

func writeJWKS(km *keys.KeyManager, path string) error {
	key, err := km.PublicJWK()
	if err != nil {
		return err
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return fmt.Errorf("failed to build key set: %w", err)
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key set: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write key set: %w", err)
	}
	return nil
}

func init() {
	defaults := reportservice.DefaultConfig()
	flags := mintTokenCmd.Flags()

	flags.StringVar(&mintFlags.keyFile, "key-file", "reportsmith-dev.pem", "Private key file, created when missing")
	flags.StringVar(&mintFlags.jwksOut, "jwks-out", "", "Also write the public key set to this file")
	flags.StringVar(&mintFlags.issuer, "issuer", keycloak.RealmURL(defaults.KeycloakPublicURL, defaults.KeycloakRealm), "iss claim")
	flags.StringVar(&mintFlags.clientID, "client-id", "reports-frontend", "azp claim")
	flags.StringVar(&mintFlags.subject, "subject", "dev-user", "sub claim")
	flags.StringVar(&mintFlags.username, "username", "dev", "preferred_username claim")
	flags.StringVar(&mintFlags.email, "email", "dev@example.com", "email claim")
	flags.StringSliceVar(&mintFlags.roles, "role", []string{defaults.RequiredRole}, "Realm role, repeatable")
	flags.StringSliceVar(&mintFlags.audience, "audience", nil, "aud claim, repeatable")
	flags.DurationVar(&mintFlags.lifetime, "lifetime", token.DefaultTokenLifetime, "Token lifetime")

	rootCmd.AddCommand(mintTokenCmd)
}
