// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openchami/reportsmith/pkg/reportservice"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var serveFlags struct {
	port                int
	frontendURL         string
	keycloakURL         string
	keycloakPublicURL   string
	keycloakRealm       string
	keycloakClientID    string
	issuers             []string
	clientCheck         string
	allowedClients      []string
	requiredRole        string
	jwksURL             string
	jwksCacheMaxEntries int
	jwksCacheMaxAge     time.Duration
	jwksFetchTimeout    time.Duration
	policyFile          string
	discover            bool
	shutdownTimeout     time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reports API",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadServeConfig(cmd.Flags())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		service, err := reportservice.NewReportService(ctx, config)
		if err != nil {
			return fmt.Errorf("failed to create report service: %w", err)
		}

		return service.Start(ctx)
	},
}

// loadServeConfig layers defaults, the config file, the environment and
// explicitly set flags, in that order.
func loadServeConfig(flags *pflag.FlagSet) (reportservice.Config, error) {
	config := reportservice.DefaultConfig()

	fileConfig, err := reportservice.LoadFileConfig(configPath)
	if err != nil {
		return config, fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyFile(fileConfig)

	if err := config.ApplyEnv(os.Getenv); err != nil {
		return config, err
	}

	f := serveFlags
	overrides := map[string]func(){
		"port":                   func() { config.Port = f.port },
		"frontend-url":           func() { config.FrontendURL = f.frontendURL },
		"keycloak-url":           func() { config.KeycloakURL = f.keycloakURL },
		"keycloak-public-url":    func() { config.KeycloakPublicURL = f.keycloakPublicURL },
		"keycloak-realm":         func() { config.KeycloakRealm = f.keycloakRealm },
		"keycloak-client-id":     func() { config.KeycloakClientID = f.keycloakClientID },
		"issuer":                 func() { config.Issuers = f.issuers },
		"client-check":           func() { config.ClientCheck = f.clientCheck },
		"allowed-client":         func() { config.AllowedClients = f.allowedClients },
		"required-role":          func() { config.RequiredRole = f.requiredRole },
		"jwks-url":               func() { config.JWKSURL = f.jwksURL },
		"jwks-cache-max-entries": func() { config.JWKSCacheMaxEntries = f.jwksCacheMaxEntries },
		"jwks-cache-max-age":     func() { config.JWKSCacheMaxAge = f.jwksCacheMaxAge },
		"jwks-fetch-timeout":     func() { config.JWKSFetchTimeout = f.jwksFetchTimeout },
		"policy-file":            func() { config.PolicyFile = f.policyFile },
		"discover":               func() { config.Discover = f.discover },
		"shutdown-timeout":       func() { config.ShutdownTimeout = f.shutdownTimeout },
	}
	flags.Visit(func(flag *pflag.Flag) {
		if apply, ok := overrides[flag.Name]; ok {
			apply()
		}
	})

	return config, nil
}

func init() {
	defaults := reportservice.DefaultConfig()
	flags := serveCmd.Flags()

	flags.IntVar(&serveFlags.port, "port", defaults.Port, "HTTP server port (PORT)")
	flags.StringVar(&serveFlags.frontendURL, "frontend-url", defaults.FrontendURL, "Allowed CORS origin (FRONTEND_URL)")
	flags.StringVar(&serveFlags.keycloakURL, "keycloak-url", defaults.KeycloakURL, "Keycloak base URL reachable from this service (KEYCLOAK_URL)")
	flags.StringVar(&serveFlags.keycloakPublicURL, "keycloak-public-url", defaults.KeycloakPublicURL, "Keycloak base URL used by browsers (KEYCLOAK_PUBLIC_URL)")
	flags.StringVar(&serveFlags.keycloakRealm, "keycloak-realm", defaults.KeycloakRealm, "Keycloak realm (KEYCLOAK_REALM)")
	flags.StringVar(&serveFlags.keycloakClientID, "keycloak-client-id", defaults.KeycloakClientID, "Client id expected in aud mode (KEYCLOAK_CLIENT_ID)")
	flags.StringSliceVar(&serveFlags.issuers, "issuer", nil, "Accepted token issuer, repeatable; derived from the Keycloak URLs when unset (KEYCLOAK_ISSUERS)")
	flags.StringVar(&serveFlags.clientCheck, "client-check", defaults.ClientCheck, "Client binding: azp, aud or none (CLIENT_CHECK)")
	flags.StringSliceVar(&serveFlags.allowedClients, "allowed-client", nil, "Accepted client id, repeatable (ALLOWED_CLIENTS)")
	flags.StringVar(&serveFlags.requiredRole, "required-role", defaults.RequiredRole, "Realm role required for /reports (REQUIRED_ROLE)")
	flags.StringVar(&serveFlags.jwksURL, "jwks-url", "", "Override the realm certs endpoint (JWKS_URL)")
	flags.IntVar(&serveFlags.jwksCacheMaxEntries, "jwks-cache-max-entries", defaults.JWKSCacheMaxEntries, "Signing keys kept in cache (JWKS_CACHE_MAX_ENTRIES)")
	flags.DurationVar(&serveFlags.jwksCacheMaxAge, "jwks-cache-max-age", defaults.JWKSCacheMaxAge, "How long a signing key stays cached (JWKS_CACHE_MAX_AGE)")
	flags.DurationVar(&serveFlags.jwksFetchTimeout, "jwks-fetch-timeout", defaults.JWKSFetchTimeout, "Timeout for one key set fetch (JWKS_FETCH_TIMEOUT)")
	flags.StringVar(&serveFlags.policyFile, "policy-file", "", "Casbin policy CSV; the single role check is used when unset (POLICY_FILE)")
	flags.BoolVar(&serveFlags.discover, "discover", false, "Read jwks_uri and issuer from the realm discovery document")
	flags.DurationVar(&serveFlags.shutdownTimeout, "shutdown-timeout", defaults.ShutdownTimeout, "Grace period for in-flight requests on shutdown")

	rootCmd.AddCommand(serveCmd)
}
