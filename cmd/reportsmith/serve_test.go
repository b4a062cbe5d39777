// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServeConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reportsmith.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7000\nkeycloakRealm: from-file\nrequiredRole: file_role\n"), 0600))

	configPath = path
	t.Cleanup(func() { configPath = "" })
	t.Setenv("KEYCLOAK_REALM", "from-env")
	t.Setenv("JWKS_FETCH_TIMEOUT", "4s")

	flags := serveCmd.Flags()
	require.NoError(t, flags.Parse([]string{"--required-role", "flag_role", "--allowed-client", "a", "--allowed-client", "b"}))

	config, err := loadServeConfig(flags)
	require.NoError(t, err)

	assert.Equal(t, 7000, config.Port)
	assert.Equal(t, "from-env", config.KeycloakRealm)
	assert.Equal(t, "flag_role", config.RequiredRole)
	assert.Equal(t, []string{"a", "b"}, config.AllowedClients)
	assert.Equal(t, 4*time.Second, config.JWKSFetchTimeout)
	assert.Equal(t, "http://localhost:3000", config.FrontendURL)
}
