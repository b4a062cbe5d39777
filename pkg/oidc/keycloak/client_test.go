// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package keycloak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealmURLs(t *testing.T) {
	client := NewClient("http://keycloak:8080/", "reports-realm")

	assert.Equal(t, "reports-realm", client.Realm())
	assert.Equal(t, "http://keycloak:8080/realms/reports-realm", client.IssuerURL())
	assert.Equal(t, "http://keycloak:8080/realms/reports-realm/protocol/openid-connect/certs", client.JWKSURL())
	assert.Equal(t, "http://keycloak:8080/realms/reports-realm/.well-known/openid-configuration", client.DiscoveryURL())
	assert.Equal(t, "http://localhost:8080/realms/other", RealmURL("http://localhost:8080", "other"))
}

func TestGetProviderMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/realms/reports-realm/.well-known/openid-configuration":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"issuer":                 "http://localhost:8080/realms/reports-realm",
				"jwks_uri":               "http://keycloak:8080/realms/reports-realm/protocol/openid-connect/certs",
				"introspection_endpoint": "http://keycloak:8080/realms/reports-realm/protocol/openid-connect/token/introspect",
				"scopes_supported":       []string{"openid", "profile"},
			})
		case "/realms/broken/.well-known/openid-configuration":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"issuer": "x"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	t.Run("valid realm", func(t *testing.T) {
		metadata, err := NewClient(server.URL, "reports-realm", WithHTTPClient(server.Client())).
			GetProviderMetadata(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/realms/reports-realm", metadata.Issuer)
		assert.Equal(t, "http://keycloak:8080/realms/reports-realm/protocol/openid-connect/certs", metadata.JWKSURI)
		assert.Equal(t, []string{"openid", "profile"}, metadata.ScopesSupported)
	})

	t.Run("missing jwks_uri", func(t *testing.T) {
		_, err := NewClient(server.URL, "broken").GetProviderMetadata(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwks_uri")
	})

	t.Run("unknown realm", func(t *testing.T) {
		_, err := NewClient(server.URL, "absent").GetProviderMetadata(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}
