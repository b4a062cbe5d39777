// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package reportservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openchami/reportsmith/pkg/oidc/mock"
	"github.com/openchami/reportsmith/pkg/reports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func realmConfig(realm *mock.Realm) Config {
	config := DefaultConfig()
	config.KeycloakURL = realm.URL()
	config.KeycloakPublicURL = realm.URL()
	config.KeycloakRealm = realm.Name()
	return config
}

func newTestService(t *testing.T, config Config, opts ...Option) *httptest.Server {
	t.Helper()
	svc, err := NewReportService(t.Context(), config, opts...)
	require.NoError(t, err)
	server := httptest.NewServer(svc.Router())
	t.Cleanup(func() {
		server.Close()
		svc.Close()
	})
	return server
}

func get(t *testing.T, url, bearer string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestReportService(t *testing.T) {
	realm, err := mock.NewRealm("")
	require.NoError(t, err)
	defer realm.Close()

	server := newTestService(t, realmConfig(realm))

	t.Run("authorized caller gets ten reports", func(t *testing.T) {
		resp, body := get(t, server.URL+"/reports", realm.MustMint(mock.WithRoles("prothetic_user")))
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var payload reports.Response
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.True(t, payload.Success)
		assert.Len(t, payload.Data, 10)
		assert.Equal(t, "alice", payload.User.Username)
		assert.Equal(t, "alice@example.com", payload.User.Email)
		assert.Equal(t, []string{"prothetic_user"}, payload.User.Roles)
	})

	errorCases := []struct {
		name         string
		method       string
		path         string
		token        string
		expectStatus int
		expectError  string
	}{
		{"other role", http.MethodGet, "/reports", realm.MustMint(mock.WithRoles("other_role")), http.StatusForbidden, "Role 'prothetic_user' required"},
		{"no header", http.MethodGet, "/reports", "", http.StatusUnauthorized, "Access token required"},
		{"expired", http.MethodGet, "/reports", realm.MustMint(mock.WithExpiry(time.Now().Add(-time.Hour))), http.StatusUnauthorized, "Invalid or expired token"},
		{"malformed", http.MethodGet, "/reports", "a.b", http.StatusUnauthorized, "Invalid token format"},
		{"unknown client", http.MethodGet, "/reports", realm.MustMint(mock.WithClient("admin-cli")), http.StatusUnauthorized, "Invalid client"},
		{"unmapped path", http.MethodGet, "/nope", "", http.StatusNotFound, "Endpoint not found"},
		{"wrong method", http.MethodPost, "/reports", "", http.StatusNotFound, "Endpoint not found"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, server.URL+tt.path, nil)
			require.NoError(t, err)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectStatus, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, map[string]string{"error": tt.expectError}, body)
		})
	}

	t.Run("repeated calls reuse the cached key", func(t *testing.T) {
		raw := realm.MustMint()
		before := realm.Fetches()
		for range 5 {
			resp, _ := get(t, server.URL+"/reports", raw)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
		assert.Equal(t, before, realm.Fetches())
	})

	t.Run("health", func(t *testing.T) {
		resp, body := get(t, server.URL+"/health", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var health HealthResponse
		require.NoError(t, json.Unmarshal(body, &health))
		assert.Equal(t, "OK", health.Status)
		assert.False(t, health.Timestamp.IsZero())
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
		assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
	})

	t.Run("metrics", func(t *testing.T) {
		resp, body := get(t, server.URL+"/metrics", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `reportsmith_auth_decisions_total{outcome="FORBIDDEN",stage="authorize"}`)
		assert.Contains(t, string(body), `reportsmith_signing_key_cache_events_total{event="hit"}`)
	})

	t.Run("CORS preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, server.URL+"/reports", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", DefaultFrontendURL)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, DefaultFrontendURL, resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	})
}

type panickingSource struct{}

func (panickingSource) Generate(int) ([]reports.Report, error) {
	panic("generator exploded")
}

func TestReportGenerationFailure(t *testing.T) {
	realm, err := mock.NewRealm("")
	require.NoError(t, err)
	defer realm.Close()

	server := newTestService(t, realmConfig(realm), WithReportSource(panickingSource{}))

	resp, body := get(t, server.URL+"/reports", realm.MustMint())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Internal server error"}`, string(body))
}

func TestRecoverer(t *testing.T) {
	handler := recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Something went wrong!"}`, rr.Body.String())
}

func TestAudienceMode(t *testing.T) {
	realm, err := mock.NewRealm("")
	require.NoError(t, err)
	defer realm.Close()

	config := realmConfig(realm)
	config.ClientCheck = "aud"
	server := newTestService(t, config)

	resp, _ := get(t, server.URL+"/reports", realm.MustMint(mock.WithAudience("reports-api")))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, server.URL+"/reports", realm.MustMint(mock.WithAudience("account")))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid client"}`, string(body))
}

func TestDiscovery(t *testing.T) {
	realm, err := mock.NewRealm("lab")
	require.NoError(t, err)
	defer realm.Close()

	config := realmConfig(realm)
	config.KeycloakPublicURL = "http://localhost:8080"
	config.Discover = true

	svc, err := NewReportService(t.Context(), config)
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, realm.JWKSURL(), svc.Resolver.JWKSURL())
	assert.Contains(t, svc.Config.Issuers, realm.Issuer())
	assert.Contains(t, svc.Config.Issuers, "http://localhost:8080/realms/lab")

	server := httptest.NewServer(svc.Router())
	defer server.Close()
	resp, _ := get(t, server.URL+"/reports", realm.MustMint())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("unreachable realm", func(t *testing.T) {
		config := DefaultConfig()
		config.KeycloakURL = "http://127.0.0.1:1"
		config.Discover = true
		_, err := NewReportService(t.Context(), config)
		assert.Error(t, err)
	})
}

func TestPolicyFileEngine(t *testing.T) {
	realm, err := mock.NewRealm("")
	require.NoError(t, err)
	defer realm.Close()

	policyPath := filepath.Join(t.TempDir(), "policy.csv")
	policy := strings.Join([]string{
		"p, report_viewer, /reports, GET",
		"g, prothetic_user, report_viewer",
	}, "\n")
	require.NoError(t, os.WriteFile(policyPath, []byte(policy), 0600))

	config := realmConfig(realm)
	config.PolicyFile = policyPath
	server := newTestService(t, config)

	resp, _ := get(t, server.URL+"/reports", realm.MustMint(mock.WithRoles("prothetic_user")))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, server.URL+"/reports", realm.MustMint(mock.WithRoles("guest")))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Role 'prothetic_user' required"}`, string(body))
}

func TestNewReportServiceInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.ClientCheck = "bogus"
	_, err := NewReportService(context.Background(), config)
	assert.Error(t, err)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartAndShutdown(t *testing.T) {
	realm, err := mock.NewRealm("")
	require.NoError(t, err)
	defer realm.Close()

	config := realmConfig(realm)
	config.Port = freePort(t)
	config.ShutdownTimeout = time.Second

	svc, err := NewReportService(t.Context(), config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", config.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
