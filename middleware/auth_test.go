// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	rserrors "github.com/openchami/reportsmith/pkg/errors"
	"github.com/openchami/reportsmith/pkg/keys"
	"github.com/openchami/reportsmith/pkg/oidc/mock"
	"github.com/openchami/reportsmith/pkg/policy"
	"github.com/openchami/reportsmith/pkg/token"
	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVerifier is a mock implementation of TokenVerifier
type MockVerifier struct {
	testifymock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, raw string) (*token.Claims, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*token.Claims), args.Error(1)
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingRecorder) AuthDecision(stage, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[stage+"/"+outcome]++
}

func (c *countingRecorder) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcomes[key]
}

// claimsEcho writes the authenticated username so tests can see what reached the handler
func claimsEcho(w http.ResponseWriter, r *http.Request) {
	claims, err := GetClaimsFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(claims.Username()))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Error
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"BEARER   abc  ", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer    ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Token abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			raw, ok := ExtractBearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, raw)
		})
	}
}

func TestAuthenticateWithMockVerifier(t *testing.T) {
	claims := &token.Claims{
		RegisteredClaims:  jwt.RegisteredClaims{Subject: "user-1"},
		PreferredUsername: "alice",
		RealmAccess:       token.Access{Roles: []string{"prothetic_user"}},
	}

	tests := []struct {
		name         string
		header       string
		setupMock    func(*MockVerifier)
		expectStatus int
		expectBody   string
		expectError  string
		expectStage  string
	}{
		{
			name:         "valid token",
			header:       "Bearer good",
			setupMock:    func(m *MockVerifier) { m.On("Verify", testifymock.Anything, "good").Return(claims, nil) },
			expectStatus: http.StatusOK,
			expectBody:   "alice",
			expectStage:  "authenticate/allowed",
		},
		{
			name:         "missing header",
			setupMock:    func(*MockVerifier) {},
			expectStatus: http.StatusUnauthorized,
			expectError:  rserrors.MsgAccessTokenRequired,
			expectStage:  "authenticate/MISSING_TOKEN",
		},
		{
			name:         "wrong scheme",
			header:       "Basic dXNlcjpwYXNz",
			setupMock:    func(*MockVerifier) {},
			expectStatus: http.StatusUnauthorized,
			expectError:  rserrors.MsgAccessTokenRequired,
			expectStage:  "authenticate/MISSING_TOKEN",
		},
		{
			name:   "malformed token",
			header: "Bearer junk",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", testifymock.Anything, "junk").
					Return(nil, rserrors.Wrap(token.ErrMalformedToken, rserrors.ErrCodeTokenMalformed, "bad"))
			},
			expectStatus: http.StatusUnauthorized,
			expectError:  rserrors.MsgInvalidTokenFormat,
			expectStage:  "authenticate/TOKEN_MALFORMED",
		},
		{
			name:   "invalid client",
			header: "Bearer other",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", testifymock.Anything, "other").
					Return(nil, rserrors.Wrap(token.ErrInvalidClient, rserrors.ErrCodeInvalidClient, "azp"))
			},
			expectStatus: http.StatusUnauthorized,
			expectError:  rserrors.MsgInvalidClient,
			expectStage:  "authenticate/INVALID_CLIENT",
		},
		{
			name:   "untyped verifier error",
			header: "Bearer boom",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", testifymock.Anything, "boom").Return(nil, assert.AnError)
			},
			expectStatus: http.StatusInternalServerError,
			expectError:  rserrors.MsgInternal,
			expectStage:  "authenticate/INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := new(MockVerifier)
			tt.setupMock(verifier)
			recorder := &countingRecorder{}

			handler := Authenticate(verifier, &MiddlewareOptions{Recorder: recorder})(http.HandlerFunc(claimsEcho))

			req := httptest.NewRequest(http.MethodGet, "/reports", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectStatus, rr.Code)
			if tt.expectBody != "" {
				assert.Equal(t, tt.expectBody, rr.Body.String())
			}
			if tt.expectError != "" {
				assert.Equal(t, tt.expectError, decodeError(t, rr))
				assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
			}
			assert.Equal(t, 1, recorder.count(tt.expectStage))
			verifier.AssertExpectations(t)
		})
	}
}

func TestAuthenticateAgainstRealm(t *testing.T) {
	realm, err := mock.NewRealm("")
	require.NoError(t, err)
	defer realm.Close()

	resolver, err := keys.NewResolver(keys.ResolverConfig{JWKSURL: realm.JWKSURL()})
	require.NoError(t, err)
	verifier, err := token.NewVerifier(resolver, token.VerifierConfig{
		Issuers:        []string{realm.Issuer()},
		AllowedClients: []string{"reports-frontend"},
	})
	require.NoError(t, err)

	engine, err := policy.NewStaticEngine(policy.DefaultStaticConfig())
	require.NoError(t, err)

	opts := DefaultMiddlewareOptions()
	handler := Authenticate(verifier, opts)(Authorize(engine, opts)(http.HandlerFunc(claimsEcho)))

	hsKey := []byte("shared-secret-shared-secret-0123")
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name         string
		token        string
		expectStatus int
		expectError  string
	}{
		{"valid", realm.MustMint(), http.StatusOK, ""},
		{"missing role", realm.MustMint(mock.WithRoles("offline_access")), http.StatusForbidden, "Role 'prothetic_user' required"},
		{"no roles", realm.MustMint(mock.WithRoles()), http.StatusForbidden, "Role 'prothetic_user' required"},
		{"other client", realm.MustMint(mock.WithClient("admin-cli")), http.StatusUnauthorized, rserrors.MsgInvalidClient},
		{"expired", realm.MustMint(mock.WithExpiry(time.Now().Add(-time.Minute))), http.StatusUnauthorized, rserrors.MsgInvalidToken},
		{"wrong issuer", realm.MustMint(mock.WithIssuer("http://evil.example/realms/reports-realm")), http.StatusUnauthorized, rserrors.MsgInvalidToken},
		{"unknown kid", realm.MustMint(mock.WithKeyID("retired-key")), http.StatusUnauthorized, rserrors.MsgInvalidToken},
		{"unpublished key", realm.MustMint(mock.WithUnpublishedKey()), http.StatusUnauthorized, rserrors.MsgInvalidToken},
		{"HS256", realm.MustMint(mock.WithSigningMethod(jwt.SigningMethodHS256, hsKey)), http.StatusUnauthorized, rserrors.MsgInvalidToken},
		{"RS256 with foreign key", realm.MustMint(mock.WithSigningMethod(jwt.SigningMethodRS256, otherKey)), http.StatusUnauthorized, rserrors.MsgInvalidToken},
		{"not a jwt", "not-a-jwt", http.StatusUnauthorized, rserrors.MsgInvalidTokenFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/reports", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectStatus, rr.Code, rr.Body.String())
			if tt.expectError == "" {
				assert.Equal(t, "alice", rr.Body.String())
				return
			}
			assert.Equal(t, tt.expectError, decodeError(t, rr))
		})
	}

	t.Run("key set outage", func(t *testing.T) {
		resolver.Purge()
		realm.SetAvailable(false)
		defer realm.SetAvailable(true)

		req := httptest.NewRequest(http.MethodGet, "/reports", nil)
		req.Header.Set("Authorization", "Bearer "+realm.MustMint())
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, rserrors.MsgInvalidToken, decodeError(t, rr))
	})
}

func TestAuthorizeWithoutClaims(t *testing.T) {
	engine, err := policy.NewStaticEngine(policy.DefaultStaticConfig())
	require.NoError(t, err)

	handler := Authorize(engine, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, rserrors.MsgNotAuthenticated, decodeError(t, rr))
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name         string
		roles        []string
		expectStatus int
	}{
		{"has role", []string{"admin", "auditor"}, http.StatusOK},
		{"missing role", []string{"prothetic_user"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &token.Claims{RealmAccess: token.Access{Roles: tt.roles}}
			handler := RequireRole("auditor", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/audit", nil)
			req = req.WithContext(WithClaims(req.Context(), claims))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectStatus, rr.Code)
			if tt.expectStatus == http.StatusForbidden {
				assert.Equal(t, "Role 'auditor' required", decodeError(t, rr))
			}
		})
	}
}

func TestGetClaimsFromContext(t *testing.T) {
	_, err := GetClaimsFromContext(context.Background())
	assert.Error(t, err)

	claims := &token.Claims{PreferredUsername: "bob"}
	got, err := GetClaimsFromContext(WithClaims(context.Background(), claims))
	require.NoError(t, err)
	assert.Same(t, claims, got)
}
