// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/openchami/reportsmith/pkg/keys"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ keys.Observer = (*Metrics)(nil)

func TestKeyCacheEvents(t *testing.T) {
	m := New()
	m.KeyCacheHit()
	m.KeyCacheHit()
	m.KeyCacheMiss()
	m.KeyFetchFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.keyCacheEvents.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.keyCacheEvents.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.keyCacheEvents.WithLabelValues("fetch_failed")))
}

func TestAuthDecision(t *testing.T) {
	m := New()
	m.AuthDecision("authenticate", "allowed")
	m.AuthDecision("authorize", "FORBIDDEN")
	m.AuthDecision("authorize", "FORBIDDEN")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.authDecisions.WithLabelValues("authenticate", "allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.authDecisions.WithLabelValues("authorize", "FORBIDDEN")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router.Handle("/metrics", m.Handler())

	for _, path := range []string{"/reports/1", "/reports/2", "/nowhere"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/reports/{id}", "418")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "reportsmith_http_requests_total")
	assert.Contains(t, string(body), "reportsmith_http_request_duration_seconds")
}
