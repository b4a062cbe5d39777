// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openchami/reportsmith/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Configure(&Config{
		Level:       LogLevelDebug,
		Format:      LogFormatJSON,
		ServiceName: "reportsmith-test",
		Output:      buf,
	})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	return buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"LOG_LEVEL":    "DEBUG",
		"LOG_FORMAT":   "json",
		"SERVICE_NAME": "reports-api",
		"LOG_CALLER":   "true",
	}
	config := ConfigFromEnv(func(key string) string { return env[key] })

	assert.Equal(t, LogLevelDebug, config.Level)
	assert.Equal(t, LogFormatJSON, config.Format)
	assert.Equal(t, "reports-api", config.ServiceName)
	assert.True(t, config.Caller)
	assert.Equal(t, "development", config.Environment)
}

func TestMiddlewareSetsTraceHeaders(t *testing.T) {
	buf := jsonLogger(t)

	var seenTrace string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTrace = GetTraceID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderTraceID, "trace-123")
	req.Header.Set("Authorization", "Bearer secret-token-value")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "trace-123", seenTrace)
	assert.Equal(t, "trace-123", rec.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, rec.Header().Get(HeaderCorrelationID))

	entry := lastLine(t, buf)
	assert.Equal(t, "http request", entry["message"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status_code"])
	assert.Equal(t, "trace-123", entry["trace_id"])
	assert.NotContains(t, buf.String(), "secret-token-value")
	_, hasUser := entry["user_id"]
	assert.False(t, hasUser)
}

func TestLogAuthDecisionIncludesErrorCode(t *testing.T) {
	buf := jsonLogger(t)

	logger := NewStructuredLogger("auth")
	err := errors.Wrap(assert.AnError, errors.ErrCodeInvalidIssuer, "issuer not accepted").
		WithDetails("issuer", "https://evil.example.com")
	logger.LogAuthDecision("authenticate", err, 0)

	entry := lastLine(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "INVALID_ISSUER", entry["error_code"])
	assert.Equal(t, "https://evil.example.com", entry["error_issuer"])
	assert.Equal(t, false, entry["allowed"])
}
