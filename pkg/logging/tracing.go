// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TraceIDKey is the context key for trace ID
type TraceIDKey struct{}

// CorrelationIDKey is the context key for correlation ID
type CorrelationIDKey struct{}

// UserIDKey is the context key for the authenticated subject
type UserIDKey struct{}

const (
	HeaderTraceID       = "X-Trace-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
)

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// GenerateTraceID generates a random trace ID
func GenerateTraceID() string {
	return randomHex(16)
}

// GenerateCorrelationID generates a random correlation ID
func GenerateCorrelationID() string {
	return randomHex(8)
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey{}, traceID)
}

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey{}, correlationID)
}

// WithUserID adds the authenticated subject to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey{}, userID)
}

// GetTraceID extracts the trace ID from the context
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey{}).(string)
	return traceID
}

// GetCorrelationID extracts the correlation ID from the context
func GetCorrelationID(ctx context.Context) string {
	correlationID, _ := ctx.Value(CorrelationIDKey{}).(string)
	return correlationID
}

// GetUserID extracts the authenticated subject from the context
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey{}).(string)
	return userID
}

// LoggerFromContext returns a logger with tracing information from the context
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	logCtx := log.Logger.With()

	if traceID := GetTraceID(ctx); traceID != "" {
		logCtx = logCtx.Str("trace_id", traceID)
	}
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		logCtx = logCtx.Str("correlation_id", correlationID)
	}
	if userID := GetUserID(ctx); userID != "" {
		logCtx = logCtx.Str("user_id", userID)
	}
	if requestID := chimiddleware.GetReqID(ctx); requestID != "" {
		logCtx = logCtx.Str("request_id", requestID)
	}

	return logCtx.Logger()
}

// LoggerFromContextWithComponent returns a logger with tracing information and component
func LoggerFromContextWithComponent(ctx context.Context, component string) zerolog.Logger {
	return LoggerFromContext(ctx).With().Str("component", component).Logger()
}

// ExtractTraceInfoFromRequest extracts tracing information from HTTP headers,
// generating fresh identifiers when the caller supplied none.
func ExtractTraceInfoFromRequest(r *http.Request) (traceID, correlationID string) {
	traceID = r.Header.Get(HeaderTraceID)
	if traceID == "" {
		traceID = r.Header.Get(HeaderRequestID)
	}
	if traceID == "" {
		traceID = GenerateTraceID()
	}

	correlationID = r.Header.Get(HeaderCorrelationID)
	if correlationID == "" {
		correlationID = GenerateCorrelationID()
	}

	return traceID, correlationID
}

// ContextFromRequest creates a context with tracing information from an HTTP request.
// The Authorization header is never inspected here; the caller identity is
// only added once the token has been verified.
func ContextFromRequest(r *http.Request) context.Context {
	traceID, correlationID := ExtractTraceInfoFromRequest(r)
	ctx := WithTraceID(r.Context(), traceID)
	return WithCorrelationID(ctx, correlationID)
}

// Middleware adds tracing identifiers to the request context and response
// headers and logs each request once it completes.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := ContextFromRequest(r)

		w.Header().Set(HeaderTraceID, GetTraceID(ctx))
		w.Header().Set(HeaderCorrelationID, GetCorrelationID(ctx))

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		NewStructuredLoggerFromContext(ctx, "http").
			WithField("remote_addr", r.RemoteAddr).
			WithField("user_agent", r.UserAgent()).
			LogHTTPRequest(r.Method, r.URL.Path, status, time.Since(start))
	})
}
