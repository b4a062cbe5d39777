// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package logging

import (
	"context"
	"time"

	"github.com/openchami/reportsmith/pkg/errors"
	"github.com/rs/zerolog"
)

// StructuredLogger wraps a zerolog logger with helpers for the events
// reportsmith emits.
type StructuredLogger struct {
	logger zerolog.Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(component string) *StructuredLogger {
	return &StructuredLogger{
		logger: GetLogger(component),
	}
}

// NewStructuredLoggerFromContext creates a structured logger carrying the
// tracing fields found in ctx.
func NewStructuredLoggerFromContext(ctx context.Context, component string) *StructuredLogger {
	return &StructuredLogger{
		logger: LoggerFromContextWithComponent(ctx, component),
	}
}

// FromLogger wraps an existing zerolog logger
func FromLogger(logger zerolog.Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// Logger returns the underlying zerolog logger
func (l *StructuredLogger) Logger() zerolog.Logger {
	return l.logger
}

// WithField adds a field to the logger
func (l *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	return &StructuredLogger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

// WithError adds an error to the logger, expanding ReportSmithError codes
// and details into their own fields.
func (l *StructuredLogger) WithError(err error) *StructuredLogger {
	logger := l.logger.With().Err(err)

	if rsErr, ok := errors.As(err); ok {
		logger = logger.
			Str("error_code", string(rsErr.Code)).
			Int("http_status", rsErr.HTTPStatus)

		if rsErr.TraceID != "" {
			logger = logger.Str("error_trace_id", rsErr.TraceID)
		}
		for key, value := range rsErr.Details {
			logger = logger.Interface("error_"+key, value)
		}
	}

	return &StructuredLogger{
		logger: logger.Logger(),
	}
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message
func (l *StructuredLogger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Infof logs a formatted info message
func (l *StructuredLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message
func (l *StructuredLogger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// LogHTTPRequest logs a completed HTTP request
func (l *StructuredLogger) LogHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	event := l.logger.Info()
	if statusCode >= 500 {
		event = l.logger.Error()
	}
	event.
		Str("method", method).
		Str("path", path).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("http request")
}

// LogAuthDecision logs the outcome of authenticating or authorizing a request.
// Rejections are logged at warn level together with the detailed cause that
// is withheld from the caller.
func (l *StructuredLogger) LogAuthDecision(stage string, err error, duration time.Duration) {
	if err == nil {
		l.logger.Debug().
			Str("stage", stage).
			Bool("allowed", true).
			Dur("duration", duration).
			Msg("auth decision")
		return
	}

	l.WithError(err).logger.Warn().
		Str("stage", stage).
		Bool("allowed", false).
		Dur("duration", duration).
		Msg("auth decision")
}

// LogKeyFetch logs a signing key fetch from the identity provider
func (l *StructuredLogger) LogKeyFetch(kid string, err error, duration time.Duration) {
	if err == nil {
		l.logger.Info().
			Str("kid", kid).
			Bool("success", true).
			Dur("duration", duration).
			Msg("signing key fetched")
		return
	}

	l.logger.Error().
		Err(err).
		Str("kid", kid).
		Bool("success", false).
		Dur("duration", duration).
		Msg("signing key fetch failed")
}
