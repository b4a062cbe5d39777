// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package middleware provides the chi middlewares that authenticate bearer
// tokens and gate requests on the caller's roles.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	rserrors "github.com/openchami/reportsmith/pkg/errors"
	"github.com/openchami/reportsmith/pkg/logging"
	"github.com/openchami/reportsmith/pkg/policy"
	"github.com/openchami/reportsmith/pkg/token"
)

// ContextKey is the key used to store the claims in the context
type ContextKey string

// ClaimsContextKey is the key used to store the claims in the context
const ClaimsContextKey ContextKey = "jwt_claims"

const (
	stageAuthenticate = "authenticate"
	stageAuthorize    = "authorize"
	outcomeAllowed    = "allowed"
)

// TokenVerifier verifies a raw access token. token.Verifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// DecisionRecorder counts authentication outcomes. metrics.Metrics implements it.
type DecisionRecorder interface {
	AuthDecision(stage, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthDecision(string, string) {}

// MiddlewareOptions contains options for the auth middlewares
type MiddlewareOptions struct {
	// Recorder receives one outcome per request and stage
	Recorder DecisionRecorder
}

// DefaultMiddlewareOptions returns the default middleware options
func DefaultMiddlewareOptions() *MiddlewareOptions {
	return &MiddlewareOptions{Recorder: nopRecorder{}}
}

func normalize(opts *MiddlewareOptions) *MiddlewareOptions {
	if opts == nil {
		return DefaultMiddlewareOptions()
	}
	if opts.Recorder == nil {
		copied := *opts
		copied.Recorder = nopRecorder{}
		return &copied
	}
	return opts
}

// Authenticate verifies the bearer token of every request and stores the
// resulting claims in the request context. Requests without a usable token
// or with a token that fails verification never reach next.
func Authenticate(verifier TokenVerifier, opts *MiddlewareOptions) func(http.Handler) http.Handler {
	opts = normalize(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := logging.NewStructuredLoggerFromContext(r.Context(), "auth")

			raw, ok := ExtractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				err := rserrors.NewMissingToken("no bearer token in Authorization header")
				reject(w, r, logger, opts, stageAuthenticate, err, start)
				return
			}

			claims, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				reject(w, r, logger, opts, stageAuthenticate, err, start)
				return
			}

			opts.Recorder.AuthDecision(stageAuthenticate, outcomeAllowed)
			logger.LogAuthDecision(stageAuthenticate, nil, time.Since(start))

			ctx := WithClaims(r.Context(), claims)
			ctx = logging.WithUserID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize asks engine whether the authenticated caller may use the
// requested path and method. It must run after Authenticate; without claims
// in the context the request is rejected as unauthenticated.
func Authorize(engine policy.Engine, opts *MiddlewareOptions) func(http.Handler) http.Handler {
	opts = normalize(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := logging.NewStructuredLoggerFromContext(r.Context(), "auth")

			claims, _ := GetClaimsFromContext(r.Context())
			decision, err := engine.Evaluate(r.Context(), &policy.Request{
				Claims:   claims,
				Resource: r.URL.Path,
				Action:   r.Method,
			})
			if err == nil && (decision == nil || !decision.Allowed) {
				err = rserrors.NewInternalError("policy engine returned no decision")
			}
			if err != nil {
				if _, ok := rserrors.As(err); !ok {
					err = rserrors.Wrap(err, rserrors.ErrCodeInternal, "policy evaluation failed")
				}
				reject(w, r, logger, opts, stageAuthorize, err, start)
				return
			}

			opts.Recorder.AuthDecision(stageAuthorize, outcomeAllowed)
			logger.LogAuthDecision(stageAuthorize, nil, time.Since(start))
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole is Authorize with a fixed realm role
func RequireRole(role string, opts *MiddlewareOptions) func(http.Handler) http.Handler {
	opts = normalize(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			claims, _ := GetClaimsFromContext(r.Context())
			if err := policy.Authorize(claims, role); err != nil {
				logger := logging.NewStructuredLoggerFromContext(r.Context(), "auth")
				reject(w, r, logger, opts, stageAuthorize, err, start)
				return
			}
			opts.Recorder.AuthDecision(stageAuthorize, outcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, logger *logging.StructuredLogger, opts *MiddlewareOptions, stage string, err error, start time.Time) {
	opts.Recorder.AuthDecision(stage, string(rserrors.GetErrorCode(err)))
	logger.LogAuthDecision(stage, err, time.Since(start))
	WriteError(w, r, err)
}

// ExtractBearerToken returns the token of a "Bearer <token>" header value.
// The scheme is matched case-insensitively.
func ExtractBearerToken(header string) (string, bool) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// WithClaims stores verified claims in ctx
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// GetClaimsFromContext retrieves the JWT claims from the request context
func GetClaimsFromContext(ctx context.Context) (*token.Claims, error) {
	claims, ok := ctx.Value(ClaimsContextKey).(*token.Claims)
	if !ok || claims == nil {
		return nil, errors.New("claims not found in context")
	}
	return claims, nil
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSONError writes {"error": message} with status
func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}

// WriteError writes the public status and message for err. Details of the
// cause are never included.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	WriteJSONError(w, r, rserrors.PublicStatus(err), rserrors.PublicMessage(err))
}
