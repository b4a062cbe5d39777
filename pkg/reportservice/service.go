// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package reportservice wires the key resolver, token verifier, policy
// engine and report handler into the HTTP service.
package reportservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/openchami/reportsmith/middleware"
	rserrors "github.com/openchami/reportsmith/pkg/errors"
	"github.com/openchami/reportsmith/pkg/keys"
	"github.com/openchami/reportsmith/pkg/logging"
	"github.com/openchami/reportsmith/pkg/metrics"
	"github.com/openchami/reportsmith/pkg/oidc/keycloak"
	"github.com/openchami/reportsmith/pkg/policy"
	"github.com/openchami/reportsmith/pkg/reports"
	"github.com/openchami/reportsmith/pkg/token"
)

// ReportService serves the protected reports endpoint
type ReportService struct {
	Config       Config
	Resolver     *keys.Resolver
	Verifier     *token.Verifier
	PolicyEngine policy.Engine
	Metrics      *metrics.Metrics
	Reports      *reports.Handler

	httpClient *http.Client
	source     reports.ReportSource
	logger     *logging.StructuredLogger
}

// Option configures a ReportService
type Option func(*ReportService)

// WithHTTPClient sets the client used for discovery and key set fetches
func WithHTTPClient(client *http.Client) Option {
	return func(s *ReportService) {
		s.httpClient = client
	}
}

// WithReportSource replaces the random report generator
func WithReportSource(source reports.ReportSource) Option {
	return func(s *ReportService) {
		s.source = source
	}
}

// NewReportService validates config and builds every component. With
// Config.Discover set it reads the realm discovery document first.
func NewReportService(ctx context.Context, config Config, opts ...Option) (*ReportService, error) {
	s := &ReportService{logger: logging.NewStructuredLogger("reportservice")}
	for _, opt := range opts {
		opt(s)
	}

	if err := config.Validate(); err != nil {
		return nil, rserrors.Wrap(err, rserrors.ErrCodeInvalidConfig, "invalid configuration")
	}

	if config.Discover {
		if err := s.discover(ctx, &config); err != nil {
			return nil, err
		}
	}
	s.Config = config
	s.Metrics = metrics.New()

	resolver, err := keys.NewResolver(keys.ResolverConfig{
		JWKSURL:         config.EffectiveJWKSURL(),
		CacheMaxEntries: config.JWKSCacheMaxEntries,
		CacheMaxAge:     config.JWKSCacheMaxAge,
		FetchTimeout:    config.JWKSFetchTimeout,
		HTTPClient:      s.httpClient,
		Observer:        s.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key resolver: %w", err)
	}
	s.Resolver = resolver

	verifierConfig, err := config.VerifierConfig()
	if err != nil {
		return nil, rserrors.Wrap(err, rserrors.ErrCodeInvalidConfig, "invalid client check")
	}
	if s.Verifier, err = token.NewVerifier(resolver, verifierConfig); err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}

	if s.PolicyEngine, err = config.NewPolicyEngine(); err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}

	source := s.source
	if source == nil {
		source = reports.NewGenerator()
	}
	s.Reports = reports.NewHandler(source)

	logger := s.logger.Logger()
	logger.Info().
		Str("jwks_url", resolver.JWKSURL()).
		Strs("issuers", verifierConfig.Issuers).
		Str("client_check", string(verifierConfig.ClientCheck)).
		Strs("allowed_clients", verifierConfig.AllowedClients).
		Str("policy_engine", policy.EngineName(s.PolicyEngine)).
		Msg("Report service configured")

	return s, nil
}

func (s *ReportService) discover(ctx context.Context, config *Config) error {
	var kcOpts []keycloak.Option
	if s.httpClient != nil {
		kcOpts = append(kcOpts, keycloak.WithHTTPClient(s.httpClient))
	}
	client := config.Keycloak(kcOpts...)

	metadata, err := client.GetProviderMetadata(ctx)
	if err != nil {
		return rserrors.Wrap(err, rserrors.ErrCodeProviderError, "keycloak discovery failed")
	}

	if config.JWKSURL == "" {
		config.JWKSURL = metadata.JWKSURI
	}
	if len(config.Issuers) == 0 {
		config.Issuers = dedupe(append(config.EffectiveIssuers(), metadata.Issuer))
	}
	return nil
}

// Router builds the HTTP handler
func (s *ReportService) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(logging.Middleware)
	r.Use(s.Metrics.Middleware)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.Config.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", logging.HeaderTraceID, logging.HeaderCorrelationID},
		ExposedHeaders:   []string{logging.HeaderTraceID, logging.HeaderCorrelationID},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(securityHeaders...)

	opts := &middleware.MiddlewareOptions{Recorder: s.Metrics}

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(s.Verifier, opts))
		r.Use(middleware.Authorize(s.PolicyEngine, opts))
		r.Method(http.MethodGet, "/reports", s.Reports)
	})

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	return r
}

var securityHeaders = []func(http.Handler) http.Handler{
	chimiddleware.SetHeader("X-Content-Type-Options", "nosniff"),
	chimiddleware.SetHeader("X-Frame-Options", "SAMEORIGIN"),
	chimiddleware.SetHeader("Referrer-Policy", "no-referrer"),
	chimiddleware.SetHeader("Cross-Origin-Resource-Policy", "same-origin"),
	chimiddleware.SetHeader("Strict-Transport-Security", "max-age=15552000; includeSubDomains"),
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *ReportService) healthHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{Status: "OK", Timestamp: time.Now().UTC()})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, r, rserrors.NewNotFound(r.Method+" "+r.URL.Path))
}

// recoverer turns a panic into a JSON 500. http.ErrAbortHandler is re-raised.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			logging.NewStructuredLoggerFromContext(r.Context(), "http").
				WithField("panic", fmt.Sprint(rvr)).
				WithField("stack", string(debug.Stack())).
				Error("Recovered from panic")
			middleware.WriteJSONError(w, r, http.StatusInternalServerError, rserrors.MsgPanic)
		}()
		next.ServeHTTP(w, r)
	})
}

// Start serves on Config.Port until ctx is cancelled, then shuts down
// gracefully within Config.ShutdownTimeout.
func (s *ReportService) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(s.Config.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	timeout := s.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("Server shutdown complete")
	return nil
}

// Close stops background work owned by the service
func (s *ReportService) Close() {
	if closer, ok := s.PolicyEngine.(interface{ Close() }); ok {
		closer.Close()
	}
}
