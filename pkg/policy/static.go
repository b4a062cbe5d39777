// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"context"
	"fmt"
	"time"
)

// StaticEngine requires the same realm role for every request
type StaticEngine struct {
	name         string
	version      string
	requiredRole string
	logger       *PolicyLogger
}

// StaticEngineConfig holds the configuration for the static policy engine
type StaticEngineConfig struct {
	// Name is the human-readable name for this policy engine
	Name string `json:"name" yaml:"name"`

	// Version is the version of this policy engine
	Version string `json:"version" yaml:"version"`

	// RequiredRole is the realm role every caller must hold
	RequiredRole string `json:"required_role" yaml:"required_role"`
}

// DefaultStaticConfig returns a default configuration for the static policy engine
func DefaultStaticConfig() *StaticEngineConfig {
	return &StaticEngineConfig{
		Name:         "static-policy-engine",
		Version:      "1.0.0",
		RequiredRole: DefaultRequiredRole,
	}
}

// NewStaticEngine creates a new static policy engine with the given configuration
func NewStaticEngine(config *StaticEngineConfig) (*StaticEngine, error) {
	if config == nil {
		config = DefaultStaticConfig()
	}

	if err := firstError(ValidateStaticEngineConfig(config)); err != nil {
		return nil, fmt.Errorf("invalid static policy engine configuration: %w", err)
	}

	return &StaticEngine{
		name:         config.Name,
		version:      config.Version,
		requiredRole: config.RequiredRole,
		logger:       NewPolicyLogger(),
	}, nil
}

// Evaluate allows the request when the caller holds the required role
func (e *StaticEngine) Evaluate(ctx context.Context, req *Request) (*Decision, error) {
	start := time.Now()
	if req == nil {
		req = &Request{}
	}

	err := Authorize(req.Claims, e.requiredRole)
	decision := &Decision{
		Allowed: err == nil,
		Role:    e.requiredRole,
		Engine:  e.name,
	}

	e.logger.LogPolicyDecision(ctx, req, decision, time.Since(start), err)
	return decision, err
}

// RequiredRole returns the role this engine enforces
func (e *StaticEngine) RequiredRole() string {
	return e.requiredRole
}

// GetName returns the name of this policy engine (for logging purposes)
func (e *StaticEngine) GetName() string {
	return e.name
}

// GetVersion returns the version of this policy engine (for logging purposes)
func (e *StaticEngine) GetVersion() string {
	return e.version
}
