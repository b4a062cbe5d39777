// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"context"
	"time"

	"github.com/openchami/reportsmith/pkg/logging"
)

// PolicyLogger provides structured logging for policy decisions. Only the
// subject and role list of a claim set are logged.
type PolicyLogger struct {
	component string
}

// NewPolicyLogger creates a new policy logger
func NewPolicyLogger() *PolicyLogger {
	return &PolicyLogger{component: "policy"}
}

// LogPolicyDecision logs a policy decision. Allowed decisions are logged at
// debug level, denials at info and evaluation failures at error.
func (pl *PolicyLogger) LogPolicyDecision(ctx context.Context, req *Request, decision *Decision, duration time.Duration, err error) {
	logger := logging.LoggerFromContextWithComponent(ctx, pl.component)

	event := logger.Debug()
	switch {
	case decision == nil && err != nil:
		event = logger.Error().Err(err)
	case err != nil:
		event = logger.Info().Err(err)
	}

	event.
		Str("resource", req.Resource).
		Str("action", req.Action).
		Dur("evaluation_duration", duration)

	if req.Claims != nil {
		event.
			Str("subject", req.Claims.Subject).
			Strs("roles", req.Claims.RealmRoles())
	}
	if decision != nil {
		event.
			Str("engine", decision.Engine).
			Bool("allowed", decision.Allowed).
			Str("role", decision.Role)
	}

	event.Msg("policy decision evaluated")
}

// LogPolicyConfigChange logs when policy configuration changes
func (pl *PolicyLogger) LogPolicyConfigChange(engineName, policyPath string, err error) {
	logger := logging.GetLogger(pl.component)
	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}

	event.
		Str("engine", engineName).
		Str("policy_path", policyPath).
		Msg("policy configuration changed")
}
