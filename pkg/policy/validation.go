// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"fmt"
	"os"
	"regexp"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", ve.Field, ve.Message, ve.Value)
}

// ValidationResult represents the result of configuration validation
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []string
}

// IsValid returns true if the validation result is valid
func (vr *ValidationResult) IsValid() bool {
	return len(vr.Errors) == 0
}

// AddError adds a validation error
func (vr *ValidationResult) AddError(field, message string, value interface{}) {
	vr.Errors = append(vr.Errors, &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// AddWarning adds a validation warning
func (vr *ValidationResult) AddWarning(message string) {
	vr.Warnings = append(vr.Warnings, message)
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{}
}

// Keycloak role names: letters, digits, and - _ . : characters.
var roleNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

// ValidateRoleName checks that role is a plausible Keycloak role name
func ValidateRoleName(role string) error {
	if role == "" {
		return fmt.Errorf("role cannot be empty")
	}
	if !roleNamePattern.MatchString(role) {
		return fmt.Errorf("role %q contains invalid characters", role)
	}
	return nil
}

// ValidateStaticEngineConfig validates a static policy engine configuration
func ValidateStaticEngineConfig(config *StaticEngineConfig) *ValidationResult {
	result := NewValidationResult()
	if config == nil {
		result.AddError("config", "configuration cannot be nil", nil)
		return result
	}

	if config.Name == "" {
		result.AddError("name", "name cannot be empty", config.Name)
	}
	if config.Version == "" {
		result.AddError("version", "version cannot be empty", config.Version)
	}
	if err := ValidateRoleName(config.RequiredRole); err != nil {
		result.AddError("required_role", err.Error(), config.RequiredRole)
	}
	return result
}

// ValidateFileBasedEngineConfig validates a file-based policy engine configuration
func ValidateFileBasedEngineConfig(config *FileBasedEngineConfig) *ValidationResult {
	result := NewValidationResult()
	if config == nil {
		result.AddError("config", "configuration cannot be nil", nil)
		return result
	}

	if config.Name == "" {
		result.AddError("name", "name cannot be empty", config.Name)
	}
	if config.Version == "" {
		result.AddError("version", "version cannot be empty", config.Version)
	}

	if config.PolicyPath == "" {
		result.AddError("policy_path", "policy_path cannot be empty", config.PolicyPath)
	} else if _, err := os.Stat(config.PolicyPath); os.IsNotExist(err) {
		result.AddError("policy_path", "policy file does not exist", config.PolicyPath)
	}

	if config.ModelPath != "" {
		if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
			result.AddError("model_path", "model file does not exist", config.ModelPath)
		}
	}

	if err := ValidateRoleName(config.DenyRole); err != nil {
		result.AddError("deny_role", err.Error(), config.DenyRole)
	}

	if config.ReloadInterval != nil && *config.ReloadInterval <= 0 {
		result.AddError("reload_interval", "reload_interval must be positive", *config.ReloadInterval)
	}
	if config.ReloadInterval == nil {
		result.AddWarning("policy file is loaded once; changes need a restart")
	}
	return result
}

// firstError returns the first validation error, if any
func firstError(result *ValidationResult) error {
	if result.IsValid() {
		return nil
	}
	return result.Errors[0]
}
