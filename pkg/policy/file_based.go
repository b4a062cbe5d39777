// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

// DefaultModel is the casbin RBAC model used unless a model file is given.
// Subjects are realm roles, objects are request paths matched with
// keyMatch2, and actions are HTTP methods or "*". Role inheritance rules
// ("g, senior_technician, prothetic_user") are honoured.
const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// DefaultPolicy grants the report role read access to reports
const DefaultPolicy = `# subject (realm role), path, method
p, prothetic_user, /reports, GET
`

// FileBasedEngine authorizes requests with a casbin policy read from disk.
// A request is allowed when any of the caller's realm roles is granted the
// path and method.
type FileBasedEngine struct {
	name        string
	version     string
	policyPath  string
	denyRole    string
	enforcer    *casbin.SyncedEnforcer
	lastModTime time.Time
	logger      *PolicyLogger

	mu   sync.Mutex
	stop chan struct{}
}

// FileBasedEngineConfig holds the configuration for the file-based policy engine
type FileBasedEngineConfig struct {
	// Name is the human-readable name for this policy engine
	Name string `json:"name" yaml:"name"`

	// Version is the version of this policy engine
	Version string `json:"version" yaml:"version"`

	// PolicyPath is the casbin CSV policy file
	PolicyPath string `json:"policy_path" yaml:"policy_path"`

	// ModelPath is an optional casbin model file replacing DefaultModel
	ModelPath string `json:"model_path,omitempty" yaml:"model_path,omitempty"`

	// DenyRole is named in the message returned to denied callers
	DenyRole string `json:"deny_role" yaml:"deny_role"`

	// ReloadInterval is how often to check for policy file changes
	// If not set, the file is only loaded once at startup
	ReloadInterval *time.Duration `json:"reload_interval,omitempty" yaml:"reload_interval,omitempty"`
}

// DefaultFileBasedConfig returns a default configuration for the file-based policy engine
func DefaultFileBasedConfig() *FileBasedEngineConfig {
	return &FileBasedEngineConfig{
		Name:       "file-based-policy-engine",
		Version:    "1.0.0",
		PolicyPath: "/etc/reportsmith/policy.csv",
		DenyRole:   DefaultRequiredRole,
		ReloadInterval: func() *time.Duration {
			d := 5 * time.Minute
			return &d
		}(),
	}
}

// NewFileBasedEngine creates a new file-based policy engine with the given configuration
func NewFileBasedEngine(config *FileBasedEngineConfig) (*FileBasedEngine, error) {
	if config == nil {
		config = DefaultFileBasedConfig()
	}

	if err := firstError(ValidateFileBasedEngineConfig(config)); err != nil {
		return nil, fmt.Errorf("invalid file-based policy engine configuration: %w", err)
	}

	m, err := loadModel(config.ModelPath)
	if err != nil {
		return nil, err
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load initial policy: %w", err)
	}

	engine := &FileBasedEngine{
		name:       config.Name,
		version:    config.Version,
		policyPath: config.PolicyPath,
		denyRole:   config.DenyRole,
		enforcer:   enforcer,
		logger:     NewPolicyLogger(),
	}
	if stat, err := os.Stat(config.PolicyPath); err == nil {
		engine.lastModTime = stat.ModTime()
	}

	if config.ReloadInterval != nil {
		engine.stop = make(chan struct{})
		go engine.startReloadLoop(*config.ReloadInterval, engine.stop)
	}

	return engine, nil
}

func loadModel(path string) (model.Model, error) {
	if path == "" {
		m, err := model.NewModelFromString(DefaultModel)
		if err != nil {
			return nil, fmt.Errorf("failed to parse built-in policy model: %w", err)
		}
		return m, nil
	}

	m, err := model.NewModelFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy model %s: %w", path, err)
	}
	return m, nil
}

// Evaluate allows the request when any realm role is granted the resource
// and action.
func (e *FileBasedEngine) Evaluate(ctx context.Context, req *Request) (*Decision, error) {
	start := time.Now()
	if req == nil {
		req = &Request{}
	}

	decision := &Decision{Engine: e.name, Role: e.denyRole}
	if req.Claims == nil {
		err := NotAuthenticatedError()
		e.logger.LogPolicyDecision(ctx, req, decision, time.Since(start), err)
		return decision, err
	}

	for _, role := range req.Claims.RealmRoles() {
		allowed, err := e.enforcer.Enforce(role, req.Resource, req.Action)
		if err != nil {
			err = fmt.Errorf("policy evaluation failed: %w", err)
			e.logger.LogPolicyDecision(ctx, req, nil, time.Since(start), err)
			return nil, err
		}
		if allowed {
			decision.Allowed = true
			decision.Role = role
			e.logger.LogPolicyDecision(ctx, req, decision, time.Since(start), nil)
			return decision, nil
		}
	}

	err := MissingRoleError(e.denyRole)
	e.logger.LogPolicyDecision(ctx, req, decision, time.Since(start), err)
	return decision, err
}

// GetName returns the name of this policy engine (for logging purposes)
func (e *FileBasedEngine) GetName() string {
	return e.name
}

// GetVersion returns the version of this policy engine (for logging purposes)
func (e *FileBasedEngine) GetVersion() string {
	return e.version
}

// Reload re-reads the policy file. On failure the previous policy stays active.
func (e *FileBasedEngine) Reload() error {
	err := e.enforcer.LoadPolicy()
	e.logger.LogPolicyConfigChange(e.name, e.policyPath, err)
	if err != nil {
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	return nil
}

// Close stops the reload loop
func (e *FileBasedEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// reloadIfModified reloads the policy if the file changed since the last load
func (e *FileBasedEngine) reloadIfModified() error {
	stat, err := os.Stat(e.policyPath)
	if err != nil {
		return err
	}

	e.mu.Lock()
	modified := stat.ModTime().After(e.lastModTime)
	if modified {
		e.lastModTime = stat.ModTime()
	}
	e.mu.Unlock()

	if modified {
		return e.Reload()
	}
	return nil
}

func (e *FileBasedEngine) startReloadLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := e.reloadIfModified(); err != nil {
				e.logger.LogPolicyConfigChange(e.name, e.policyPath, err)
			}
		}
	}
}

// SaveDefaultPolicy writes DefaultPolicy to policyPath
func SaveDefaultPolicy(policyPath string) error {
	dir := filepath.Dir(policyPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create policy directory: %w", err)
	}

	if err := os.WriteFile(policyPath, []byte(DefaultPolicy), 0644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	return nil
}
