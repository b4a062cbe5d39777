// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package reportservice

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/openchami/reportsmith/pkg/keys"
	"github.com/openchami/reportsmith/pkg/oidc/keycloak"
	"github.com/openchami/reportsmith/pkg/policy"
	"github.com/openchami/reportsmith/pkg/token"
	"gopkg.in/yaml.v3"
)

// Defaults for Config
const (
	DefaultPort              = 8000
	DefaultFrontendURL       = "http://localhost:3000"
	DefaultKeycloakURL       = "http://keycloak:8080"
	DefaultKeycloakPublicURL = "http://localhost:8080"
	DefaultKeycloakRealm     = "reports-realm"
	DefaultKeycloakClientID  = "reports-api"
	DefaultShutdownTimeout   = 10 * time.Second
)

// DefaultAllowedClients are accepted in azp mode when none are configured
var DefaultAllowedClients = []string{"reports-api", "reports-frontend"}

// Duration is a time.Duration read from "10m" style strings in JSON and YAML
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// FileConfig represents the configuration stored in a file. Zero fields
// leave the corresponding Config value untouched.
type FileConfig struct {
	Port              int      `json:"port,omitempty" yaml:"port,omitempty"`
	FrontendURL       string   `json:"frontendURL,omitempty" yaml:"frontendURL,omitempty"`
	KeycloakURL       string   `json:"keycloakURL,omitempty" yaml:"keycloakURL,omitempty"`
	KeycloakPublicURL string   `json:"keycloakPublicURL,omitempty" yaml:"keycloakPublicURL,omitempty"`
	KeycloakRealm     string   `json:"keycloakRealm,omitempty" yaml:"keycloakRealm,omitempty"`
	KeycloakClientID  string   `json:"keycloakClientID,omitempty" yaml:"keycloakClientID,omitempty"`
	Issuers           []string `json:"issuers,omitempty" yaml:"issuers,omitempty"`
	ClientCheck       string   `json:"clientCheck,omitempty" yaml:"clientCheck,omitempty"`
	AllowedClients    []string `json:"allowedClients,omitempty" yaml:"allowedClients,omitempty"`
	RequiredRole      string   `json:"requiredRole,omitempty" yaml:"requiredRole,omitempty"`
	JWKS              JWKSFile `json:"jwks,omitempty" yaml:"jwks,omitempty"`
	PolicyFile        string   `json:"policyFile,omitempty" yaml:"policyFile,omitempty"`
}

// JWKSFile is the key set section of FileConfig
type JWKSFile struct {
	URL             string   `json:"url,omitempty" yaml:"url,omitempty"`
	CacheMaxEntries int      `json:"cacheMaxEntries,omitempty" yaml:"cacheMaxEntries,omitempty"`
	CacheMaxAge     Duration `json:"cacheMaxAge,omitempty" yaml:"cacheMaxAge,omitempty"`
	FetchTimeout    Duration `json:"fetchTimeout,omitempty" yaml:"fetchTimeout,omitempty"`
}

// Config holds the configuration for ReportService
type Config struct {
	// Port is the HTTP listen port
	Port int
	// FrontendURL is the single CORS origin allowed with credentials
	FrontendURL string
	// KeycloakURL is the base URL the service uses to reach Keycloak
	KeycloakURL string
	// KeycloakPublicURL is the base URL browsers use; tokens carry it in iss
	KeycloakPublicURL string
	KeycloakRealm     string
	// KeycloakClientID is the audience expected in aud mode
	KeycloakClientID string
	// Issuers overrides the derived issuer allow-list
	Issuers []string
	// ClientCheck is azp, aud or none
	ClientCheck string
	// AllowedClients overrides the accepted client ids
	AllowedClients []string
	RequiredRole   string
	// JWKSURL overrides the realm's certs endpoint
	JWKSURL             string
	JWKSCacheMaxEntries int
	JWKSCacheMaxAge     time.Duration
	JWKSFetchTimeout    time.Duration
	// PolicyFile selects the casbin engine when set
	PolicyFile string
	// Discover reads jwks_uri and issuer from the realm discovery document
	Discover        bool
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		Port:                DefaultPort,
		FrontendURL:         DefaultFrontendURL,
		KeycloakURL:         DefaultKeycloakURL,
		KeycloakPublicURL:   DefaultKeycloakPublicURL,
		KeycloakRealm:       DefaultKeycloakRealm,
		KeycloakClientID:    DefaultKeycloakClientID,
		ClientCheck:         string(token.ClientCheckAuthorizedParty),
		RequiredRole:        policy.DefaultRequiredRole,
		JWKSCacheMaxEntries: keys.DefaultCacheMaxEntries,
		JWKSCacheMaxAge:     keys.DefaultCacheMaxAge,
		JWKSFetchTimeout:    keys.DefaultFetchTimeout,
		ShutdownTimeout:     DefaultShutdownTimeout,
	}
}

// DefaultFileConfig returns a file configuration spelling out the defaults
func DefaultFileConfig() *FileConfig {
	c := DefaultConfig()
	return &FileConfig{
		Port:              c.Port,
		FrontendURL:       c.FrontendURL,
		KeycloakURL:       c.KeycloakURL,
		KeycloakPublicURL: c.KeycloakPublicURL,
		KeycloakRealm:     c.KeycloakRealm,
		KeycloakClientID:  c.KeycloakClientID,
		ClientCheck:       c.ClientCheck,
		AllowedClients:    append([]string(nil), DefaultAllowedClients...),
		RequiredRole:      c.RequiredRole,
		JWKS: JWKSFile{
			CacheMaxEntries: c.JWKSCacheMaxEntries,
			CacheMaxAge:     Duration(c.JWKSCacheMaxAge),
			FetchTimeout:    Duration(c.JWKSFetchTimeout),
		},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFileConfig loads configuration from a JSON or YAML file, chosen by
// extension. An empty path yields an empty FileConfig.
func LoadFileConfig(configPath string) (*FileConfig, error) {
	if configPath == "" {
		return &FileConfig{}, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	if isYAML(configPath) {
		err = yaml.Unmarshal(data, &config)
	} else {
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveFileConfig saves configuration to a file in the format its extension names
func SaveFileConfig(config *FileConfig, configPath string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(configPath) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyFile overlays the non-zero fields of fc
func (c *Config) ApplyFile(fc *FileConfig) {
	if fc == nil {
		return
	}
	setInt(&c.Port, fc.Port)
	setString(&c.FrontendURL, fc.FrontendURL)
	setString(&c.KeycloakURL, fc.KeycloakURL)
	setString(&c.KeycloakPublicURL, fc.KeycloakPublicURL)
	setString(&c.KeycloakRealm, fc.KeycloakRealm)
	setString(&c.KeycloakClientID, fc.KeycloakClientID)
	setList(&c.Issuers, fc.Issuers)
	setString(&c.ClientCheck, fc.ClientCheck)
	setList(&c.AllowedClients, fc.AllowedClients)
	setString(&c.RequiredRole, fc.RequiredRole)
	setString(&c.JWKSURL, fc.JWKS.URL)
	setInt(&c.JWKSCacheMaxEntries, fc.JWKS.CacheMaxEntries)
	setDuration(&c.JWKSCacheMaxAge, time.Duration(fc.JWKS.CacheMaxAge))
	setDuration(&c.JWKSFetchTimeout, time.Duration(fc.JWKS.FetchTimeout))
	setString(&c.PolicyFile, fc.PolicyFile)
}

// ApplyEnv overlays values from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	setString(&c.FrontendURL, getenv("FRONTEND_URL"))
	setString(&c.KeycloakURL, getenv("KEYCLOAK_URL"))
	setString(&c.KeycloakPublicURL, getenv("KEYCLOAK_PUBLIC_URL"))
	setString(&c.KeycloakRealm, getenv("KEYCLOAK_REALM"))
	setString(&c.KeycloakClientID, getenv("KEYCLOAK_CLIENT_ID"))
	setList(&c.Issuers, splitList(getenv("KEYCLOAK_ISSUERS")))
	setString(&c.ClientCheck, getenv("CLIENT_CHECK"))
	setList(&c.AllowedClients, splitList(getenv("ALLOWED_CLIENTS")))
	setString(&c.RequiredRole, getenv("REQUIRED_ROLE"))
	setString(&c.JWKSURL, getenv("JWKS_URL"))
	setString(&c.PolicyFile, getenv("POLICY_FILE"))

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := getenv("JWKS_CACHE_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid JWKS_CACHE_MAX_ENTRIES %q: %w", v, err)
		}
		c.JWKSCacheMaxEntries = n
	}
	for name, target := range map[string]*time.Duration{
		"JWKS_CACHE_MAX_AGE": &c.JWKSCacheMaxAge,
		"JWKS_FETCH_TIMEOUT": &c.JWKSFetchTimeout,
	} {
		if v := getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, v, err)
			}
			*target = d
		}
	}
	return nil
}

// Validate reports the first problem with the configuration
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	for name, raw := range map[string]string{
		"keycloak URL":        c.KeycloakURL,
		"keycloak public URL": c.KeycloakPublicURL,
		"frontend URL":        c.FrontendURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s %q must be an absolute URL", name, raw)
		}
	}
	if c.KeycloakRealm == "" {
		return fmt.Errorf("keycloak realm is required")
	}
	mode, err := token.ParseClientCheck(c.ClientCheck)
	if err != nil {
		return err
	}
	if mode == token.ClientCheckAudience && c.KeycloakClientID == "" && len(c.AllowedClients) == 0 {
		return fmt.Errorf("aud client check needs a keycloak client id or allowed clients")
	}
	if err := policy.ValidateRoleName(c.RequiredRole); err != nil {
		return fmt.Errorf("required role: %w", err)
	}
	if c.JWKSCacheMaxEntries <= 0 {
		return fmt.Errorf("JWKS cache max entries must be positive")
	}
	if c.JWKSCacheMaxAge <= 0 || c.JWKSFetchTimeout <= 0 {
		return fmt.Errorf("JWKS cache max age and fetch timeout must be positive")
	}
	return nil
}

// Keycloak returns a client for the configured realm on the internal URL
func (c *Config) Keycloak(opts ...keycloak.Option) *keycloak.Client {
	return keycloak.NewClient(c.KeycloakURL, c.KeycloakRealm, opts...)
}

// EffectiveIssuers returns Issuers, or the realm URL on the public and the
// internal Keycloak base, deduplicated.
func (c *Config) EffectiveIssuers() []string {
	if len(c.Issuers) > 0 {
		return c.Issuers
	}
	return dedupe([]string{
		keycloak.RealmURL(c.KeycloakPublicURL, c.KeycloakRealm),
		keycloak.RealmURL(c.KeycloakURL, c.KeycloakRealm),
	})
}

// EffectiveAllowedClients returns AllowedClients, or the default for the
// client check mode.
func (c *Config) EffectiveAllowedClients() []string {
	if len(c.AllowedClients) > 0 {
		return c.AllowedClients
	}
	if mode, _ := token.ParseClientCheck(c.ClientCheck); mode == token.ClientCheckAudience {
		return []string{c.KeycloakClientID}
	}
	return append([]string(nil), DefaultAllowedClients...)
}

// EffectiveJWKSURL returns JWKSURL or the realm's certs endpoint
func (c *Config) EffectiveJWKSURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.Keycloak().JWKSURL()
}

// VerifierConfig builds the token verifier configuration
func (c *Config) VerifierConfig() (token.VerifierConfig, error) {
	mode, err := token.ParseClientCheck(c.ClientCheck)
	if err != nil {
		return token.VerifierConfig{}, err
	}
	return token.VerifierConfig{
		Issuers:        c.EffectiveIssuers(),
		ClientCheck:    mode,
		AllowedClients: c.EffectiveAllowedClients(),
	}, nil
}

// NewPolicyEngine creates the casbin engine when a policy file is set and
// the static single role engine otherwise.
func (c *Config) NewPolicyEngine() (policy.Engine, error) {
	if c.PolicyFile == "" {
		return policy.NewStaticEngine(&policy.StaticEngineConfig{
			Name:         "reportsmith-static-engine",
			Version:      "1.0.0",
			RequiredRole: c.RequiredRole,
		})
	}

	fileConfig := policy.DefaultFileBasedConfig()
	fileConfig.Name = "reportsmith-file-engine"
	fileConfig.PolicyPath = c.PolicyFile
	fileConfig.DenyRole = c.RequiredRole
	return policy.NewFileBasedEngine(fileConfig)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
