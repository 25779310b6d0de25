// Package config provides configuration management for the API gateway.
// It handles loading and parsing YAML configuration files, and provides
// structured access to the gateway settings: listen port, upstream host,
// route policy tables, collaborator endpoints and the quota store locations.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the gateway configuration, loaded from a YAML file.
type Config struct {
	// Port is the network port on which the gateway will listen.
	Port int `yaml:"port"`

	// UpstreamHost is the base URL of the host that registered interfaces
	// are served from. The full URL used for interface-registry lookups is
	// UpstreamHost + request path.
	UpstreamHost string `yaml:"upstream-host"`

	// Debug enables or disables debug-level logging and gin debug mode.
	Debug bool `yaml:"debug"`

	// RequestLog enables detailed per-request usage record logging.
	RequestLog bool `yaml:"request-log"`

	// Routes holds the path policy tables used for route classification.
	Routes Routes `yaml:"routes"`

	// IPAllowList lists source addresses permitted to call third-party
	// signed routes. Checked before any credential is evaluated.
	IPAllowList []string `yaml:"ip-allow-list"`

	// SessionCookie is the cookie name that carries the session id for
	// session-authenticated routes.
	SessionCookie string `yaml:"session-cookie"`

	// PlatformBaseURL is the base URL of the platform backend that serves
	// the user-directory and interface-registry lookups.
	PlatformBaseURL string `yaml:"platform-base-url"`

	// CollaboratorTimeoutSeconds bounds every remote collaborator call. A
	// timed out call is treated as its category's default failure.
	CollaboratorTimeoutSeconds int `yaml:"collaborator-timeout-seconds"`

	// RedisAddr is the address of the redis instance backing the credit
	// ledger.
	RedisAddr string `yaml:"redis-addr"`

	// RedisPassword is the optional password for the credit ledger redis.
	RedisPassword string `yaml:"redis-password"`

	// CounterPath is the bbolt database file backing the legacy
	// call-count store.
	CounterPath string `yaml:"counter-path"`
}

// Routes holds the path tables that drive route classification. The
// tables are immutable once the filter is built; the watcher swaps in a
// whole new snapshot on config change.
type Routes struct {
	// Public paths bypass all authentication and quota checks.
	// Matching is prefix based: p, p/... and p?... all match.
	Public []string `yaml:"public"`

	// InternalDebug paths are the platform's debug-invocation endpoints,
	// session-authenticated and metered against the body's interface id.
	InternalDebug []string `yaml:"internal-debug"`

	// Platform paths are first-party business APIs, session-authenticated
	// but not metered.
	Platform []string `yaml:"platform"`

	// ThirdParty paths are signed third-party invocations, metered.
	ThirdParty []string `yaml:"third-party"`
}

// LoadConfig reads a YAML configuration file from the given path,
// unmarshals it into a Config struct, applies defaults and returns it.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.ApplyDefaults()

	return &config, nil
}

// ApplyDefaults fills in the defaults for fields the YAML file omitted.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.UpstreamHost == "" {
		c.UpstreamHost = "http://localhost:8101"
	}
	if c.SessionCookie == "" {
		c.SessionCookie = "SESSION"
	}
	if c.CollaboratorTimeoutSeconds <= 0 {
		c.CollaboratorTimeoutSeconds = 3
	}
	if len(c.IPAllowList) == 0 {
		c.IPAllowList = []string{"127.0.0.1"}
	}
	if c.CounterPath == "" {
		c.CounterPath = "counters.db"
	}
	if len(c.Routes.Public) == 0 {
		c.Routes.Public = []string{
			"/user/register",
			"/user/login",
			"/user/login/wx_open",
			"/user/logout",
			"/healthz",
		}
	}
	if len(c.Routes.InternalDebug) == 0 {
		c.Routes.InternalDebug = []string{"/api/interfaceInfo/invoke"}
	}
	if len(c.Routes.Platform) == 0 {
		c.Routes.Platform = []string{"/api/user", "/api/interfaceInfo", "/api/analysis"}
	}
	if len(c.Routes.ThirdParty) == 0 {
		c.Routes.ThirdParty = []string{"/third-party"}
	}
}

// CollaboratorTimeout returns the configured collaborator call bound.
func (c *Config) CollaboratorTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeoutSeconds) * time.Second
}
