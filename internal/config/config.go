// Package config loads and validates the agent's runtime configuration
// from file, environment and defaults.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/didagent/pkg/constants"
)

// Config is the full agent configuration tree.
// Config 是代理的完整配置树。
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// AgentConfig identifies this agent instance.
type AgentConfig struct {
	// Tenant scopes every key and sync record the agent touches.
	Tenant string `mapstructure:"tenant"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	EnablePprof bool          `mapstructure:"enable_pprof"`
	EnableCORS  bool          `mapstructure:"enable_cors"`

	// NodeAuth requires peer agents to present a signed bearer token on
	// the node protocol routes.
	NodeAuth bool `mapstructure:"node_auth"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	// Backend is "pebble" or "sqlite". The sync queue and the local node
	// always run on pebble; the choice only affects key metadata.
	Backend string `mapstructure:"backend"`
	// Path is the pebble data directory.
	Path string `mapstructure:"path"`
	// SQLiteDSN locates the sqlite database when the backend is sqlite.
	SQLiteDSN string `mapstructure:"sqlite_dsn"`
}

// VaultConfig enables HashiCorp Vault as the private key store.
type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Mount   string `mapstructure:"mount"`
	Prefix  string `mapstructure:"prefix"`
}

// SyncConfig controls the replication loop.
type SyncConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// ResolverConfig points at the remote DID resolver.
type ResolverConfig struct {
	URL      string        `mapstructure:"url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig enables the OpenTelemetry pipeline.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	if c.Agent.Tenant == "" {
		return fmt.Errorf("agent.tenant must be set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	switch c.Store.Backend {
	case "pebble", "sqlite":
	default:
		return fmt.Errorf("store.backend %q is not one of pebble, sqlite", c.Store.Backend)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must be set")
	}
	if c.Vault.Enabled && c.Vault.Address == "" {
		return fmt.Errorf("vault.address must be set when vault is enabled")
	}
	if c.Sync.Enabled && c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	return nil
}

// Address returns the listener address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// defaults are applied before file and environment values.
func defaults() map[string]any {
	return map[string]any{
		"agent.tenant":         "default",
		"server.host":          "0.0.0.0",
		"server.port":          8080,
		"server.read_timeout":  constants.DefaultRequestTimeout,
		"server.enable_pprof":  false,
		"server.node_auth":     false,
		"server.enable_cors":   true,
		"store.backend":        "pebble",
		"store.path":           "data/agent",
		"store.sqlite_dsn":     "data/agent.db",
		"vault.enabled":        false,
		"vault.mount":          "secret",
		"vault.prefix":         "didagent",
		"sync.enabled":         true,
		"sync.interval":        constants.DefaultSyncInterval,
		"resolver.url":         "",
		"resolver.cache_ttl":   15 * time.Minute,
		"log.level":            "info",
		"log.format":           "json",
		"tracing.enabled":      false,
		"tracing.service_name": "didagent",
		"tracing.sample_rate":  0.1,
	}
}
