package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Agent.Tenant)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "pebble", cfg.Store.Backend)
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent:
  tenant: acme
server:
  port: 9090
store:
  backend: sqlite
  path: /var/lib/agent
sync:
  interval: 30s
`), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Agent.Tenant)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	// Untouched keys keep defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("DIDAGENT_SERVER_PORT", "7070")
	t.Setenv("DIDAGENT_AGENT_TENANT", "env-tenant")

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-tenant", cfg.Agent.Tenant)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty tenant", func(c *Config) { c.Agent.Tenant = "" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }},
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"vault without address", func(c *Config) { c.Vault.Enabled = true; c.Vault.Address = "" }},
		{"zero sync interval", func(c *Config) { c.Sync.Interval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewLoader("").Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
