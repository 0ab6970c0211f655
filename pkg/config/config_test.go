package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		OgmiosHost: "localhost",
		OgmiosPort: 1337,
		WorkDir:    "/tmp/kupo",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid ogmios", mutate: func(c *Config) {}},
		{name: "valid in-memory", mutate: func(c *Config) {
			c.WorkDir = ""
			c.InMemory = true
		}},
		{name: "both producers", mutate: func(c *Config) {
			c.NodeSocket = "/run/node.socket"
			c.NodeConfig = "/etc/node/config.json"
		}, wantErr: true},
		{name: "no producer", mutate: func(c *Config) {
			c.OgmiosHost = ""
			c.OgmiosPort = 0
		}, wantErr: true},
		{name: "node socket without config", mutate: func(c *Config) {
			c.OgmiosHost = ""
			c.OgmiosPort = 0
			c.NodeSocket = "/run/node.socket"
		}, wantErr: true},
		{name: "workdir and in-memory", mutate: func(c *Config) {
			c.InMemory = true
		}, wantErr: true},
		{name: "no storage", mutate: func(c *Config) {
			c.WorkDir = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				var confErr *ConfigurationError
				require.ErrorAs(t, err, &confErr)
				assert.NotEmpty(t, confErr.Hint)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAppliesBounds(t *testing.T) {
	cfg := validConfig()
	cfg.MaxConcurrency = 3
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.MaxConcurrency)
	assert.Equal(t, uint64(DefaultLongestRollback), cfg.LongestRollback)
}

func TestReadNodeConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	// The node ships JSON; YAML being a superset, the same parser reads
	// both spellings.
	require.NoError(t, os.WriteFile(path, []byte(`{"NetworkMagic": 764824073, "SecurityParam": 2160}`), 0o644))

	cfg, err := ReadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(764824073), cfg.NetworkMagic)
	assert.Equal(t, uint64(2160), cfg.SecurityParam)
	assert.Equal(t, uint64(129600), LongestRollbackFromSecurityParam(cfg.SecurityParam))

	_, err = ReadNodeConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
