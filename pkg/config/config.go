package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/kupo/pkg/chain"
	"github.com/cuemby/kupo/pkg/database"
	"github.com/cuemby/kupo/pkg/pattern"
	"gopkg.in/yaml.v3"
)

// DefaultLongestRollback is the mainnet rollback horizon in slots: 3k/f
// with k = 2160 blocks and an active slot coefficient f of 1/20.
const DefaultLongestRollback = 129600

// ConfigurationError is a fatal startup problem, with a hint on how to fix
// the invocation.
type ConfigurationError struct {
	Hint string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Hint
}

// Config is the validated startup configuration.
type Config struct {
	// Producer selection: a node socket plus its configuration file, or
	// an Ogmios bridge.
	NodeSocket string
	NodeConfig string
	OgmiosHost string
	OgmiosPort int

	// Storage location.
	WorkDir  string
	InMemory bool

	// HTTP listen address.
	Host string
	Port int

	// Synchronization start and initial pattern set.
	Since    *chain.Point
	Patterns []pattern.Pattern

	InputManagement database.InputManagement
	GCInterval      time.Duration
	MaxConcurrency  int
	DeferIndexes    bool
	LongestRollback uint64
}

// Validate checks flag combinations and applies bounds.
func (c *Config) Validate() error {
	hasNode := c.NodeSocket != "" || c.NodeConfig != ""
	hasOgmios := c.OgmiosHost != "" || c.OgmiosPort != 0

	switch {
	case hasNode && hasOgmios:
		return &ConfigurationError{Hint: "--node-socket/--node-config and --ogmios-host/--ogmios-port are mutually exclusive; pick one producer"}
	case !hasNode && !hasOgmios:
		return &ConfigurationError{Hint: "no producer configured; pass --node-socket with --node-config, or --ogmios-host with --ogmios-port"}
	case hasNode && (c.NodeSocket == "" || c.NodeConfig == ""):
		return &ConfigurationError{Hint: "--node-socket and --node-config must be given together"}
	case hasOgmios && (c.OgmiosHost == "" || c.OgmiosPort == 0):
		return &ConfigurationError{Hint: "--ogmios-host and --ogmios-port must be given together"}
	}

	if c.InMemory && c.WorkDir != "" {
		return &ConfigurationError{Hint: "--workdir and --in-memory are mutually exclusive"}
	}
	if !c.InMemory && c.WorkDir == "" {
		return &ConfigurationError{Hint: "no storage configured; pass --workdir <dir> or --in-memory"}
	}

	if c.MaxConcurrency < 10 {
		c.MaxConcurrency = 10
	}
	if c.LongestRollback == 0 {
		c.LongestRollback = DefaultLongestRollback
	}
	if len(c.Patterns) == 0 && c.Since != nil {
		return &ConfigurationError{Hint: "--since without any --match would synchronize and keep nothing; add at least one --match"}
	}

	return nil
}

// NodeConfigFile is the subset of the node's configuration kupo reads: the
// network magic for the handshake and the security parameter from which
// the rollback horizon derives.
type NodeConfigFile struct {
	NetworkMagic  uint32 `yaml:"NetworkMagic"`
	SecurityParam uint64 `yaml:"SecurityParam"`

	// Some configurations nest the parameters under ShelleyGenesis
	// instead; both spellings are accepted.
	ShelleyGenesis struct {
		NetworkMagic  uint32 `yaml:"networkMagic"`
		SecurityParam uint64 `yaml:"securityParam"`
	} `yaml:"ShelleyGenesis"`
}

// ReadNodeConfig loads the node configuration file. YAML being a superset
// of the JSON the node ships with, one parser covers both.
func ReadNodeConfig(path string) (*NodeConfigFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Hint: fmt.Sprintf("cannot read node configuration at %s: %v", path, err)}
	}
	var cfg NodeConfigFile
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &ConfigurationError{Hint: fmt.Sprintf("node configuration at %s does not parse: %v", path, err)}
	}
	if cfg.NetworkMagic == 0 {
		cfg.NetworkMagic = cfg.ShelleyGenesis.NetworkMagic
	}
	if cfg.SecurityParam == 0 {
		cfg.SecurityParam = cfg.ShelleyGenesis.SecurityParam
	}
	return &cfg, nil
}

// LongestRollbackFromSecurityParam converts the security parameter (a
// block count) to a slot-denominated horizon of 3k/f, assuming the
// standard 1/20 active slot coefficient f.
func LongestRollbackFromSecurityParam(k uint64) uint64 {
	if k == 0 {
		return DefaultLongestRollback
	}
	return 3 * k * 20
}
