// Package hostagent implements the agent process that runs on every Toolbox:
// it manages tool containers on behalf of the control plane, executes
// capabilities inside them with just-in-time credentials, and reports state
// back through heartbeats.
package hostagent

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the host agent's startup configuration. It is written to the host
// by cloud-init during provisioning and can be overridden via environment
// variables prefixed with TOOLBOX_AGENT_.
type Config struct {
	// ControlPlaneURL is the base URL of the control plane.
	ControlPlaneURL string `mapstructure:"control_plane_url"`

	// BearerSecret is this host's identity towards the control plane.
	BearerSecret string `mapstructure:"bearer_secret"`

	// SystemKey authenticates inbound commands from the control plane.
	SystemKey string `mapstructure:"system_key"`

	// ListenAddr is the bind address of the inbound command server.
	ListenAddr string `mapstructure:"listen_addr"`

	// HeartbeatInterval is how often the agent reports to the control plane.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	// ExecuteTimeout bounds every capability execution.
	ExecuteTimeout time.Duration `mapstructure:"execute_timeout"`

	// CredentialFetchTimeout bounds the just-in-time credential fetch.
	CredentialFetchTimeout time.Duration `mapstructure:"credential_fetch_timeout"`
}

// DefaultConfigFile is where cloud-init writes the agent configuration.
const DefaultConfigFile = "/etc/toolbox/agent.yaml"

// LoadConfig reads the agent configuration from the given file, applying
// environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TOOLBOX_AGENT")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8484")
	v.SetDefault("heartbeat_interval", 30*time.Second)
	v.SetDefault("execute_timeout", 60*time.Second)
	v.SetDefault("credential_fetch_timeout", 5*time.Second)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read agent config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agent config: %w", err)
	}

	if cfg.ControlPlaneURL == "" {
		return nil, fmt.Errorf("control_plane_url is required")
	}
	if cfg.BearerSecret == "" {
		return nil, fmt.Errorf("bearer_secret is required")
	}
	if cfg.SystemKey == "" {
		return nil, fmt.Errorf("system_key is required")
	}
	return &cfg, nil
}
