package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/attackdeck/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string         `mapstructure:"state_dir" yaml:"state_dir"`
	CatalogFile   string         `mapstructure:"catalog_file" yaml:"catalog_file"`
	Service       ServiceConfig  `mapstructure:"service" yaml:"service"`
	Gateway       GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Executor      ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	HTTP          HTTPConfig     `mapstructure:"http" yaml:"http"`
	Vault         VaultConfig    `mapstructure:"vault" yaml:"vault"`
	Logging       LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ServiceConfig controls core service behavior.
type ServiceConfig struct {
	BufferMaxLines        int    `mapstructure:"buffer_max_lines" yaml:"buffer_max_lines"`
	TabNamePrefix         string `mapstructure:"tab_name_prefix" yaml:"tab_name_prefix"`
	LoadingTimeoutSeconds int    `mapstructure:"loading_timeout_seconds" yaml:"loading_timeout_seconds"`
}

// GatewayConfig locates the executor gateway.
type GatewayConfig struct {
	Network                  string `mapstructure:"network" yaml:"network"`
	Address                  string `mapstructure:"address" yaml:"address"`
	KeepaliveIntervalSeconds int    `mapstructure:"keepalive_interval_seconds" yaml:"keepalive_interval_seconds"`
}

// ExecutorConfig configures the executor served by executor-mock.
type ExecutorConfig struct {
	Mode            string `mapstructure:"mode" yaml:"mode"`
	Shell           string `mapstructure:"shell" yaml:"shell"`
	Nice            int    `mapstructure:"nice" yaml:"nice"`
	MockDelayMillis int    `mapstructure:"mock_delay_ms" yaml:"mock_delay_ms"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr               string `mapstructure:"addr" yaml:"addr"`
	BasePath           string `mapstructure:"base_path" yaml:"base_path"`
	DefaultOperator    string `mapstructure:"default_operator" yaml:"default_operator"`
	InitialBufferLines int    `mapstructure:"initial_buffer_lines" yaml:"initial_buffer_lines"`
	HubHistory         int    `mapstructure:"hub_history" yaml:"hub_history"`
}

// VaultConfig locates the encrypted saved-configuration store.
type VaultConfig struct {
	KeyStorePath string `mapstructure:"key_store_path" yaml:"key_store_path"`
	Dir          string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// Executor modes.
const (
	ExecutorProcess = "process"
	ExecutorMock    = "mock"
)

// ServiceConfig maps the file settings onto the core service config.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		StateDir:            c.StateDir,
		BufferMaxLines:      c.Service.BufferMaxLines,
		TabNamePrefix:       c.Service.TabNamePrefix,
		LoadingTimeout:      time.Duration(c.Service.LoadingTimeoutSeconds) * time.Second,
		DisableAuditLogging: c.Logging.DisableAuditTrails,
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	root := filepath.Join(home, ".attackdeck")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(root, "state"),
		CatalogFile:   filepath.Join(root, "tools.yaml"),
		Service: ServiceConfig{
			BufferMaxLines:        schema.DefaultBufferMaxLines,
			TabNamePrefix:         schema.DefaultTabNamePrefix,
			LoadingTimeoutSeconds: 0,
		},
		Gateway: GatewayConfig{
			Network:                  "unix",
			Address:                  filepath.Join(root, "state", "gateway.sock"),
			KeepaliveIntervalSeconds: 10,
		},
		Executor: ExecutorConfig{
			Mode:            ExecutorMock,
			Shell:           "/bin/sh",
			Nice:            0,
			MockDelayMillis: 50,
		},
		HTTP: HTTPConfig{
			Addr:               ":27580",
			BasePath:           "",
			DefaultOperator:    "operator",
			InitialBufferLines: 200,
			HubHistory:         1000,
		},
		Vault: VaultConfig{
			KeyStorePath: filepath.Join(root, "state", "vault", "keys.bundle"),
			Dir:          filepath.Join(root, "state", "vault", "configs"),
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".attackdeck", "config.yaml"), nil
}
