package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("catalog_file", cfg.CatalogFile)
	v.SetDefault("service.buffer_max_lines", cfg.Service.BufferMaxLines)
	v.SetDefault("service.tab_name_prefix", cfg.Service.TabNamePrefix)
	v.SetDefault("service.loading_timeout_seconds", cfg.Service.LoadingTimeoutSeconds)
	v.SetDefault("gateway.network", cfg.Gateway.Network)
	v.SetDefault("gateway.address", cfg.Gateway.Address)
	v.SetDefault("gateway.keepalive_interval_seconds", cfg.Gateway.KeepaliveIntervalSeconds)
	v.SetDefault("executor.mode", cfg.Executor.Mode)
	v.SetDefault("executor.shell", cfg.Executor.Shell)
	v.SetDefault("executor.nice", cfg.Executor.Nice)
	v.SetDefault("executor.mock_delay_ms", cfg.Executor.MockDelayMillis)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.default_operator", cfg.HTTP.DefaultOperator)
	v.SetDefault("http.initial_buffer_lines", cfg.HTTP.InitialBufferLines)
	v.SetDefault("http.hub_history", cfg.HTTP.HubHistory)
	v.SetDefault("vault.key_store_path", cfg.Vault.KeyStorePath)
	v.SetDefault("vault.dir", cfg.Vault.Dir)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// SetConfigFile reports a missing explicit path as a plain fs error.
	return os.IsNotExist(err)
}

func validate(cfg Config) error {
	switch cfg.Gateway.Network {
	case "unix", "tcp":
	default:
		return fmt.Errorf("unsupported gateway.network %q", cfg.Gateway.Network)
	}
	if strings.TrimSpace(cfg.Gateway.Address) == "" {
		return fmt.Errorf("gateway.address is required")
	}
	if cfg.Gateway.KeepaliveIntervalSeconds < 0 {
		return fmt.Errorf("gateway.keepalive_interval_seconds must not be negative")
	}
	switch cfg.Executor.Mode {
	case ExecutorProcess, ExecutorMock:
	default:
		return fmt.Errorf("unsupported executor.mode %q", cfg.Executor.Mode)
	}
	if cfg.Service.LoadingTimeoutSeconds < 0 {
		return fmt.Errorf("service.loading_timeout_seconds must not be negative")
	}
	return validateHTTPConfig(cfg.HTTP)
}

func validateHTTPConfig(cfg HTTPConfig) error {
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.CatalogFile = expandEnv(cfg.CatalogFile)
	cfg.Gateway.Address = expandEnv(cfg.Gateway.Address)
	cfg.Executor.Shell = expandEnv(cfg.Executor.Shell)
	cfg.Vault.KeyStorePath = expandEnv(cfg.Vault.KeyStorePath)
	cfg.Vault.Dir = expandEnv(cfg.Vault.Dir)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
