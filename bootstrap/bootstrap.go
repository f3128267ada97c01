package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/internal/appconfig"
	"pkt.systems/attackdeck/internal/vault"
)

// Files represents generated bootstrap artifacts.
type Files struct {
	ConfigYAML  []byte
	CatalogYAML []byte
}

// Options controls optional bootstrap behaviors.
type Options struct {
	// Overrides are dotted config paths applied on top of the defaults,
	// e.g. "gateway.network" = "tcp".
	Overrides []ConfigOverride
	// SkipKeyStore leaves the vault key store uncreated.
	SkipKeyStore bool
}

// Paths reports where bootstrap wrote its outputs.
type Paths struct {
	ConfigPath   string
	CatalogPath  string
	KeyStorePath string
}

// ConfigOverride applies a config path override to the generated config.
type ConfigOverride struct {
	Path  string
	Value any
}

const (
	configName  = "config.yaml"
	catalogName = "tools.yaml"
)

// DefaultFiles returns the default config and tool catalog.
func DefaultFiles() (Files, error) {
	return DefaultFilesWithOptions(Options{})
}

// DefaultFilesWithOptions returns the default config with overrides applied.
func DefaultFilesWithOptions(opts Options) (Files, error) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		return Files{}, err
	}
	cfg.ConfigVersion = appconfig.CurrentConfigVersion
	cfg, err = applyOverrides(cfg, opts.Overrides)
	if err != nil {
		return Files{}, err
	}
	configYAML, err := yaml.Marshal(cfg)
	if err != nil {
		return Files{}, err
	}
	return Files{ConfigYAML: configYAML, CatalogYAML: catalog.BuiltinYAML()}, nil
}

// WriteBootstrap writes config.yaml and tools.yaml into outputDir. An empty
// outputDir targets the directory of the default config path. The generated
// config points catalog_file at the written tools.yaml.
func WriteBootstrap(outputDir string, overwrite bool, opts Options) (Paths, error) {
	if strings.TrimSpace(outputDir) == "" {
		defaultPath, err := appconfig.DefaultConfigPath()
		if err != nil {
			return Paths{}, err
		}
		outputDir = filepath.Dir(defaultPath)
	}
	if abs, err := filepath.Abs(outputDir); err == nil {
		outputDir = abs
	}
	catalogPath := filepath.Join(outputDir, catalogName)
	overrides := append([]ConfigOverride{{Path: "catalog_file", Value: catalogPath}}, opts.Overrides...)
	files, err := DefaultFilesWithOptions(Options{Overrides: overrides})
	if err != nil {
		return Paths{}, err
	}
	paths, err := WriteFiles(outputDir, files, overwrite)
	if err != nil {
		return Paths{}, err
	}
	if opts.SkipKeyStore {
		return paths, nil
	}

	var cfg appconfig.Config
	if err := yaml.Unmarshal(files.ConfigYAML, &cfg); err != nil {
		return Paths{}, err
	}
	if err := vault.EnsureKeyStore(cfg.Vault.KeyStorePath); err != nil {
		return Paths{}, fmt.Errorf("vault key store: %w", err)
	}
	paths.KeyStorePath = cfg.Vault.KeyStorePath
	return paths, nil
}

// WriteFiles writes config.yaml and tools.yaml into outputDir.
func WriteFiles(outputDir string, files Files, overwrite bool) (Paths, error) {
	if strings.TrimSpace(outputDir) == "" {
		return Paths{}, fmt.Errorf("output directory is required")
	}
	configPath := filepath.Join(outputDir, configName)
	catalogPath := filepath.Join(outputDir, catalogName)
	if !overwrite {
		for _, path := range []string{configPath, catalogPath} {
			if _, err := os.Stat(path); err == nil {
				return Paths{}, fmt.Errorf("file already exists: %s", path)
			}
		}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(configPath, files.ConfigYAML, 0o600); err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(catalogPath, files.CatalogYAML, 0o644); err != nil {
		return Paths{}, err
	}
	return Paths{ConfigPath: configPath, CatalogPath: catalogPath}, nil
}

// ParseOverride parses "path=value". Values decode as YAML scalars so
// "tcp", "30" and "true" keep their natural types.
func ParseOverride(raw string) (ConfigOverride, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return ConfigOverride{}, fmt.Errorf("invalid override %q; expected path=value", raw)
	}
	var decoded any
	if err := yaml.Unmarshal([]byte(value), &decoded); err != nil || decoded == nil {
		decoded = value
	}
	return ConfigOverride{Path: key, Value: decoded}, nil
}

func applyOverrides(cfg appconfig.Config, overrides []ConfigOverride) (appconfig.Config, error) {
	if len(overrides) == 0 {
		return cfg, nil
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return cfg, err
	}
	for _, override := range overrides {
		if err := setOverrideValue(data, override.Path, override.Value); err != nil {
			return cfg, err
		}
	}
	updated, err := yaml.Marshal(data)
	if err != nil {
		return cfg, err
	}
	var next appconfig.Config
	if err := yaml.Unmarshal(updated, &next); err != nil {
		return cfg, err
	}
	return next, nil
}

func setOverrideValue(root map[string]any, path string, value any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config override path is required")
	}
	parts := strings.Split(path, ".")
	node := root
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return fmt.Errorf("invalid config override path %q", path)
		}
		if i == len(parts)-1 {
			node[part] = value
			return nil
		}
		next, ok := node[part]
		if !ok || next == nil {
			child := map[string]any{}
			node[part] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("config override %q: %q is not a map", path, part)
		}
		node = child
	}
	return nil
}
