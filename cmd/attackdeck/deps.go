package main

import (
	"errors"
	"os"
	"time"

	"pkt.systems/attackdeck"
	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/httpapi"
	"pkt.systems/attackdeck/internal/appconfig"
	"pkt.systems/attackdeck/internal/executor"
	"pkt.systems/attackdeck/internal/gatewaygrpc"
	"pkt.systems/pslog"
)

// loadCatalog merges the configured tools file over the built-in catalog.
// A missing file falls back to the built-in tools.
func loadCatalog(path string, logger pslog.Logger) (*catalog.Catalog, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			logger.Info("catalog file missing; using built-in tools", "path", path)
			path = ""
		}
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("catalog loaded", "path", path, "tools", cat.Len())
	return cat, nil
}

func newExecutor(cfg appconfig.ExecutorConfig, cat *catalog.Catalog) gatewaygrpc.Executor {
	if cfg.Mode == appconfig.ExecutorProcess {
		return &executor.Process{Shell: cfg.Shell, Nice: cfg.Nice}
	}
	return &executor.Mock{
		Catalog: cat,
		Delay:   time.Duration(cfg.MockDelayMillis) * time.Millisecond,
	}
}

func toGatewayConfig(cfg appconfig.Config) gatewaygrpc.Config {
	return gatewaygrpc.Config{
		Network:           cfg.Gateway.Network,
		Address:           cfg.Gateway.Address,
		KeepaliveInterval: time.Duration(cfg.Gateway.KeepaliveIntervalSeconds) * time.Second,
	}
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:               cfg.Addr,
		BasePath:           cfg.BasePath,
		DefaultOperator:    cfg.DefaultOperator,
		InitialBufferLines: cfg.InitialBufferLines,
		HubHistory:         cfg.HubHistory,
	}
}

func toServerConfig(cfg appconfig.Config) attackdeck.ServerConfig {
	return attackdeck.ServerConfig{
		Service: cfg.ServiceConfig(),
		HTTP:    toHTTPConfig(cfg.HTTP),
		Gateway: toGatewayConfig(cfg),
		Vault: attackdeck.VaultConfig{
			KeyStorePath: cfg.Vault.KeyStorePath,
			Dir:          cfg.Vault.Dir,
		},
	}
}
