package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkt.systems/attackdeck/internal/appconfig"
	"pkt.systems/attackdeck/internal/gatewaygrpc"
	"pkt.systems/pslog"
)

func newExecutorMockCmd() *cobra.Command {
	var cfgPath string
	var mode string
	var network string
	var address string
	cmd := &cobra.Command{
		Use:   "executor-mock",
		Short: "Serve a local executor on the gateway address",
		Long: "Serves the gateway channel with a scripted mock executor (default) or, with\n" +
			"--mode process, runs dispatched commands through the configured shell.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			applyExecutorFlags(&cfg, mode, network, address)
			cat, err := loadCatalog(cfg.CatalogFile, logger)
			if err != nil {
				return err
			}
			exec := newExecutor(cfg.Executor, cat)
			server := gatewaygrpc.NewServer(toGatewayConfig(cfg), exec)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info("executor ready", "mode", cfg.Executor.Mode, "network", cfg.Gateway.Network, "address", cfg.Gateway.Address)
			return server.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&mode, "mode", "", "executor mode: mock or process (overrides config)")
	cmd.Flags().StringVar(&network, "network", "", "gateway network: unix or tcp (overrides config)")
	cmd.Flags().StringVar(&address, "address", "", "gateway address (overrides config)")
	return cmd
}

func applyExecutorFlags(cfg *appconfig.Config, mode, network, address string) {
	if mode != "" {
		cfg.Executor.Mode = mode
	}
	if network != "" {
		cfg.Gateway.Network = network
	}
	if address != "" {
		cfg.Gateway.Address = address
	}
}
