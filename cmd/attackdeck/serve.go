package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/attackdeck"
	"pkt.systems/attackdeck/core"
	"pkt.systems/attackdeck/internal/appconfig"
	"pkt.systems/attackdeck/internal/fatal"
	"pkt.systems/attackdeck/internal/gatewaygrpc"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var disableAuditTrails bool
	var withExecutor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the attackdeck HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if disableAuditTrails {
				cfg.Logging.DisableAuditTrails = true
			}
			cat, err := loadCatalog(cfg.CatalogFile, logger)
			if err != nil {
				return err
			}
			serverCfg := toServerConfig(cfg)
			gateway, err := gatewaygrpc.Dial(cmd.Context(), serverCfg.Gateway)
			if err != nil {
				return err
			}
			logger.Info("gateway selected", "network", serverCfg.Gateway.Network, "address", serverCfg.Gateway.Address)

			deps := attackdeck.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Catalog:    cat,
					Gateway:    gateway,
					Classifier: fatal.Default(),
					Logger:     logger,
				},
			}
			opts := []attackdeck.ServerOption{attackdeck.WithHTTP()}
			if withExecutor {
				deps.Executor = newExecutor(cfg.Executor, cat)
				opts = append(opts, attackdeck.WithExecutor())
				logger.Info("executor embedded", "mode", cfg.Executor.Mode)
			}
			server, err := attackdeck.New(serverCfg, deps, opts...)
			if err != nil {
				_ = gateway.Close()
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable audit trail logging for commands")
	cmd.Flags().BoolVar(&withExecutor, "with-executor", false, "serve the configured executor on the gateway address in-process")
	return cmd
}
