package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/attackdeck/bootstrap"
	"pkt.systems/pslog"
)

func newBootstrapCmd() *cobra.Command {
	var outputDir string
	var overwrite bool
	var sets []string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Generate default config.yaml and tools.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			opts := bootstrap.Options{}
			for _, raw := range sets {
				override, err := bootstrap.ParseOverride(raw)
				if err != nil {
					return err
				}
				opts.Overrides = append(opts.Overrides, override)
			}
			paths, err := bootstrap.WriteBootstrap(outputDir, overwrite, opts)
			if err != nil {
				return err
			}
			logger.Info("bootstrap wrote", "path", paths.ConfigPath, "name", "config.yaml")
			logger.Info("bootstrap wrote", "path", paths.CatalogPath, "name", "tools.yaml")
			if paths.KeyStorePath != "" {
				logger.Info("bootstrap wrote", "path", paths.KeyStorePath, "name", "vault key store")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default ~/.attackdeck)")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite existing files")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "config override path=value (repeatable)")
	return cmd
}
