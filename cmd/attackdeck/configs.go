package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/attackdeck/internal/appconfig"
	"pkt.systems/attackdeck/internal/vault"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

func newConfigsCmd() *cobra.Command {
	var cfgPath string
	var operator string
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Manage saved tab configurations",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVarP(&operator, "operator", "u", "", "operator (default: http.default_operator)")

	cmd.AddCommand(newConfigsListCmd(&cfgPath, &operator))
	cmd.AddCommand(newConfigsShowCmd(&cfgPath, &operator))
	cmd.AddCommand(newConfigsImportCmd(&cfgPath, &operator))
	cmd.AddCommand(newConfigsDeleteCmd(&cfgPath, &operator))

	return cmd
}

func openVault(cmd *cobra.Command, cfgPath, operator string) (*vault.Store, schema.UserID, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, "", err
	}
	if operator == "" {
		operator = cfg.HTTP.DefaultOperator
	}
	userID := schema.UserID(operator)
	if err := schema.ValidateUserID(userID); err != nil {
		return nil, "", err
	}
	store, err := vault.NewStoreWithLogger(cfg.Vault.KeyStorePath, cfg.Vault.Dir, pslog.Ctx(cmd.Context()))
	if err != nil {
		return nil, "", err
	}
	return store, userID, nil
}

func newConfigsListCmd(cfgPath, operator *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, userID, err := openVault(cmd, *cfgPath, *operator)
			if err != nil {
				return err
			}
			entries, err := store.List(userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, entry := range entries {
				_, _ = fmt.Fprintf(out, "%s\t%d\t%s\n", entry.Name, entry.Size, entry.ModTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newConfigsShowCmd(cfgPath, operator *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a saved configuration as export JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, userID, err := openVault(cmd, *cfgPath, *operator)
			if err != nil {
				return err
			}
			cfg, err := store.Load(userID, args[0])
			if err != nil {
				return err
			}
			data, err := schema.EncodeExportConfig(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func newConfigsImportCmd(cfgPath, operator *string) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store an exported configuration file in the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := schema.DecodeExportConfig(data)
			if err != nil {
				return err
			}
			if name != "" {
				cfg.Name = name
			}
			store, userID, err := openVault(cmd, *cfgPath, *operator)
			if err != nil {
				return err
			}
			if err := store.Save(userID, cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved %d tabs as %s\n", len(cfg.Tabs), cfg.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name to save under (default: the file's name field)")
	return cmd
}

func newConfigsDeleteCmd(cfgPath, operator *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, userID, err := openVault(cmd, *cfgPath, *operator)
			if err != nil {
				return err
			}
			if err := store.Delete(userID, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted configuration: %s\n", args[0])
			return nil
		},
	}
}
