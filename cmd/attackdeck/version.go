package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/attackdeck/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Read()
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%s %s\n", info.Module, info); err != nil {
				return err
			}
			if info.Revision == "" {
				return nil
			}
			_, err := fmt.Fprintf(out, "revision %s %s\n", info.Revision, info.Time.Format("2006-01-02T15:04:05Z"))
			return err
		},
	}
}
