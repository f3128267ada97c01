package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/internal/appconfig"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

func newCatalogCmd() *cobra.Command {
	var cfgPath string
	var category string
	var builtin bool
	cmd := &cobra.Command{
		Use:   "catalog [tool]",
		Short: "List catalog tools or describe one tool",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if builtin {
				_, err := out.Write(catalog.BuiltinYAML())
				return err
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg.CatalogFile, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			if len(args) == 1 {
				tool, ok := cat.Tool(schema.ToolID(args[0]))
				if !ok {
					return fmt.Errorf("%w: %s", schema.ErrUnknownTool, args[0])
				}
				describeTool(out, tool)
				return nil
			}
			listTools(out, cat, schema.Category(category))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&category, "category", "", "only list tools in this category")
	cmd.Flags().BoolVar(&builtin, "builtin", false, "print the built-in tools.yaml")
	return cmd
}

func listTools(out io.Writer, cat *catalog.Catalog, category schema.Category) {
	for _, tool := range cat.Tools() {
		if category != "" && tool.Category != category {
			continue
		}
		attacks := make([]string, 0, len(tool.Attacks))
		for _, attack := range tool.Attacks {
			attacks = append(attacks, string(attack.ID))
		}
		line := fmt.Sprintf("%s [%s] %s", tool.ID, tool.Category, tool.Name)
		if len(attacks) > 0 {
			line += " attacks: " + strings.Join(attacks, ", ")
		}
		_, _ = fmt.Fprintln(out, line)
	}
}

func describeTool(out io.Writer, tool catalog.Tool) {
	_, _ = fmt.Fprintf(out, "%s (%s)\n", tool.Name, tool.ID)
	_, _ = fmt.Fprintf(out, "category: %s\n", tool.Category)
	if tool.Description != "" {
		_, _ = fmt.Fprintf(out, "description: %s\n", tool.Description)
	}
	printParams(out, "  ", tool.Params)
	for _, attack := range tool.Attacks {
		_, _ = fmt.Fprintf(out, "attack %s: %s\n", attack.ID, attack.Name)
		printParams(out, "    ", attack.Params)
	}
	for _, stream := range tool.StreamIDs() {
		sub, _ := tool.Stream(stream)
		_, _ = fmt.Fprintf(out, "stream %s", stream)
		if sub.WorkingDirectory != "" {
			_, _ = fmt.Fprintf(out, " (in %s)", sub.WorkingDirectory)
		}
		_, _ = fmt.Fprintln(out)
	}
	if tool.Surface != nil {
		_, _ = fmt.Fprintf(out, "surface: port %d\n", tool.Surface.Port)
	}
}

func printParams(out io.Writer, indent string, specs []catalog.ParamSpec) {
	for _, spec := range specs {
		line := indent + spec.Name + "=" + spec.Default
		if spec.Required {
			line += " (required)"
		}
		_, _ = fmt.Fprintln(out, line)
	}
}
