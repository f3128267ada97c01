package main

import (
	"flag"
	"fmt"
	"os"

	"pkt.systems/attackdeck/bootstrap"
)

func main() {
	var output string
	var overwrite bool
	flag.StringVar(&output, "output", ".", "output directory")
	flag.StringVar(&output, "o", ".", "output directory")
	flag.BoolVar(&overwrite, "force", false, "overwrite existing files")
	flag.Parse()

	files, err := bootstrap.DefaultFilesWithOptions(bootstrap.Options{
		Overrides: []bootstrap.ConfigOverride{
			{Path: "state_dir", Value: "${HOME}/.attackdeck/state"},
			{Path: "catalog_file", Value: "${HOME}/.attackdeck/tools.yaml"},
			{Path: "gateway.address", Value: "${HOME}/.attackdeck/state/gateway.sock"},
			{Path: "vault.key_store_path", Value: "${HOME}/.attackdeck/state/vault/keys.bundle"},
			{Path: "vault.dir", Value: "${HOME}/.attackdeck/state/vault/configs"},
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	paths, err := bootstrap.WriteFiles(output, files, overwrite)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, paths.ConfigPath)
	fmt.Fprintln(os.Stdout, paths.CatalogPath)
}
