package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/attackdeck/bootstrap"
	"pkt.systems/attackdeck/internal/executor"
	"pkt.systems/attackdeck/schema"
)

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCatalogCommandListsAndDescribes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	missing := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execRoot(t, "catalog", "--config", missing, "--category", "recon")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if !strings.Contains(out, "nmap [recon]") || strings.Contains(out, "gan-fuzzer") {
		t.Fatalf("unexpected recon listing:\n%s", out)
	}

	out, err = execRoot(t, "catalog", "--config", missing, "ueransim")
	if err != nil {
		t.Fatalf("catalog ueransim: %v", err)
	}
	if !strings.Contains(out, "stream gnb") || !strings.Contains(out, "stream ue") {
		t.Fatalf("expected streams in description:\n%s", out)
	}

	if _, err := execRoot(t, "catalog", "--config", missing, "nope"); err == nil {
		t.Fatalf("expected unknown tool error")
	}
}

func TestConfigsCommandImportListShowDelete(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	paths, err := bootstrap.WriteBootstrap(t.TempDir(), false, bootstrap.Options{})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	exported := schema.NewExportConfig("lab", []schema.ExportedTab{{SelectedTool: "nmap", Parameters: schema.Parameters{"target": "10.0.0.9"}}}, time.Now())
	data, err := schema.EncodeExportConfig(exported)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	file := filepath.Join(t.TempDir(), "lab.json")
	if err := os.WriteFile(file, data, 0o600); err != nil {
		t.Fatalf("write export: %v", err)
	}

	out, err := execRoot(t, "configs", "--config", paths.ConfigPath, "import", file)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "saved 1 tabs as lab") {
		t.Fatalf("unexpected import output: %q", out)
	}
	out, err = execRoot(t, "configs", "--config", paths.ConfigPath, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(out, "lab\t") {
		t.Fatalf("unexpected list output: %q", out)
	}
	out, err = execRoot(t, "configs", "--config", paths.ConfigPath, "show", "lab")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, `"nmap"`) {
		t.Fatalf("expected tool in shown config: %q", out)
	}
	if _, err := execRoot(t, "configs", "--config", paths.ConfigPath, "delete", "lab"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := execRoot(t, "configs", "--config", paths.ConfigPath, "show", "lab"); err == nil {
		t.Fatalf("expected deleted config to be gone")
	}
}

func TestApplyExecutorFlags(t *testing.T) {
	opts := newRunOptions(t, "nmap")
	cfg := opts.Config
	applyExecutorFlags(&cfg, "process", "tcp", "127.0.0.1:27581")
	if cfg.Executor.Mode != "process" || cfg.Gateway.Network != "tcp" || cfg.Gateway.Address != "127.0.0.1:27581" {
		t.Fatalf("flags not applied: %+v %+v", cfg.Executor, cfg.Gateway)
	}
	if _, ok := newExecutor(cfg.Executor, opts.Catalog).(*executor.Process); !ok {
		t.Fatalf("expected process executor for mode process")
	}
	cfg.Executor.Mode = "mock"
	if _, ok := newExecutor(cfg.Executor, opts.Catalog).(*executor.Mock); !ok {
		t.Fatalf("expected mock executor for mode mock")
	}
}
