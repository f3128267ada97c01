package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/attackdeck/schema"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "vault.bundle"), filepath.Join(dir, "configs"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, dir
}

func sampleConfig(name string) schema.ExportConfig {
	return schema.NewExportConfig(name, []schema.ExportedTab{{
		SelectedTool:   "gan-fuzzer",
		SelectedAttack: "ngap-fuzz",
		Parameters:     schema.Parameters{"target-host": "10.0.0.2", "target-port": "38412"},
		Category:       "5g",
	}}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, dir := newTestStore(t)
	if err := store.Save("alice", sampleConfig("lab")); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "configs", "alice", "lab.enc"))
	if err != nil {
		t.Fatalf("read encrypted file: %v", err)
	}
	if bytes.Contains(raw, []byte("gan-fuzzer")) {
		t.Fatalf("expected ciphertext at rest")
	}
	cfg, err := store.Load("alice", "lab")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "lab" || len(cfg.Tabs) != 1 || cfg.Tabs[0].Parameters["target-host"] != "10.0.0.2" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ExportDate != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected export date %q", cfg.ExportDate)
	}
}

func TestListAndDelete(t *testing.T) {
	store, _ := newTestStore(t)
	for _, name := range []string{"zeta", "alpha"} {
		if err := store.Save("alice", sampleConfig(name)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	if err := store.Save("bob", sampleConfig("bobs")); err != nil {
		t.Fatalf("save bob: %v", err)
	}
	entries, err := store.List("alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "alpha" || entries[1].Name != "zeta" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if err := store.Delete("alice", "alpha"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load("alice", "alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete("alice", "alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	entries, err = store.List("carol")
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty list for unknown user, got %+v err=%v", entries, err)
	}
}

func TestRejectsUnsafeNames(t *testing.T) {
	store, _ := newTestStore(t)
	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		if err := store.Save("alice", sampleConfig(name)); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName for %q, got %v", name, err)
		}
	}
	if err := store.Save("..", sampleConfig("lab")); !errors.Is(err, schema.ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestReopenedStoreDecrypts(t *testing.T) {
	store, dir := newTestStore(t)
	if err := store.Save("alice", sampleConfig("lab")); err != nil {
		t.Fatalf("save: %v", err)
	}
	reopened, err := NewStore(filepath.Join(dir, "vault.bundle"), filepath.Join(dir, "configs"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := reopened.Load("alice", "lab"); err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
}

func TestSaveOverwritesWithoutTempFiles(t *testing.T) {
	store, dir := newTestStore(t)
	for i := 0; i < 2; i++ {
		if err := store.Save("alice", sampleConfig("lab")); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(filepath.Join(dir, "configs", "alice"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "lab.enc" {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Fatalf("expected only lab.enc, got %v", names)
	}
	if _, err := store.Load("alice", "lab"); err != nil {
		t.Fatalf("load after overwrite: %v", err)
	}
}
