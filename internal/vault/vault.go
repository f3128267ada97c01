package vault

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

const (
	configExt        = ".enc"
	descriptorPrefix = "attackdeck:vault:"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

var (
	// ErrNotFound is returned when a saved configuration does not exist.
	ErrNotFound = errors.New("saved configuration not found")
	// ErrInvalidName is returned for names that are not safe file names.
	ErrInvalidName = errors.New("invalid configuration name")
)

// Entry describes one saved configuration.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Store keeps named export configurations per operator, encrypted at rest.
// Each operator has its own data key derived from the store's root key.
type Store struct {
	storePath string
	dir       string
	log       pslog.Logger
}

// NewStore initializes the vault and ensures the root key exists.
func NewStore(storePath, dir string) (*Store, error) {
	return NewStoreWithLogger(storePath, dir, nil)
}

// NewStoreWithLogger initializes the vault with logging.
func NewStoreWithLogger(storePath, dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(storePath) == "" {
		return nil, fmt.Errorf("vault key store path is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("vault directory is required")
	}
	if err := EnsureKeyStoreWithLogger(storePath, logger); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("vault_store", storePath, "vault_dir", dir)
	}
	return &Store{storePath: storePath, dir: dir, log: logger}, nil
}

// Save encrypts cfg under cfg.Name, replacing any configuration with that name.
func (s *Store) Save(userID schema.UserID, cfg schema.ExportConfig) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	if err := checkName(cfg.Name); err != nil {
		return err
	}
	plain, err := schema.EncodeExportConfig(cfg)
	if err != nil {
		return s.fail("vault save failed", userID, cfg.Name, err)
	}
	material, root, err := s.materialForUser(userID)
	if err != nil {
		return err
	}
	kg := kryptograf.New(root)
	dir := s.userDir(userID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return s.fail("vault save failed", userID, cfg.Name, err)
	}
	tmp, err := os.CreateTemp(dir, "config-*.tmp")
	if err != nil {
		return s.fail("vault save failed", userID, cfg.Name, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		return s.fail("vault save failed", userID, cfg.Name, err)
	}
	writer, err := kg.EncryptWriter(tmp, material)
	if err != nil {
		cleanup()
		return s.fail("vault save failed", userID, cfg.Name, err)
	}
	if _, err := io.Copy(writer, bytes.NewReader(plain)); err != nil {
		_ = writer.Close()
		cleanup()
		return s.fail("vault save failed", userID, cfg.Name, err)
	}
	// Closing the encrypt writer closes tmp as well.
	if err := writer.Close(); err != nil {
		cleanup()
		return s.fail("vault save failed", userID, cfg.Name, err)
	}
	_ = tmp.Close()
	if err := os.Rename(tmpPath, s.configPath(userID, cfg.Name)); err != nil {
		_ = os.Remove(tmpPath)
		return s.fail("vault save failed", userID, cfg.Name, err)
	}
	if s.log != nil {
		s.log.Info("vault config saved", "user", userID, "name", cfg.Name, "tabs", len(cfg.Tabs))
	}
	return nil
}

// Load decrypts the named configuration.
func (s *Store) Load(userID schema.UserID, name string) (schema.ExportConfig, error) {
	if err := checkUser(userID); err != nil {
		return schema.ExportConfig{}, err
	}
	if err := checkName(name); err != nil {
		return schema.ExportConfig{}, err
	}
	file, err := os.Open(s.configPath(userID, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return schema.ExportConfig{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return schema.ExportConfig{}, s.fail("vault load failed", userID, name, err)
	}
	defer func() { _ = file.Close() }()
	material, root, err := s.materialForUser(userID)
	if err != nil {
		return schema.ExportConfig{}, err
	}
	reader, err := kryptograf.New(root).DecryptReader(file, material)
	if err != nil {
		return schema.ExportConfig{}, s.fail("vault load failed", userID, name, err)
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return schema.ExportConfig{}, s.fail("vault load failed", userID, name, err)
	}
	cfg, err := schema.DecodeExportConfig(plain)
	if err != nil {
		return schema.ExportConfig{}, s.fail("vault load failed", userID, name, err)
	}
	if s.log != nil {
		s.log.Debug("vault config loaded", "user", userID, "name", name, "tabs", len(cfg.Tabs))
	}
	return cfg, nil
}

// List returns the operator's saved configurations sorted by name.
func (s *Store) List(userID schema.UserID) ([]Entry, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.userDir(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, s.fail("vault list failed", userID, "", err)
	}
	var out []Entry
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), configExt)
		if !ok || entry.IsDir() || checkName(name) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: name, Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a saved configuration.
func (s *Store) Delete(userID schema.UserID, name string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(s.configPath(userID, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return s.fail("vault delete failed", userID, name, err)
	}
	if s.log != nil {
		s.log.Info("vault config deleted", "user", userID, "name", name)
	}
	return nil
}

func (s *Store) materialForUser(userID schema.UserID) (keymgmt.Material, keymgmt.RootKey, error) {
	store, err := keymgmt.LoadProto(s.storePath)
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, s.fail("vault material load failed", userID, "", err)
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, s.fail("vault material load failed", userID, "", err)
	}
	descName := descriptorPrefix + string(userID)
	material, err := store.EnsureDescriptor(descName, root, []byte(descName))
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, s.fail("vault material ensure failed", userID, "", err)
	}
	if err := store.Commit(); err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, s.fail("vault material commit failed", userID, "", err)
	}
	return material, root, nil
}

func (s *Store) fail(msg string, userID schema.UserID, name string, err error) error {
	if s.log != nil {
		s.log.Warn(msg, "user", userID, "name", name, "err", err)
	}
	return err
}

func (s *Store) userDir(userID schema.UserID) string {
	return filepath.Join(s.dir, string(userID))
}

func (s *Store) configPath(userID schema.UserID, name string) string {
	return filepath.Join(s.userDir(userID), name+configExt)
}

func checkUser(userID schema.UserID) error {
	if err := schema.ValidateUserID(userID); err != nil {
		return err
	}
	if userID == "." || userID == ".." {
		return schema.ErrInvalidUser
	}
	return nil
}

func checkName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
