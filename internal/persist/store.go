// Package persist stores each operator's workspace (tab selections and
// transcripts) as one JSON document per operator.
package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

// WorkspaceVersion is written into every snapshot.
const WorkspaceVersion = 1

// StreamSnapshot captures one multi-output transcript.
type StreamSnapshot struct {
	ID    schema.StreamID `json:"id"`
	Lines []string        `json:"lines"`
}

// TabSnapshot captures a tab for persistence. Execution flags are never
// stored; restored tabs start idle.
type TabSnapshot struct {
	ID               schema.TabID      `json:"id"`
	Name             schema.TabName    `json:"name"`
	SelectedTool     schema.ToolID     `json:"selected_tool,omitempty"`
	SelectedAttack   schema.AttackID   `json:"selected_attack,omitempty"`
	SelectedCategory schema.Category   `json:"selected_category,omitempty"`
	Parameters       schema.Parameters `json:"parameters,omitempty"`
	CustomCommand    string            `json:"custom_command,omitempty"`
	Output           []string          `json:"output,omitempty"`
	Streams          []StreamSnapshot  `json:"streams,omitempty"`
	ActiveOutput     schema.StreamID   `json:"active_output,omitempty"`
	ViewMode         schema.ViewMode   `json:"view_mode,omitempty"`
}

// UserSnapshot captures an operator's workspace.
type UserSnapshot struct {
	Version   int            `json:"version"`
	Order     []schema.TabID `json:"order"`
	ActiveTab schema.TabID   `json:"active_tab,omitempty"`
	Tabs      []TabSnapshot  `json:"tabs"`
}

// Store persists user snapshots to disk.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads a user snapshot from disk. A missing file is not an error.
func (s *Store) Load(userID schema.UserID) (UserSnapshot, bool, error) {
	data, err := os.ReadFile(s.pathForUser(userID))
	if errors.Is(err, os.ErrNotExist) {
		s.debug("state load miss", "user", userID)
		return UserSnapshot{}, false, nil
	}
	if err != nil {
		return UserSnapshot{}, false, s.fail("state load failed", userID, err)
	}
	var snapshot UserSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return UserSnapshot{}, false, s.fail("state load failed", userID, err)
	}
	s.debug("state load ok", "user", userID, "tabs", len(snapshot.Tabs))
	return snapshot, true, nil
}

// Save atomically replaces a user snapshot on disk.
func (s *Store) Save(userID schema.UserID, snapshot UserSnapshot) error {
	if snapshot.Version == 0 {
		snapshot.Version = WorkspaceVersion
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return s.fail("state save failed", userID, err)
	}
	if err := writeFileAtomic(s.pathForUser(userID), data); err != nil {
		return s.fail("state save failed", userID, err)
	}
	if s.log != nil {
		s.log.Trace("state save ok", "user", userID, "tabs", len(snapshot.Tabs))
	}
	return nil
}

// Delete removes a user snapshot. Deleting a missing snapshot succeeds.
func (s *Store) Delete(userID schema.UserID) error {
	err := os.Remove(s.pathForUser(userID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return s.fail("state delete failed", userID, err)
	}
	return nil
}

// Users lists operators that have a stored workspace, sorted.
func (s *Store) Users() ([]schema.UserID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var users []schema.UserID
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, "state-") {
			continue
		}
		users = append(users, schema.UserID(strings.TrimSuffix(name, ".json")))
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "state-*.json")
	if err != nil {
		return err
	}
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) fail(msg string, userID schema.UserID, err error) error {
	if s.log != nil {
		s.log.Warn(msg, "user", userID, "err", err)
	}
	return err
}

func (s *Store) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *Store) pathForUser(userID schema.UserID) string {
	name := sanitize(string(userID))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
