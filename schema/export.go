package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExportVersion is written to every exported configuration.
const ExportVersion = "1.0"

// ExportConfig is a serializable snapshot of tab selections.
// It never carries transcripts or transient execution flags.
type ExportConfig struct {
	Tabs       []ExportedTab `json:"tabs"`
	Version    string        `json:"version"`
	ExportDate string        `json:"exportDate"`
	Name       string        `json:"name,omitempty"`
}

// ExportedTab carries the selection state of one tab.
type ExportedTab struct {
	SelectedTool     ToolID     `json:"selectedTool"`
	SelectedAttack   AttackID   `json:"selectedAttack,omitempty"`
	Parameters       Parameters `json:"parameters"`
	Category         Category   `json:"category,omitempty"`
	SelectedCategory Category   `json:"selectedCategory,omitempty"`
	CustomCommand    string     `json:"customCommand,omitempty"`
}

// NewExportConfig stamps version and export date on the given tabs.
func NewExportConfig(name string, tabs []ExportedTab, now time.Time) ExportConfig {
	if tabs == nil {
		tabs = []ExportedTab{}
	}
	return ExportConfig{
		Tabs:       tabs,
		Version:    ExportVersion,
		ExportDate: now.UTC().Format(time.RFC3339),
		Name:       strings.TrimSpace(name),
	}
}

// DecodeExportConfig parses an export file. Malformed JSON or a missing
// tabs array rejects the whole file.
func DecodeExportConfig(data []byte) (ExportConfig, error) {
	var probe struct {
		Tabs json.RawMessage `json:"tabs"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ExportConfig{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	raw := bytes.TrimSpace(probe.Tabs)
	if len(raw) == 0 || raw[0] != '[' {
		return ExportConfig{}, fmt.Errorf("%w: missing tabs array", ErrInvalidImport)
	}
	var cfg ExportConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ExportConfig{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	return cfg, nil
}

// EncodeExportConfig renders an export file.
func EncodeExportConfig(cfg ExportConfig) ([]byte, error) {
	if cfg.Tabs == nil {
		cfg.Tabs = []ExportedTab{}
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// UnmarshalJSON accepts string, number, boolean and null parameter values.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	out := make(Parameters, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			out[key] = ""
		case string:
			out[key] = v
		case json.Number:
			out[key] = v.String()
		case bool:
			if v {
				out[key] = "true"
			} else {
				out[key] = "false"
			}
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return err
			}
			out[key] = string(encoded)
		}
	}
	*p = out
	return nil
}
