package catalog

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pkt.systems/attackdeck/schema"
)

// File is the on-disk YAML shape of a tool catalog.
type File struct {
	Tools []ToolFile `yaml:"tools"`
}

// ToolFile is the YAML shape of a tool.
type ToolFile struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Category    string           `yaml:"category,omitempty"`
	Command     string           `yaml:"command,omitempty"`
	Parameters  []ParamFile      `yaml:"parameters,omitempty"`
	Attacks     []AttackFile     `yaml:"attacks,omitempty"`
	MultiOutput *MultiOutputFile `yaml:"multi_output,omitempty"`
	Surface     *SurfaceFile     `yaml:"surface,omitempty"`
}

// ParamFile is the YAML shape of a parameter declaration.
type ParamFile struct {
	Name     string `yaml:"name"`
	Label    string `yaml:"label,omitempty"`
	Default  string `yaml:"default,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

// AttackFile is the YAML shape of an attack variant.
type AttackFile struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Command     string      `yaml:"command,omitempty"`
	Parameters  []ParamFile `yaml:"parameters,omitempty"`
}

// MultiOutputFile is the YAML shape of a multi-output descriptor.
type MultiOutputFile struct {
	Outputs []OutputFile `yaml:"outputs"`
}

// OutputFile is the YAML shape of one sub-command.
type OutputFile struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Command          string `yaml:"command"`
	WorkingDirectory string `yaml:"working_directory,omitempty"`
	ReadyMarker      string `yaml:"ready_marker,omitempty"`
}

// SurfaceFile is the YAML shape of an embedded-surface descriptor.
type SurfaceFile struct {
	Port        int    `yaml:"port"`
	ReadyMarker string `yaml:"ready_marker,omitempty"`
}

// Parse decodes a YAML catalog. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var file File
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	tools := make([]Tool, 0, len(file.Tools))
	for _, tf := range file.Tools {
		tools = append(tools, tf.toTool())
	}
	return New(tools...)
}

// LoadFile reads and parses a YAML catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

func (tf ToolFile) toTool() Tool {
	tool := Tool{
		ID:          schema.ToolID(tf.ID),
		Name:        tf.Name,
		Description: tf.Description,
		Category:    schema.Category(tf.Category),
		Command:     templateOrNil(tf.Command),
		Params:      toParams(tf.Parameters),
	}
	for _, af := range tf.Attacks {
		tool.Attacks = append(tool.Attacks, Attack{
			ID:          schema.AttackID(af.ID),
			Name:        af.Name,
			Description: af.Description,
			Command:     templateOrNil(af.Command),
			Params:      toParams(af.Parameters),
		})
	}
	if tf.MultiOutput != nil {
		multi := &MultiOutput{}
		for _, of := range tf.MultiOutput.Outputs {
			multi.Outputs = append(multi.Outputs, SubCommand{
				ID:               schema.StreamID(of.ID),
				Name:             of.Name,
				Command:          templateOrNil(of.Command),
				WorkingDirectory: of.WorkingDirectory,
				ReadyMarker:      of.ReadyMarker,
			})
		}
		tool.MultiOutput = multi
	}
	if tf.Surface != nil {
		tool.Surface = &Surface{Port: tf.Surface.Port, ReadyMarker: tf.Surface.ReadyMarker}
	}
	return tool
}

func templateOrNil(command string) CommandBuilder {
	if command == "" {
		return nil
	}
	return Template(command)
}

func toParams(files []ParamFile) []ParamSpec {
	if len(files) == 0 {
		return nil
	}
	out := make([]ParamSpec, 0, len(files))
	for _, pf := range files {
		out = append(out, ParamSpec{
			Name:     pf.Name,
			Label:    pf.Label,
			Default:  pf.Default,
			Required: pf.Required,
		})
	}
	return out
}
