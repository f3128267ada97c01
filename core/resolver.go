package core

import (
	"fmt"
	"strings"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/schema"
)

// Resolution is the outcome of resolving a tab's command. Exactly one of
// Command or Streams is set.
type Resolution struct {
	Command string
	Streams []schema.ResolvedCommand
}

// Commands returns the resolution as a list of dispatchable commands.
func (r Resolution) Commands() []schema.ResolvedCommand {
	if len(r.Streams) > 0 {
		return append([]schema.ResolvedCommand(nil), r.Streams...)
	}
	if r.Command == "" {
		return nil
	}
	return []schema.ResolvedCommand{{Command: r.Command}}
}

// Resolve turns a tool selection into literal commands.
//
// Single-output tools use the first available of: the custom command, the
// attack builder, the tool builder. Multi-output tools ignore the custom
// command and attack and render every declared sub-command. Builder
// failures wrap schema.ErrCommandBuild; an empty result is schema.ErrNoCommand.
func Resolve(tool *catalog.Tool, attack *catalog.Attack, params schema.Parameters, customCommand string) (Resolution, error) {
	if tool != nil && tool.IsMultiOutput() {
		values := SanitizeParameters(tool.Params, params)
		if err := checkRequired(tool.Params, values); err != nil {
			return Resolution{}, err
		}
		streams := make([]schema.ResolvedCommand, 0, len(tool.MultiOutput.Outputs))
		for _, sub := range tool.MultiOutput.Outputs {
			command, err := build(sub.Command, values)
			if err != nil {
				return Resolution{}, fmt.Errorf("%w: output %s: %v", schema.ErrCommandBuild, sub.ID, err)
			}
			if command == "" {
				return Resolution{}, fmt.Errorf("%w: output %s", schema.ErrNoCommand, sub.ID)
			}
			streams = append(streams, schema.ResolvedCommand{
				StreamID:         sub.ID,
				Command:          command,
				WorkingDirectory: sub.WorkingDirectory,
			})
		}
		return Resolution{Streams: streams}, nil
	}

	if custom := strings.TrimSpace(customCommand); custom != "" {
		return Resolution{Command: custom}, nil
	}
	if tool == nil {
		return Resolution{}, schema.ErrNoTool
	}

	var builder catalog.CommandBuilder
	if attack != nil && attack.Command != nil {
		builder = attack.Command
	} else {
		builder = tool.Command
	}
	if builder == nil {
		return Resolution{}, schema.ErrNoCommand
	}
	specs := tool.ParamsFor(attack)
	values := SanitizeParameters(specs, params)
	if err := checkRequired(specs, values); err != nil {
		return Resolution{}, err
	}
	command, err := build(builder, values)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", schema.ErrCommandBuild, err)
	}
	if command == "" {
		return Resolution{}, schema.ErrNoCommand
	}
	return Resolution{Command: command}, nil
}

// SanitizeParameters keeps only the keys declared by specs, filling missing
// keys with the declared default. A tool without declared parameters keeps
// none.
func SanitizeParameters(specs []catalog.ParamSpec, params schema.Parameters) schema.Parameters {
	out := make(schema.Parameters, len(specs))
	for _, spec := range specs {
		if value, ok := params[spec.Name]; ok {
			out[spec.Name] = value
			continue
		}
		out[spec.Name] = spec.Default
	}
	return out
}

func checkRequired(specs []catalog.ParamSpec, values schema.Parameters) error {
	var missing []string
	for _, spec := range specs {
		if spec.Required && strings.TrimSpace(values[spec.Name]) == "" {
			missing = append(missing, spec.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required parameters: %s", schema.ErrCommandBuild, strings.Join(missing, ", "))
	}
	return nil
}

// build runs a builder, converting a panic into an error.
func build(builder catalog.CommandBuilder, params schema.Parameters) (command string, err error) {
	if builder == nil {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("builder panic: %v", r)
		}
	}()
	command, err = builder.Build(params.Clone())
	return strings.TrimSpace(command), err
}
