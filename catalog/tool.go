package catalog

import "pkt.systems/attackdeck/schema"

// CommandBuilder renders a literal command from parameter values.
type CommandBuilder interface {
	Build(params schema.Parameters) (string, error)
}

// BuilderFunc adapts a function to CommandBuilder.
type BuilderFunc func(params schema.Parameters) (string, error)

// Build implements CommandBuilder.
func (f BuilderFunc) Build(params schema.Parameters) (string, error) {
	return f(params)
}

// ParamSpec declares one parameter of a tool or attack.
type ParamSpec struct {
	Name     string
	Label    string
	Default  string
	Required bool
}

// Attack is a variant of a tool with its own command and parameters.
type Attack struct {
	ID          schema.AttackID
	Name        string
	Description string
	Command     CommandBuilder
	Params      []ParamSpec
}

// SubCommand is one named stream of a multi-output tool.
type SubCommand struct {
	ID               schema.StreamID
	Name             string
	Command          CommandBuilder
	WorkingDirectory string
	ReadyMarker      string
}

// MultiOutput declares the concurrent sub-commands of a tool.
type MultiOutput struct {
	Outputs []SubCommand
}

// Surface declares an embedded interactive surface served by the tool.
type Surface struct {
	Port        int
	ReadyMarker string
}

// Tool is a read-only catalog entry.
type Tool struct {
	ID          schema.ToolID
	Name        string
	Description string
	Category    schema.Category
	Command     CommandBuilder
	Params      []ParamSpec
	Attacks     []Attack
	MultiOutput *MultiOutput
	Surface     *Surface
}

// Attack returns the attack variant with the given id.
func (t Tool) Attack(id schema.AttackID) (Attack, bool) {
	for _, attack := range t.Attacks {
		if attack.ID == id {
			return attack, true
		}
	}
	return Attack{}, false
}

// FirstAttack returns the default attack variant, if any.
func (t Tool) FirstAttack() (Attack, bool) {
	if len(t.Attacks) == 0 {
		return Attack{}, false
	}
	return t.Attacks[0], true
}

// IsMultiOutput reports whether the tool launches named sub-streams.
func (t Tool) IsMultiOutput() bool {
	return t.MultiOutput != nil && len(t.MultiOutput.Outputs) > 0
}

// Stream returns the sub-command for a stream id.
func (t Tool) Stream(id schema.StreamID) (SubCommand, bool) {
	if t.MultiOutput == nil {
		return SubCommand{}, false
	}
	for _, out := range t.MultiOutput.Outputs {
		if out.ID == id {
			return out, true
		}
	}
	return SubCommand{}, false
}

// StreamIDs lists the sub-stream ids in declaration order.
func (t Tool) StreamIDs() []schema.StreamID {
	if t.MultiOutput == nil {
		return nil
	}
	ids := make([]schema.StreamID, 0, len(t.MultiOutput.Outputs))
	for _, out := range t.MultiOutput.Outputs {
		ids = append(ids, out.ID)
	}
	return ids
}

// ParamsFor returns the parameter schema in effect for the selected attack.
// An attack without its own parameters inherits the tool's.
func (t Tool) ParamsFor(attack *Attack) []ParamSpec {
	if attack != nil && len(attack.Params) > 0 {
		return attack.Params
	}
	return t.Params
}

// ReadyMarker returns the readiness substring for a stream, or for the
// embedded surface when stream is empty.
func (t Tool) ReadyMarker(stream schema.StreamID) string {
	if stream != "" {
		if sub, ok := t.Stream(stream); ok {
			return sub.ReadyMarker
		}
		return ""
	}
	if t.Surface != nil {
		return t.Surface.ReadyMarker
	}
	return ""
}

// DefaultParams returns the declared defaults of a parameter schema.
func DefaultParams(specs []ParamSpec) schema.Parameters {
	out := make(schema.Parameters, len(specs))
	for _, spec := range specs {
		out[spec.Name] = spec.Default
	}
	return out
}
