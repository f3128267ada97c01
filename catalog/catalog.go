package catalog

import (
	"fmt"
	"sort"
	"strings"

	"pkt.systems/attackdeck/schema"
)

// Catalog is an immutable set of tools, safe to share across sessions.
type Catalog struct {
	tools map[schema.ToolID]Tool
	order []schema.ToolID
}

// New validates tools and builds a catalog preserving declaration order.
func New(tools ...Tool) (*Catalog, error) {
	c := &Catalog{tools: make(map[schema.ToolID]Tool, len(tools))}
	for _, tool := range tools {
		if err := validateTool(tool); err != nil {
			return nil, err
		}
		if _, exists := c.tools[tool.ID]; exists {
			return nil, fmt.Errorf("duplicate tool id %q", tool.ID)
		}
		c.tools[tool.ID] = tool
		c.order = append(c.order, tool.ID)
	}
	return c, nil
}

// Tool returns a tool by id.
func (c *Catalog) Tool(id schema.ToolID) (Tool, bool) {
	if c == nil {
		return Tool{}, false
	}
	tool, ok := c.tools[id]
	return tool, ok
}

// Tools returns every tool in declaration order.
func (c *Catalog) Tools() []Tool {
	if c == nil {
		return nil
	}
	out := make([]Tool, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tools[id])
	}
	return out
}

// Len reports the number of tools.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Categories returns the distinct tool categories, sorted.
func (c *Catalog) Categories() []schema.Category {
	if c == nil {
		return nil
	}
	seen := make(map[schema.Category]struct{})
	for _, tool := range c.tools {
		if tool.Category != "" {
			seen[tool.Category] = struct{}{}
		}
	}
	out := make([]schema.Category, 0, len(seen))
	for category := range seen {
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Merge returns a catalog with other's tools layered over c's.
// Tools with the same id are replaced in place; new tools are appended.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	merged := &Catalog{tools: make(map[schema.ToolID]Tool)}
	for _, tool := range c.Tools() {
		merged.tools[tool.ID] = tool
		merged.order = append(merged.order, tool.ID)
	}
	for _, tool := range other.Tools() {
		if _, exists := merged.tools[tool.ID]; !exists {
			merged.order = append(merged.order, tool.ID)
		}
		merged.tools[tool.ID] = tool
	}
	return merged
}

func validateTool(tool Tool) error {
	if strings.TrimSpace(string(tool.ID)) == "" {
		return fmt.Errorf("tool id is required")
	}
	if err := validateParams(tool.Params); err != nil {
		return fmt.Errorf("tool %q: %w", tool.ID, err)
	}
	attacks := make(map[schema.AttackID]struct{}, len(tool.Attacks))
	for _, attack := range tool.Attacks {
		if strings.TrimSpace(string(attack.ID)) == "" {
			return fmt.Errorf("tool %q: attack id is required", tool.ID)
		}
		if _, dup := attacks[attack.ID]; dup {
			return fmt.Errorf("tool %q: duplicate attack id %q", tool.ID, attack.ID)
		}
		attacks[attack.ID] = struct{}{}
		if err := validateParams(attack.Params); err != nil {
			return fmt.Errorf("tool %q attack %q: %w", tool.ID, attack.ID, err)
		}
	}
	if tool.MultiOutput != nil {
		if len(tool.MultiOutput.Outputs) == 0 {
			return fmt.Errorf("tool %q: multi-output requires at least one output", tool.ID)
		}
		streams := make(map[schema.StreamID]struct{}, len(tool.MultiOutput.Outputs))
		for _, out := range tool.MultiOutput.Outputs {
			if strings.TrimSpace(string(out.ID)) == "" {
				return fmt.Errorf("tool %q: output id is required", tool.ID)
			}
			if _, dup := streams[out.ID]; dup {
				return fmt.Errorf("tool %q: duplicate output id %q", tool.ID, out.ID)
			}
			streams[out.ID] = struct{}{}
			if out.Command == nil {
				return fmt.Errorf("tool %q output %q: command is required", tool.ID, out.ID)
			}
		}
	}
	if tool.Surface != nil && (tool.Surface.Port <= 0 || tool.Surface.Port > 65535) {
		return fmt.Errorf("tool %q: surface port %d out of range", tool.ID, tool.Surface.Port)
	}
	return nil
}

func validateParams(specs []ParamSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if strings.TrimSpace(spec.Name) == "" {
			return fmt.Errorf("parameter name is required")
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("duplicate parameter %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	return nil
}
