package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"pkt.systems/attackdeck/schema"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Template is a command string with {{name}} placeholders.
type Template string

// Build substitutes every placeholder. A placeholder without a parameter
// value is an error.
func (t Template) Build(params schema.Parameters) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(string(t), func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved placeholders: %s", strings.Join(missing, ", "))
	}
	return strings.TrimSpace(out), nil
}

// Placeholders lists the parameter names referenced by the template.
func (t Template) Placeholders() []string {
	matches := placeholderPattern.FindAllStringSubmatch(string(t), -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
