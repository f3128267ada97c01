package command

import (
	"strings"
)

// Command is a parsed slash command.
type Command struct {
	Name string
	Args []string
	// Remainder is the raw text after the command name, spacing preserved.
	Remainder string
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Parse parses a line and reports whether it is a slash command.
func Parse(input string) (Command, bool) {
	trimmed := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	raw := strings.TrimSpace(trimmed[1:])
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{}, true
	}
	return Command{
		Name:      strings.ToLower(fields[0]),
		Args:      fields[1:],
		Remainder: remainderAfterName(raw),
	}, true
}

func remainderAfterName(raw string) string {
	i := 0
	for i < len(raw) && !isSpace(raw[i]) {
		i++
	}
	return strings.TrimSpace(raw[i:])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
