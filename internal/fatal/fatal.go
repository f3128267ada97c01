// Package fatal decides whether a line of executor output means the process
// can no longer make progress.
package fatal

import "strings"

// Classifier reports whether an output line is an unrecoverable failure.
type Classifier interface {
	IsFatal(line string) bool
}

// Func adapts a function to Classifier.
type Func func(line string) bool

// IsFatal implements Classifier.
func (f Func) IsFatal(line string) bool {
	return f(line)
}

// DefaultPatterns are matched case-insensitively as substrings.
var DefaultPatterns = []string{
	"process exited with code",
	"cannot connect to the docker daemon",
	"access denied",
	"unable to find image",
	"permission denied",
	"connection refused",
	"fatal error",
	"critical error",
}

const exitCodePattern = "process exited with code"

// Patterns is a substring classifier.
type Patterns struct {
	patterns []string
}

// NewPatterns builds a classifier from patterns. An empty list selects
// DefaultPatterns.
func NewPatterns(patterns ...string) *Patterns {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Patterns{patterns: lowered}
}

// Default returns the stock classifier.
func Default() Classifier {
	return NewPatterns()
}

// IsFatal implements Classifier.
func (p *Patterns) IsFatal(line string) bool {
	lower := strings.ToLower(line)
	for _, pattern := range p.patterns {
		idx := strings.Index(lower, pattern)
		if idx < 0 {
			continue
		}
		if pattern == exitCodePattern && cleanExit(lower[idx:]) {
			continue
		}
		return true
	}
	return false
}

// cleanExit reports whether an exit-code message carries code 0.
func cleanExit(tail string) bool {
	idx := strings.Index(tail, "code 0")
	if idx < 0 {
		return false
	}
	rest := tail[idx+len("code 0"):]
	return rest == "" || rest[0] < '0' || rest[0] > '9'
}
