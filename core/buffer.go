package core

import (
	"strings"

	"pkt.systems/attackdeck/schema"
)

const defaultMaxLines = schema.DefaultBufferMaxLines

// buffer is an append-only transcript capped at maxLines.
type buffer struct {
	lines    []string
	maxLines int
}

func newBuffer(maxLines int) *buffer {
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	return &buffer{maxLines: maxLines}
}

func newBufferFromLines(lines []string, maxLines int) *buffer {
	b := newBuffer(maxLines)
	b.Append(lines...)
	return b
}

// Append adds lines unconditionally, trimming the oldest lines past the cap.
func (b *buffer) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	b.lines = append(b.lines, lines...)
	if b.maxLines > 0 && len(b.lines) > b.maxLines {
		trim := len(b.lines) - b.maxLines
		b.lines = append([]string(nil), b.lines[trim:]...)
	}
}

// AppendUnique adds line unless it repeats the last line. Trailing
// whitespace is ignored for the comparison and dropped from the stored line.
func (b *buffer) AppendUnique(line string) bool {
	line = strings.TrimRight(line, " \t\r\n")
	if n := len(b.lines); n > 0 && b.lines[n-1] == line {
		return false
	}
	b.Append(line)
	return true
}

// Last returns the most recent line.
func (b *buffer) Last() (string, bool) {
	if b == nil || len(b.lines) == 0 {
		return "", false
	}
	return b.lines[len(b.lines)-1], true
}

// Clear drops every line.
func (b *buffer) Clear() {
	b.lines = nil
}

// Len reports the number of stored lines.
func (b *buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.lines)
}

// Tail returns up to limit of the newest lines. A non-positive limit returns
// everything.
func (b *buffer) Tail(limit int) []string {
	if b == nil {
		return []string{}
	}
	total := len(b.lines)
	if limit <= 0 || limit > total {
		limit = total
	}
	out := make([]string, limit)
	copy(out, b.lines[total-limit:])
	return out
}

// Export returns a copy of every line for persistence.
func (b *buffer) Export() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.lines...)
}
