package fatal

import "testing"

func TestDefaultClassifier(t *testing.T) {
	c := Default()
	cases := []struct {
		line string
		want bool
	}{
		{"Permission denied", true},
		{"docker: Cannot connect to the Docker daemon at unix:///var/run/docker.sock", true},
		{"Unable to find image 'x:latest' locally", true},
		{"dial tcp 10.0.0.2:38412: connect: CONNECTION REFUSED", true},
		{"FATAL ERROR: out of sockets", true},
		{"critical error in sctp association", true},
		{"ACCESS DENIED for user", true},
		{"Process exited with code 1", true},
		{"process exited with code 137", true},
		{"Process exited with code 0", false},
		{"process exited with code 0.", false},
		{"process exited with code 01", true},
		{"scan finished, 3 hosts up", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := c.IsFatal(tc.line); got != tc.want {
			t.Fatalf("IsFatal(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestCustomPatterns(t *testing.T) {
	c := NewPatterns("  Segfault ", "")
	if !c.IsFatal("segfault at 0x0") {
		t.Fatalf("expected custom pattern to match")
	}
	if c.IsFatal("permission denied") {
		t.Fatalf("expected default patterns to be replaced")
	}
}

func TestFuncAdapter(t *testing.T) {
	var seen string
	c := Func(func(line string) bool {
		seen = line
		return true
	})
	if !c.IsFatal("x") || seen != "x" {
		t.Fatalf("expected func adapter to delegate")
	}
}
