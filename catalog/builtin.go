package catalog

import (
	_ "embed"
	"fmt"
	"sync"
)

//go:embed builtin.yaml
var builtinYAML []byte

var (
	builtinOnce sync.Once
	builtinCat  *Catalog
	builtinErr  error
)

// Default returns the built-in tool catalog.
func Default() (*Catalog, error) {
	builtinOnce.Do(func() {
		builtinCat, builtinErr = Parse(builtinYAML)
		if builtinErr != nil {
			builtinErr = fmt.Errorf("builtin catalog: %w", builtinErr)
		}
	})
	return builtinCat, builtinErr
}

// BuiltinYAML returns the raw built-in catalog, used when writing a starter
// tools file.
func BuiltinYAML() []byte {
	out := make([]byte, len(builtinYAML))
	copy(out, builtinYAML)
	return out
}

// Load returns the built-in catalog, merged with the tools in path when path
// is set.
func Load(path string) (*Catalog, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	extra, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return base.Merge(extra), nil
}
