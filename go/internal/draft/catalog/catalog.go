// Package catalog loads the pool of items the timeout resolver may select
// from. It does not validate human submissions.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Catalog is the auto-pick pool.
type Catalog struct {
	Name     string   `yaml:"name"`
	AutoPick []string `yaml:"autopick"`
}

// Default returns the embedded pool.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// Load reads a catalog file, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Identifiers are trimmed; blanks and repeats
// are dropped so the pool can be drawn from without replacement.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(c.AutoPick))
	pool := make([]string, 0, len(c.AutoPick))
	for _, raw := range c.AutoPick {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		pool = append(pool, id)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("catalog %q has an empty autopick pool", c.Name)
	}
	c.AutoPick = pool
	return &c, nil
}

// Pool returns a copy of the auto-pick pool.
func (c *Catalog) Pool() []string {
	return append([]string(nil), c.AutoPick...)
}
