// Package catalog holds the list of categories offered for each entry type.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"smartaccounting/internal/core"
)

//go:embed default.yaml
var defaultYAML []byte

var ErrUnknownCategory = errors.New("unknown category")

type document struct {
	Income  []string `yaml:"income"`
	Expense []string `yaml:"expense"`
}

type Catalog struct {
	byType map[core.EntryType][]string
}

// Default returns the embedded catalogue.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalogue: %v", err))
	}
	return c
}

// Load reads a catalogue file, falling back to the embedded default when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	c := &Catalog{byType: map[core.EntryType][]string{
		core.Income:  clean(doc.Income),
		core.Expense: clean(doc.Expense),
	}}
	if len(c.byType[core.Income]) == 0 && len(c.byType[core.Expense]) == 0 {
		return nil, errors.New("parse categories: catalogue is empty")
	}
	return c, nil
}

// Categories returns a copy of the categories for t.
func (c *Catalog) Categories(t core.EntryType) []string {
	return append([]string(nil), c.byType[t]...)
}

func (c *Catalog) Contains(t core.EntryType, category string) bool {
	category = strings.TrimSpace(category)
	for _, name := range c.byType[t] {
		if name == category {
			return true
		}
	}
	return false
}

// Check returns ErrUnknownCategory when category is not listed for t.
func (c *Catalog) Check(t core.EntryType, category string) error {
	if !c.Contains(t, category) {
		return fmt.Errorf("%w: %q for %s", ErrUnknownCategory, category, t)
	}
	return nil
}

func clean(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
