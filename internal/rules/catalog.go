// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package rules

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables/*.yaml
var embeddedTables embed.FS

// ErrInvalidTable is returned when a rule table fails validation.
var ErrInvalidTable = errors.New("invalid rule table")

// ErrDuplicateSurface is returned when two tables claim the same surface.
var ErrDuplicateSurface = errors.New("duplicate surface")

// =============================================================================
// CATALOG
// =============================================================================

// Catalog maps surface names to their rule tables.
type Catalog struct {
	tables map[string]*Table
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// Add registers a table. Tables must be validated before being added.
func (c *Catalog) Add(t *Table) error {
	if _, exists := c.tables[t.Surface]; exists {
		return fmt.Errorf("%w: %q (%s)", ErrDuplicateSurface, t.Surface, t.Source)
	}
	c.tables[t.Surface] = t
	return nil
}

// Get returns the table for surface.
func (c *Catalog) Get(surface string) (*Table, bool) {
	t, ok := c.tables[surface]
	return t, ok
}

// Names returns the surface names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tables.
func (c *Catalog) Len() int {
	return len(c.tables)
}

// =============================================================================
// LOADING
// =============================================================================

// LoadEmbedded parses every table compiled into the binary.
func LoadEmbedded() (*Catalog, error) {
	entries, err := embeddedTables.ReadDir("tables")
	if err != nil {
		return nil, fmt.Errorf("read embedded tables: %w", err)
	}

	catalog := NewCatalog()
	for _, entry := range entries {
		if entry.IsDir() || !isTableFile(entry.Name()) {
			continue
		}
		path := "tables/" + entry.Name()
		data, err := embeddedTables.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		table, err := Parse(data, path)
		if err != nil {
			return nil, err
		}
		if err := catalog.Add(table); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// LoadFile parses one table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule table: %w", err)
	}
	return Parse(data, path)
}

// LoadDir adds every *.yaml / *.yml table in dir to the catalog. A surface
// that already exists is an error; extra tables add surfaces, they do not
// replace the built-in ones.
func (c *Catalog) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read rules dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !isTableFile(entry.Name()) {
			continue
		}
		table, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, err
		}
		if err := c.Add(table); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// Parse decodes and validates a table. Keywords are normalised so matching
// only has to normalise the input.
func Parse(data []byte, source string) (*Table, error) {
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTable, source, err)
	}
	table.Source = source

	for i := range table.Rules {
		for j, kw := range table.Rules[i].Keywords {
			table.Rules[i].Keywords[j] = Normalize(kw)
		}
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTable, source, err)
	}
	return &table, nil
}

// Validate checks the structural requirements of a table.
func (t *Table) Validate() error {
	if strings.TrimSpace(t.Surface) == "" {
		return errors.New("surface name is required")
	}
	if strings.TrimSpace(t.Greeting) == "" {
		return errors.New("greeting is required")
	}
	if strings.TrimSpace(t.Fallback.Content) == "" {
		return errors.New("fallback content is required")
	}
	if err := validateActions("fallback", t.Fallback.Actions); err != nil {
		return err
	}
	if err := t.Latency.Policy().Validate(); err != nil {
		return err
	}

	for i, rule := range t.Rules {
		label := rule.Name
		if label == "" {
			label = fmt.Sprintf("rule %d", i+1)
		}
		if !hasKeyword(rule.Keywords) {
			return fmt.Errorf("%s: at least one keyword is required", label)
		}
		if strings.TrimSpace(rule.Response.Content) == "" {
			return fmt.Errorf("%s: response content is required", label)
		}
		if err := validateActions(label, rule.Response.Actions); err != nil {
			return err
		}
	}
	return nil
}

func validateActions(label string, actions []ActionTemplate) error {
	for _, a := range actions {
		if strings.TrimSpace(a.Label) == "" {
			return fmt.Errorf("%s: action label is required", label)
		}
		if a.Variant != "" && !a.Variant.Valid() {
			return fmt.Errorf("%s: action %q has unknown variant %q", label, a.Label, a.Variant)
		}
	}
	return nil
}

func hasKeyword(keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" {
			return true
		}
	}
	return false
}

func isTableFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
