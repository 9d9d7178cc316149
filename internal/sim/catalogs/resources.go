package catalogs

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxStack is the slot size of items that do not declare one.
const DefaultMaxStack = 64

type ResourceDef struct {
	ID       string   `yaml:"id" json:"id"`
	Fluid    bool     `yaml:"fluid,omitempty" json:"fluid,omitempty"`
	MaxStack int      `yaml:"max_stack,omitempty" json:"max_stack,omitempty"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// ResourceCatalog lists known items and fluids. It is the tag source for
// tag filter keys.
type ResourceCatalog struct {
	ByID   map[string]ResourceDef
	Digest string
}

func (c *ResourceCatalog) Tags(id string) []string {
	if c == nil {
		return nil
	}
	return c.ByID[id].Tags
}

func (c *ResourceCatalog) MaxStack(id string) int {
	if c == nil {
		return DefaultMaxStack
	}
	if d, ok := c.ByID[id]; ok && d.MaxStack > 0 {
		return d.MaxStack
	}
	return DefaultMaxStack
}

func (c *ResourceCatalog) IDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.ByID))
	for id := range c.ByID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type resourcesFile struct {
	Resources []ResourceDef `yaml:"resources"`
}

func LoadResources(path string) (*ResourceCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseResources(b)
}

func ParseResources(b []byte) (*ResourceCatalog, error) {
	var f resourcesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("resources.yaml: %w", err)
	}
	c := &ResourceCatalog{ByID: map[string]ResourceDef{}, Digest: sha256Hex(b)}
	for _, d := range f.Resources {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("resources.yaml: empty resource id")
		}
		if _, dup := c.ByID[d.ID]; dup {
			return nil, fmt.Errorf("resources.yaml: duplicate resource id: %s", d.ID)
		}
		c.ByID[d.ID] = d
	}
	return c, nil
}
