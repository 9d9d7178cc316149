package catalogs

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/routing_nodes.schema.json
var nodesSchemaJSON string

// NodeStats is the per node kind tuning record. Every field is optional;
// nil falls back to DefaultStats.
type NodeStats struct {
	MaxConnections    *int `yaml:"max_connections,omitempty" json:"max_connections,omitempty"`
	MaxRange          *int `yaml:"max_range,omitempty" json:"max_range,omitempty"`
	PriorityBonus     *int `yaml:"priority_bonus,omitempty" json:"priority_bonus,omitempty"`
	BaseTickRate      *int `yaml:"base_tick_rate,omitempty" json:"base_tick_rate,omitempty"`
	BaseItemTransfer  *int `yaml:"base_item_transfer,omitempty" json:"base_item_transfer,omitempty"`
	BaseFluidTransfer *int `yaml:"base_fluid_transfer,omitempty" json:"base_fluid_transfer,omitempty"`
	ItemPerUpgrade    *int `yaml:"item_per_upgrade,omitempty" json:"item_per_upgrade,omitempty"`
	FluidPerUpgrade   *int `yaml:"fluid_per_upgrade,omitempty" json:"fluid_per_upgrade,omitempty"`
	MaxSpeedUpgrades  *int `yaml:"max_speed_upgrades,omitempty" json:"max_speed_upgrades,omitempty"`
	MaxStackUpgrades  *int `yaml:"max_stack_upgrades,omitempty" json:"max_stack_upgrades,omitempty"`
}

// ResolvedStats is NodeStats with defaults applied.
type ResolvedStats struct {
	MaxConnections    int `json:"max_connections"`
	MaxRange          int `json:"max_range"`
	PriorityBonus     int `json:"priority_bonus"`
	BaseTickRate      int `json:"base_tick_rate"`
	BaseItemTransfer  int `json:"base_item_transfer"`
	BaseFluidTransfer int `json:"base_fluid_transfer"`
	ItemPerUpgrade    int `json:"item_per_upgrade"`
	FluidPerUpgrade   int `json:"fluid_per_upgrade"`
	MaxSpeedUpgrades  int `json:"max_speed_upgrades"`
	MaxStackUpgrades  int `json:"max_stack_upgrades"`
}

// DefaultStats applies to any kind or field the catalog leaves out.
var DefaultStats = ResolvedStats{
	MaxConnections:    16,
	MaxRange:          16,
	PriorityBonus:     0,
	BaseTickRate:      20,
	BaseItemTransfer:  64,
	BaseFluidTransfer: 1000,
	ItemPerUpgrade:    16,
	FluidPerUpgrade:   250,
	MaxSpeedUpgrades:  4,
	MaxStackUpgrades:  4,
}

func (s NodeStats) Resolve() ResolvedStats {
	r := DefaultStats
	pick := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	pick(&r.MaxConnections, s.MaxConnections)
	pick(&r.MaxRange, s.MaxRange)
	pick(&r.PriorityBonus, s.PriorityBonus)
	pick(&r.BaseTickRate, s.BaseTickRate)
	pick(&r.BaseItemTransfer, s.BaseItemTransfer)
	pick(&r.BaseFluidTransfer, s.BaseFluidTransfer)
	pick(&r.ItemPerUpgrade, s.ItemPerUpgrade)
	pick(&r.FluidPerUpgrade, s.FluidPerUpgrade)
	pick(&r.MaxSpeedUpgrades, s.MaxSpeedUpgrades)
	pick(&r.MaxStackUpgrades, s.MaxStackUpgrades)
	return r
}

// NodeStatsCatalog holds the stats for every configured node kind.
type NodeStatsCatalog struct {
	ByKind map[string]NodeStats
	Digest string
}

// Resolved returns the effective stats of a kind. A nil catalog yields
// defaults.
func (c *NodeStatsCatalog) Resolved(kind string) ResolvedStats {
	if c == nil {
		return DefaultStats
	}
	s, ok := c.ByKind[kind]
	if !ok {
		return DefaultStats
	}
	return s.Resolve()
}

// Kinds returns the configured kinds in sorted order.
func (c *NodeStatsCatalog) Kinds() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.ByKind))
	for k := range c.ByKind {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type nodeStatsFile struct {
	Nodes map[string]NodeStats `yaml:"nodes"`
}

var (
	nodesSchemaOnce sync.Once
	nodesSchema     *jsonschema.Schema
	nodesSchemaErr  error
)

func compiledNodesSchema() (*jsonschema.Schema, error) {
	nodesSchemaOnce.Do(func() {
		nodesSchema, nodesSchemaErr = jsonschema.CompileString("routing_nodes.schema.json", nodesSchemaJSON)
	})
	return nodesSchema, nodesSchemaErr
}

func LoadNodeStats(path string) (*NodeStatsCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseNodeStats(b)
}

// ParseNodeStats validates raw yaml against the routing node schema and
// decodes it.
func ParseNodeStats(b []byte) (*NodeStatsCatalog, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("routing_nodes.yaml: %w", err)
	}
	// Round-trip through JSON so the validator sees json.Unmarshal types.
	jb, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("routing_nodes.yaml: %w", err)
	}
	var jdoc any
	if err := json.Unmarshal(jb, &jdoc); err != nil {
		return nil, fmt.Errorf("routing_nodes.yaml: %w", err)
	}
	schema, err := compiledNodesSchema()
	if err != nil {
		return nil, fmt.Errorf("routing_nodes schema: %w", err)
	}
	if err := schema.Validate(jdoc); err != nil {
		return nil, fmt.Errorf("routing_nodes.yaml: %w", err)
	}

	var f nodeStatsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("routing_nodes.yaml: %w", err)
	}
	if f.Nodes == nil {
		f.Nodes = map[string]NodeStats{}
	}
	return &NodeStatsCatalog{ByKind: f.Nodes, Digest: sha256Hex(b)}, nil
}
