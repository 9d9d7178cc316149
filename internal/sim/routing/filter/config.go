package filter

import "voxelroute.ai/internal/sim/routing/model"

// Config is the content of a filter configuration item: the provider that
// interprets it, the ghost entries, and nested filter items for composites.
// Fluid selects the channel the item filters.
type Config struct {
	Provider  string   `yaml:"provider" json:"provider"`
	Fluid     bool     `yaml:"fluid,omitempty" json:"fluid,omitempty"`
	Blacklist bool     `yaml:"blacklist,omitempty" json:"blacklist,omitempty"`
	Entries   []Entry  `yaml:"entries,omitempty" json:"entries,omitempty"`
	Nested    []Config `yaml:"nested,omitempty" json:"nested,omitempty"`
}

// Entry is one ghost slot. Which fields matter depends on the provider.
// Count is the keep amount for inputs and the stock target for outputs.
type Entry struct {
	Resource  string `yaml:"resource,omitempty" json:"resource,omitempty"`
	Tag       string `yaml:"tag,omitempty" json:"tag,omitempty"`
	AnyTag    bool   `yaml:"any_tag,omitempty" json:"any_tag,omitempty"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Count     int    `yaml:"count,omitempty" json:"count,omitempty"`
}

func (e Entry) IsEmpty() bool {
	return e.Resource == "" && e.Tag == "" && e.Namespace == ""
}

// Clone returns a deep copy so callers can keep configs immutable.
func (c Config) Clone() Config {
	out := Config{Provider: c.Provider, Fluid: c.Fluid, Blacklist: c.Blacklist}
	if len(c.Entries) > 0 {
		out.Entries = append([]Entry(nil), c.Entries...)
	}
	for _, n := range c.Nested {
		out.Nested = append(out.Nested, n.Clone())
	}
	return out
}

func (c Config) Channel() model.Channel {
	if c.Fluid {
		return model.FluidChannel
	}
	return model.ItemChannel
}
