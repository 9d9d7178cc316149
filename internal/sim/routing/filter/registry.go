package filter

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownProvider = errors.New("unknown filter provider")

// Registry maps provider names to implementations. It is passed to
// whatever builds filters instead of living in package state.
type Registry struct {
	providers map[string]Provider
	tags      TagSource
}

// NewRegistry returns a registry holding the exact, tag, mod and
// composite providers.
func NewRegistry(tags TagSource) *Registry {
	r := &Registry{providers: map[string]Provider{}, tags: tags}
	r.Register(ProviderExact, exactProvider{})
	r.Register(ProviderTag, tagProvider{tags: tags})
	r.Register(ProviderMod, modProvider{})
	r.Register(ProviderComposite, compositeProvider{reg: r})
	return r
}

func (r *Registry) Register(name string, p Provider) {
	if name == "" || p == nil {
		return
	}
	r.providers[name] = p
}

func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Keys builds fresh keys for cfg with their configured counts. Empty ghost
// slots are skipped.
func (r *Registry) Keys(cfg Config) ([]Key, error) {
	p, err := r.lookup(cfg.Provider)
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(cfg.Entries))
	for _, e := range cfg.Entries {
		if e.IsEmpty() {
			continue
		}
		k, err := p.KeyFor(cfg, e)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// UninitializedFilter builds a filter that is not bound to an inventory,
// for previews. Zero counts are shown as unbounded.
func (r *Registry) UninitializedFilter(cfg Config) (*Filter, error) {
	keys, err := r.Keys(cfg)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.Count() <= 0 {
			k.SetCount(Unbounded)
		}
	}
	return &Filter{keys: keys, blacklist: cfg.Blacklist}, nil
}

// InputFilter builds a filter that extracts from st.
func (r *Registry) InputFilter(cfg Config, st Store, origin Origin) (*Filter, error) {
	return r.bound(cfg, st, origin, false)
}

// OutputFilter builds a filter that inserts into st.
func (r *Registry) OutputFilter(cfg Config, st Store, origin Origin) (*Filter, error) {
	return r.bound(cfg, st, origin, true)
}

func (r *Registry) bound(cfg Config, st Store, origin Origin, output bool) (*Filter, error) {
	if st == nil {
		return nil, errors.New("filter store is nil")
	}
	keys, err := r.Keys(cfg)
	if err != nil {
		return nil, err
	}
	f := &Filter{keys: keys, blacklist: cfg.Blacklist, output: output, store: st, origin: origin}
	if output {
		f.initOutput()
	} else {
		f.initInput()
	}
	return f, nil
}

// ButtonStates and GhostText forward the UI accessors of cfg's provider.
func (r *Registry) ButtonStates(cfg Config) map[string]int {
	p, err := r.lookup(cfg.Provider)
	if err != nil {
		return nil
	}
	return p.ButtonStates(cfg)
}

func (r *Registry) GhostText(cfg Config, slot int) string {
	p, err := r.lookup(cfg.Provider)
	if err != nil || slot < 0 || slot >= len(cfg.Entries) {
		return ""
	}
	return p.GhostText(cfg.Entries[slot])
}
