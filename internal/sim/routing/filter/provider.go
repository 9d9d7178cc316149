package filter

import (
	"errors"
	"fmt"
	"strings"

	"voxelroute.ai/internal/sim/routing/model"
)

// Provider names registered by NewRegistry.
const (
	ProviderExact     = "exact"
	ProviderTag       = "tag"
	ProviderMod       = "mod"
	ProviderComposite = "composite"
)

var ErrEmptyEntry = errors.New("filter entry has nothing to match")

// Provider turns the ghost entries of a filter item into keys. The UI
// accessors exist for configuration screens and do not affect routing.
type Provider interface {
	KeyFor(cfg Config, e Entry) (Key, error)
	ButtonStates(cfg Config) map[string]int
	GhostText(e Entry) string
}

func boolState(b bool) int {
	if b {
		return 1
	}
	return 0
}

func entryCountText(e Entry) string {
	if e.Count <= 0 {
		return "all"
	}
	return fmt.Sprintf("%d", e.Count)
}

type exactProvider struct{}

func (exactProvider) KeyFor(_ Config, e Entry) (Key, error) {
	if e.Resource == "" {
		return nil, ErrEmptyEntry
	}
	return NewBasicKey(e.Resource, e.Count), nil
}

func (exactProvider) ButtonStates(cfg Config) map[string]int {
	return map[string]int{"blacklist": boolState(cfg.Blacklist)}
}

func (exactProvider) GhostText(e Entry) string {
	return entryCountText(e) + " " + e.Resource
}

type tagProvider struct{ tags TagSource }

func (p tagProvider) KeyFor(_ Config, e Entry) (Key, error) {
	if e.AnyTag {
		var list []string
		if p.tags != nil && e.Resource != "" {
			list = p.tags.Tags(e.Resource)
		}
		if len(list) == 0 {
			return nil, ErrEmptyEntry
		}
		return NewCollectionTagKey(list, e.Count, p.tags), nil
	}
	tag := e.Tag
	if tag == "" && p.tags != nil && e.Resource != "" {
		if list := p.tags.Tags(e.Resource); len(list) > 0 {
			tag = list[0]
		}
	}
	if tag == "" {
		return nil, ErrEmptyEntry
	}
	return NewTagKey(tag, e.Count, p.tags), nil
}

func (tagProvider) ButtonStates(cfg Config) map[string]int {
	anyTag := 0
	for _, e := range cfg.Entries {
		if e.AnyTag {
			anyTag = 1
			break
		}
	}
	return map[string]int{"blacklist": boolState(cfg.Blacklist), "any_tag": anyTag}
}

func (p tagProvider) GhostText(e Entry) string {
	if e.AnyTag {
		var list []string
		if p.tags != nil {
			list = p.tags.Tags(e.Resource)
		}
		return entryCountText(e) + " any of #{" + strings.Join(list, ",") + "}"
	}
	return entryCountText(e) + " #" + e.Tag
}

type modProvider struct{}

func (modProvider) KeyFor(_ Config, e Entry) (Key, error) {
	ns := e.Namespace
	if ns == "" {
		if e.Resource == "" {
			return nil, ErrEmptyEntry
		}
		ns = model.Namespace(e.Resource)
	}
	return NewModKey(ns, e.Count), nil
}

func (modProvider) ButtonStates(cfg Config) map[string]int {
	return map[string]int{"blacklist": boolState(cfg.Blacklist)}
}

func (modProvider) GhostText(e Entry) string {
	ns := e.Namespace
	if ns == "" {
		ns = model.Namespace(e.Resource)
	}
	return entryCountText(e) + " @" + ns
}

// compositeProvider applies every nested filter item to each ghost entry
// and ANDs the resulting keys.
type compositeProvider struct{ reg *Registry }

func (p compositeProvider) KeyFor(cfg Config, e Entry) (Key, error) {
	if len(cfg.Nested) == 0 {
		return nil, ErrEmptyEntry
	}
	subs := make([]Key, 0, len(cfg.Nested))
	for _, n := range cfg.Nested {
		if n.Provider == ProviderComposite {
			return nil, ErrNestedComposite
		}
		np, err := p.reg.lookup(n.Provider)
		if err != nil {
			return nil, err
		}
		k, err := np.KeyFor(n, e)
		if err != nil {
			return nil, err
		}
		subs = append(subs, k)
	}
	return NewCompositeKey(e.Count, subs...)
}

func (compositeProvider) ButtonStates(cfg Config) map[string]int {
	return map[string]int{"blacklist": boolState(cfg.Blacklist), "nested": len(cfg.Nested)}
}

func (compositeProvider) GhostText(e Entry) string {
	return entryCountText(e) + " " + e.Resource + " (all nested filters)"
}
