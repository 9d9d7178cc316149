package filter

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"voxelroute.ai/internal/sim/routing/model"
)

// Unbounded is the remaining count of a key that never runs out.
const Unbounded = math.MaxInt

var ErrNestedComposite = errors.New("composite filter key cannot contain another composite key")

// TagSource resolves the tags attached to a resource id.
type TagSource interface {
	Tags(id string) []string
}

// Key is one matching criterion of a filter plus the amount it may still
// move this tick. A key with Count() <= 0 is exhausted.
type Key interface {
	Matches(s model.Stack) bool
	Count() int
	SetCount(n int)
	Grow(n int)
	Shrink(n int)
	String() string
}

type counter struct{ n int }

func (c *counter) Count() int     { return c.n }
func (c *counter) SetCount(n int) { c.n = n }

func (c *counter) Grow(n int) {
	if c.n == Unbounded || n <= 0 {
		return
	}
	if c.n > Unbounded-n {
		c.n = Unbounded
		return
	}
	c.n += n
}

func (c *counter) Shrink(n int) {
	if c.n == Unbounded || n <= 0 {
		return
	}
	c.n -= n
	if c.n < 0 {
		c.n = 0
	}
}

func countLabel(n int) string {
	if n == Unbounded {
		return "*"
	}
	return fmt.Sprintf("%d", n)
}

// BasicKey matches one exact resource id.
type BasicKey struct {
	counter
	ID string
}

func NewBasicKey(id string, count int) *BasicKey {
	return &BasicKey{counter: counter{n: count}, ID: id}
}

func (k *BasicKey) Matches(s model.Stack) bool { return !s.IsEmpty() && s.ID == k.ID }
func (k *BasicKey) String() string             { return countLabel(k.n) + "x " + k.ID }

// TagKey matches resources carrying a single named tag.
type TagKey struct {
	counter
	Tag  string
	tags TagSource
}

func NewTagKey(tag string, count int, tags TagSource) *TagKey {
	return &TagKey{counter: counter{n: count}, Tag: tag, tags: tags}
}

func (k *TagKey) Matches(s model.Stack) bool {
	if s.IsEmpty() || k.tags == nil {
		return false
	}
	return hasTag(k.tags.Tags(s.ID), k.Tag)
}

func (k *TagKey) String() string { return countLabel(k.n) + "x #" + k.Tag }

// CollectionTagKey matches resources carrying any of its tags.
type CollectionTagKey struct {
	counter
	Tags []string
	tags TagSource
}

func NewCollectionTagKey(tagList []string, count int, tags TagSource) *CollectionTagKey {
	return &CollectionTagKey{counter: counter{n: count}, Tags: append([]string(nil), tagList...), tags: tags}
}

func (k *CollectionTagKey) Matches(s model.Stack) bool {
	if s.IsEmpty() || k.tags == nil {
		return false
	}
	have := k.tags.Tags(s.ID)
	for _, t := range k.Tags {
		if hasTag(have, t) {
			return true
		}
	}
	return false
}

func (k *CollectionTagKey) String() string {
	return countLabel(k.n) + "x #{" + strings.Join(k.Tags, ",") + "}"
}

// ModKey matches by the namespace part of the resource id.
type ModKey struct {
	counter
	Namespace string
}

func NewModKey(namespace string, count int) *ModKey {
	return &ModKey{counter: counter{n: count}, Namespace: namespace}
}

func (k *ModKey) Matches(s model.Stack) bool {
	return !s.IsEmpty() && model.Namespace(s.ID) == k.Namespace
}

func (k *ModKey) String() string { return countLabel(k.n) + "x @" + k.Namespace }

// CompositeKey matches only when every sub-key matches. Sub-key counts are
// ignored; the composite carries the count. Nesting is one level deep.
type CompositeKey struct {
	counter
	Keys []Key
}

func NewCompositeKey(count int, keys ...Key) (*CompositeKey, error) {
	for _, k := range keys {
		if _, ok := k.(*CompositeKey); ok {
			return nil, ErrNestedComposite
		}
	}
	return &CompositeKey{counter: counter{n: count}, Keys: append([]Key(nil), keys...)}, nil
}

func (k *CompositeKey) Matches(s model.Stack) bool {
	if s.IsEmpty() || len(k.Keys) == 0 {
		return false
	}
	for _, sub := range k.Keys {
		if !sub.Matches(s) {
			return false
		}
	}
	return true
}

func (k *CompositeKey) String() string {
	parts := make([]string, 0, len(k.Keys))
	for _, sub := range k.Keys {
		parts = append(parts, strings.TrimPrefix(sub.String(), countLabel(sub.Count())+"x "))
	}
	return countLabel(k.n) + "x (" + strings.Join(parts, " & ") + ")"
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
