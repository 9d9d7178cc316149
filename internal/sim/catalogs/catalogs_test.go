package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseNodeStats_FallbackPerField(t *testing.T) {
	c, err := ParseNodeStats([]byte(`
nodes:
  master_routing_node:
    base_tick_rate: 10
    base_item_transfer: 128
  input_routing_node:
    priority_bonus: 2
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := c.Resolved("master_routing_node")
	if m.BaseTickRate != 10 || m.BaseItemTransfer != 128 {
		t.Fatalf("overrides not applied: %+v", m)
	}
	if m.BaseFluidTransfer != DefaultStats.BaseFluidTransfer || m.MaxSpeedUpgrades != DefaultStats.MaxSpeedUpgrades {
		t.Fatalf("missing fields should fall back: %+v", m)
	}
	if got := c.Resolved("input_routing_node").PriorityBonus; got != 2 {
		t.Fatalf("priority bonus=%d", got)
	}
	if got := c.Resolved("unknown_kind"); got != DefaultStats {
		t.Fatalf("unknown kind=%+v", got)
	}
	var nilCat *NodeStatsCatalog
	if nilCat.Resolved("x") != DefaultStats {
		t.Fatalf("nil catalog should resolve defaults")
	}
}

func TestParseNodeStats_SchemaRejects(t *testing.T) {
	bad := []string{
		"nodes:\n  master_routing_node:\n    base_tick_rate: 0\n",
		"nodes:\n  master_routing_node:\n    max_range: -1\n",
		"nodes:\n  master_routing_node:\n    tick_speed: 3\n",
		"nodes:\n  master_routing_node:\n    base_item_transfer: lots\n",
		"extra: true\n",
	}
	for _, src := range bad {
		if _, err := ParseNodeStats([]byte(src)); err == nil {
			t.Fatalf("expected schema error for %q", src)
		}
	}
}

func TestLoad_ConfigDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "routing_nodes.yaml"), []byte("nodes: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := `
resources:
  - id: core:iron_ore
    tags: [ores, ores/iron]
  - id: core:water
    fluid: true
  - id: core:pearl
    max_stack: 16
`
	if err := os.WriteFile(filepath.Join(dir, "resources.yaml"), []byte(res), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tags := c.Resources.Tags("core:iron_ore"); len(tags) != 2 || tags[1] != "ores/iron" {
		t.Fatalf("tags=%v", tags)
	}
	if c.Resources.MaxStack("core:pearl") != 16 || c.Resources.MaxStack("core:iron_ore") != DefaultMaxStack {
		t.Fatalf("max stack mismatch")
	}
	if len(c.Nodes.Kinds()) != 0 || c.Nodes.Digest == "" {
		t.Fatalf("nodes catalog: %+v", c.Nodes)
	}
}

func TestParseResources_Duplicate(t *testing.T) {
	_, err := ParseResources([]byte("resources:\n  - id: a\n  - id: a\n"))
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
