package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"voxelroute.ai/internal/sim/routing/model"
)

func TestParseLayout_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing kind", "nodes:\n  - pos: [1, 1, 1]\n"},
		{"zero slots", "containers:\n  - pos: [1, 0, 0]\n    slots: 0\n"},
		{"bad side", "nodes:\n  - pos: [1, 1, 1]\n    kind: input_routing_node\n    sides:\n      - side: inward\n"},
		{"negative upgrades", "nodes:\n  - pos: [1, 1, 1]\n    kind: master_routing_node\n    speed_upgrades: -1\n"},
		{"not yaml", "nodes: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseLayout([]byte(tc.yaml)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLayout_EditsOrder(t *testing.T) {
	l := Layout{
		Containers: []LayoutContainer{{Pos: [3]int{1, 0, 0}, Slots: 2}},
		Nodes: []LayoutNode{
			{Pos: [3]int{1, 1, 0}, Kind: "input_routing_node", Signal: 2, Sides: []LayoutSide{{Side: "down", Priority: 4}}},
			{Pos: [3]int{3, 1, 0}, Kind: "master_routing_node", StackUpgrades: 1},
		},
		Links: []LayoutLink{{A: [3]int{1, 1, 0}, B: [3]int{3, 1, 0}}},
	}
	var got []string
	for _, e := range l.Edits() {
		got = append(got, e.Op)
	}
	want := []string{OpPlaceContainer, OpPlaceNode, OpSetPriority, OpPlaceNode, OpSetUpgrades, OpLink, OpSetSignal}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("edit order (-want +got):\n%s", diff)
	}

	w := newTestWorld(t)
	if err := w.ApplyLayout(l); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n := w.nodes.Node(model.FromArray(l.Nodes[0].Pos)); !n.HasMaster() || n.Signal != 2 {
		t.Fatalf("input not bound or unpowered: %+v", n)
	}
	if err := w.ApplyLayout(l); err == nil {
		t.Fatalf("expected error applying onto a non-empty world")
	}
}

func TestLoadLayout_File(t *testing.T) {
	p := filepath.Join(t.TempDir(), "layout.yaml")
	if err := os.WriteFile(p, []byte(testLayout), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := LoadLayout(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(l.Containers) != 2 || len(l.Tanks) != 2 || len(l.Nodes) != 6 || len(l.Links) != 5 {
		t.Fatalf("unexpected layout: %+v", l)
	}
	if got := l.Containers[0].Contents[1].Count; got != 20 {
		t.Fatalf("contents count %d", got)
	}
}
