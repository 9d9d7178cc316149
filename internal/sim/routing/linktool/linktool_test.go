package linktool

import (
	"errors"
	"testing"

	"voxelroute.ai/internal/sim/catalogs"
	"voxelroute.ai/internal/sim/routing/filter"
	"voxelroute.ai/internal/sim/routing/model"
	"voxelroute.ai/internal/sim/routing/network"
)

func v(x, y, z int) model.Vec3i { return model.Vec3i{X: x, Y: y, Z: z} }

func intp(n int) *int { return &n }

func newTool(t *testing.T, kinds map[model.Vec3i]network.Kind) (*Tool, *network.Graph) {
	t.Helper()
	stats := &catalogs.NodeStatsCatalog{ByKind: map[string]catalogs.NodeStats{
		string(network.KindRelay): {MaxConnections: intp(2), MaxRange: intp(4)},
	}}
	g := network.NewGraph(network.NewMemStore(), nil, filter.NewRegistry(nil), stats)
	for pos, k := range kinds {
		if !g.PlaceNode(network.NewNode(pos, k)) {
			t.Fatalf("place %v", pos)
		}
	}
	return New(g), g
}

func TestLink_Rejections(t *testing.T) {
	kinds := map[model.Vec3i]network.Kind{
		v(1, 0, 0):  network.KindMaster,
		v(2, 0, 0):  network.KindRelay,
		v(3, 0, 0):  network.KindInput,
		v(20, 0, 0): network.KindRelay,
		v(1, 5, 0):  network.KindMaster,
		v(2, 5, 0):  network.KindOutput,
		v(2, 2, 0):  network.KindOutput,
	}
	cases := []struct {
		name  string
		setup func(*testing.T, *Tool, *network.Graph)
		a, b  model.Vec3i
		want  error
	}{
		{name: "missing", a: v(1, 0, 0), b: v(9, 9, 9), want: ErrNotANode},
		{name: "self", a: v(2, 0, 0), b: v(2, 0, 0), want: ErrSameNode},
		{name: "range", a: v(2, 0, 0), b: v(20, 0, 0), want: ErrOutOfRange},
		{name: "two masters", a: v(1, 0, 0), b: v(1, 5, 0), want: ErrTwoMasters},
		{
			name: "signal",
			setup: func(_ *testing.T, _ *Tool, g *network.Graph) {
				g.Store().Node(v(3, 0, 0)).Signal = 15
			},
			a: v(2, 0, 0), b: v(3, 0, 0), want: ErrConnectionDisabled,
		},
		{
			name: "conflict",
			setup: func(t *testing.T, tool *Tool, _ *network.Graph) {
				mustLink(t, tool, v(1, 0, 0), v(3, 0, 0))
				mustLink(t, tool, v(1, 5, 0), v(2, 5, 0))
			},
			a: v(3, 0, 0), b: v(2, 5, 0), want: ErrMasterConflict,
		},
		{
			name: "max connections",
			setup: func(t *testing.T, tool *Tool, _ *network.Graph) {
				mustLink(t, tool, v(2, 0, 0), v(1, 0, 0))
				mustLink(t, tool, v(2, 0, 0), v(3, 0, 0))
			},
			a: v(2, 0, 0), b: v(2, 2, 0), want: ErrTooManyConnections,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tool, g := newTool(t, kinds)
			if tc.setup != nil {
				tc.setup(t, tool, g)
			}
			if err := tool.Link(tc.a, tc.b); !errors.Is(err, tc.want) {
				t.Fatalf("Link: got %v want %v", err, tc.want)
			}
		})
	}
}

func mustLink(t *testing.T, tool *Tool, a, b model.Vec3i) {
	t.Helper()
	if err := tool.Link(a, b); err != nil {
		t.Fatalf("Link(%v, %v): %v", a, b, err)
	}
}

func TestLink_MergeAndUnlink(t *testing.T) {
	tool, g := newTool(t, map[model.Vec3i]network.Kind{
		v(1, 0, 0): network.KindMaster,
		v(2, 0, 0): network.KindRelay,
		v(3, 0, 0): network.KindInput,
		v(4, 0, 0): network.KindOutput,
	})
	mustLink(t, tool, v(2, 0, 0), v(3, 0, 0))
	mustLink(t, tool, v(3, 0, 0), v(4, 0, 0))
	mustLink(t, tool, v(1, 0, 0), v(2, 0, 0))
	mustLink(t, tool, v(1, 0, 0), v(2, 0, 0))

	s, err := tool.Inspect(v(1, 0, 0))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if s.Network == nil || s.Network.Nodes != 3 || s.Network.Edges != 3 || s.Network.ItemInputs != 1 || s.Network.ItemOutputs != 1 {
		t.Fatalf("network summary: %+v", s.Network)
	}

	purged, err := tool.Unlink(v(2, 0, 0), v(3, 0, 0))
	if err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if len(purged) != 2 {
		t.Fatalf("purged %v, want the input and output nodes", purged)
	}
	if g.Store().Node(v(4, 0, 0)).HasMaster() {
		t.Fatalf("detached node still bound")
	}
	if _, err := tool.Unlink(v(2, 0, 0), v(3, 0, 0)); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("second Unlink: %v", err)
	}
}

func TestUnlinkAll(t *testing.T) {
	tool, g := newTool(t, map[model.Vec3i]network.Kind{
		v(1, 0, 0): network.KindMaster,
		v(2, 0, 0): network.KindInput,
		v(2, 1, 0): network.KindOutput,
	})
	mustLink(t, tool, v(1, 0, 0), v(2, 0, 0))
	mustLink(t, tool, v(1, 0, 0), v(2, 1, 0))

	purged, err := tool.UnlinkAll(v(1, 0, 0))
	if err != nil {
		t.Fatalf("UnlinkAll: %v", err)
	}
	if len(purged) != 2 {
		t.Fatalf("purged %v", purged)
	}
	m := g.Store().Node(v(1, 0, 0))
	if len(m.Connections) != 0 || len(m.Master.General) != 0 {
		t.Fatalf("master not emptied: %+v", m.Master)
	}
}

func TestInspect_Stale(t *testing.T) {
	tool, g := newTool(t, map[model.Vec3i]network.Kind{
		v(2, 0, 0): network.KindIO,
	})
	g.Store().Node(v(2, 0, 0)).MasterPos = v(7, 7, 7)
	s, err := tool.Inspect(v(2, 0, 0))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !s.Stale || s.Master == nil || len(s.Sides) != model.NumDirections {
		t.Fatalf("summary: %+v", s)
	}
	if _, err := tool.Inspect(v(9, 9, 9)); !errors.Is(err, ErrNotANode) {
		t.Fatalf("Inspect missing: %v", err)
	}
}
