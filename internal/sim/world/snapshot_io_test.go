package world

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"voxelroute.ai/internal/persistence/snapshot"
)

func TestSnapshot_RoundTripResumesIdentically(t *testing.T) {
	a := newLayoutWorld(t)
	a.StepOnce([]Edit{
		{Op: OpSetUpgrades, Pos: [3]int{4, 1, 0}, Speed: 1, Stack: 2},
		{Op: OpSetSignal, Pos: [3]int{6, 1, 0}, Signal: 3},
	})
	stepN(a, 24)

	path := filepath.Join(t.TempDir(), "25.snap.zst")
	want := a.ExportSnapshot(a.CurrentTick())
	if err := snapshot.WriteSnapshot(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	b := newTestWorld(t)
	if err := b.ImportSnapshot(got); err != nil {
		t.Fatalf("import: %v", err)
	}
	if diff := cmp.Diff(want, b.ExportSnapshot(b.CurrentTick())); diff != "" {
		t.Fatalf("re-export differs (-want +got):\n%s", diff)
	}

	for i := 0; i < 40; i++ {
		a.StepOnce(nil)
		b.StepOnce(nil)
		if da, db := a.stateDigest(a.CurrentTick()), b.stateDigest(b.CurrentTick()); da != db {
			t.Fatalf("tick %d: resumed world diverged", a.CurrentTick())
		}
	}
}

func TestSnapshot_ImportRejects(t *testing.T) {
	src := newLayoutWorld(t)
	good := src.ExportSnapshot(src.CurrentTick())

	cases := []struct {
		name   string
		mutate func(*snapshot.SnapshotV1)
	}{
		{"version", func(s *snapshot.SnapshotV1) { s.Header.Version = 9 }},
		{"world id", func(s *snapshot.SnapshotV1) { s.Header.WorldID = "other" }},
		{"digest", func(s *snapshot.SnapshotV1) { s.Digest = "00" }},
		{"unknown kind", func(s *snapshot.SnapshotV1) {
			s.Nodes = append([]snapshot.NodeV1(nil), s.Nodes...)
			s.Nodes[0].Kind = "teleporter"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := good
			tc.mutate(&snap)
			if err := newTestWorld(t).ImportSnapshot(snap); err == nil {
				t.Fatalf("expected import error")
			}
		})
	}
}

func TestSnapshot_RejectedImportLeavesWorldUntouched(t *testing.T) {
	src := newLayoutWorld(t)
	stepN(src, 20)
	snap := src.ExportSnapshot(src.CurrentTick())
	snap.Digest = "00"

	dst := newLayoutWorld(t)
	stepN(dst, 3)
	before := dst.StateDigest()
	nodes, tick := len(dst.nodes.Positions()), dst.CurrentTick()

	if err := dst.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected digest mismatch")
	}
	if got := dst.StateDigest(); got != before {
		t.Fatalf("rejected import changed state: %s -> %s", before, got)
	}
	if len(dst.nodes.Positions()) != nodes || dst.CurrentTick() != tick {
		t.Fatalf("nodes=%d tick=%d, want %d and %d", len(dst.nodes.Positions()), dst.CurrentTick(), nodes, tick)
	}

	empty := newTestWorld(t)
	if err := empty.ImportSnapshot(snap); err == nil || len(empty.nodes.Positions()) != 0 {
		t.Fatalf("empty world took a rejected snapshot: err=%v nodes=%d", err, len(empty.nodes.Positions()))
	}
}
