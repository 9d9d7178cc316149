package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteReadSnapshot(t *testing.T) {
	snap := SnapshotV1{
		Header:   Header{Version: Version, WorldID: "w1", Tick: 42},
		TickRate: 20,
		Nodes: []NodeV1{
			{
				Pos:         [3]int{1, 0, 0},
				Kind:        "routing_master",
				MasterPos:   [3]int{1, 0, 0},
				Connections: [][3]int{{2, 0, 0}},
				Master: &MasterV1{
					ConnectionMap: []EdgeListV1{{From: [3]int{1, 0, 0}, To: [][3]int{{2, 0, 0}}}},
					General:       [][3]int{{2, 0, 0}},
					StackUpgrades: 3,
				},
			},
			{
				Pos:       [3]int{2, 0, 0},
				Kind:      "routing_input",
				MasterPos: [3]int{1, 0, 0},
				Sides: []SideV1{{Priority: 5, Filter: &FilterV1{
					Provider: "any",
					Nested:   []FilterV1{{Provider: "item", Entries: []FilterEntryV1{{Resource: "ore", Count: 4}}}},
				}}},
			},
		},
		Containers: []ContainerV1{{Pos: [3]int{3, 0, 0}, Slots: []StackV1{{ID: "ore", Count: 10}, {}}}},
		Tanks:      []TankV1{{Pos: [3]int{4, 0, 0}, Capacity: 8000, Fluid: StackV1{ID: "water", Count: 100}}},
		Digest:     "abc",
	}

	path := filepath.Join(t.TempDir(), "snapshots", "42.snap.zst")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSnapshotMissing(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
