package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	persistlog "voxelroute.ai/internal/persistence/log"
	"voxelroute.ai/internal/persistence/snapshot"
	"voxelroute.ai/internal/sim/world"
)

func TestReadTickLog(t *testing.T) {
	worldDir := t.TempDir()
	l := persistlog.NewTickLogger(worldDir)
	for tick := uint64(0); tick < 5; tick++ {
		e := world.TickLogEntry{Tick: tick, Digest: "d"}
		if tick == 3 {
			e.Transfers = []world.TransferRecord{{Channel: "item", Resource: "stone", Amount: 8}}
		}
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := readTickLog(worldDir, 2, 3)
	if err != nil {
		t.Fatalf("readTickLog: %v", err)
	}
	if len(got) != 2 || got[0].Tick != 2 || got[1].Tick != 3 {
		t.Fatalf("unexpected ticks: %+v", got)
	}
	if movesResource(got[0], "stone") || !movesResource(got[1], "stone") {
		t.Fatalf("movesResource mismatch")
	}

	all, err := readTickLog(worldDir, 0, 0)
	if err != nil || len(all) != 5 {
		t.Fatalf("open-ended read: n=%d err=%v", len(all), err)
	}
}

func TestReadTickLog_MissingDir(t *testing.T) {
	if _, err := readTickLog(t.TempDir(), 0, 0); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestSummarizeSnapshot(t *testing.T) {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "w", Tick: 60},
		Digest: "abc",
		Nodes: []snapshot.NodeV1{
			{Pos: [3]int{9, 1, 0}, Kind: "master_routing_node", Master: &snapshot.MasterV1{
				General:       [][3]int{{9, 1, 0}, {8, 1, 0}},
				ItemInputs:    [][3]int{{8, 1, 0}},
				SpeedUpgrades: 2,
			}},
			{Pos: [3]int{8, 1, 0}, Kind: "input_routing_node", MasterPos: [3]int{9, 1, 0}},
			{Pos: [3]int{1, 1, 0}, Kind: "master_routing_node", Master: &snapshot.MasterV1{StackUpgrades: 1}},
		},
		Containers: []snapshot.ContainerV1{{Pos: [3]int{8, 0, 0}}},
	}
	want := snapshotSummary{
		WorldID:    "w",
		Tick:       60,
		Digest:     "abc",
		Nodes:      3,
		Containers: 1,
		Kinds:      map[string]int{"master_routing_node": 2, "input_routing_node": 1},
		Masters: []masterSummary{
			{Pos: [3]int{1, 1, 0}, Upgrades: [2]int{0, 1}},
			{Pos: [3]int{9, 1, 0}, General: 2, ItemInputs: 1, Upgrades: [2]int{2, 0}},
		},
	}
	if diff := cmp.Diff(want, summarizeSnapshot(snap)); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"3000.snap.zst", "20.snap.zst"} {
		if err := os.WriteFile(filepath.Join(snapDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := latestSnapshot(dir); got != filepath.Join(snapDir, "3000.snap.zst") {
		t.Fatalf("latestSnapshot=%q", got)
	}
}
