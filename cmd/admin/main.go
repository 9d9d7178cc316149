package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxelroute.ai/internal/persistence/snapshot"
	"voxelroute.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "ticks":
			ticksCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "edit":
			editCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// snapshotSummary is the operator view of one snapshot file.
type snapshotSummary struct {
	WorldID    string          `json:"world_id"`
	Tick       uint64          `json:"tick"`
	Digest     string          `json:"digest"`
	Nodes      int             `json:"nodes"`
	Containers int             `json:"containers"`
	Tanks      int             `json:"tanks"`
	Kinds      map[string]int  `json:"kinds"`
	Masters    []masterSummary `json:"masters,omitempty"`
}

type masterSummary struct {
	Pos          [3]int `json:"pos"`
	General      int    `json:"general"`
	ItemInputs   int    `json:"item_inputs"`
	ItemOutputs  int    `json:"item_outputs"`
	FluidInputs  int    `json:"fluid_inputs"`
	FluidOutputs int    `json:"fluid_outputs"`
	Upgrades     [2]int `json:"upgrades"`
}

func summarizeSnapshot(snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		WorldID:    snap.Header.WorldID,
		Tick:       snap.Header.Tick,
		Digest:     snap.Digest,
		Nodes:      len(snap.Nodes),
		Containers: len(snap.Containers),
		Tanks:      len(snap.Tanks),
		Kinds:      map[string]int{},
	}
	for _, n := range snap.Nodes {
		s.Kinds[n.Kind]++
		if n.Master == nil {
			continue
		}
		m := n.Master
		s.Masters = append(s.Masters, masterSummary{
			Pos:          n.Pos,
			General:      len(m.General),
			ItemInputs:   len(m.ItemInputs),
			ItemOutputs:  len(m.ItemOutputs),
			FluidInputs:  len(m.FluidInputs),
			FluidOutputs: len(m.FluidOutputs),
			Upgrades:     [2]int{m.SpeedUpgrades, m.StackUpgrades},
		})
	}
	sort.Slice(s.Masters, func(i, j int) bool { return lessPos(s.Masters[i].Pos, s.Masters[j].Pos) })
	return s
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	full := fs.Bool("full", false, "print the whole snapshot instead of a summary")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	if *full {
		printJSON(snap)
		return
	}
	printJSON(summarizeSnapshot(snap))
}

func ticksCmd(args []string) {
	fs := flag.NewFlagSet("ticks", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	resource := fs.String("resource", "", "only ticks moving this resource")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	entries, err := readTickLog(filepath.Join(*dataDir, "worlds", *worldID), *sinceTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read tick log:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if r := strings.TrimSpace(*resource); r != "" && !movesResource(e, r) {
			continue
		}
		printJSON(e)
	}
}

func movesResource(e world.TickLogEntry, resource string) bool {
	for _, t := range e.Transfers {
		if t.Resource == resource {
			return true
		}
	}
	return false
}

// readTickLog reads every tick segment in name order. A zero toTick means
// no upper bound.
func readTickLog(worldDir string, sinceTick, toTick uint64) ([]world.TickLogEntry, error) {
	dir := filepath.Join(worldDir, "ticks")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []world.TickLogEntry
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			var e world.TickLogEntry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if e.Tick < sinceTick || (toTick != 0 && e.Tick > toTick) {
				continue
			}
			out = append(out, e)
		}
		err = sc.Err()
		dec.Close()
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out, nil
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func lessPos(a, b [3]int) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
