package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxelroute.ai/internal/persistence/snapshot"
	"voxelroute.ai/internal/sim/catalogs"
	"voxelroute.ai/internal/sim/world"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		ticksDir  = flag.String("ticks", "", "tick log dir containing ticks-*.jsonl.zst (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		fromTick  = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d world=%s tick=%d nodes=%d containers=%d tanks=%d digest=%s\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick,
		len(snap.Nodes), len(snap.Containers), len(snap.Tanks), snap.Digest)

	if *ticksDir == "" {
		return
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	w, err := world.New(world.WorldConfig{
		ID:         snap.Header.WorldID,
		TickRateHz: snap.TickRate,
	}, cats, log.New(io.Discard, "", 0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	verifyFrom := *fromTick
	if verifyFrom == 0 {
		verifyFrom = w.CurrentTick() + 1
	}

	files, err := listTickFiles(*ticksDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list tick logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick log files found in", *ticksDir)
		os.Exit(1)
	}

	var checked uint64
	for _, path := range files {
		if err := replayFile(w, path, verifyFrom, *toTick, &checked); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if *toTick != 0 && w.CurrentTick() >= *toTick {
			break
		}
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d)\n", checked, snap.Header.Tick)
}

func listTickFiles(dir string) ([]string, error) {
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
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func replayFile(w *world.World, path string, verifyFrom, toTick uint64, checked *uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var entry world.TickLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if toTick != 0 && entry.Tick > toTick {
			return nil
		}
		ok, err := replayEntry(w, entry, verifyFrom)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if ok {
			*checked++
		}
	}
	return sc.Err()
}

// replayEntry steps w through one logged tick. Entries at or before the
// current tick are skipped. It reports whether the digest was compared.
func replayEntry(w *world.World, entry world.TickLogEntry, verifyFrom uint64) (bool, error) {
	if entry.Tick <= w.CurrentTick() {
		return false, nil
	}
	if want := w.CurrentTick() + 1; entry.Tick != want {
		return false, fmt.Errorf("tick gap: want=%d got=%d", want, entry.Tick)
	}

	edits := make([]world.Edit, 0, len(entry.Edits))
	for _, e := range entry.Edits {
		edits = append(edits, e.Edit)
	}
	results := w.StepOnce(edits)
	for i, res := range results {
		if res.Error != entry.Edits[i].Error {
			return false, fmt.Errorf("edit %d at tick %d (%s): got error %q want %q",
				i, entry.Tick, entry.Edits[i].Edit.Op, res.Error, entry.Edits[i].Error)
		}
	}

	if entry.Tick < verifyFrom {
		return false, nil
	}
	if got := w.StateDigest(); got != entry.Digest {
		return false, fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", entry.Tick, got, entry.Digest)
	}
	return true, nil
}
