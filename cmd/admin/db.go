package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"voxelroute.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	from := fs.Uint64("from", 0, "first tick (ticks, flows)")
	to := fs.Uint64("to", 0, "last tick (ticks, flows; 0 = latest)")
	resource := fs.String("resource", "", "resource filter (transfers)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	if err := runQuery(r, q, *from, *to, *resource, *limit); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func runQuery(r *indexdb.Reader, q string, from, to uint64, resource string, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	if to == 0 {
		to = math.MaxInt64
	}
	switch q {
	case "snapshots":
		rows, err := r.Snapshots()
		if err != nil {
			return err
		}
		if len(rows) > limit {
			rows = rows[len(rows)-limit:]
		}
		for _, row := range rows {
			printJSON(row)
		}
	case "meta":
		for _, k := range []string{"schema_version", "world_id"} {
			v, err := r.Meta(k)
			if err != nil {
				return err
			}
			printJSON(map[string]string{"key": k, "value": v})
		}
	case "ticks":
		rows, err := r.Ticks(from, to)
		if err != nil {
			return err
		}
		for _, row := range rows {
			printJSON(row)
		}
	case "flows":
		rows, err := r.Flows(from, to)
		if err != nil {
			return err
		}
		for _, row := range rows {
			printJSON(row)
		}
	case "transfers":
		rows, err := r.Transfers(resource, limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			printJSON(row)
		}
	case "edits":
		rows, err := r.FailedEdits(limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			printJSON(row)
		}
	default:
		return fmt.Errorf("unknown query (want snapshots|meta|ticks|flows|transfers|edits)")
	}
	return nil
}
