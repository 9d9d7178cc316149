package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelroute.ai/internal/persistence/indexdb"
	"voxelroute.ai/internal/persistence/snapshot"
	"voxelroute.ai/internal/sim/catalogs"
	"voxelroute.ai/internal/sim/tuning"
	"voxelroute.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Close() error
	UpsertCatalogs(configDir, worldID string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func indexPath(worldDir string) string {
	return filepath.Join(worldDir, "index", "world.sqlite")
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VR_INDEX_BACKEND")))
	switch backend {
	case "", "sqlite":
		idx, err := indexdb.OpenSQLite(indexPath(worldDir))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "none", "off", "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported VR_INDEX_BACKEND: %s", backend)
	}
}
