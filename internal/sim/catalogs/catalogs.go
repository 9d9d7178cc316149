package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Catalogs is the read-only data loaded once at startup.
type Catalogs struct {
	Nodes     *NodeStatsCatalog
	Resources *ResourceCatalog
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	var err error
	if c.Nodes, err = LoadNodeStats(filepath.Join(configDir, "routing_nodes.yaml")); err != nil {
		return nil, err
	}
	if c.Resources, err = LoadResources(filepath.Join(configDir, "resources.yaml")); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
