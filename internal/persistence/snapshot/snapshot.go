package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is the persisted state of a routing world. Master lists and
// connection maps are stored as-is; import does not re-derive them.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate           int `json:"tick_rate_hz"`
	SnapshotEveryTicks int `json:"snapshot_every_ticks,omitempty"`

	// Catalog digests at export time, for drift detection on resume.
	NodesDigest     string `json:"nodes_digest,omitempty"`
	ResourcesDigest string `json:"resources_digest,omitempty"`

	Nodes      []NodeV1      `json:"nodes"`
	Containers []ContainerV1 `json:"containers"`
	Tanks      []TankV1      `json:"tanks"`

	Digest string `json:"digest"`
}

type NodeV1 struct {
	Pos         [3]int   `json:"pos"`
	Kind        string   `json:"kind"`
	MasterPos   [3]int   `json:"master_pos"`
	Connections [][3]int `json:"connections,omitempty"`
	Signal      int      `json:"signal,omitempty"`

	Sides      []SideV1  `json:"sides,omitempty"`
	ActiveSide int       `json:"active_side,omitempty"`
	Master     *MasterV1 `json:"master,omitempty"`
}

// SideV1 is one face; Sides is indexed by direction ordinal.
type SideV1 struct {
	Priority int       `json:"priority,omitempty"`
	Filter   *FilterV1 `json:"filter,omitempty"`
}

type FilterV1 struct {
	Provider  string          `json:"provider"`
	Fluid     bool            `json:"fluid,omitempty"`
	Blacklist bool            `json:"blacklist,omitempty"`
	Entries   []FilterEntryV1 `json:"entries,omitempty"`
	Nested    []FilterV1      `json:"nested,omitempty"`
}

type FilterEntryV1 struct {
	Resource  string `json:"resource,omitempty"`
	Tag       string `json:"tag,omitempty"`
	AnyTag    bool   `json:"any_tag,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Count     int    `json:"count,omitempty"`
}

type MasterV1 struct {
	ConnectionMap []EdgeListV1 `json:"connection_map,omitempty"`
	General       [][3]int     `json:"general,omitempty"`
	ItemInputs    [][3]int     `json:"item_inputs,omitempty"`
	ItemOutputs   [][3]int     `json:"item_outputs,omitempty"`
	FluidInputs   [][3]int     `json:"fluid_inputs,omitempty"`
	FluidOutputs  [][3]int     `json:"fluid_outputs,omitempty"`
	SpeedUpgrades int          `json:"speed_upgrades,omitempty"`
	StackUpgrades int          `json:"stack_upgrades,omitempty"`
}

type EdgeListV1 struct {
	From [3]int   `json:"from"`
	To   [][3]int `json:"to"`
}

type ContainerV1 struct {
	Pos   [3]int    `json:"pos"`
	Slots []StackV1 `json:"slots"`
}

type StackV1 struct {
	ID    string `json:"id,omitempty"`
	Count int    `json:"count,omitempty"`
}

type TankV1 struct {
	Pos      [3]int  `json:"pos"`
	Capacity int     `json:"capacity"`
	Fluid    StackV1 `json:"fluid"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Read header line (ignore it for now, gob also contains header).
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
