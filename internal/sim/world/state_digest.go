package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"voxelroute.ai/internal/sim/routing/model"
	"voxelroute.ai/internal/sim/routing/network"
)

// StateDigest is the digest of the current tick. Like StepOnce it must not
// race a running loop.
func (w *World) StateDigest() string { return w.stateDigest(w.tick.Load()) }

// stateDigest hashes everything a tick can change, in a fixed order, so
// two runs of the same edits can be compared tick by tick.
func (w *World) stateDigest(nowTick uint64) string {
	return digestState(nowTick, w.nodes, w.containers, w.tanks)
}

func digestState(nowTick uint64, nodes network.Store, containers map[model.Vec3i]*Container, tanks map[model.Vec3i]*Tank) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	for _, p := range nodes.Positions() {
		n := nodes.Node(p)
		digestWritePos(h, &tmp, p)
		h.Write([]byte(n.Kind))
		digestWritePos(h, &tmp, n.MasterPos)
		digestWriteI64(h, &tmp, int64(len(n.Connections)))
		for _, c := range n.Connections {
			digestWritePos(h, &tmp, c)
		}
		if n.IsMaster() {
			digestMaster(h, &tmp, n.Master)
		}
	}
	for _, p := range network.SortedPositions(containers) {
		digestWritePos(h, &tmp, p)
		for _, s := range containers[p].Contents {
			digestWriteStack(h, &tmp, s)
		}
	}
	for _, p := range network.SortedPositions(tanks) {
		digestWritePos(h, &tmp, p)
		digestWriteStack(h, &tmp, tanks[p].Fluid)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestMaster(h hashWriter, tmp *[8]byte, m *network.Master) {
	for _, list := range [][]model.Vec3i{m.General, m.ItemInputs, m.ItemOutputs, m.FluidInputs, m.FluidOutputs} {
		digestWriteI64(h, tmp, int64(len(list)))
		for _, p := range list {
			digestWritePos(h, tmp, p)
		}
	}
	for _, from := range network.SortedPositions(m.ConnectionMap) {
		to := m.ConnectionMap[from]
		digestWritePos(h, tmp, from)
		digestWriteI64(h, tmp, int64(len(to)))
		for _, p := range to {
			digestWritePos(h, tmp, p)
		}
	}
	digestWriteI64(h, tmp, int64(m.SpeedUpgrades))
	digestWriteI64(h, tmp, int64(m.StackUpgrades))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWritePos(h hashWriter, tmp *[8]byte, p model.Vec3i) {
	digestWriteI64(h, tmp, int64(p.X))
	digestWriteI64(h, tmp, int64(p.Y))
	digestWriteI64(h, tmp, int64(p.Z))
}

func digestWriteStack(h hashWriter, tmp *[8]byte, s model.Stack) {
	if s.IsEmpty() {
		digestWriteI64(h, tmp, 0)
		return
	}
	h.Write([]byte(s.ID))
	digestWriteI64(h, tmp, int64(s.Count))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
