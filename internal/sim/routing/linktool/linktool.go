// Package linktool is the network-edit tool: it validates and applies
// link and unlink requests against a routing graph.
package linktool

import (
	"errors"
	"fmt"

	"voxelroute.ai/internal/sim/routing/model"
	"voxelroute.ai/internal/sim/routing/network"
)

var (
	ErrNotANode            = errors.New("no routing node at position")
	ErrSameNode            = errors.New("cannot link a node to itself")
	ErrNotLinked           = errors.New("nodes are not linked")
	ErrConnectionDisabled  = errors.New("connection disabled by signal")
	ErrOutOfRange          = errors.New("nodes out of range")
	ErrTooManyConnections  = errors.New("too many connections")
	ErrTwoMasters          = errors.New("cannot link two master nodes")
	ErrMasterConflict      = errors.New("nodes belong to different masters")
	errGraphRefusedConnect = errors.New("graph refused connection")
)

type Tool struct {
	g *network.Graph
}

func New(g *network.Graph) *Tool { return &Tool{g: g} }

func (t *Tool) node(pos model.Vec3i) (*network.Node, error) {
	n := t.g.Store().Node(pos)
	if n == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotANode, pos)
	}
	return n, nil
}

// Link connects a and b. Linking an existing pair is a no-op.
func (t *Tool) Link(a, b model.Vec3i) error {
	if a == b {
		return ErrSameNode
	}
	na, err := t.node(a)
	if err != nil {
		return err
	}
	nb, err := t.node(b)
	if err != nil {
		return err
	}
	if na.IsConnectedTo(b) && nb.IsConnectedTo(a) {
		return nil
	}
	if !na.ConnectionEnabled() || !nb.ConnectionEnabled() {
		return ErrConnectionDisabled
	}
	sa, sb := t.g.Stats(na.Kind), t.g.Stats(nb.Kind)
	if d := model.Chebyshev(a, b); d > min(sa.MaxRange, sb.MaxRange) {
		return fmt.Errorf("%w: distance %d, range %d", ErrOutOfRange, d, min(sa.MaxRange, sb.MaxRange))
	}
	if len(na.Connections) >= sa.MaxConnections {
		return fmt.Errorf("%w: %v has %d", ErrTooManyConnections, a, len(na.Connections))
	}
	if len(nb.Connections) >= sb.MaxConnections {
		return fmt.Errorf("%w: %v has %d", ErrTooManyConnections, b, len(nb.Connections))
	}
	if na.IsMaster() && nb.IsMaster() {
		return ErrTwoMasters
	}
	ma, mb := t.g.MasterOf(na), t.g.MasterOf(nb)
	if ma != nil && mb != nil && ma != mb {
		return fmt.Errorf("%w: %v and %v", ErrMasterConflict, ma.Pos, mb.Pos)
	}
	if !t.g.Connect(a, b) {
		return errGraphRefusedConnect
	}
	return nil
}

// Unlink removes the edge a-b and returns the nodes that lost their master.
func (t *Tool) Unlink(a, b model.Vec3i) ([]model.Vec3i, error) {
	na := t.g.Store().Node(a)
	nb := t.g.Store().Node(b)
	if na == nil && nb == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotANode, a)
	}
	if !na.IsConnectedTo(b) && !nb.IsConnectedTo(a) {
		return nil, ErrNotLinked
	}
	return t.g.Disconnect(a, b), nil
}

// UnlinkAll removes every edge of pos.
func (t *Tool) UnlinkAll(pos model.Vec3i) ([]model.Vec3i, error) {
	n, err := t.node(pos)
	if err != nil {
		return nil, err
	}
	var purged []model.Vec3i
	for _, p := range append([]model.Vec3i(nil), n.Connections...) {
		purged = append(purged, t.g.Disconnect(pos, p)...)
	}
	return purged, nil
}

type SideSummary struct {
	Face     string `json:"face"`
	Priority int    `json:"priority"`
	Provider string `json:"provider,omitempty"`
	Fluid    bool   `json:"fluid,omitempty"`
	Entries  int    `json:"entries,omitempty"`
}

type MasterSummary struct {
	Nodes         int `json:"nodes"`
	Edges         int `json:"edges"`
	ItemInputs    int `json:"item_inputs"`
	ItemOutputs   int `json:"item_outputs"`
	FluidInputs   int `json:"fluid_inputs"`
	FluidOutputs  int `json:"fluid_outputs"`
	SpeedUpgrades int `json:"speed_upgrades"`
	StackUpgrades int `json:"stack_upgrades"`
	TickRate      int `json:"tick_rate"`
	ItemTransfer  int `json:"item_transfer"`
	FluidTransfer int `json:"fluid_transfer"`
}

// Summary is what the tool reports about a single node.
type Summary struct {
	Pos         [3]int         `json:"pos"`
	Kind        string         `json:"kind"`
	Master      *[3]int        `json:"master,omitempty"`
	Stale       bool           `json:"stale,omitempty"`
	Signal      int            `json:"signal,omitempty"`
	Connections [][3]int       `json:"connections"`
	Sides       []SideSummary  `json:"sides,omitempty"`
	Network     *MasterSummary `json:"network,omitempty"`
}

func (t *Tool) Inspect(pos model.Vec3i) (Summary, error) {
	n, err := t.node(pos)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Pos: pos.ToArray(), Kind: string(n.Kind), Signal: n.Signal, Connections: [][3]int{}}
	for _, p := range n.Connections {
		s.Connections = append(s.Connections, p.ToArray())
	}
	if n.HasMaster() {
		mp := n.MasterPos.ToArray()
		s.Master = &mp
		s.Stale = t.g.MasterOf(n) == nil
	}
	if n.Sides != nil {
		for _, d := range model.Directions() {
			ss := SideSummary{Face: d.String(), Priority: n.Sides.Priority(d)}
			if cfg := n.Sides.Filter(d); cfg != nil {
				ss.Provider = cfg.Provider
				ss.Fluid = cfg.Fluid
				ss.Entries = len(cfg.Entries)
			}
			s.Sides = append(s.Sides, ss)
		}
	}
	if m := n.Master; m != nil {
		edges := 0
		for _, list := range m.ConnectionMap {
			edges += len(list)
		}
		s.Network = &MasterSummary{
			Nodes:         len(m.General),
			Edges:         edges / 2,
			ItemInputs:    len(m.ItemInputs),
			ItemOutputs:   len(m.ItemOutputs),
			FluidInputs:   len(m.FluidInputs),
			FluidOutputs:  len(m.FluidOutputs),
			SpeedUpgrades: m.SpeedUpgrades,
			StackUpgrades: m.StackUpgrades,
			TickRate:      t.g.EffectiveTickRate(n),
			ItemTransfer:  t.g.EffectiveItemTransfer(n),
			FluidTransfer: t.g.EffectiveFluidTransfer(n),
		}
	}
	return s, nil
}
