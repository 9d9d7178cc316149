package world

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voxelroute.ai/internal/sim/routing/filter"
	"voxelroute.ai/internal/sim/routing/linktool"
	"voxelroute.ai/internal/sim/routing/model"
	"voxelroute.ai/internal/sim/routing/network"
)

const (
	OpPlaceNode      = "PLACE_NODE"
	OpRemoveNode     = "REMOVE_NODE"
	OpLink           = "LINK"
	OpUnlink         = "UNLINK"
	OpUnlinkAll      = "UNLINK_ALL"
	OpSetFilter      = "SET_FILTER"
	OpSetPriority    = "SET_PRIORITY"
	OpSetSignal      = "SET_SIGNAL"
	OpSetUpgrades    = "SET_UPGRADES"
	OpInspect        = "INSPECT"
	OpPlaceContainer = "PLACE_CONTAINER"
	OpPlaceTank      = "PLACE_TANK"
	OpRemoveBlock    = "REMOVE_BLOCK"
	OpDeposit        = "DEPOSIT"
)

var (
	ErrUnknownOp   = errors.New("unknown edit op")
	ErrUnknownKind = errors.New("unknown node kind")
	ErrBadSide     = errors.New("invalid side")
	ErrOccupied    = errors.New("position occupied")
	ErrNotFound    = errors.New("nothing at position")
	ErrNoSides     = errors.New("node has no side filters")
	ErrNotMaster   = errors.New("node is not a master")
)

// Edit is one world edit. Which fields matter depends on Op.
type Edit struct {
	Op    string `json:"op"`
	Pos   [3]int `json:"pos"`
	Other [3]int `json:"other,omitempty"`

	Kind     string         `json:"kind,omitempty"`
	Side     string         `json:"side,omitempty"`
	Filter   *filter.Config `json:"filter,omitempty"`
	Priority int            `json:"priority,omitempty"`
	Signal   int            `json:"signal,omitempty"`
	Speed    int            `json:"speed_upgrades,omitempty"`
	Stack    int            `json:"stack_upgrades,omitempty"`

	Slots    int    `json:"slots,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
	Resource string `json:"resource,omitempty"`
	Count    int    `json:"count,omitempty"`
}

type EditResult struct {
	Tick     uint64            `json:"tick"`
	Purged   [][3]int          `json:"purged,omitempty"`
	Summary  *linktool.Summary `json:"summary,omitempty"`
	Leftover int               `json:"leftover,omitempty"`
	Error    string            `json:"error,omitempty"`

	err error
}

// Err returns the typed error behind Error, if the edit was applied in
// this process.
func (r EditResult) Err() error {
	if r.err != nil {
		return r.err
	}
	if r.Error != "" {
		return errors.New(r.Error)
	}
	return nil
}

type editReq struct {
	Edit Edit
	Resp chan EditResult
}

// RequestEdit queues e for the next tick and waits for its result.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestEdit(ctx context.Context, e Edit) (EditResult, error) {
	resp := make(chan EditResult, 1)
	select {
	case w.edits <- editReq{Edit: e, Resp: resp}:
	case <-ctx.Done():
		return EditResult{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, r.Err()
	case <-ctx.Done():
		return EditResult{}, ctx.Err()
	}
}

func (w *World) applyEdit(e Edit) EditResult {
	res, err := w.apply(e)
	if err != nil {
		res.err = err
		res.Error = err.Error()
	}
	return res
}

func (w *World) apply(e Edit) (EditResult, error) {
	var res EditResult
	pos := model.FromArray(e.Pos)
	switch e.Op {
	case OpPlaceNode:
		return res, w.placeNode(pos, network.Kind(e.Kind))
	case OpRemoveNode:
		if w.nodes.Node(pos) == nil {
			return res, fmt.Errorf("%w: %v", ErrNotFound, pos)
		}
		res.Purged = toArrays(w.graph.RemoveNode(pos))
	case OpLink:
		return res, w.tool.Link(pos, model.FromArray(e.Other))
	case OpUnlink:
		purged, err := w.tool.Unlink(pos, model.FromArray(e.Other))
		res.Purged = toArrays(purged)
		return res, err
	case OpUnlinkAll:
		purged, err := w.tool.UnlinkAll(pos)
		res.Purged = toArrays(purged)
		return res, err
	case OpSetFilter, OpSetPriority:
		return res, w.editSide(pos, e)
	case OpSetSignal:
		n := w.nodes.Node(pos)
		if n == nil {
			return res, fmt.Errorf("%w: %v", ErrNotFound, pos)
		}
		n.Signal = e.Signal
	case OpSetUpgrades:
		n := w.nodes.Node(pos)
		if !n.IsMaster() {
			return res, fmt.Errorf("%w: %v", ErrNotMaster, pos)
		}
		n.Master.SpeedUpgrades = max(e.Speed, 0)
		n.Master.StackUpgrades = max(e.Stack, 0)
	case OpInspect:
		s, err := w.tool.Inspect(pos)
		if err != nil {
			return res, err
		}
		res.Summary = &s
	case OpPlaceContainer:
		if err := w.vacant(pos); err != nil {
			return res, err
		}
		w.containers[pos] = NewContainer(pos, e.Slots, w.stackLimit)
	case OpPlaceTank:
		if err := w.vacant(pos); err != nil {
			return res, err
		}
		w.tanks[pos] = &Tank{Pos: pos, Capacity: max(e.Capacity, 0)}
	case OpRemoveBlock:
		_, c := w.containers[pos]
		_, t := w.tanks[pos]
		if !c && !t {
			return res, fmt.Errorf("%w: %v", ErrNotFound, pos)
		}
		delete(w.containers, pos)
		delete(w.tanks, pos)
	case OpDeposit:
		s := model.Stack{ID: e.Resource, Count: e.Count}
		if c, ok := w.containers[pos]; ok {
			res.Leftover = c.Deposit(s).Count
		} else if t, ok := w.tanks[pos]; ok {
			res.Leftover = s.Count - t.Fill(s, false)
		} else {
			return res, fmt.Errorf("%w: %v", ErrNotFound, pos)
		}
	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownOp, e.Op)
	}
	return res, nil
}

func (w *World) vacant(pos model.Vec3i) error {
	_, c := w.containers[pos]
	_, t := w.tanks[pos]
	if c || t || w.nodes.Node(pos) != nil {
		return fmt.Errorf("%w: %v", ErrOccupied, pos)
	}
	return nil
}

func (w *World) placeNode(pos model.Vec3i, k network.Kind) error {
	n := network.NewNode(pos, k)
	if n == nil {
		return fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	if err := w.vacant(pos); err != nil {
		return err
	}
	if !w.graph.PlaceNode(n) {
		return fmt.Errorf("%w: %v is reserved", ErrOccupied, pos)
	}
	return nil
}

func (w *World) editSide(pos model.Vec3i, e Edit) error {
	n := w.nodes.Node(pos)
	if n == nil {
		return fmt.Errorf("%w: %v", ErrNotFound, pos)
	}
	if n.Sides == nil {
		return fmt.Errorf("%w: %v", ErrNoSides, pos)
	}
	d, ok := model.ParseDirection(strings.ToUpper(e.Side))
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadSide, e.Side)
	}
	if e.Op == OpSetFilter {
		if e.Filter != nil {
			if _, err := w.filters.UninitializedFilter(*e.Filter); err != nil {
				return err
			}
		}
		n.Sides.SetFilter(d, e.Filter)
		return nil
	}
	if !n.Sides.SetPriority(d, e.Priority) {
		return fmt.Errorf("priority out of range: %d", e.Priority)
	}
	return nil
}

func (w *World) stackLimit(id string) int {
	return w.catalogs.Resources.MaxStack(id)
}

func toArrays(ps []model.Vec3i) [][3]int {
	if len(ps) == 0 {
		return nil
	}
	out := make([][3]int, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ToArray())
	}
	return out
}
