package world

import (
	"context"
	"errors"

	"voxelroute.ai/internal/persistence/snapshot"
)

type adminSnapshotReq struct {
	// Export returns the snapshot to the caller instead of the sink.
	Export bool
	Resp   chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Snap *snapshot.SnapshotV1
	Err  string
}

// RequestSnapshot asks the world loop goroutine to enqueue a snapshot.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	r, err := w.adminRoundTrip(ctx, adminSnapshotReq{})
	return r.Tick, err
}

// RequestState returns a snapshot of the current state without persisting
// it.
func (w *World) RequestState(ctx context.Context) (snapshot.SnapshotV1, error) {
	r, err := w.adminRoundTrip(ctx, adminSnapshotReq{Export: true})
	if err != nil || r.Snap == nil {
		return snapshot.SnapshotV1{}, err
	}
	return *r.Snap, nil
}

func (w *World) adminRoundTrip(ctx context.Context, req adminSnapshotReq) (adminSnapshotResp, error) {
	if w == nil || w.admin == nil {
		return adminSnapshotResp{}, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	req.Resp = resp

	select {
	case w.admin <- req:
	case <-ctx.Done():
		return adminSnapshotResp{}, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r, errors.New(r.Err)
		}
		return r, nil
	case <-ctx.Done():
		return adminSnapshotResp{}, ctx.Err()
	}
}

// handleAdminSnapshotRequests runs right after a step, so the current tick
// is fully applied.
func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if w == nil || len(reqs) == 0 {
		return
	}
	snapTick := w.tick.Load()
	snap := w.ExportSnapshot(snapTick)

	sinkErr := ""
	sent := false
	for _, r := range reqs {
		resp := adminSnapshotResp{Tick: snapTick}
		switch {
		case r.Export:
			s := snap
			resp.Snap = &s
		case sent || sinkErr != "":
			resp.Err = sinkErr
		case w.snapshotSink == nil:
			sinkErr = "snapshot sink not configured"
			resp.Err = sinkErr
		default:
			select {
			case w.snapshotSink <- snap:
				sent = true
			default:
				sinkErr = "snapshot sink backpressure"
				resp.Err = sinkErr
			}
		}
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Client timed out; don't block the sim loop.
		}
	}
}
