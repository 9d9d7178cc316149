package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"voxelroute.ai/internal/persistence/snapshot"
	"voxelroute.ai/internal/sim/world"
)

const maxEditBody = 1 << 16

type adminBackend interface {
	CurrentTick() uint64
	Metrics() world.WorldMetrics
	Config() world.WorldConfig
	RequestSnapshot(ctx context.Context) (uint64, error)
	RequestState(ctx context.Context) (snapshot.SnapshotV1, error)
	RequestEdit(ctx context.Context, e world.Edit) (world.EditResult, error)
}

func registerAdmin(mux *http.ServeMux, w adminBackend) {
	mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		resp := struct {
			WorldID string               `json:"world_id"`
			Tick    uint64               `json:"tick"`
			Metrics world.WorldMetrics   `json:"metrics"`
			State   *snapshot.SnapshotV1 `json:"state,omitempty"`
		}{
			WorldID: w.Config().ID,
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		}
		if r.URL.Query().Get("full") == "1" {
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			st, err := w.RequestState(ctx2)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			resp.Tick = st.Header.Tick
			resp.State = &st
		}
		writeJSON(rw, http.StatusOK, resp)
	}))
	mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		tick, err := w.RequestSnapshot(ctx2)
		if err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
	}))
	mux.HandleFunc("/admin/v1/edit", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var e world.Edit
		dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxEditBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&e); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad edit: " + err.Error()})
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		res, err := w.RequestEdit(ctx2, e)
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		case err != nil:
			writeJSON(rw, http.StatusUnprocessableEntity, res)
		default:
			writeJSON(rw, http.StatusOK, res)
		}
	}))
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
