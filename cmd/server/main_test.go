package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"voxelroute.ai/internal/persistence/r2s3"
	"voxelroute.ai/internal/persistence/snapshot"
	"voxelroute.ai/internal/sim/world"
)

type fakeBackend struct {
	metrics world.WorldMetrics
	edits   []world.Edit
	editErr error
	snapErr error
}

func (f *fakeBackend) CurrentTick() uint64         { return f.metrics.Tick }
func (f *fakeBackend) Metrics() world.WorldMetrics { return f.metrics }
func (f *fakeBackend) Config() world.WorldConfig   { return world.WorldConfig{ID: "test"} }
func (f *fakeBackend) stats() (r2s3.Stats, bool) {
	return r2s3.Stats{QueueDepth: 2, UploadFailTotal: 1}, true
}
func (f *fakeBackend) RequestSnapshot(context.Context) (uint64, error) {
	return f.metrics.Tick, f.snapErr
}
func (f *fakeBackend) RequestState(context.Context) (snapshot.SnapshotV1, error) {
	return snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, WorldID: "test", Tick: f.metrics.Tick}}, nil
}
func (f *fakeBackend) RequestEdit(_ context.Context, e world.Edit) (world.EditResult, error) {
	f.edits = append(f.edits, e)
	if f.editErr != nil {
		return world.EditResult{Tick: f.metrics.Tick, Error: f.editErr.Error()}, f.editErr
	}
	return world.EditResult{Tick: f.metrics.Tick}, nil
}

func serve(t *testing.T, mux *http.ServeMux, method, path, body, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAdminEdit(t *testing.T) {
	cases := []struct {
		name    string
		method  string
		body    string
		remote  string
		editErr error
		want    int
	}{
		{name: "ok", method: http.MethodPost, body: `{"op":"PLACE_NODE","pos":[1,2,3],"kind":"master"}`, remote: "127.0.0.1:5000", want: http.StatusOK},
		{name: "rejected edit", method: http.MethodPost, body: `{"op":"LINK","pos":[1,2,3],"other":[9,9,9]}`, remote: "127.0.0.1:5000", editErr: world.ErrNotFound, want: http.StatusUnprocessableEntity},
		{name: "bad json", method: http.MethodPost, body: `{"op":`, remote: "127.0.0.1:5000", want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, body: `{"op":"PLACE_NODE","bogus":1}`, remote: "127.0.0.1:5000", want: http.StatusBadRequest},
		{name: "get", method: http.MethodGet, remote: "127.0.0.1:5000", want: http.StatusMethodNotAllowed},
		{name: "remote", method: http.MethodPost, body: `{}`, remote: "10.0.0.7:5000", want: http.StatusForbidden},
		{name: "timeout", method: http.MethodPost, body: `{"op":"INSPECT","pos":[0,1,0]}`, remote: "[::1]:5000", editErr: context.DeadlineExceeded, want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &fakeBackend{metrics: world.WorldMetrics{Tick: 7}, editErr: tc.editErr}
			mux := http.NewServeMux()
			registerAdmin(mux, b)
			rec := serve(t, mux, tc.method, "/admin/v1/edit", tc.body, tc.remote)
			if rec.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestAdminEdit_DecodesEdit(t *testing.T) {
	b := &fakeBackend{}
	mux := http.NewServeMux()
	registerAdmin(mux, b)
	rec := serve(t, mux, http.MethodPost, "/admin/v1/edit",
		`{"op":"SET_PRIORITY","pos":[2,1,0],"side":"down","priority":4}`, "127.0.0.1:1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	want := []world.Edit{{Op: world.OpSetPriority, Pos: [3]int{2, 1, 0}, Side: "down", Priority: 4}}
	if diff := cmp.Diff(want, b.edits); diff != "" {
		t.Fatalf("edits mismatch (-want +got):\n%s", diff)
	}
}

func TestAdminSnapshotAndState(t *testing.T) {
	b := &fakeBackend{metrics: world.WorldMetrics{Tick: 40, Nodes: 3}}
	mux := http.NewServeMux()
	registerAdmin(mux, b)

	rec := serve(t, mux, http.MethodPost, "/admin/v1/snapshot", "", "127.0.0.1:1")
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status=%d", rec.Code)
	}
	b.snapErr = errors.New("snapshot sink backpressure")
	rec = serve(t, mux, http.MethodPost, "/admin/v1/snapshot", "", "127.0.0.1:1")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("snapshot status=%d want 503", rec.Code)
	}

	rec = serve(t, mux, http.MethodGet, "/admin/v1/state?full=1", "", "127.0.0.1:1")
	if rec.Code != http.StatusOK {
		t.Fatalf("state status=%d", rec.Code)
	}
	var got struct {
		WorldID string               `json:"world_id"`
		Tick    uint64               `json:"tick"`
		Metrics world.WorldMetrics   `json:"metrics"`
		State   *snapshot.SnapshotV1 `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.WorldID != "test" || got.Tick != 40 || got.Metrics.Nodes != 3 || got.State == nil {
		t.Fatalf("unexpected state response: %+v", got)
	}
}

func TestWorldCollector(t *testing.T) {
	b := &fakeBackend{metrics: world.WorldMetrics{Tick: 20, ItemsMovedTotal: 64, FluidMovedTotal: 1000}}
	c := &worldCollector{w: b, mirror: b}
	expected := `
# HELP voxelroute_moved_total Units moved by masters.
# TYPE voxelroute_moved_total counter
voxelroute_moved_total{channel="fluid"} 1000
voxelroute_moved_total{channel="item"} 64
# HELP voxelroute_mirror_uploads_total Upload attempts by final result.
# TYPE voxelroute_mirror_uploads_total counter
voxelroute_mirror_uploads_total{result="fail"} 1
voxelroute_mirror_uploads_total{result="success"} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "voxelroute_moved_total", "voxelroute_mirror_uploads_total"); err != nil {
		t.Fatalf("collect: %v", err)
	}

	// Without a mirror only world metrics are emitted.
	var nilMirror *mirrorRuntime
	if n := testutil.CollectAndCount(&worldCollector{w: b, mirror: nilMirror}); n != 14 {
		t.Fatalf("metric count=%d want 14", n)
	}
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("expected no snapshot, got %q", got)
	}
	snapDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"20.snap.zst", "400.snap.zst", "60.snap.zst", "junk.snap.zst", "900.txt"} {
		if err := os.WriteFile(filepath.Join(snapDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := latestSnapshot(dir), filepath.Join(snapDir, "400.snap.zst"); got != want {
		t.Fatalf("latestSnapshot=%q want %q", got, want)
	}
}

func TestLayoutToLoad(t *testing.T) {
	dir := t.TempDir()
	if got := layoutToLoad("", dir); got != "" {
		t.Fatalf("expected no default layout, got %q", got)
	}
	p := filepath.Join(dir, "layout.yaml")
	if err := os.WriteFile(p, []byte("nodes: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := layoutToLoad("", dir); got != p {
		t.Fatalf("layoutToLoad=%q want %q", got, p)
	}
	if got := layoutToLoad(" other.yaml ", dir); got != "other.yaml" {
		t.Fatalf("explicit layout ignored: %q", got)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:8080": true,
		"[::1]:8080":     true,
		"::1":            true,
		"10.1.2.3:80":    false,
		"example.com:80": false,
		"":               false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	dir := t.TempDir()
	idx, err := openRuntimeIndex(dir, true)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("VR_INDEX_BACKEND", "bogus")
	if _, err := openRuntimeIndex(dir, false); err == nil {
		t.Fatalf("expected error for unknown backend")
	}

	t.Setenv("VR_INDEX_BACKEND", "sqlite")
	idx, err = openRuntimeIndex(dir, false)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer idx.Close()
	if _, err := os.Stat(indexPath(dir)); err != nil {
		t.Fatalf("index file: %v", err)
	}
}
