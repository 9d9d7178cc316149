package r2s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClient_PutSignsPathStyleRequest(t *testing.T) {
	var (
		gotPath, gotAuth, gotHash, gotType string
		gotBody                            []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("x-amz-content-sha256")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Bucket: "bkt", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	p := filepath.Join(t.TempDir(), "40.snap.zst")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.PutFile(context.Background(), "/worlds/w 1/../w1/snapshots/40.snap.zst", p); err != nil {
		t.Fatalf("put: %v", err)
	}

	if gotPath != "/bkt/worlds/w1/snapshots/40.snap.zst" {
		t.Fatalf("path=%q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260102/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("authorization=%q", gotAuth)
	}
	if gotHash != sha256Hex([]byte("hello")) || string(gotBody) != "hello" {
		t.Fatalf("hash=%q body=%q", gotHash, gotBody)
	}
	if gotType != "application/zstd" {
		t.Fatalf("content type=%q", gotType)
	}
}

func TestClient_PutReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "denied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := New(Config{Endpoint: srv.URL, Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil {
		t.Fatal(err)
	}
	err = c.Put(context.Background(), "k", strings.NewReader("x"), 1, "text/plain")
	if err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{Endpoint: "example.com", Bucket: "b"}); err == nil {
		t.Fatalf("expected error")
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	fails int
	keys  []string
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("transient")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_UploadsWithPrefixAndRetries(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "worlds", "w1", "ticks", "ticks-2026.jsonl.zst")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := &fakeUploader{fails: 2}
	m := NewMirror(up, dir, MirrorOptions{Prefix: "/backup/", Backoff: time.Millisecond}, nil)
	m.Enqueue(p)
	m.Enqueue(filepath.Join(dir, "missing.snap.zst"))
	m.Enqueue(filepath.Join(t.TempDir(), "outside.snap.zst"))
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "backup/worlds/w1/ticks/ticks-2026.jsonl.zst" {
		t.Fatalf("keys=%v", up.keys)
	}
	st := m.Stats()
	if st.EnqueuedTotal != 3 || st.UploadSuccessTotal != 1 || st.UploadFailTotal != 2 {
		t.Fatalf("stats=%+v", st)
	}
}
