package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"voxelroute.ai/internal/persistence/r2s3"
)

type mirrorRuntime struct {
	enabled      bool
	rotateLayout string
	mirror       *r2s3.Mirror
}

func buildMirrorRuntime(dataDir string, logger *log.Logger) (*mirrorRuntime, error) {
	enabled := envBool("VR_R2_MIRROR", false)
	if !enabled {
		return &mirrorRuntime{enabled: false}, nil
	}

	cfg := r2s3.Config{
		Endpoint:        strings.TrimSpace(os.Getenv("VR_R2_ENDPOINT")),
		Bucket:          strings.TrimSpace(os.Getenv("VR_R2_BUCKET")),
		Region:          strings.TrimSpace(os.Getenv("VR_R2_REGION")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("VR_R2_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("VR_R2_SECRET_ACCESS_KEY")),
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("VR_R2_MIRROR=true but VR_R2_ENDPOINT/VR_R2_BUCKET/VR_R2_ACCESS_KEY_ID/VR_R2_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := r2s3.New(cfg)
	if err != nil {
		return nil, err
	}

	mirror := r2s3.NewMirror(client, dataDir, r2s3.MirrorOptions{
		Prefix:        strings.TrimSpace(os.Getenv("VR_R2_PREFIX")),
		Workers:       envInt("VR_R2_UPLOAD_WORKERS", 2),
		QueueCapacity: envInt("VR_R2_QUEUE_CAPACITY", 1024),
		EnqueueWait:   time.Duration(envInt("VR_R2_ENQUEUE_WAIT_MS", 50)) * time.Millisecond,
		MaxAttempts:   envInt("VR_R2_MAX_ATTEMPTS", 5),
		Backoff:       time.Duration(envInt("VR_R2_BACKOFF_MS", 500)) * time.Millisecond,
	}, logger)

	return &mirrorRuntime{
		enabled:      true,
		rotateLayout: "2006-01-02-15-04", // 1-minute tick log segments.
		mirror:       mirror,
	}, nil
}

func (r *mirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *mirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

func (r *mirrorRuntime) stats() (r2s3.Stats, bool) {
	if r == nil || !r.enabled || r.mirror == nil {
		return r2s3.Stats{}, false
	}
	return r.mirror.Stats(), true
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
