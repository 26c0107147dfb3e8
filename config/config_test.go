// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/stretchr/testify/require"
)

const validYAML = `
cameras:
  - id: cam-top
    position: 0
    format: 0
    width: 1920
    height: 1080
    trigger_mode: external
sync:
  window: 2ms
  sweep_interval: 1ms
  resync_threshold: 5
  resync_window: 1s
pool:
  count: 16
  max_image_bytes: 2073600
  lease_timeout: 5ms
camera_ring:
  capacity: 8
  overflow: 0
worker_ring:
  capacity: 8
  overflow: 2
latency:
  end_to_end_budget: 10ms
  safety_margin: 1ms
breaker:
  failure_threshold: 5
  reset_timeout: 1s
  half_open_probes: 1
retry:
  min_backoff: 100ms
  max_backoff: 10s
  factor: 2
  jitter_frac: 0.25
  max_retries: 10
`

func TestLoadValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Cameras, 1)
	require.Equal(t, 9*time.Millisecond, cfg.Latency.EndToEndBudget-cfg.Latency.SafetyMargin)
}

func TestLoadInvalidMissingCameras(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cameras: []\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestStoreSwap(t *testing.T) {
	initial := &model.Config{}
	s := NewStore(initial)
	require.Same(t, initial, s.Get())
	next := &model.Config{}
	old := s.Swap(next)
	require.Same(t, initial, old)
	require.Same(t, next, s.Get())
}
