// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package model

import (
	"fmt"
	"time"
)

// OverflowStrategy is the policy applied when a bounded ring cannot accept a
// new item.
type OverflowStrategy uint8

// Valid values of OverflowStrategy.
const (
	DropOldest OverflowStrategy = iota
	DropNewest
	Block
	Fail
)

func (s OverflowStrategy) String() string {
	switch s {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	case Block:
		return "block"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("overflow(%d)", uint8(s))
	}
}

// SchedPolicy mirrors the OS scheduling classes the RT thread facility can
// request.
type SchedPolicy uint8

// Valid values of SchedPolicy.
const (
	SchedNormal SchedPolicy = iota
	SchedFIFO
	SchedRoundRobin
	SchedBatch
	SchedIdle
)

func (p SchedPolicy) String() string {
	switch p {
	case SchedNormal:
		return "normal"
	case SchedFIFO:
		return "fifo"
	case SchedRoundRobin:
		return "rr"
	case SchedBatch:
		return "batch"
	case SchedIdle:
		return "idle"
	default:
		return fmt.Sprintf("sched(%d)", uint8(p))
	}
}

// CameraConfig describes one configured camera.
type CameraConfig struct {
	ID         string         `yaml:"id"`
	Position   CameraPosition `yaml:"position"`
	Format     PixelFormat    `yaml:"format"`
	Width      int            `yaml:"width"`
	Height     int            `yaml:"height"`
	TriggerMode string        `yaml:"trigger_mode"` // continuous|external|software
}

// PoolConfig sizes the Buffer Pool (C1).
type PoolConfig struct {
	Count         int `yaml:"count"`
	MaxImageBytes int `yaml:"max_image_bytes"`
	LeaseTimeout  time.Duration `yaml:"lease_timeout"`
}

// RingConfig sizes one Lock-free Ring (C2).
type RingConfig struct {
	Capacity int              `yaml:"capacity"`
	Overflow OverflowStrategy `yaml:"overflow"`
}

// ThreadAssignment pins one RT-facility role (C4).
type ThreadAssignment struct {
	Policy    SchedPolicy `yaml:"policy"`
	Priority  int         `yaml:"priority"`
	CPUSet    []int       `yaml:"cpu_set,omitempty"`
	MemLock   bool        `yaml:"mem_lock"`
}

// ThreadConfig is the default thread/CPU assignment table (C4 §4.4).
type ThreadConfig struct {
	CameraAdapter  ThreadAssignment `yaml:"camera_adapter"`
	SyncManager    ThreadAssignment `yaml:"sync_manager"`
	PipelineWorker ThreadAssignment `yaml:"pipeline_worker"`
	Housekeeping   ThreadAssignment `yaml:"housekeeping"`
}

// DetectorConfig activates and parameterizes one Detector plugin (C8).
type DetectorConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// LatencyConfig carries the per-stage soft/hard deadlines and the
// end-to-end budget (§4.7).
type LatencyConfig struct {
	EndToEndBudget  time.Duration            `yaml:"end_to_end_budget"`
	SafetyMargin    time.Duration            `yaml:"safety_margin"`
	StageSoft       map[string]time.Duration `yaml:"stage_soft,omitempty"`
	StageHard       map[string]time.Duration `yaml:"stage_hard,omitempty"`
}

// BreakerConfig parameterizes the Supervisor's circuit breakers (§4.9).
type BreakerConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	ResetTimeout      time.Duration `yaml:"reset_timeout"`
	HalfOpenProbes    int           `yaml:"half_open_probes"`
}

// RetryConfig parameterizes the camera reconnection policy (§4.9).
type RetryConfig struct {
	MinBackoff time.Duration `yaml:"min_backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	Factor     float64       `yaml:"factor"`
	JitterFrac float64       `yaml:"jitter_frac"`
	MaxRetries int           `yaml:"max_retries"`
}

// SyncConfig parameterizes the Sync Manager (§4.6).
type SyncConfig struct {
	WindowDuration    time.Duration `yaml:"window"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	ResyncThreshold   int           `yaml:"resync_threshold"`
	ResyncWindow      time.Duration `yaml:"resync_window"`
}

// Config is the immutable-after-start pipeline configuration document.
// Live updates construct a new Config and swap it atomically at a safe
// point between FrameSets.
type Config struct {
	Cameras   []CameraConfig   `yaml:"cameras"`
	Sync      SyncConfig       `yaml:"sync"`
	Pool      PoolConfig       `yaml:"pool"`
	CameraRing RingConfig      `yaml:"camera_ring"`
	WorkerRing RingConfig      `yaml:"worker_ring"`
	Threads   ThreadConfig     `yaml:"threads"`
	Detectors []DetectorConfig `yaml:"detectors,omitempty"`
	Thresholds map[string]float64 `yaml:"thresholds,omitempty"`
	Latency   LatencyConfig    `yaml:"latency"`
	Breaker   BreakerConfig    `yaml:"breaker"`
	Retry     RetryConfig      `yaml:"retry"`
}

// Validate schema-checks the Config. Any failure is a system-fatal
// ConfigInvalid error (exit code 3) per §6.5.
func (c *Config) Validate() error {
	if len(c.Cameras) == 0 {
		return fmt.Errorf("config: at least one camera must be configured")
	}
	seen := map[string]bool{}
	for _, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("config: camera with empty id")
		}
		if seen[cam.ID] {
			return fmt.Errorf("config: duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
		if cam.Width <= 0 || cam.Height <= 0 {
			return fmt.Errorf("config: camera %q: width/height must be positive", cam.ID)
		}
	}
	if c.Pool.Count <= 0 {
		return fmt.Errorf("config: pool.count must be positive")
	}
	if c.Pool.MaxImageBytes <= 0 {
		return fmt.Errorf("config: pool.max_image_bytes must be positive")
	}
	if c.CameraRing.Capacity <= 0 || c.WorkerRing.Capacity <= 0 {
		return fmt.Errorf("config: ring capacities must be positive")
	}
	if c.Sync.WindowDuration <= 0 {
		return fmt.Errorf("config: sync.window must be positive")
	}
	if c.Latency.EndToEndBudget <= 0 {
		return fmt.Errorf("config: latency.end_to_end_budget must be positive")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("config: breaker.failure_threshold must be positive")
	}
	if c.Retry.Factor <= 1 {
		return fmt.Errorf("config: retry.factor must be greater than 1")
	}
	return nil
}

// HardDeadline returns the end-to-end hard deadline: the configured budget
// minus its safety margin, as described in §4.7.
func (c *Config) HardDeadline() time.Duration {
	d := c.Latency.EndToEndBudget - c.Latency.SafetyMargin
	if d <= 0 {
		return c.Latency.EndToEndBudget
	}
	return d
}

// CameraPositions returns the configured camera positions, in camera
// declaration order.
func (c *Config) CameraPositions() []CameraPosition {
	out := make([]CameraPosition, len(c.Cameras))
	for i, cam := range c.Cameras {
		out[i] = cam.Position
	}
	return out
}
