// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rtthread spawns the pinned, priority-scheduled OS threads that the
// Camera Adapter, Sync Manager, and pipeline workers run on. It mirrors the
// one-thread-per-role, LockOSThread-then-SchedSetaffinity pattern used by
// kernel-facing ring runners, generalized to cover scheduling policy and
// memory locking as well as CPU pinning.
package rtthread

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/maruel/visioncore/model"
	"github.com/rs/zerolog"
)

// Role names the default thread assignment table entries from a Config.
type Role string

// Known roles, matching model.ThreadConfig's fields.
const (
	RoleCameraAdapter  Role = "camera_adapter"
	RoleSyncManager    Role = "sync_manager"
	RolePipelineWorker Role = "pipeline_worker"
	RoleHousekeeping   Role = "housekeeping"
)

var warnOnce sync.Once

// Spawn runs fn on a newly created, locked OS thread configured per
// assignment: CPU affinity, scheduling policy/priority, and optional memory
// locking. If any of these facilities are unavailable (non-Linux, missing
// privilege), Spawn logs a one-time DegradedScheduling warning and falls
// back to an unpinned goroutine at the default scheduling class rather than
// failing the caller.
func Spawn(log zerolog.Logger, role Role, assignment model.ThreadAssignment, fn func()) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := applyAffinity(assignment.CPUSet); err != nil {
			degraded(log, role, "cpu_affinity", err)
		}
		if err := applyScheduling(assignment.Policy, assignment.Priority); err != nil {
			degraded(log, role, "scheduling_policy", err)
		}
		if assignment.MemLock {
			if err := applyMemLock(); err != nil {
				degraded(log, role, "mem_lock", err)
			}
		}
		fn()
	}()
}

func degraded(log zerolog.Logger, role Role, facility string, err error) {
	warnOnce.Do(func() {
		log.Warn().Str("role", string(role)).Str("facility", facility).Err(err).
			Msg("rtthread: real-time facility unavailable, continuing at default scheduling")
	})
}

// DefaultAssignments returns a reasonable starting thread table: the camera
// adapter, sync manager and pipeline workers all use low-latency FIFO
// scheduling at descending priorities (90, 80, 70), and housekeeping stays
// on the normal class entirely.
func DefaultAssignments() model.ThreadConfig {
	return model.ThreadConfig{
		CameraAdapter: model.ThreadAssignment{
			Policy: model.SchedFIFO, Priority: 90, MemLock: true,
		},
		SyncManager: model.ThreadAssignment{
			Policy: model.SchedFIFO, Priority: 80, MemLock: true,
		},
		PipelineWorker: model.ThreadAssignment{
			Policy: model.SchedFIFO, Priority: 70,
		},
		Housekeeping: model.ThreadAssignment{
			Policy: model.SchedNormal,
		},
	}
}

func validateAssignment(a model.ThreadAssignment) error {
	if a.Priority < 0 || a.Priority > 99 {
		return fmt.Errorf("rtthread: priority %d out of range [0,99]", a.Priority)
	}
	return nil
}
