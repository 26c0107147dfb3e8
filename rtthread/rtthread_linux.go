// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rtthread

import (
	"fmt"

	"github.com/maruel/visioncore/model"
	"golang.org/x/sys/unix"
)

func applyAffinity(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	var mask unix.CPUSet
	mask.Zero()
	for _, c := range cpus {
		mask.Set(c)
	}
	return unix.SchedSetaffinity(0, &mask)
}

func applyScheduling(policy model.SchedPolicy, priority int) error {
	var p int
	switch policy {
	case model.SchedNormal, model.SchedBatch, model.SchedIdle:
		return nil // Priority is meaningless for these classes; nothing to set.
	case model.SchedFIFO:
		p = unix.SCHED_FIFO
	case model.SchedRoundRobin:
		p = unix.SCHED_RR
	default:
		return fmt.Errorf("rtthread: unknown scheduling policy %v", policy)
	}
	return unix.SchedSetscheduler(0, p, &unix.SchedParam{Priority: int32(priority)})
}

func applyMemLock() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}
