// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package rtthread

import (
	"errors"

	"github.com/maruel/visioncore/model"
)

var errUnsupported = errors.New("rtthread: real-time scheduling facilities require linux")

func applyAffinity(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	return errUnsupported
}

func applyScheduling(policy model.SchedPolicy, priority int) error {
	if policy == model.SchedNormal {
		return nil
	}
	return errUnsupported
}

func applyMemLock() error {
	return errUnsupported
}
