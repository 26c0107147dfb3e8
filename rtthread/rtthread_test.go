// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rtthread

import (
	"sync"
	"testing"

	"github.com/maruel/visioncore/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSpawnRunsFn(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	Spawn(zerolog.Nop(), RoleHousekeeping, model.ThreadAssignment{}, func() {
		ran = true
		wg.Done()
	})
	wg.Wait()
	require.True(t, ran)
}

func TestDefaultAssignmentsValid(t *testing.T) {
	d := DefaultAssignments()
	require.NoError(t, validateAssignment(d.CameraAdapter))
	require.NoError(t, validateAssignment(d.SyncManager))
	require.NoError(t, validateAssignment(d.PipelineWorker))
	require.NoError(t, validateAssignment(d.Housekeeping))
}

func TestValidateAssignmentRejectsBadPriority(t *testing.T) {
	require.Error(t, validateAssignment(model.ThreadAssignment{Priority: 100}))
	require.Error(t, validateAssignment(model.ThreadAssignment{Priority: -1}))
}
